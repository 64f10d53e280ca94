package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/fystack/jackpot-engine/pkg/model"
)

const (
	TypeRoundOpened = "round_opened"
	TypeRoundWinner = "round_settled"
	TypePayout      = "payout"
)

type JackpotEvent struct {
	Type      string `json:"type"`
	Room      string `json:"room"`
	Round     uint64 `json:"round"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type RoundOpened struct {
	SeedHash string `json:"seed_hash,omitempty"`
}

type Emitter interface {
	EmitRoundOpened(room string, round uint64, seedHash string) error
	EmitWinner(w *model.Winner) error
	EmitPayout(p *model.Payout) error
	Emit(event JackpotEvent) error
	Close()
}

type emitter struct {
	queue         infra.MessageQueue
	subjectPrefix string
}

// NewEmitter publishes every event on <prefix>.<room>.<type>.
func NewEmitter(queue infra.MessageQueue, subjectPrefix string) Emitter {
	return &emitter{
		queue:         queue,
		subjectPrefix: subjectPrefix,
	}
}

func (e *emitter) EmitRoundOpened(room string, round uint64, seedHash string) error {
	return e.Emit(JackpotEvent{
		Type:  TypeRoundOpened,
		Room:  room,
		Round: round,
		Data:  RoundOpened{SeedHash: seedHash},
	})
}

func (e *emitter) EmitWinner(w *model.Winner) error {
	return e.Emit(JackpotEvent{Type: TypeRoundWinner, Room: w.RoomID, Round: w.RoundID, Data: w})
}

func (e *emitter) EmitPayout(p *model.Payout) error {
	return e.Emit(JackpotEvent{Type: TypePayout, Room: p.RoomID, Round: p.RoundID, Data: p})
}

func (e *emitter) Emit(event JackpotEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UTC().Unix()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// payout events repeat per attempt, the status keeps them distinct
	key := fmt.Sprintf("%s:%s:%d", event.Room, event.Type, event.Round)
	if p, ok := event.Data.(*model.Payout); ok {
		key = fmt.Sprintf("%s:%s:%d", key, p.Status, p.Attempts)
	}
	return e.queue.Enqueue(Subject(e.subjectPrefix, event.Room, event.Type), data, &infra.EnqueueOptions{
		IdempotententKey: key,
	})
}

func (e *emitter) Close() {
	if e.queue != nil {
		e.queue.Close()
	}
}

func Subject(prefix, room, eventType string) string {
	return prefix + "." + room + "." + eventType
}

type noopEmitter struct{}

// NewNoopEmitter is used when no NATS server is configured.
func NewNoopEmitter() Emitter { return noopEmitter{} }

func (noopEmitter) EmitRoundOpened(string, uint64, string) error { return nil }
func (noopEmitter) EmitWinner(*model.Winner) error               { return nil }
func (noopEmitter) EmitPayout(*model.Payout) error               { return nil }
func (noopEmitter) Emit(JackpotEvent) error                      { return nil }
func (noopEmitter) Close()                                       {}
