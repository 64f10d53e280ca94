package jackpot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/model"
)

const defaultShutdownTimeout = 30 * time.Second

// Manager owns every configured room and routes calls by room id.
type Manager struct {
	rooms map[string]*Room
	order []string
}

func NewManager(rooms ...*Room) *Manager {
	m := &Manager{rooms: make(map[string]*Room, len(rooms))}
	for _, r := range rooms {
		m.rooms[r.ID()] = r
		m.order = append(m.order, r.ID())
	}
	return m
}

func (m *Manager) Room(id string) (*Room, error) {
	r, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return r, nil
}

// Rooms returns rooms in configuration order.
func (m *Manager) Rooms() []*Room {
	out := make([]*Room, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rooms[id])
	}
	return out
}

func (m *Manager) Start(ctx context.Context) {
	for _, r := range m.Rooms() {
		r.Start(ctx)
	}
}

// Stop stops all rooms concurrently, giving up after a timeout.
func (m *Manager) Stop() {
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, r := range m.rooms {
			wg.Add(1)
			go func(r *Room) {
				defer wg.Done()
				r.Stop()
			}(r)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All rooms stopped")
	case <-time.After(defaultShutdownTimeout):
		logger.Warn("Room shutdown timed out", "timeout", defaultShutdownTimeout)
	}
}

// ApplyPayout forwards an outbox update to the owning room.
func (m *Manager) ApplyPayout(ctx context.Context, p *model.Payout) error {
	r, err := m.Room(p.RoomID)
	if err != nil {
		return err
	}
	return r.ApplyPayout(ctx, p)
}
