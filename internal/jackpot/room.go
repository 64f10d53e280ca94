package jackpot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fystack/jackpot-engine/internal/fairness"
	"github.com/fystack/jackpot-engine/internal/metrics"
	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/common/enum"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/events"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/shopspring/decimal"
)

const (
	settleTimeout   = 15 * time.Second
	activityTimeout = 5 * time.Second
)

// RoomStore is the durable state of a room.
type RoomStore interface {
	SettlementStore
	GetBiasConfig(room string) (model.BiasConfig, bool, error)
	SaveBiasConfig(room string, cfg model.BiasConfig) error
	GetWinners(room string) ([]model.Winner, error)
	SaveWinners(room string, winners []model.Winner) error
	GetLastRound(room string) (uint64, error)
}

// ActivityLog receives audit entries. Writes are best effort and never block the round.
type ActivityLog interface {
	Append(ctx context.Context, entry model.ActivityEntry) error
}

type RoomDeps struct {
	Store    RoomStore
	Activity ActivityLog
	Emitter  events.Emitter
	Drawer   fairness.Drawer
	Metrics  *metrics.Collector
	// OnPayout is called with every pending payout right after it is persisted.
	OnPayout func(p *model.Payout)
}

// RoomState is the public read model of a room.
type RoomState struct {
	Room         string          `json:"room"`
	Round        uint64          `json:"round"`
	State        enum.RoundState `json:"state"`
	Pot          decimal.Decimal `json:"pot"`
	PotDisplay   string          `json:"pot_display"`
	TimeLeft     int             `json:"time_left"`
	RoundSeconds int             `json:"round_seconds"`
	Spinning     bool            `json:"spinning"`
	SpinUntil    *time.Time      `json:"spin_until,omitempty"`
	Tickets      []model.Ticket  `json:"tickets"`
	SeedHash     string          `json:"seed_hash,omitempty"`
	LastWinner   *model.Winner   `json:"last_winner,omitempty"`
}

// Room runs one jackpot. A single goroutine owns the ledger, the bias config and
// the history; every other goroutine talks to it through the mailbox.
type Room struct {
	id   string
	cfg  config.RoomConfig
	deps RoomDeps
	log  *slog.Logger
	now  func() time.Time

	ledger     *Ledger
	settler    *Settler
	bias       model.BiasConfig
	history    []model.Winner
	commitment *fairness.Commitment
	lastWinner *model.Winner
	spinUntil  time.Time

	mailbox chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	bg      sync.WaitGroup
}

// NewRoom restores a room from its store. The round counter continues after the
// last settled round so outbox keys stay unique across restarts.
func NewRoom(cfg config.RoomConfig, deps RoomDeps) (*Room, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("room name is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("room %s: store is required", cfg.Name)
	}
	if deps.Emitter == nil {
		deps.Emitter = events.NewNoopEmitter()
	}
	if deps.Drawer == nil {
		deps.Drawer = fairness.NewCommitRevealDrawer(fairness.RoundBeacon{})
	}
	if cfg.MaxWinnersHistory <= 0 {
		cfg.MaxWinnersHistory = constant.DefaultMaxWinnersHistory
	}

	bias, found, err := deps.Store.GetBiasConfig(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("room %s: load bias config: %w", cfg.Name, err)
	}
	if !found {
		bias = DefaultBiasConfig(cfg.Bias)
		if err := deps.Store.SaveBiasConfig(cfg.Name, bias); err != nil {
			return nil, fmt.Errorf("room %s: save default bias config: %w", cfg.Name, err)
		}
	}

	history, err := deps.Store.GetWinners(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("room %s: load winners: %w", cfg.Name, err)
	}
	if len(history) > cfg.MaxWinnersHistory {
		history = history[:cfg.MaxWinnersHistory]
	}

	last, err := deps.Store.GetLastRound(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("room %s: load round: %w", cfg.Name, err)
	}

	r := &Room{
		id:      cfg.Name,
		cfg:     cfg,
		deps:    deps,
		log:     logger.With("room", cfg.Name),
		now:     func() time.Time { return time.Now().UTC() },
		ledger:  NewLedger(cfg.RoundSeconds, last+1),
		settler: NewSettler(cfg.Name, deps.Store, deps.Drawer, cfg.MaxWinnersHistory),
		bias:    bias,
		history: history,
		mailbox: make(chan func()),
		done:    make(chan struct{}),
	}
	if len(history) > 0 {
		r.lastWinner = &r.history[0]
	}
	return r, nil
}

func (r *Room) ID() string { return r.id }

// Start opens the first round and launches the room loop.
func (r *Room) Start(ctx context.Context) {
	if r.started {
		return
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.openRound()
	r.log.Info("Room started",
		"round", r.ledger.Round(),
		"round_seconds", r.cfg.RoundSeconds,
		"history", len(r.history),
	)
	go r.run()
}

// Stop ends the loop and waits for pending activity writes.
func (r *Room) Stop() {
	if !r.started {
		return
	}
	r.cancel()
	<-r.done
	r.bg.Wait()
	r.log.Info("Room stopped")
}

func (r *Room) run() {
	defer close(r.done)

	var tick <-chan time.Time
	if r.cfg.TickInterval > 0 {
		ticker := time.NewTicker(r.cfg.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.ctx.Done():
			return
		case fn := <-r.mailbox:
			fn()
		case <-tick:
			r.tick()
		}
	}
}

// do runs fn on the room goroutine and waits for it.
func (r *Room) do(ctx context.Context, fn func()) error {
	if !r.started {
		return ErrRoomStopped
	}
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case r.mailbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomStopped
	}

	select {
	case <-finished:
		return nil
	case <-r.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrRoomStopped
		}
	}
}

func (r *Room) tick() {
	// a failed settlement keeps the round locked and is retried here
	if r.ledger.State() == enum.RoundStateSettling {
		r.settle()
		return
	}
	if r.ledger.Tick() {
		r.settle()
	}
}

func (r *Room) settle() {
	snap := r.ledger.Snapshot()
	if len(snap.Tickets) == 0 {
		r.deps.Metrics.RoundClosed(r.id, "empty")
		r.nextRound()
		return
	}

	if r.commitment == nil {
		c, err := r.deps.Drawer.Open(snap.Round)
		if err != nil {
			r.log.Error("Failed to open commitment", "round", snap.Round, "err", err)
			r.deps.Metrics.SettlementFailed(r.id)
			return
		}
		r.commitment = c
	}

	cfg := r.bias.Clone()
	ctx, cancel := context.WithTimeout(r.ctx, settleTimeout)
	defer cancel()

	start := time.Now()
	res, err := r.settler.Settle(ctx, snap, cfg, r.commitment, r.history)
	if err != nil {
		r.log.Error("Settlement failed, retrying on next tick", "round", snap.Round, "err", err)
		r.deps.Metrics.SettlementFailed(r.id)
		return
	}

	w := res.Winner
	r.ledger.SetPending(w)
	r.history = res.History
	r.lastWinner = w
	r.spinUntil = r.now().Add(r.cfg.SpinDelay)

	if res.Bias != nil {
		r.bias = *res.Bias
	}

	r.log.Info("Round settled",
		"round", snap.Round,
		"tickets", len(snap.Tickets),
		"pot", snap.Pot.String(),
		"winner", w.Username,
		"wallet", w.WalletAddress,
		"payout", w.Amount.String(),
		"chance", w.Chance,
		"forced", w.Forced,
		"payout_status", w.PayoutStatus,
		"took", time.Since(start),
	)

	action := model.ActionWin
	outcome := "settled"
	if w.Forced {
		action = model.ActionForcedWin
		outcome = "forced"
	}
	if cfg.Logging && w.WalletAddress != "" {
		r.appendActivity(model.ActivityEntry{
			WalletAddress: w.WalletAddress,
			IsInternal:    w.IsInternal,
			Action:        action,
			Amount:        w.Amount,
			Reference:     model.PayoutGameID(r.id, w.RoundID),
		})
	}
	if err := r.deps.Emitter.EmitWinner(w); err != nil {
		r.log.Warn("Failed to emit winner", "err", err)
	}
	r.deps.Metrics.RoundClosed(r.id, outcome)

	if res.Payout != nil && r.deps.OnPayout != nil {
		r.deps.OnPayout(res.Payout)
	}
	r.nextRound()
}

func (r *Room) nextRound() {
	r.ledger.Reset()
	r.openRound()
}

func (r *Room) openRound() {
	r.commitment = nil
	c, err := r.deps.Drawer.Open(r.ledger.Round())
	if err != nil {
		// settle opens it again before drawing
		r.log.Error("Failed to open commitment", "round", r.ledger.Round(), "err", err)
		return
	}
	r.commitment = c
	if err := r.deps.Emitter.EmitRoundOpened(r.id, c.Round, c.SeedHash); err != nil {
		r.log.Warn("Failed to emit round opened", "err", err)
	}
}

func (r *Room) appendActivity(e model.ActivityEntry) {
	if r.deps.Activity == nil {
		return
	}
	e.RoomID = r.id
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), activityTimeout)
		defer cancel()
		if err := r.deps.Activity.Append(ctx, e); err != nil {
			r.log.Warn("Failed to append activity", "action", e.Action, "err", err)
		}
	}()
}

// Join places a ticket in the current round.
func (r *Room) Join(ctx context.Context, amount decimal.Decimal, b Bettor) (model.Ticket, error) {
	var (
		t       model.Ticket
		joinErr error
	)
	err := r.do(ctx, func() {
		t, joinErr = r.ledger.Join(amount, b)
		if joinErr != nil {
			return
		}
		r.deps.Metrics.TicketJoined(r.id, t.Amount.InexactFloat64(), r.ledger.Pot().InexactFloat64())
		if r.bias.Logging && b.WalletAddress != "" {
			r.appendActivity(model.ActivityEntry{
				WalletAddress: b.WalletAddress,
				IsInternal:    b.IsInternal,
				Action:        model.ActionBet,
				Amount:        t.Amount,
				Reference:     t.ID,
			})
		}
	})
	if err != nil {
		return model.Ticket{}, err
	}
	return t, joinErr
}

// Tick advances the round timer by one step, same as the internal ticker.
func (r *Room) Tick(ctx context.Context) error {
	return r.do(ctx, r.tick)
}

func (r *Room) State(ctx context.Context) (RoomState, error) {
	var s RoomState
	err := r.do(ctx, func() {
		snap := r.ledger.Snapshot()
		now := r.now()
		s = RoomState{
			Room:         r.id,
			Round:        snap.Round,
			State:        snap.State,
			Pot:          snap.Pot,
			PotDisplay:   snap.Pot.StringFixed(constant.DisplayDecimals),
			TimeLeft:     snap.TimeLeft,
			RoundSeconds: snap.Duration,
			Spinning:     r.ledger.Spinning() || now.Before(r.spinUntil),
			Tickets:      snap.Tickets,
		}
		if now.Before(r.spinUntil) {
			until := r.spinUntil
			s.SpinUntil = &until
		}
		if r.commitment != nil {
			s.SeedHash = r.commitment.SeedHash
		}
		if r.lastWinner != nil {
			w := *r.lastWinner
			s.LastWinner = &w
		}
	})
	return s, err
}

// History returns the winners, most recent first.
func (r *Room) History(ctx context.Context) ([]model.Winner, error) {
	var out []model.Winner
	err := r.do(ctx, func() {
		out = make([]model.Winner, len(r.history))
		copy(out, r.history)
	})
	return out, err
}

func (r *Room) BiasConfig(ctx context.Context) (model.BiasConfig, error) {
	var cfg model.BiasConfig
	err := r.do(ctx, func() { cfg = r.bias.Clone() })
	return cfg, err
}

// MutateBias applies fn to a copy of the configuration, persists it and only then
// makes it visible. A failing fn or store leaves the configuration unchanged.
func (r *Room) MutateBias(ctx context.Context, fn func(*model.BiasConfig) error) (model.BiasConfig, error) {
	var (
		out    model.BiasConfig
		mutErr error
	)
	err := r.do(ctx, func() {
		next := r.bias.Clone()
		if mutErr = fn(&next); mutErr != nil {
			return
		}
		if mutErr = r.deps.Store.SaveBiasConfig(r.id, next); mutErr != nil {
			return
		}
		r.bias = next
		out = next.Clone()
	})
	if err != nil {
		return model.BiasConfig{}, err
	}
	return out, mutErr
}

// ApplyPayout mirrors an outbox update onto the winner history.
func (r *Room) ApplyPayout(ctx context.Context, p *model.Payout) error {
	var applyErr error
	err := r.do(ctx, func() {
		idx := -1
		for i := range r.history {
			if r.history[i].RoundID == p.RoundID {
				idx = i
				break
			}
		}
		if idx < 0 {
			applyErr = ErrWinnerNotFound
			return
		}

		next := make([]model.Winner, len(r.history))
		copy(next, r.history)
		w := &next[idx]
		w.PayoutStatus = p.Status
		w.PayoutAttempts = p.Attempts
		w.TxSignature = p.TxSignature
		w.LastError = p.LastError
		if applyErr = r.deps.Store.SaveWinners(r.id, next); applyErr != nil {
			return
		}
		r.history = next
		if r.lastWinner != nil && r.lastWinner.RoundID == p.RoundID {
			r.lastWinner = &r.history[idx]
		}

		if r.bias.Logging && (p.Status == model.PayoutPaid || p.Status == model.PayoutFailed) {
			action := model.ActionPayout
			if p.Status == model.PayoutFailed {
				action = model.ActionPayoutFailed
			}
			r.appendActivity(model.ActivityEntry{
				WalletAddress: p.Destination,
				IsInternal:    w.IsInternal,
				Action:        action,
				Amount:        p.Amount,
				Reference:     p.TxSignature,
			})
		}
	})
	if err != nil {
		return err
	}
	return applyErr
}

// LogActivity records a wallet action reported by a client, when logging is on.
func (r *Room) LogActivity(ctx context.Context, e model.ActivityEntry) (bool, error) {
	var logged bool
	err := r.do(ctx, func() {
		if !r.bias.Logging || e.WalletAddress == "" {
			return
		}
		r.appendActivity(e)
		logged = true
	})
	return logged, err
}
