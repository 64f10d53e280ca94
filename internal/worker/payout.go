package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/jackpot-engine/internal/metrics"
	"github.com/fystack/jackpot-engine/internal/payout"
	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/events"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/fystack/jackpot-engine/pkg/retry"
	"github.com/fystack/jackpot-engine/pkg/store/payoutstore"
)

var ErrNotRetryable = errors.New("payout is not in a retryable state")

// PayoutApplier mirrors outbox updates onto the room that owns the winner.
type PayoutApplier interface {
	ApplyPayout(ctx context.Context, p *model.Payout) error
}

// PayoutDeps groups the dependencies of the payout worker.
type PayoutDeps struct {
	Store    payoutstore.Store
	Executor payout.Executor
	Rooms    PayoutApplier
	Emitter  events.Emitter
	// FailureQueue is optional. Failed payouts stay in the outbox either way.
	FailureQueue FailureQueue
	Metrics      *metrics.Collector
	Config       config.PayoutConfig
}

// PayoutWorker drains the payout outbox. Entries are processed one at a time
// so a round is never paid by two attempts concurrently.
type PayoutWorker struct {
	*BaseWorker
	deps PayoutDeps
}

var _ Worker = (*PayoutWorker)(nil)

func NewPayoutWorker(ctx context.Context, deps PayoutDeps) *PayoutWorker {
	if deps.Emitter == nil {
		deps.Emitter = events.NewNoopEmitter()
	}
	if deps.Config.PollInterval <= 0 {
		deps.Config.PollInterval = 5 * time.Second
	}
	if deps.Config.MaxAttempts <= 0 {
		deps.Config.MaxAttempts = 1
	}
	if deps.Config.RetryInitialInterval <= 0 {
		deps.Config.RetryInitialInterval = time.Second
	}
	return &PayoutWorker{
		BaseWorker: newBaseWorker(ctx, "payout", deps.Config.PollInterval),
		deps:       deps,
	}
}

func (w *PayoutWorker) Start() {
	w.logger.Info("Starting payout worker",
		"executor", w.deps.Executor.Name(),
		"poll_interval", w.deps.Config.PollInterval,
		"max_attempts", w.deps.Config.MaxAttempts,
	)
	w.start(w.drain)
	w.trigger()
}

// Notify wakes the worker for a freshly settled payout. The entry itself is
// read back from the outbox, so a dropped wake-up only delays it to the next poll.
func (w *PayoutWorker) Notify(p *model.Payout) {
	if p == nil || p.Status != model.PayoutPending {
		return
	}
	w.trigger()
}

// Retry moves a failed payout back to pending and wakes the worker.
func (w *PayoutWorker) Retry(ctx context.Context, room string, round uint64) (*model.Payout, error) {
	p, err := w.deps.Store.Get(room, round)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PayoutFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRetryable, p.GameID(), p.Status)
	}

	p.Status = model.PayoutPending
	p.LastError = ""
	if err := w.deps.Store.Save(p); err != nil {
		return nil, fmt.Errorf("save payout: %w", err)
	}
	w.apply(ctx, p)
	w.logger.Info("Payout re-queued", "game_id", p.GameID(), "attempts", p.Attempts)

	w.trigger()
	return p, nil
}

// drain processes every pending entry, oldest first.
func (w *PayoutWorker) drain() error {
	pending, err := w.deps.Store.ListByStatus(model.PayoutPending)
	if err != nil {
		return fmt.Errorf("list pending payouts: %w", err)
	}
	for _, p := range pending {
		if w.ctx.Err() != nil {
			return nil
		}
		w.process(w.ctx, p)
	}
	return nil
}

func (w *PayoutWorker) process(ctx context.Context, p *model.Payout) {
	log := w.logger.With("game_id", p.GameID(), "destination", p.Destination)
	req := payout.Request{Amount: p.Amount, Destination: p.Destination, GameID: p.GameID()}

	var res payout.Result
	err := retry.ExponentialContext(ctx, func(ctx context.Context) error {
		p.Attempts++
		start := time.Now()

		var execErr error
		res, execErr = w.deps.Executor.Execute(ctx, req)
		if execErr == nil && !res.Success {
			execErr = fmt.Errorf("%w: %s", payout.ErrPayoutFailed, res.Message)
		}

		status := "success"
		if execErr != nil {
			status = "error"
		}
		w.deps.Metrics.PayoutAttempt(p.RoomID, w.deps.Executor.Name(), status, time.Since(start))

		if execErr == nil {
			return nil
		}
		p.LastError = execErr.Error()
		if res.Signature != "" {
			p.TxSignature = res.Signature
		}
		if err := w.deps.Store.Save(p); err != nil {
			log.Warn("Failed to record payout attempt", "err", err)
		}
		if payout.IsPermanent(execErr) {
			return retry.Permanent(execErr)
		}
		return execErr
	}, retry.ExponentialConfig{
		InitialInterval: w.deps.Config.RetryInitialInterval,
		MaxElapsedTime:  w.deps.Config.RetryMaxElapsed,
		MaxAttempts:     w.deps.Config.MaxAttempts,
		OnRetry: func(err error, next time.Duration) {
			log.Warn("Payout attempt failed, retrying", "attempt", p.Attempts, "err", err, "next_retry_in", next)
		},
	})

	switch {
	case err == nil:
		p.Status = model.PayoutPaid
		p.TxSignature = res.Signature
		p.LastError = ""
		log.Info("Payout sent", "amount", p.Amount.String(), "signature", p.TxSignature, "attempts", p.Attempts)
	case ctx.Err() != nil:
		// shutting down, the entry stays pending for the next start
		if saveErr := w.deps.Store.Save(p); saveErr != nil {
			log.Warn("Failed to record payout attempt", "err", saveErr)
		}
		return
	default:
		p.Status = model.PayoutFailed
		p.LastError = err.Error()
		log.Error("Payout failed, manual review required",
			"amount", p.Amount.String(),
			"attempts", p.Attempts,
			"permanent", payout.IsPermanent(err),
			"err", err,
		)
	}

	if err := w.deps.Store.Save(p); err != nil {
		log.Error("Failed to save payout result", "status", p.Status, "err", err)
		return
	}
	if p.Status == model.PayoutFailed && w.deps.FailureQueue != nil {
		if err := w.deps.FailureQueue.EnqueueFailedPayout(ctx, p); err != nil {
			log.Warn("Failed to enqueue payout for manual review", "err", err)
		}
	}
	w.apply(ctx, p)
	if err := w.deps.Emitter.EmitPayout(p); err != nil {
		log.Warn("Failed to emit payout event", "err", err)
	}
}

func (w *PayoutWorker) apply(ctx context.Context, p *model.Payout) {
	if w.deps.Rooms == nil {
		return
	}
	if err := w.deps.Rooms.ApplyPayout(ctx, p); err != nil {
		w.logger.Warn("Failed to update winner history", "game_id", p.GameID(), "err", err)
	}
}
