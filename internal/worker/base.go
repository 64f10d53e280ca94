package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/fystack/jackpot-engine/pkg/retry"
)

// Worker is the interface implemented by all worker types.
type Worker interface {
	Start()
	Stop()
}

// FailureQueue captures payouts that need a human decision.
type FailureQueue interface {
	EnqueueFailedPayout(ctx context.Context, p *model.Payout) error
}

type redisFailureQueue struct {
	client infra.RedisClient
}

func NewRedisFailureQueue(client infra.RedisClient) FailureQueue {
	if client == nil {
		return nil
	}
	return &redisFailureQueue{client: client}
}

func ManualReviewKey(room string) string {
	return fmt.Sprintf("%s:%s", constant.ManualReviewPrefix, room)
}

func (q *redisFailureQueue) EnqueueFailedPayout(ctx context.Context, p *model.Payout) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return q.client.GetClient().LPush(ctx, ManualReviewKey(p.RoomID), raw).Err()
}

// BaseWorker holds the loop shared by polling workers.
type BaseWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	name     string
	interval time.Duration
	logger   *slog.Logger
	wake     chan struct{}
	done     chan struct{}
	started  atomic.Bool
}

func newBaseWorker(ctx context.Context, name string, interval time.Duration) *BaseWorker {
	ctx, cancel := context.WithCancel(ctx)
	return &BaseWorker{
		ctx:      ctx,
		cancel:   cancel,
		name:     name,
		interval: interval,
		logger:   logger.With(slog.String("worker", strings.ToUpper(name))),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// start launches the loop once.
func (bw *BaseWorker) start(job func() error) {
	if bw.started.CompareAndSwap(false, true) {
		go bw.run(job)
	}
}

// Stop cancels the loop and waits for the job in flight to return.
func (bw *BaseWorker) Stop() {
	bw.cancel()
	if bw.started.Load() {
		<-bw.done
	}
	bw.logger.Info("Worker stopped")
}

// trigger asks the loop to run the job now. It never blocks.
func (bw *BaseWorker) trigger() {
	select {
	case bw.wake <- struct{}{}:
	default:
	}
}

// run executes job every interval, and whenever trigger is called.
func (bw *BaseWorker) run(job func() error) {
	defer close(bw.done)

	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()

	const retryInterval = 2 * time.Second

	for {
		select {
		case <-bw.ctx.Done():
			bw.logger.Info("Context done, stopping worker loop")
			return
		case <-ticker.C:
		case <-bw.wake:
		}

		if err := retry.ExponentialContext(bw.ctx, func(context.Context) error { return job() }, retry.ExponentialConfig{
			InitialInterval: retryInterval,
			MaxElapsedTime:  bw.interval * 4,
			OnRetry: func(err error, next time.Duration) {
				bw.logger.Debug("Retrying job", "err", err, "next_retry_in", next)
			},
		}); err != nil && bw.ctx.Err() == nil {
			bw.logger.Error("Job error", "err", err)
		}
	}
}
