package payout

import (
	"context"

	"github.com/fystack/jackpot-engine/pkg/common/logger"
)

// NoopExecutor only logs. It is meant for development and simulations.
type NoopExecutor struct{}

func NewNoopExecutor() *NoopExecutor { return &NoopExecutor{} }

func (NoopExecutor) Name() string { return "noop" }

func (NoopExecutor) Execute(_ context.Context, req Request) (Result, error) {
	logger.Info("Noop payout", "game_id", req.GameID, "destination", req.Destination, "amount", req.Amount.String())
	return Result{Success: true, Signature: "noop-" + req.GameID}, nil
}
