package payout

import (
	"fmt"

	"github.com/fystack/jackpot-engine/internal/rpc/solana"
	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/common/enum"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
)

// NewFromConfig builds the executor selected by payout.executor. api may be nil
// unless the solana executor is selected.
func NewFromConfig(cfg config.Config, api solana.SolanaAPI) (Executor, error) {
	switch cfg.Payout.Executor {
	case enum.PayoutExecutorRelay:
		logger.Info("Using relay payout executor", "url", cfg.Payout.Relay.URL)
		return NewRelayExecutor(cfg.Payout.Relay.URL, cfg.Payout.Relay.Token, cfg.Payout.Relay.Timeout), nil
	case enum.PayoutExecutorSolana:
		return NewSolanaExecutorFromConfig(cfg.Solana, api)
	case enum.PayoutExecutorNoop, "":
		logger.Warn("Using noop payout executor, winners will not be paid on chain")
		return NewNoopExecutor(), nil
	default:
		return nil, fmt.Errorf("unsupported payout executor: %s", cfg.Payout.Executor)
	}
}

func NewSolanaExecutorFromConfig(cfg config.SolanaConfig, api solana.SolanaAPI) (*SolanaExecutor, error) {
	if api == nil {
		return nil, fmt.Errorf("solana executor requires a solana client")
	}
	key, err := solana.LoadKeypair(cfg.HouseKeyEnv, cfg.HouseKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load house key: %w", err)
	}
	exec := NewSolanaExecutor(api, key, SolanaOptions{
		Commitment:     cfg.Commitment,
		ConfirmTimeout: cfg.ConfirmTimeout,
	})
	logger.Info("Using solana payout executor", "house", exec.HouseAddress())
	return exec, nil
}
