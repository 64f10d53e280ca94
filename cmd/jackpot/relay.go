package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fystack/jackpot-engine/internal/payout"
	"github.com/fystack/jackpot-engine/internal/relay"
	"github.com/fystack/jackpot-engine/internal/rpc/solana"
	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/kvstore"
)

// runRelay serves transfers with the house key. The relay keeps its own kv
// store for game id deduplication, so it must not share a badger directory
// with a running engine.
func runRelay(configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Relay.Port
	}
	if cfg.Relay.AuthToken == "" {
		if cfg.Environment == constant.EnvProduction {
			return errors.New("relay.auth_token is required in production")
		}
		logger.Warn("relay.auth_token not set, any bearer token is accepted")
	}

	client, err := solana.NewFromConfig(cfg.Solana)
	if err != nil {
		return fmt.Errorf("create solana client: %w", err)
	}
	defer client.Close()

	executor, err := payout.NewSolanaExecutorFromConfig(cfg.Solana, client)
	if err != nil {
		return err
	}

	kv, err := kvstore.NewFromConfig(cfg.KVStore)
	if err != nil {
		return fmt.Errorf("open kvstore: %w", err)
	}
	defer kv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if balance, err := executor.Balance(ctx); err != nil {
		logger.Warn("Could not read house balance", "err", err)
	} else {
		logger.Info("House wallet ready", "address", executor.HouseAddress(), "balance", balance.String())
	}

	return relay.NewServer(executor, executor, cfg.Relay.AuthToken, kv).Run(ctx, port)
}
