package main

import (
	"context"
	"testing"
	"time"

	"github.com/fystack/jackpot-engine/internal/fairness"
	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/common/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Environment: "development",
		HTTP:        config.HTTPConfig{Port: 0, JoinRPS: 5, JoinBurst: 10},
		Rooms: config.RoomsConfig{Items: map[string]config.RoomConfig{
			"main": {Name: "main", RoundSeconds: 60, TickInterval: time.Second, MaxWinnersHistory: 10},
			"vip":  {Name: "vip", RoundSeconds: 30, TickInterval: time.Second, MaxWinnersHistory: 5},
		}},
		KVStore: config.KVSConfig{
			Type:   enum.KVStoreTypeBadger,
			Badger: config.BadgerConfig{Directory: t.TempDir()},
		},
		Activity: config.ActivityConfig{Backend: enum.ActivityBackendKV},
		Payout:   config.PayoutConfig{Executor: enum.PayoutExecutorNoop, PollInterval: time.Second, MaxAttempts: 1},
		Fairness: config.FairnessConfig{Mode: "commit_reveal", Beacon: "round"},
	}
}

func TestBootstrap_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bootstrap(ctx, testConfig(t))
	require.NoError(t, err)
	require.Len(t, a.rooms.Rooms(), 2)
	assert.Equal(t, "main", a.rooms.Rooms()[0].ID())

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestBootstrap_UnknownExecutor(t *testing.T) {
	cfg := testConfig(t)
	cfg.Payout.Executor = "carrier-pigeon"

	_, err := bootstrap(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported payout executor")
}

type staticBlockhash string

func (s staticBlockhash) GetLatestBlockhash(context.Context) (string, error) {
	return string(s), nil
}

func TestBuildDrawer(t *testing.T) {
	ctx := context.Background()

	t.Run("commit reveal with round beacon", func(t *testing.T) {
		d := buildDrawer(config.FairnessConfig{Mode: "commit_reveal", Beacon: "round"}, nil, config.SolanaConfig{})
		c, err := d.Open(4)
		require.NoError(t, err)
		_, proof, err := d.Draw(ctx, c)
		require.NoError(t, err)
		require.NotNil(t, proof)
		assert.Equal(t, "round:4", proof.PublicValue)
		assert.NoError(t, fairness.Verify(*proof))
	})

	t.Run("solana beacon uses the blockhash", func(t *testing.T) {
		d := buildDrawer(config.FairnessConfig{Mode: "commit_reveal", Beacon: "solana"}, staticBlockhash("abc"), config.SolanaConfig{})
		c, err := d.Open(1)
		require.NoError(t, err)
		_, proof, err := d.Draw(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, "blockhash:abc", proof.PublicValue)
	})

	t.Run("insecure has no proof", func(t *testing.T) {
		d := buildDrawer(config.FairnessConfig{Mode: "insecure"}, nil, config.SolanaConfig{})
		c, err := d.Open(1)
		require.NoError(t, err)
		v, proof, err := d.Draw(ctx, c)
		require.NoError(t, err)
		assert.Nil(t, proof)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	})
}

func TestCompactData(t *testing.T) {
	assert.Equal(t, `{"seed_hash":"ab"}`, compactData([]byte(`{"type":"round_opened","data":{"seed_hash":"ab"}}`)))
	assert.Equal(t, "{}", compactData([]byte(`not json`)))
	assert.Equal(t, "-", dash(""))
	assert.Equal(t, "x", dash("x"))
}
