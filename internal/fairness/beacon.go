package fairness

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/model"
)

// Beacon supplies a public value that was unknown when the seed was committed.
type Beacon interface {
	PublicValue(ctx context.Context, round uint64) (string, error)
}

// RoundBeacon uses the round number only. Verifiable, but the public half adds no entropy.
type RoundBeacon struct{}

func (RoundBeacon) PublicValue(_ context.Context, round uint64) (string, error) {
	return "round:" + strconv.FormatUint(round, 10), nil
}

// BlockhashSource is satisfied by the solana rpc client.
type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context) (string, error)
}

// SolanaBeacon takes the latest blockhash at draw time. When the RPC is
// unreachable it falls back to the round beacon so settlement never stalls;
// the proof records which value was used.
type SolanaBeacon struct {
	Source   BlockhashSource
	Timeout  time.Duration
	fallback RoundBeacon
}

func NewSolanaBeacon(src BlockhashSource, timeout time.Duration) *SolanaBeacon {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SolanaBeacon{Source: src, Timeout: timeout}
}

func (b *SolanaBeacon) PublicValue(ctx context.Context, round uint64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	hash, err := b.Source.GetLatestBlockhash(ctx)
	if err != nil || hash == "" {
		logger.Warn("Blockhash beacon unavailable, using round number", "round", round, "err", err)
		return b.fallback.PublicValue(ctx, round)
	}
	return "blockhash:" + hash, nil
}

// insecureDrawer uses math/rand. Only meant for simulations and tests.
type insecureDrawer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewInsecureDrawer(seed uint64) Drawer {
	return &insecureDrawer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (d *insecureDrawer) Open(round uint64) (*Commitment, error) {
	return &Commitment{Round: round}, nil
}

func (d *insecureDrawer) Draw(_ context.Context, _ *Commitment) (float64, *model.FairnessProof, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64(), nil, nil
}
