package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/jackpot-engine/internal/rpc"
	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/ratelimiter"
)

// FailoverClient spreads calls over every configured node.
type FailoverClient struct {
	failover *rpc.Failover[*Client]
	limiter  *ratelimiter.PooledRateLimiter
}

var _ SolanaAPI = (*FailoverClient)(nil)

func NewFromConfig(cfg config.SolanaConfig) (*FailoverClient, error) {
	if len(cfg.Nodes) == 0 {
		return nil, errors.New("solana: no nodes configured")
	}

	var rl *ratelimiter.PooledRateLimiter
	if cfg.Throttle.RPS > 0 {
		burst := max(cfg.Throttle.Burst, 1)
		rl = ratelimiter.NewPooledRateLimiter(time.Second/time.Duration(cfg.Throttle.RPS), burst)
	}

	f := rpc.NewFailover[*Client](nil)
	for i, n := range cfg.Nodes {
		c := NewSolanaClient(n.URL, rpc.NodeToAuthConfig(n), cfg.Timeout, cfg.Commitment, rl)
		if err := f.AddProvider(rpc.NewProvider(fmt.Sprintf("solana-%d", i+1), c)); err != nil {
			return nil, err
		}
	}
	return &FailoverClient{failover: f, limiter: rl}, nil
}

func (fc *FailoverClient) GetHealth(ctx context.Context) error {
	return fc.failover.ExecuteWithRetry(ctx, func(c *Client) error {
		return c.GetHealth(ctx)
	})
}

func (fc *FailoverClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	var out uint64
	err := fc.failover.ExecuteWithRetry(ctx, func(c *Client) (err error) {
		out, err = c.GetBalance(ctx, address)
		return err
	})
	return out, err
}

func (fc *FailoverClient) GetLatestBlockhash(ctx context.Context) (string, error) {
	var out string
	err := fc.failover.ExecuteWithRetry(ctx, func(c *Client) (err error) {
		out, err = c.GetLatestBlockhash(ctx)
		return err
	})
	return out, err
}

// SendTransaction may reach more than one node. Resubmitting the same signed
// transaction is harmless, the cluster deduplicates by signature. Once any
// attempt failed in transport the final error is no longer a rejection, since
// that node may have forwarded the transaction.
func (fc *FailoverClient) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	var (
		out       string
		transport error
	)
	err := fc.failover.ExecuteWithRetry(ctx, func(c *Client) (err error) {
		out, err = c.SendTransaction(ctx, raw)
		if err != nil && !IsRejected(err) {
			transport = err
		}
		return err
	})
	if err != nil && transport != nil && IsRejected(err) {
		return "", fmt.Errorf("send transaction: %v (earlier attempt: %v)", err, transport)
	}
	return out, err
}

func (fc *FailoverClient) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	var out []*SignatureStatus
	err := fc.failover.ExecuteWithRetry(ctx, func(c *Client) (err error) {
		out, err = c.GetSignatureStatuses(ctx, signatures)
		return err
	})
	return out, err
}

func (fc *FailoverClient) Close() {
	if fc.limiter != nil {
		fc.limiter.Close()
	}
}
