package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/jackpot-engine/internal/rpc"
	"github.com/fystack/jackpot-engine/pkg/ratelimiter"
)

type Client struct {
	*rpc.BaseClient
	commitment string
}

func NewSolanaClient(
	baseURL string,
	auth *rpc.AuthConfig,
	timeout time.Duration,
	commitment string,
	rl *ratelimiter.PooledRateLimiter,
) *Client {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	return &Client{
		BaseClient: rpc.NewBaseClient(baseURL, rpc.NetworkSolana, rpc.ClientTypeRPC, auth, timeout, rl),
		commitment: commitment,
	}
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	resp, err := c.CallRPC(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) GetHealth(ctx context.Context) error {
	var status string
	if err := c.call(ctx, "getHealth", nil, &status); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("node unhealthy: %s", status)
	}
	return nil
}

// GetBalance returns the account balance in lamports.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	var out balanceResult
	if err := c.call(ctx, "getBalance", []any{address, commitmentConfig{c.commitment}}, &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (c *Client) GetLatestBlockhash(ctx context.Context) (string, error) {
	var out blockhashResult
	if err := c.call(ctx, "getLatestBlockhash", []any{commitmentConfig{c.commitment}}, &out); err != nil {
		return "", err
	}
	if out.Value.Blockhash == "" {
		return "", fmt.Errorf("getLatestBlockhash: empty blockhash")
	}
	return out.Value.Blockhash, nil
}

// SendTransaction submits a signed wire transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	cfg := sendConfig{Encoding: "base64", PreflightCommitment: c.commitment}
	var sig string
	if err := c.call(ctx, "sendTransaction", []any{base64.StdEncoding.EncodeToString(raw), cfg}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

// IsRejected reports whether a send failed because the node answered with a
// JSON-RPC error. Any other failure may have happened after the node accepted
// the transaction.
func IsRejected(err error) bool {
	var rpcErr *rpc.RPCError
	return errors.As(err, &rpcErr)
}

func (c *Client) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	var out signatureStatusesResult
	if err := c.call(ctx, "getSignatureStatuses", []any{signatures, statusConfig{SearchTransactionHistory: true}}, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}
