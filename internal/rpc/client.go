package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/ratelimiter"
)

type NetworkClient interface {
	CallRPC(ctx context.Context, method string, params any) (*RPCResponse, error)
	IsHealthy(ctx context.Context) bool
	GetNetworkType() string
	GetURL() string
	Close() error
}

// BaseClient speaks JSON-RPC 2.0 over HTTP POST. Chain clients embed it.
type BaseClient struct {
	httpClient  *http.Client
	baseURL     string
	auth        *AuthConfig
	network     string
	clientType  string
	rateLimiter *ratelimiter.PooledRateLimiter

	rpcID atomic.Int64
}

func NewBaseClient(baseURL, network, clientType string, auth *AuthConfig, timeout time.Duration, rl *ratelimiter.PooledRateLimiter) *BaseClient {
	return &BaseClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		auth:        auth,
		network:     network,
		clientType:  clientType,
		rateLimiter: rl,
	}
}

// CallRPC returns the response together with its RPCError when the node reports one.
func (c *BaseClient) CallRPC(ctx context.Context, method string, params any) (*RPCResponse, error) {
	if c.clientType != ClientTypeRPC {
		return nil, fmt.Errorf("client is %s, not RPC", c.clientType)
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx, c.baseURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req := &RPCRequest{ID: c.rpcID.Add(1), JSONRPC: "2.0", Method: method, Params: params}
	raw, err := c.post(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	var resp RPCResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%s: unmarshal RPC response: %w", method, err)
	}
	if resp.Error != nil {
		return &resp, resp.Error
	}
	return &resp, nil
}

func (c *BaseClient) post(ctx context.Context, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	logger.Debug("RPC request completed", "network", c.network, "elapsed", time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return data, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *BaseClient) IsHealthy(ctx context.Context) bool {
	switch c.network {
	case NetworkSolana:
		_, err := c.CallRPC(ctx, "getHealth", nil)
		return err == nil
	default:
		_, err := c.CallRPC(ctx, "health", nil)
		return err == nil
	}
}

func (c *BaseClient) setAuthHeaders(req *http.Request) {
	if c.auth == nil {
		return
	}
	switch c.auth.Type {
	case AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	case AuthTypeHeader:
		for k, v := range c.auth.Headers {
			req.Header.Set(k, v)
		}
	}
}

func (c *BaseClient) GetNetworkType() string { return c.network }
func (c *BaseClient) GetURL() string         { return c.baseURL }
func (c *BaseClient) Close() error           { return nil }
