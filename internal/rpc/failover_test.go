package rpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFailover(t *testing.T, urls ...string) *Failover[*BaseClient] {
	t.Helper()
	f := NewFailover[*BaseClient](&FailoverConfig{ErrorThreshold: 2, MaxAttempts: 3, RetryInterval: time.Millisecond})
	for i, u := range urls {
		c := NewBaseClient(u, NetworkSolana, ClientTypeRPC, nil, time.Second, nil)
		require.NoError(t, f.AddProvider(NewProvider(string(rune('a'+i)), c)))
	}
	return f
}

func TestFailover_SwitchesOnRateLimit(t *testing.T) {
	var limitedCalls atomic.Int32
	limited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limitedCalls.Add(1)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer limited.Close()
	healthy := rpcServer(t, func(req RPCRequest) any {
		return map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "ok"}
	})

	f := newFailover(t, limited.URL, healthy.URL)
	err := f.ExecuteWithRetry(context.Background(), func(c *BaseClient) error {
		_, err := c.CallRPC(context.Background(), "getHealth", nil)
		return err
	})
	require.NoError(t, err)

	providers := f.Providers()
	assert.Equal(t, StateBlacklisted, providers[0].State())
	assert.Equal(t, StateHealthy, providers[1].State())

	// the blacklisted node is skipped afterwards
	require.NoError(t, f.ExecuteWithRetry(context.Background(), func(c *BaseClient) error {
		_, err := c.CallRPC(context.Background(), "getHealth", nil)
		return err
	}))
	assert.Equal(t, int32(1), limitedCalls.Load())
}

func TestFailover_NodeErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := rpcServer(t, func(req RPCRequest) any {
		calls.Add(1)
		return map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32002, "message": "insufficient funds for fee"}}
	})
	f := newFailover(t, srv.URL)

	err := f.ExecuteWithRetry(context.Background(), func(c *BaseClient) error {
		_, err := c.CallRPC(context.Background(), "sendTransaction", nil)
		return err
	})
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateHealthy, f.Providers()[0].State())
}

func TestFailover_GenericErrorsDegrade(t *testing.T) {
	f := newFailover(t, "http://127.0.0.1:1")
	p := f.Providers()[0]

	boom := errors.New("boom")
	err := f.ExecuteWithRetry(context.Background(), func(*BaseClient) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateUnhealthy, p.State())
	assert.Equal(t, 3, p.ConsecutiveErrors())
}

func TestFailover_EmergencyRecovery(t *testing.T) {
	f := newFailover(t, "http://a", "http://b")
	providers := f.Providers()
	providers[0].Blacklist(time.Hour)
	providers[1].Blacklist(time.Minute)

	p, err := f.GetBestProvider()
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name)
	assert.Equal(t, StateDegraded, p.State())
}

func TestFailover_NoProviders(t *testing.T) {
	f := NewFailover[*BaseClient](nil)
	err := f.ExecuteWithRetry(context.Background(), func(*BaseClient) error { return nil })
	assert.ErrorIs(t, err, ErrNoProviders)
}
