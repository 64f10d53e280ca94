package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handler func(req RPCRequest) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBaseClient_CallRPC(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req RPCRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": req.Method})
	}))
	defer srv.Close()

	c := NewBaseClient(srv.URL+"/", NetworkSolana, ClientTypeRPC, &AuthConfig{Type: AuthTypeBearer, Token: "tok"}, time.Second, nil)
	resp, err := c.CallRPC(context.Background(), "getSlot", nil)
	require.NoError(t, err)

	var result string
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "getSlot", result)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, srv.URL, c.GetURL())
}

func TestBaseClient_RPCError(t *testing.T) {
	srv := rpcServer(t, func(req RPCRequest) any {
		return map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32602, "message": "invalid params"}}
	})
	c := NewBaseClient(srv.URL, NetworkSolana, ClientTypeRPC, nil, time.Second, nil)

	_, err := c.CallRPC(context.Background(), "getBalance", []any{"x"})
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32602, rpcErr.Code)
}

func TestBaseClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewBaseClient(srv.URL, NetworkSolana, ClientTypeRPC, nil, time.Second, nil)
	_, err := c.CallRPC(context.Background(), "getHealth", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429")
	assert.False(t, c.IsHealthy(context.Background()))
}

func TestBaseClient_IsHealthy(t *testing.T) {
	srv := rpcServer(t, func(req RPCRequest) any {
		assert.Equal(t, "getHealth", req.Method)
		return map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "ok"}
	})
	c := NewBaseClient(srv.URL, NetworkSolana, ClientTypeRPC, nil, time.Second, nil)
	assert.True(t, c.IsHealthy(context.Background()))
}

func TestNodeToAuthConfig(t *testing.T) {
	assert.Nil(t, NodeToAuthConfig(config.Node{URL: "https://x"}))

	auth := NodeToAuthConfig(config.Node{ApiKey: "Bearer abc"})
	require.NotNil(t, auth)
	assert.Equal(t, AuthTypeBearer, auth.Type)
	assert.Equal(t, "abc", auth.Token)

	auth = NodeToAuthConfig(config.Node{ApiKey: "abc", Headers: map[string]string{"x-api-key": "abc"}})
	require.NotNil(t, auth)
	assert.Equal(t, AuthTypeHeader, auth.Type)
	assert.Equal(t, "abc", auth.Headers["x-api-key"])
}
