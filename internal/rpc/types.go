package rpc

import (
	"encoding/json"
	"fmt"
)

// Provider states
const (
	StateHealthy     = "healthy"
	StateDegraded    = "degraded"
	StateUnhealthy   = "unhealthy"
	StateBlacklisted = "blacklisted" // temporarily excluded after persistent errors
)

const (
	NetworkSolana = "solana"

	ClientTypeRPC = "rpc"
)

// RPCRequest represents a JSON-RPC request
type RPCRequest struct {
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// RPCResponse represents a JSON-RPC response
type RPCResponse struct {
	ID      any             `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}
