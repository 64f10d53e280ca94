package rpc

import (
	"maps"
	"strings"

	"github.com/fystack/jackpot-engine/pkg/common/config"
)

type AuthType string

const (
	AuthTypeBearer AuthType = "bearer"
	AuthTypeHeader AuthType = "header"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Type    AuthType          `json:"type"`
	Token   string            `json:"token"`
	Headers map[string]string `json:"headers"`
}

// NodeToAuthConfig derives request auth from a configured node. Call it after
// config.Load has substituted api keys. Query-string keys are already part of
// the node URL and need nothing here.
func NodeToAuthConfig(node config.Node) *AuthConfig {
	if len(node.Headers) > 0 {
		return &AuthConfig{Type: AuthTypeHeader, Headers: maps.Clone(node.Headers)}
	}
	if node.ApiKey != "" {
		token := strings.TrimSpace(node.ApiKey)
		if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
			token = token[7:]
		}
		return &AuthConfig{Type: AuthTypeBearer, Token: token}
	}
	return nil
}
