package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const apiKeyPlaceholder = "${API_KEY}"

type SolanaConfig struct {
	Nodes          []Node         `yaml:"nodes" validate:"dive"`
	Commitment     string         `yaml:"commitment" validate:"omitempty,oneof=processed confirmed finalized"`
	Timeout        time.Duration  `yaml:"timeout"`
	ConfirmTimeout time.Duration  `yaml:"confirm_timeout"`
	Throttle       ThrottleConfig `yaml:"throttle"`
	// the house signing key never leaves this process
	HouseKeyEnv  string `yaml:"house_key_env"`
	HouseKeyFile string `yaml:"house_key_file"`
}

type ThrottleConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type Node struct {
	URL       string            `yaml:"url" validate:"required,url"`
	ApiKey    string            `yaml:"api_key"`
	ApiKeyEnv string            `yaml:"api_key_env"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Query     map[string]string `yaml:"query,omitempty"`
}

// FinalizeNodes fills api keys and attaches query parameters to node URLs.
func (sc *SolanaConfig) FinalizeNodes() error {
	nodes := make([]Node, len(sc.Nodes))
	for i, n := range sc.Nodes {
		if n.Headers == nil {
			n.Headers = map[string]string{}
		}

		key := n.ApiKey
		if key == "" && n.ApiKeyEnv != "" {
			key = os.Getenv(n.ApiKeyEnv)
		}
		n.URL = substituteKey(n.URL, key)
		for k, v := range n.Headers {
			n.Headers[k] = substituteKey(v, key)
		}

		if len(n.Query) > 0 {
			u, err := url.Parse(n.URL)
			if err != nil {
				return fmt.Errorf("solana: invalid node url: %q", n.URL)
			}
			q := u.Query()
			for k, v := range n.Query {
				q.Set(k, substituteKey(v, key))
			}
			u.RawQuery = q.Encode()
			n.URL = u.String()
		}
		nodes[i] = n
	}
	sc.Nodes = nodes
	return nil
}

func substituteKey(s, key string) string {
	if s == "" || key == "" {
		return s
	}
	return strings.ReplaceAll(s, apiKeyPlaceholder, key)
}

// substituteEnvVars replaces ${VAR} with the environment value.
// ${API_KEY} is left alone, it is resolved per node.
func substituteEnvVars(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		end += start
		b.WriteString(s[:start])
		token := s[start : end+1]
		if token == apiKeyPlaceholder {
			b.WriteString(token)
		} else {
			b.WriteString(os.Getenv(s[start+2 : end]))
		}
		s = s[end+1:]
	}
	b.WriteString(s)
	return b.String()
}
