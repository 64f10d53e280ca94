package rpc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/retry"
)

var ErrNoProviders = errors.New("no providers available")

// FailoverConfig defines runtime behavior of the failover system.
type FailoverConfig struct {
	ErrorThreshold int
	MaxAttempts    int
	RetryInterval  time.Duration
	SlowResponse   time.Duration
}

func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		ErrorThreshold: 5,
		MaxAttempts:    retry.DefaultMaxAttempts,
		RetryInterval:  500 * time.Millisecond,
		SlowResponse:   3 * time.Second,
	}
}

// Failover rotates calls over the providers of one client type, blacklisting nodes
// that rate limit, time out or drop connections.
type Failover[T NetworkClient] struct {
	mu           sync.RWMutex
	providers    []*Provider
	currentIndex int
	config       FailoverConfig
	now          func() time.Time
}

func NewFailover[T NetworkClient](cfg *FailoverConfig) *Failover[T] {
	c := DefaultFailoverConfig()
	if cfg != nil {
		c = *cfg
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = retry.DefaultMaxAttempts
	}
	return &Failover[T]{currentIndex: -1, config: c, now: time.Now}
}

// AddProvider adds a provider, ensuring its Client is of type T
func (f *Failover[T]) AddProvider(p *Provider) error {
	if _, ok := p.Client.(T); !ok {
		return fmt.Errorf("invalid provider client type: expected %T, got %T", *new(T), p.Client)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.providers = append(f.providers, p)
	if f.currentIndex == -1 {
		f.currentIndex = 0
	}
	logger.Info("Added provider", "name", p.Name, "network", p.Client.GetNetworkType())
	return nil
}

func (f *Failover[T]) Providers() []*Provider {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.providers)
}

// GetBestProvider returns the current provider, moving on when it is blacklisted.
func (f *Failover[T]) GetBestProvider() (*Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.providers) == 0 {
		return nil, ErrNoProviders
	}
	now := f.now()
	for _, p := range f.providers {
		if p.blacklistExpired(now) {
			logger.Info("Recovering expired blacklisted provider", "provider", p.Name)
			p.Recover()
		}
	}

	for i := 0; i < len(f.providers); i++ {
		idx := (f.currentIndex + i) % len(f.providers)
		if p := f.providers[idx]; p.IsAvailable(now) {
			if idx != f.currentIndex {
				logger.Info("Switching provider", "from", f.providers[f.currentIndex].Name, "to", p.Name)
				f.currentIndex = idx
			}
			return p, nil
		}
	}
	return f.emergencyRecoveryLocked()
}

// emergencyRecoveryLocked revives the provider whose blacklist ends first.
func (f *Failover[T]) emergencyRecoveryLocked() (*Provider, error) {
	var (
		first      *Provider
		firstUntil time.Time
		idx        int
	)
	for i, p := range f.providers {
		p.mu.RLock()
		until := p.blacklistedUntil
		p.mu.RUnlock()
		if first == nil || until.Before(firstUntil) {
			first, firstUntil, idx = p, until, i
		}
	}
	if first == nil {
		return nil, ErrNoProviders
	}
	first.Recover()
	f.currentIndex = idx
	logger.Warn("Emergency provider recovery", "provider", first.Name)
	return first, nil
}

// ExecuteWithRetry runs fn against the best provider, failing over between
// attempts. Errors reported by a healthy node are returned without retry.
func (f *Failover[T]) ExecuteWithRetry(ctx context.Context, fn func(T) error) error {
	return retry.ConstantContext(ctx, func(ctx context.Context) error {
		p, err := f.GetBestProvider()
		if err != nil {
			return retry.Permanent(err)
		}
		return f.execute(p, fn)
	}, f.config.RetryInterval, f.config.MaxAttempts)
}

func (f *Failover[T]) execute(p *Provider, fn func(T) error) error {
	client := p.Client.(T)

	start := time.Now()
	err := fn(client)
	elapsed := time.Since(start)
	if err == nil {
		p.Success(elapsed)
		return nil
	}

	issue := f.analyzeError(err, elapsed)
	switch {
	case issue.MarkUnhealthy:
		logger.Warn("Blacklisting provider",
			"provider", p.Name,
			"reason", issue.Reason,
			"cooldown", issue.Cooldown,
		)
		p.Blacklist(issue.Cooldown)
		return err
	case isNodeError(err):
		return retry.Permanent(err)
	default:
		p.Fail(f.config.ErrorThreshold)
		return err
	}
}

func isNodeError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

// ProviderIssue represents an analyzed error state from a provider
type ProviderIssue struct {
	Reason        string
	Cooldown      time.Duration
	MarkUnhealthy bool
}

var errorPatterns = []struct {
	patterns []string
	reason   string
	cooldown time.Duration
}{
	{[]string{"rate limit", "429", "too many requests"}, "rate_limit", 5 * time.Minute},
	{[]string{"forbidden", "403", "401"}, "forbidden", time.Hour},
	{[]string{"timeout", "deadline"}, "timeout", 3 * time.Minute},
	{[]string{"eof", "connection reset", "connection refused", "broken pipe", "no such host"}, "connection_error", 2 * time.Minute},
	{[]string{"node is behind", "node is unhealthy", "-32005"}, "node_unhealthy", time.Minute},
}

func (f *Failover[T]) analyzeError(err error, elapsed time.Duration) ProviderIssue {
	msg := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		for _, p := range ep.patterns {
			if strings.Contains(msg, p) {
				return ProviderIssue{Reason: ep.reason, Cooldown: ep.cooldown, MarkUnhealthy: true}
			}
		}
	}
	if f.config.SlowResponse > 0 && elapsed > f.config.SlowResponse {
		return ProviderIssue{Reason: "slow_response", Cooldown: 2 * time.Minute, MarkUnhealthy: true}
	}
	return ProviderIssue{Reason: "generic_error"}
}
