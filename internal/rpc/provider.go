package rpc

import (
	"sync"
	"time"
)

// Provider is one configured node and its health.
type Provider struct {
	Name   string
	URL    string
	Client NetworkClient

	mu                sync.RWMutex
	state             string
	blacklistedUntil  time.Time
	avgResponseTime   time.Duration
	consecutiveErrors int
}

func NewProvider(name string, client NetworkClient) *Provider {
	return &Provider{Name: name, URL: client.GetURL(), Client: client, state: StateHealthy}
}

func (p *Provider) State() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Provider) ConsecutiveErrors() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.consecutiveErrors
}

// IsAvailable reports whether the provider is usable at now.
func (p *Provider) IsAvailable(now time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state != StateBlacklisted || now.After(p.blacklistedUntil)
}

func (p *Provider) blacklistExpired(now time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StateBlacklisted && now.After(p.blacklistedUntil)
}

func (p *Provider) Fail(threshold int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecutiveErrors++
	switch {
	case p.consecutiveErrors >= threshold:
		p.state = StateUnhealthy
	case p.consecutiveErrors >= 2:
		p.state = StateDegraded
	}
}

func (p *Provider) Blacklist(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateBlacklisted
	p.blacklistedUntil = time.Now().Add(d)
}

func (p *Provider) Recover() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateDegraded
	p.blacklistedUntil = time.Time{}
	p.consecutiveErrors = 0
}

func (p *Provider) Success(elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecutiveErrors = 0
	p.state = StateHealthy
	if p.avgResponseTime == 0 {
		p.avgResponseTime = elapsed
	} else {
		p.avgResponseTime = (p.avgResponseTime + elapsed) / 2
	}
}

func (p *Provider) AverageResponseTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.avgResponseTime
}
