package connectivity

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/charlesng35/feedsync/pkg/metrics"
)

// Checker reports whether the agent currently has a usable network path to
// the remote API. Implementations must return promptly and never fail:
// probe errors mean offline.
type Checker interface {
	IsConnected(ctx context.Context) bool
}

// Func adapts a plain function to the Checker interface.
type Func func(ctx context.Context) bool

// IsConnected implements Checker.
func (f Func) IsConnected(ctx context.Context) bool {
	return f(ctx)
}

const (
	defaultDialTimeout = 3 * time.Second
	defaultCacheTTL    = 5 * time.Second
)

// Config controls the connectivity probe.
type Config struct {
	// Address is the host:port dialed to decide online/offline.
	Address string
	// DialTimeout bounds a single probe attempt.
	DialTimeout time.Duration
	// CacheTTL is how long a probe result is reused before re-dialing.
	CacheTTL time.Duration
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Probe is a Checker that dials Address and caches the outcome for a short
// interval. A failed or timed-out dial reports offline; probe errors are
// never surfaced to callers.
type Probe struct {
	cfg  Config
	dial func(ctx context.Context, network, address string) (net.Conn, error)

	mu      sync.Mutex
	checked bool
	lastAt  time.Time
	online  bool
}

// NewProbe constructs a connectivity probe for the given address.
func NewProbe(cfg Config) (*Probe, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("connectivity: probe address is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	dialer := &net.Dialer{}
	return &Probe{cfg: cfg, dial: dialer.DialContext}, nil
}

// IsConnected reports the cached probe result, re-dialing when the cached
// value has expired.
func (p *Probe) IsConnected(ctx context.Context) bool {
	now := p.cfg.Clock()

	p.mu.Lock()
	if p.checked && now.Sub(p.lastAt) < p.cfg.CacheTTL {
		online := p.online
		p.mu.Unlock()
		return online
	}
	p.mu.Unlock()

	online := p.probe(ctx)

	p.mu.Lock()
	p.checked = true
	p.lastAt = now
	p.online = online
	p.mu.Unlock()

	if online {
		metrics.Online.Set(1)
	} else {
		metrics.Online.Set(0)
	}
	return online
}

func (p *Probe) probe(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	conn, err := p.dial(dialCtx, "tcp", p.cfg.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
