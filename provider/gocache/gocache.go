package gocache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	pr "github.com/unkn0wn-root/putguard/provider"
)

// Provider keeps entries in a patrickmn/go-cache.
type Provider struct {
	c *cache.Cache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// DefaultTTL applies to Sets with ttl <= 0. 0 => no expiry.
	DefaultTTL time.Duration
	// CleanupInterval purges expired entries. 0 => expired entries are only
	// dropped on access.
	CleanupInterval time.Duration
}

func New(cfg Config) *Provider {
	def := cfg.DefaultTTL
	if def <= 0 {
		def = cache.NoExpiration
	}
	return &Provider{c: cache.New(def, cfg.CleanupInterval)}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Delete(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	p.c.Set(key, value, ttl)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Delete(key)
	return nil
}

func (p *Provider) Clear(_ context.Context) error {
	p.c.Flush()
	return nil
}

func (p *Provider) Close(_ context.Context) error { return nil }
