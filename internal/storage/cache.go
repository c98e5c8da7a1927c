package storage

import (
	"io"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// cachedBackend keeps recently read collection bodies in memory. Each
// collection carries a generation that every write bumps before and after it
// reaches the backend; a read fills the cache only if no write overlapped it,
// so a slow reader can never put an older body back after a write.
type cachedBackend struct {
	Backend
	cache *gocache.Cache

	mu   sync.Mutex
	gens map[string]uint64
}

// Cached wraps b with a read cache whose entries expire after ttl. A ttl of
// zero or less returns b unchanged.
func Cached(b Backend, ttl time.Duration) Backend {
	if ttl <= 0 {
		return b
	}
	return &cachedBackend{
		Backend: b,
		cache:   gocache.New(ttl, 2*ttl),
		gens:    make(map[string]uint64),
	}
}

func (c *cachedBackend) generation(name string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[name]
}

func (c *cachedBackend) invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[name]++
	c.cache.Delete(name)
}

func (c *cachedBackend) Read(name string) ([]byte, error) {
	if v, ok := c.cache.Get(name); ok {
		return v.([]byte), nil
	}
	gen := c.generation(name)
	data, err := c.Backend.Read(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gens[name] == gen {
		c.cache.SetDefault(name, data)
	}
	c.mu.Unlock()
	return data, nil
}

func (c *cachedBackend) Write(name string, data []byte) error {
	c.invalidate(name)
	defer c.invalidate(name)
	return c.Backend.Write(name, data)
}

func (c *cachedBackend) Close() error {
	c.cache.Flush()
	if cl, ok := c.Backend.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
