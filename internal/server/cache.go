package server

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/crawlscope/internal/clock/system"
	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/metrics"
)

// Cache shares Server and Host records between workers. Records are
// created on the first lookup of their key; concurrent first lookups
// receive the same record.
type Cache struct {
	servers sync.Map
	hosts   sync.Map

	serverFlight singleflight.Group
	hostFlight   singleflight.Group

	nServers atomic.Int64
	nHosts   atomic.Int64
	closed   atomic.Bool

	clock  Clock
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the clock handed to new server records.
func WithClock(c Clock) Option {
	return func(cache *Cache) {
		if c != nil {
			cache.clock = c
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l *zap.Logger) Option {
	return func(cache *Cache) {
		if l != nil {
			cache.logger = l
		}
	}
}

// NewCache returns an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{clock: system.New(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetServerFor returns the record for key, creating it if needed. It
// returns nil after Cleanup.
func (c *Cache) GetServerFor(key string) *Server {
	if c.closed.Load() {
		return nil
	}
	if v, ok := c.servers.Load(key); ok {
		return v.(*Server)
	}
	v, _, _ := c.serverFlight.Do(key, func() (any, error) {
		if v, ok := c.servers.Load(key); ok {
			return v, nil
		}
		s, loaded := c.servers.LoadOrStore(key, newServer(key, c.clock))
		if !loaded {
			c.nServers.Add(1)
			metrics.IncCachedServers()
			c.logger.Debug("server record created", zap.String("server", key))
		}
		return s, nil
	})
	return v.(*Server)
}

// GetServerForURI returns the record of the server that serves s, or nil
// if no server key can be derived.
func (c *Cache) GetServerForURI(s curi.Subject) *Server {
	key, ok := ServerKey(s.Core().URI())
	if !ok {
		c.logger.Warn("no server key", zap.String("uri", s.Core().String()))
		return nil
	}
	return c.GetServerFor(key)
}

// GetHostFor returns the record for hostname, creating it if needed. An
// empty name yields nil, as does any lookup after Cleanup.
func (c *Cache) GetHostFor(hostname string) *Host {
	if hostname == "" || c.closed.Load() {
		return nil
	}
	if v, ok := c.hosts.Load(hostname); ok {
		return v.(*Host)
	}
	v, _, _ := c.hostFlight.Do(hostname, func() (any, error) {
		if v, ok := c.hosts.Load(hostname); ok {
			return v, nil
		}
		h, loaded := c.hosts.LoadOrStore(hostname, newHost(hostname))
		if !loaded {
			c.nHosts.Add(1)
			metrics.IncCachedHosts()
			c.logger.Debug("host record created", zap.String("host", hostname))
		}
		return h, nil
	})
	return v.(*Host)
}

// GetHostForURI returns the host record for s, or nil.
func (c *Cache) GetHostForURI(s curi.Subject) *Host {
	key, ok := HostKey(s.Core().URI())
	if !ok {
		return nil
	}
	return c.GetHostFor(key)
}

// ContainsServer reports whether a record for key exists.
func (c *Cache) ContainsServer(key string) bool {
	_, ok := c.servers.Load(key)
	return ok
}

// ContainsHost reports whether a record for hostname exists.
func (c *Cache) ContainsHost(hostname string) bool {
	_, ok := c.hosts.Load(hostname)
	return ok
}

// EvictServer drops the record for key. Holders of the record keep a
// working but detached copy.
func (c *Cache) EvictServer(key string) bool {
	if _, ok := c.servers.LoadAndDelete(key); ok {
		c.nServers.Add(-1)
		metrics.DecCachedServers()
		return true
	}
	return false
}

// EvictHost drops the record for hostname.
func (c *Cache) EvictHost(hostname string) bool {
	if _, ok := c.hosts.LoadAndDelete(hostname); ok {
		c.nHosts.Add(-1)
		metrics.DecCachedHosts()
		return true
	}
	return false
}

// ForAllServers calls fn for every cached server, in no particular order.
func (c *Cache) ForAllServers(fn func(*Server)) {
	c.servers.Range(func(_, v any) bool {
		fn(v.(*Server))
		return true
	})
}

// ForAllHosts calls fn for every cached host, in no particular order.
func (c *Cache) ForAllHosts(fn func(*Host)) {
	c.hosts.Range(func(_, v any) bool {
		fn(v.(*Host))
		return true
	})
}

// ServerCount returns the number of cached servers.
func (c *Cache) ServerCount() int { return int(c.nServers.Load()) }

// HostCount returns the number of cached hosts.
func (c *Cache) HostCount() int { return int(c.nHosts.Load()) }

// Cleanup releases every record. Later lookups return nil. Calling it
// again does nothing.
func (c *Cache) Cleanup() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.hosts.Range(func(k, _ any) bool {
		c.EvictHost(k.(string))
		return true
	})
	c.servers.Range(func(k, _ any) bool {
		c.EvictServer(k.(string))
		return true
	})
	c.logger.Info("server cache released")
}
