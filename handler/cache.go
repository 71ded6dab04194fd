package handler

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/hupe1980/sessionmesh/core"
)

// CachingHandler is a write-through read cache. Reads that hit the cache
// return without delegating; misses are loaded from the rest of the chain
// and cached. Successful writes update the cache, deletes evict, and GC
// clears it because expiry is decided further down the chain.
type CachingHandler struct {
	Passthrough
	cache *ristretto.Cache[string, string]
	ttl   time.Duration
}

var _ core.Handler = (*CachingHandler)(nil)

// CacheOptions configures a CachingHandler.
type CacheOptions struct {
	// MaxCost bounds the summed payload size in bytes (defaults to 64 MiB).
	MaxCost int64
	// TTL of cached entries; zero keeps entries until evicted.
	TTL time.Duration
}

// NewCachingHandler creates a CachingHandler.
func NewCachingHandler(optFns ...func(o *CacheOptions)) (*CachingHandler, error) {
	opts := CacheOptions{MaxCost: 64 << 20}
	for _, fn := range optFns {
		fn(&opts)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 1e5,
		MaxCost:     opts.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &CachingHandler{cache: c, ttl: opts.TTL}, nil
}

func (h *CachingHandler) set(id, data string) {
	cost := int64(len(data)) + 1
	if h.ttl > 0 {
		h.cache.SetWithTTL(id, data, cost, h.ttl)
	} else {
		h.cache.Set(id, data, cost)
	}
	h.cache.Wait()
}

// Read serves from the cache or loads through the chain.
func (h *CachingHandler) Read(id string, next core.ReadNext) string {
	if data, ok := h.cache.Get(id); ok {
		return data
	}
	data := next.Read(id)
	if data != "" {
		h.set(id, data)
	}
	return data
}

// Write delegates and caches the payload on success.
func (h *CachingHandler) Write(id, data string, next core.WriteNext) bool {
	ok := next.Write(id, data)
	if ok {
		h.set(id, data)
	} else {
		h.cache.Del(id)
	}
	return ok
}

// Delete evicts the session and delegates.
func (h *CachingHandler) Delete(id string, next core.DeleteNext) bool {
	h.cache.Del(id)
	return next.Delete(id)
}

// Clean clears the cache and delegates.
func (h *CachingHandler) Clean(maxLifetime int, next core.CleanNext) bool {
	h.cache.Clear()
	return next.Clean(maxLifetime)
}

// Close stops the cache's background goroutines.
func (h *CachingHandler) Close() error {
	h.cache.Close()
	return nil
}
