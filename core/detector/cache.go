package detector

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/adalundhe/sabir/core/classify"
)

const (
	defaultNumCounters = 1e5      // admission counters, ~10x expected entries
	defaultMaxCost     = 64 << 20 // bytes
	defaultBufferItems = 64
	defaultTTL         = 10 * time.Minute
)

// CacheConfig configures the result cache. Zero fields take defaults.
type CacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

// ResultCache holds classification results by document key. Results are
// cloned on the way in and out, so callers may mutate what they get.
type ResultCache struct {
	cache  *ristretto.Cache
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// NewResultCache creates a ResultCache.
func NewResultCache(config *CacheConfig) (*ResultCache, error) {
	cfg := applyDefaults(config)

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &ResultCache{cache: cache, ttl: cfg.TTL}, nil
}

func applyDefaults(config *CacheConfig) *CacheConfig {
	cfg := &CacheConfig{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: defaultBufferItems,
		TTL:         defaultTTL,
	}

	if config == nil {
		return cfg
	}

	if config.NumCounters > 0 {
		cfg.NumCounters = config.NumCounters
	}
	if config.MaxCost > 0 {
		cfg.MaxCost = config.MaxCost
	}
	if config.BufferItems > 0 {
		cfg.BufferItems = config.BufferItems
	}
	if config.TTL > 0 {
		cfg.TTL = config.TTL
	}

	return cfg
}

func (rc *ResultCache) isClosed() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.closed
}

// Get returns a copy of the cached result for key.
func (rc *ResultCache) Get(key string) (classify.Result, bool) {
	if rc.isClosed() {
		return classify.Result{}, false
	}

	value, found := rc.cache.Get(key)
	if !found {
		return classify.Result{}, false
	}
	r, ok := value.(classify.Result)
	if !ok {
		return classify.Result{}, false
	}
	return r.Clone(), true
}

// Set stores a copy of r. Sets are asynchronous and may be dropped by the
// admission policy.
func (rc *ResultCache) Set(key string, r classify.Result) bool {
	if rc.isClosed() {
		return false
	}
	return rc.cache.SetWithTTL(key, r.Clone(), estimateCost(r), rc.ttl)
}

// estimateCost approximates the bytes held by r.
func estimateCost(r classify.Result) int64 {
	cost := int64(64 + len(r.Language))
	for _, e := range r.Trace {
		cost += int64(48 + len(e.NGram) + len(e.Language))
	}
	for _, s := range r.Scores {
		cost += int64(24 + len(s.Language))
	}
	return cost
}

// Clear removes every entry.
func (rc *ResultCache) Clear() {
	if rc.isClosed() {
		return
	}
	rc.cache.Clear()
}

// Wait blocks until pending sets are applied.
func (rc *ResultCache) Wait() {
	if rc.isClosed() {
		return
	}
	rc.cache.Wait()
}

// Close releases the cache. Later calls are no-ops.
func (rc *ResultCache) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return
	}
	rc.closed = true
	rc.cache.Close()
}
