// Package cache provides the fingerprint cache used at the pipeline's
// cacheable boundaries (sub-query generation, final report). Fingerprints are
// computed by callers via Descriptor; the cache itself only maps fingerprints
// to previously computed values under a capacity and TTL bound.
//
// Caches are explicitly constructed and injected; there are no package-level
// instances. Any cache failure degrades to a miss and is logged, never
// surfaced to the caller.
package cache

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/logging"
)

// Options configures a Cache.
type Options struct {
	// Capacity bounds the number of retained entries; the least recently
	// used entry is evicted on capacity pressure.
	Capacity int
	// TTL expires entries by age. Zero disables expiry.
	TTL time.Duration
	// OnEvict fires for every evicted entry. Audit only; it must never be
	// used for control flow.
	OnEvict func(fingerprint string)
	// Logger records cache activity and degraded operations.
	Logger logging.Logger
}

// Cache is a bounded LRU/TTL map from request fingerprints to previously
// computed values. Safe for concurrent use by multiple in-flight workers.
// A nil *Cache is valid and behaves as permanently empty, which is how the
// pipeline represents "caching disabled".
type Cache[T any] struct {
	lru    *expirable.LRU[string, T]
	logger logging.Logger
}

// New creates a Cache. Construction fails with core.ErrInvalidConfiguration
// for a non-positive capacity or negative TTL.
func New[T any](optFns ...func(o *Options)) (*Cache[T], error) {
	opts := Options{
		Capacity: 128,
		TTL:      30 * time.Minute,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("%w: cache capacity must be positive, got %d", core.ErrInvalidConfiguration, opts.Capacity)
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("%w: cache ttl must not be negative, got %s", core.ErrInvalidConfiguration, opts.TTL)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	logger := opts.Logger
	onEvict := func(fingerprint string, _ T) {
		logger.Debug("cache entry evicted", "fingerprint", fingerprint)
		if opts.OnEvict != nil {
			opts.OnEvict(fingerprint)
		}
	}

	return &Cache[T]{
		lru:    expirable.NewLRU[string, T](opts.Capacity, onEvict, opts.TTL),
		logger: logger,
	}, nil
}

// Get looks up a fingerprint. A degenerate fingerprint (empty string) is
// reported and treated as a miss.
func (c *Cache[T]) Get(fingerprint string) (T, bool) {
	var zero T
	if c == nil || c.lru == nil {
		return zero, false
	}
	if fingerprint == "" {
		c.logger.Warn("cache lookup degraded to miss", "error", &core.CacheError{Op: "get", Err: errEmptyFingerprint})
		return zero, false
	}
	return c.lru.Get(fingerprint)
}

// Set stores a value under a fingerprint, evicting the least recently used
// entry on capacity pressure.
func (c *Cache[T]) Set(fingerprint string, value T) {
	if c == nil || c.lru == nil {
		return
	}
	if fingerprint == "" {
		c.logger.Warn("cache store dropped", "error", &core.CacheError{Op: "set", Err: errEmptyFingerprint})
		return
	}
	c.lru.Add(fingerprint, value)
}

// Len returns the number of live entries.
func (c *Cache[T]) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops all entries. Used at pipeline teardown or explicit reset.
func (c *Cache[T]) Purge() {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Purge()
}

var errEmptyFingerprint = fmt.Errorf("empty fingerprint")
