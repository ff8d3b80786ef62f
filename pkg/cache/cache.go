// Package cache maps document fingerprints to previously computed classifications.
//
// The cache is an accelerator, not a source of truth: when the backing store
// is unavailable every lookup is a miss and every write is dropped with a
// warning. Callers never see a store error.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

// DefaultPrefix namespaces result keys in a shared store
const DefaultPrefix = "docclass:result"

// ResultCache stores ClassificationResults keyed by fingerprint
type ResultCache struct {
	store  Store
	prefix string
	logger *slog.Logger
}

// Option customises a ResultCache
type Option func(*ResultCache)

// WithPrefix overrides DefaultPrefix
func WithPrefix(prefix string) Option {
	return func(c *ResultCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithLogger sets the logger used for degradation warnings
func WithLogger(logger *slog.Logger) Option {
	return func(c *ResultCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New wraps store. A nil store makes every lookup a miss.
func New(store Store, opts ...Option) *ResultCache {
	c := &ResultCache{
		store:  store,
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ResultCache) key(fp types.Fingerprint) string {
	return c.prefix + ":" + string(fp)
}

// Get returns the cached result and true, or false on miss or store failure
func (c *ResultCache) Get(ctx context.Context, fp types.Fingerprint) (types.ClassificationResult, bool) {
	if c == nil || c.store == nil {
		return types.ClassificationResult{}, false
	}

	raw, err := c.store.Get(ctx, c.key(fp))
	if errors.Is(err, ErrNotFound) {
		return types.ClassificationResult{}, false
	}
	if err != nil {
		c.logger.Warn("cache lookup degraded to miss", "fingerprint", fp, "error", err)
		return types.ClassificationResult{}, false
	}

	var result types.ClassificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("discarding undecodable cache entry", "fingerprint", fp, "error", err)
		return types.ClassificationResult{}, false
	}
	return result, true
}

// Put stores result under fp, overwriting any previous entry
func (c *ResultCache) Put(ctx context.Context, fp types.Fingerprint, result types.ClassificationResult) {
	if c == nil || c.store == nil {
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("cannot encode result for cache", "fingerprint", fp, "error", err)
		return
	}

	if err := c.store.Set(ctx, c.key(fp), raw); err != nil {
		c.logger.Warn("cache store skipped", "fingerprint", fp, "error", err)
	}
}
