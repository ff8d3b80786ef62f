package pipeline

import (
	"fmt"

	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

const (
	// DefaultMaxWorkers caps the per-batch worker pool when Workers is 0
	DefaultMaxWorkers = 8

	// DefaultMaxBatchSize is used when MaxBatchSize is 0
	DefaultMaxBatchSize = 20
)

// Config holds the immutable pipeline settings
type Config struct {
	// MaxBatchSize bounds len(items) for Run. If 0, uses DefaultMaxBatchSize.
	MaxBatchSize int

	// PipelineVersion is mixed into every fingerprint. Bumping it invalidates the cache.
	PipelineVersion string

	Thresholds types.Thresholds

	// Workers is the per-batch concurrency. If 0, uses min(len(items), DefaultMaxWorkers).
	Workers int
}

// applyDefaults fills in default values for unset config fields
func (c *Config) applyDefaults() {
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
}

func (c Config) validate() error {
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("max batch size must be positive, got %d", c.MaxBatchSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.PipelineVersion == "" {
		return fmt.Errorf("pipeline version is required")
	}
	return nil
}

func (c Config) workersFor(n int) int {
	w := c.Workers
	if w == 0 {
		w = min(n, DefaultMaxWorkers)
	}
	return max(1, min(w, n))
}
