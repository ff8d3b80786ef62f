package stages

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownStage is returned when resolving a name nobody registered
var ErrUnknownStage = errors.New("unknown stage")

// BuiltinNames lists every stage this package implements, cheapest first
var BuiltinNames = []string{FilenameStageName, MetadataStageName, TextStageName, VectorStageName, LLMStageName}

// DefaultChain is the stage order used when none is configured
var DefaultChain = []string{FilenameStageName, MetadataStageName, TextStageName}

// Registry resolves stages by name
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Stage
}

func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register adds s under s.Name(). Names are unique.
func (r *Registry) Register(s Stage) error {
	if s == nil || s.Name() == "" {
		return errors.New("stage must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stages[s.Name()]; exists {
		return fmt.Errorf("stage %q already registered", s.Name())
	}
	r.stages[s.Name()] = s
	return nil
}

// Resolve returns the stage registered as name
func (r *Registry) Resolve(name string) (Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
	return s, nil
}

// Chain resolves names in order. Duplicates are rejected.
func (r *Registry) Chain(names ...string) ([]Stage, error) {
	if len(names) == 0 {
		return nil, errors.New("stage chain is empty")
	}

	seen := make(map[string]bool, len(names))
	chain := make([]Stage, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("stage %q listed twice", name)
		}
		seen[name] = true

		s, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, s)
	}
	return chain, nil
}

// Names returns the registered names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
