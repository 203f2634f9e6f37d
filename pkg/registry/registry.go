// Package registry holds the ordered fallback stages of each platform.
package registry

import (
	"sync"

	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/types"
)

// FallbackRegistry maps a platform to its fallback stages in run order.
type FallbackRegistry struct {
	mu     sync.RWMutex
	stages map[types.Platform][]interfaces.FallbackResolver
}

// NewFallbackRegistry creates an empty registry.
func NewFallbackRegistry() *FallbackRegistry {
	return &FallbackRegistry{
		stages: make(map[types.Platform][]interfaces.FallbackResolver),
	}
}

// Register appends a stage to the platform's chain.
func (r *FallbackRegistry) Register(p types.Platform, stage interfaces.FallbackResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[p] = append(r.stages[p], stage)
}

// Get returns a copy of the platform's chain, or nil when it has none.
func (r *FallbackRegistry) Get(p types.Platform) []interfaces.FallbackResolver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := r.stages[p]
	if len(chain) == 0 {
		return nil
	}
	result := make([]interfaces.FallbackResolver, len(chain))
	copy(result, chain)
	return result
}

// Has reports whether the platform has at least one stage.
func (r *FallbackRegistry) Has(p types.Platform) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages[p]) > 0
}

// Count returns the number of registered stages across platforms.
func (r *FallbackRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, chain := range r.stages {
		n += len(chain)
	}
	return n
}

var _ interfaces.Registry[types.Platform, interfaces.FallbackResolver] = (*FallbackRegistry)(nil)
