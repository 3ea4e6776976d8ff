package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dnldd/alarm/shared"
)

// DetectorFactory creates a detector instance.
type DetectorFactory func() shared.Detector

// Registry maps algorithm names to detector factories.
type Registry struct {
	factories    map[string]DetectorFactory
	factoriesMtx sync.RWMutex
}

// NewRegistry initializes a new detector registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]DetectorFactory),
	}
}

// Register adds the provided detector factory under the provided name.
func (r *Registry) Register(name string, factory DetectorFactory) error {
	if name == "" {
		return fmt.Errorf("%w: detector name cannot be empty", shared.ErrConfiguration)
	}
	if factory == nil {
		return fmt.Errorf("%w: detector factory for %s cannot be nil", shared.ErrConfiguration, name)
	}

	r.factoriesMtx.Lock()
	defer r.factoriesMtx.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: detector %s already registered", shared.ErrConfiguration, name)
	}

	r.factories[name] = factory
	return nil
}

// Resolve creates the detector registered under the provided name.
func (r *Registry) Resolve(name string) (shared.Detector, error) {
	r.factoriesMtx.RLock()
	factory, ok := r.factories[name]
	r.factoriesMtx.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown detection algorithm %q", shared.ErrConfiguration, name)
	}

	return factory(), nil
}

// Names returns the sorted names of the registered detectors.
func (r *Registry) Names() []string {
	r.factoriesMtx.RLock()
	defer r.factoriesMtx.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
