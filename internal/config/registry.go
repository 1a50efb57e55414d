package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/maestro-audio/dualcap/pkg/audio/device"
	"github.com/maestro-audio/dualcap/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps names to constructor functions for device backends and VAD
// engines. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]func(CaptureConfig) (device.Backend, error)
	vad      map[string]func(CaptureConfig) (vad.Engine, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]func(CaptureConfig) (device.Backend, error)),
		vad:      make(map[string]func(CaptureConfig) (vad.Engine, error)),
	}
}

// RegisterBackend registers a device backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterBackend(name string, factory func(CaptureConfig) (device.Backend, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(CaptureConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// CreateBackend instantiates the device backend registered under cfg.Backend.
// Returns [ErrProviderNotRegistered], listing the registered names, if no
// factory has been registered for that name.
func (r *Registry) CreateBackend(cfg CaptureConfig) (device.Backend, error) {
	r.mu.RLock()
	factory, ok := r.backends[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: backend/%q (registered: %s)", ErrProviderNotRegistered, cfg.Backend, strings.Join(r.Backends(), ", "))
	}
	return factory(cfg)
}

// CreateVAD instantiates the VAD engine registered under cfg.VAD.
func (r *Registry) CreateVAD(cfg CaptureConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.VAD]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q (registered: %s)", ErrProviderNotRegistered, cfg.VAD, strings.Join(r.VADEngines(), ", "))
	}
	return factory(cfg)
}

// Backends returns the registered backend names in sorted order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.backends)
}

// VADEngines returns the registered VAD engine names in sorted order.
func (r *Registry) VADEngines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.vad)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
