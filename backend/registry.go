package backend

import (
	"context"
	"errors"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/g3d/render"
)

// Backend names.
const (
	// Native is the HAL backend in backend/native.
	Native = "native"
)

// ErrBackendNotAvailable is returned when no registered backend can be
// created.
var ErrBackendNotAvailable = errors.New("backend: not available")

// Factory creates a new backend instance. It may return nil when the
// backend cannot run on this system.
type Factory func() render.Backend

// backends holds registered factories. Native is preferred over any
// backend outside the priority list.
var backends = gpucontext.NewRegistry[render.Backend](gpucontext.WithPriority(Native))

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	backends.Register(name, factory)
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	backends.Unregister(name)
}

// Available returns the registered backend names.
func Available() []string {
	return backends.Available()
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return backends.Has(name)
}

// Get returns a new backend instance by name, or nil if the backend is
// not registered.
func Get(name string) render.Backend {
	return backends.Get(name)
}

// Default returns a new instance of the best available backend, or nil
// if none is registered.
func Default() render.Backend {
	return backends.Best()
}

// DefaultName returns the name Default would pick, or "" if none.
func DefaultName() string {
	return backends.BestName()
}

// MustDefault returns the default backend or panics.
func MustDefault() render.Backend {
	b := Default()
	if b == nil {
		panic("backend: no backend available")
	}
	return b
}

// InitDefault creates the default backend and initializes it.
func InitDefault(ctx context.Context) (render.Backend, error) {
	b := Default()
	if b == nil {
		return nil, ErrBackendNotAvailable
	}
	if err := b.Init(ctx); err != nil {
		return nil, err
	}
	return b, nil
}
