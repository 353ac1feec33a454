// Package plugin defines the boundary to externally loaded processing
// units. Binary plugin formats are handled by loaders outside of this
// module.
package plugin

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrNotFound is returned by loaders when specifier is unknown.
var ErrNotFound = errors.New("plugin not found")

// PortDirection defines if port is read or written by the unit.
type PortDirection int

// Port directions.
const (
	PortInput PortDirection = iota
	PortOutput
)

// Port is a control port of a unit.
type Port struct {
	Name      string
	Direction PortDirection
	Min       float64
	Max       float64
	Default   float64
}

// Clamp limits value to the port range. Port without range accepts any
// finite value.
func (p Port) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return p.Default
	}
	if p.Min == 0 && p.Max == 0 {
		return v
	}
	return math.Max(p.Min, math.Min(p.Max, v))
}

// Descriptor describes a unit.
type Descriptor struct {
	Specifier string
	Ports     []Port
}

// Port returns port by name.
func (d Descriptor) Port(name string) (Port, bool) {
	for _, p := range d.Ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Unit processes a single buffer in place.
type Unit interface {
	Descriptor() Descriptor
	Process(buf []float64) error
}

// Activator is a unit that must be activated before processing.
type Activator interface {
	Activate(sampleRate, bufferSize int) error
}

// Deactivator is a unit that must be deactivated after processing.
type Deactivator interface {
	Deactivate() error
}

// Cleaner is a unit that releases resources when it's not used anymore.
type Cleaner interface {
	Cleanup() error
}

// Loader loads units by specifier.
type Loader interface {
	Load(specifier string) (Unit, error)
}

// Instance is a loaded unit with bound lifecycle hooks.
type Instance struct {
	Unit
	hooks
	active bool
}

// hook represents optional functions for unit lifecycle.
type hook func() error

type hooks struct {
	activate   func(int, int) error
	deactivate hook
	cleanup    hook
}

// NewInstance binds hooks of the unit.
func NewInstance(u Unit) *Instance {
	return &Instance{
		Unit:  u,
		hooks: bindHooks(u),
	}
}

// Activate calls Activate hook once.
func (i *Instance) Activate(sampleRate, bufferSize int) error {
	if i.active {
		return nil
	}
	if i.activate != nil {
		if err := i.activate(sampleRate, bufferSize); err != nil {
			return fmt.Errorf("activate %s: %w", i.Descriptor().Specifier, err)
		}
	}
	i.active = true
	return nil
}

// Close deactivates the unit if it was activated and cleans it up.
func (i *Instance) Close() error {
	var errs []error
	if i.active && i.deactivate != nil {
		errs = append(errs, i.deactivate())
	}
	i.active = false
	if i.cleanup != nil {
		errs = append(errs, i.cleanup())
	}
	return errors.Join(errs...)
}

func bindHooks(v interface{}) hooks {
	return hooks{
		activate:   activator(v),
		deactivate: deactivator(v),
		cleanup:    cleaner(v),
	}
}

func activator(v interface{}) func(int, int) error {
	if a, ok := v.(Activator); ok {
		return a.Activate
	}
	return nil
}

func deactivator(v interface{}) hook {
	if d, ok := v.(Deactivator); ok {
		return d.Deactivate
	}
	return nil
}

func cleaner(v interface{}) hook {
	if c, ok := v.(Cleaner); ok {
		return c.Cleanup
	}
	return nil
}

// Registry is an in-memory loader of unit constructors.
type Registry struct {
	mu    sync.RWMutex
	units map[string]func() Unit
}

// Register adds unit constructor with provided specifier.
func (r *Registry) Register(specifier string, fn func() Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.units == nil {
		r.units = make(map[string]func() Unit)
	}
	r.units[specifier] = fn
}

// Load implements Loader.
func (r *Registry) Load(specifier string) (Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.units[specifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, specifier)
	}
	return fn(), nil
}

// Specifiers returns sorted registered specifiers.
func (r *Registry) Specifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.units))
	for s := range r.units {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}
