// Package stdlib provides the oscript builtin function registry.
package stdlib

import (
	"sort"

	"github.com/thomasrohde/oscript/pkg/evaluator"
)

// Fn represents a builtin function. MaxArgs of -1 means variadic. Metered
// functions add +1 to complexity on every call.
type Fn struct {
	Name    string
	MinArgs int
	MaxArgs int
	Metered bool
	Execute func(env evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error)
}

// Registry holds registered builtin functions.
type Registry struct {
	fns map[string]*Fn
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fns: make(map[string]*Fn),
	}
}

// Default returns a registry with every builtin registered.
func Default() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// Register adds a function to the registry.
func (r *Registry) Register(fn Fn) {
	r.fns[fn.Name] = &fn
}

// Get retrieves a function by name.
func (r *Registry) Get(name string) *Fn {
	return r.fns[name]
}

// All returns all registered functions.
func (r *Registry) All() map[string]*Fn {
	return r.fns
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecMap converts the registry into the form evaluator.ExecOptions expects.
func (r *Registry) ExecMap() map[string]*evaluator.StdlibFn {
	out := make(map[string]*evaluator.StdlibFn, len(r.fns))
	for name, fn := range r.fns {
		out[name] = &evaluator.StdlibFn{
			Name:    fn.Name,
			MinArgs: fn.MinArgs,
			MaxArgs: fn.MaxArgs,
			Metered: fn.Metered,
			Execute: fn.Execute,
		}
	}
	return out
}
