package evaluator

// Env holds the $local bindings of one evaluation. Locals are visible from
// the point of assignment to the end of the script, across blocks.
type Env struct {
	bindings map[string]Value
}

// NewEnv creates an empty environment.
func NewEnv() *Env {
	return &Env{bindings: make(map[string]Value)}
}

// Get looks up a local.
func (e *Env) Get(name string) (Value, bool) {
	val, ok := e.bindings[name]
	return val, ok
}

// Assign binds a local once. It reports false if the name is already bound.
func (e *Env) Assign(name string, val Value) bool {
	if _, ok := e.bindings[name]; ok {
		return false
	}
	e.bindings[name] = val
	return true
}

// Has checks whether a local is bound.
func (e *Env) Has(name string) bool {
	_, ok := e.bindings[name]
	return ok
}
