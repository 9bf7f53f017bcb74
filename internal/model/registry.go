package model

// Registry holds every example seen across runs together with its flaky bit.
// Entries are keyed by identity only, so upgrading the flaky bit is a
// read-modify-write on the same record. Not safe for concurrent use.
type Registry struct {
	flaky map[ExampleKey]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{flaky: make(map[ExampleKey]bool)}
}

// Register adds key with flaky=false unless it is already present.
func (r *Registry) Register(key ExampleKey) {
	if _, ok := r.flaky[key]; !ok {
		r.flaky[key] = false
	}
}

// MarkFlaky sets the flaky bit of key, registering it first if needed.
// The bit never goes back to false here.
func (r *Registry) MarkFlaky(key ExampleKey) {
	r.flaky[key] = true
}

// Lookup returns the example stored under key.
func (r *Registry) Lookup(key ExampleKey) (Example, bool) {
	flaky, ok := r.flaky[key]
	if !ok {
		return Example{}, false
	}
	return Example{Category: key.Category, Name: key.Name, Flaky: flaky}, true
}

// Len returns the number of registered examples.
func (r *Registry) Len() int {
	return len(r.flaky)
}

// Examples returns a copy of every registered example in no particular order.
func (r *Registry) Examples() []Example {
	out := make([]Example, 0, len(r.flaky))
	for key, flaky := range r.flaky {
		out = append(out, Example{Category: key.Category, Name: key.Name, Flaky: flaky})
	}
	return out
}
