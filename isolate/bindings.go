package isolate

import (
	"fmt"
	"sort"
)

// Bindings is an ordered name to value map. It is not safe for concurrent
// use; an isolate's main bindings are guarded by the isolate lock.
type Bindings struct {
	values map[string]any
	names  []string
}

// NewBindings creates bindings from alternating name, value pairs.
// It panics if a name is not a string or a value is missing.
func NewBindings(kv ...any) *Bindings {
	if len(kv)%2 != 0 {
		panic("isolate: NewBindings needs name, value pairs")
	}
	b := &Bindings{values: make(map[string]any, len(kv)/2)}
	for n := 0; n < len(kv); n += 2 {
		name, ok := kv[n].(string)
		if !ok {
			panic(fmt.Sprintf("isolate: binding name %v is %T, not string", kv[n], kv[n]))
		}
		b.Set(name, kv[n+1])
	}
	return b
}

// BindingsFrom creates bindings from m with names in sorted order.
func BindingsFrom(m map[string]any) *Bindings {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	b := &Bindings{values: make(map[string]any, len(m))}
	for _, name := range names {
		b.Set(name, m[name])
	}
	return b
}

// Get returns the value bound to name.
func (b *Bindings) Get(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Set binds name to v, keeping the name's position if already bound.
func (b *Bindings) Set(name string, v any) {
	if _, ok := b.values[name]; !ok {
		b.names = append(b.names, name)
	}
	b.values[name] = v
}

// Delete unbinds name and reports whether it was bound.
func (b *Bindings) Delete(name string) bool {
	if _, ok := b.values[name]; !ok {
		return false
	}
	delete(b.values, name)
	for n, s := range b.names {
		if s == name {
			b.names = append(b.names[:n], b.names[n+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of bindings.
func (b *Bindings) Len() int {
	return len(b.names)
}

// Names returns the bound names in insertion order.
func (b *Bindings) Names() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Range calls fn for each binding in order until fn returns false.
func (b *Bindings) Range(fn func(name string, v any) bool) {
	for _, name := range b.names {
		if !fn(name, b.values[name]) {
			return
		}
	}
}

// Clear removes every binding.
func (b *Bindings) Clear() {
	b.values = make(map[string]any)
	b.names = nil
}
