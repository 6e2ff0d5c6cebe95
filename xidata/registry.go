package xidata

import (
	"reflect"
	"sync"
	"weak"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/isolate"
)

// Producer builds a handle for v in the thread's current isolate.
type Producer func(th *isolate.Thread, v any, h *Handle) error

type entry struct {
	static reflect.Type
	class  weak.Pointer[isolate.Class]
	fn     Producer
	refs   int
	weak   bool
}

// registry maps types to producers. The global registry carries its own
// mutex; isolate-local registries are guarded by the isolate lock.
type registry struct {
	mu      *sync.Mutex
	entries []*entry
}

func newGlobalRegistry() *registry {
	return &registry{mu: new(sync.Mutex)}
}

func (r *registry) lock() {
	if r.mu != nil {
		r.mu.Lock()
	}
}

func (r *registry) unlock() {
	if r.mu != nil {
		r.mu.Unlock()
	}
}

func sameProducer(a, b Producer) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// matches reports whether e is for t. It also reports whether e is dead.
func (e *entry) matches(t Type) (match, dead bool) {
	if !e.weak {
		return t.class == nil && e.static == t.static, false
	}
	c := e.class.Value()
	if c == nil || c.Destroyed() {
		return false, true
	}
	return c == t.class, false
}

// find returns the index of t's entry, evicting dead entries as it scans.
// The caller holds the lock.
func (r *registry) find(t Type) int {
	found := -1
	kept := r.entries[:0]
	for _, e := range r.entries {
		match, dead := e.matches(t)
		if dead {
			continue
		}
		if match && found < 0 {
			found = len(kept)
		}
		kept = append(kept, e)
	}
	for n := len(kept); n < len(r.entries); n++ {
		r.entries[n] = nil
	}
	r.entries = kept
	return found
}

func (r *registry) add(t Type, fn Producer) error {
	if fn == nil {
		return errors.Registration(t.String(), "nil producer")
	}

	r.lock()
	defer r.unlock()

	if n := r.find(t); n >= 0 {
		e := r.entries[n]
		if !sameProducer(e.fn, fn) {
			return errors.Registration(t.String(), "type already registered with a different producer")
		}
		e.refs++
		return nil
	}

	e := &entry{fn: fn, refs: 1}
	if t.class != nil {
		e.weak = true
		e.class = weak.Make(t.class)
	} else {
		e.static = t.static
	}
	// Most recent first.
	r.entries = append([]*entry{e}, r.entries...)
	return nil
}

func (r *registry) remove(t Type) bool {
	r.lock()
	defer r.unlock()

	n := r.find(t)
	if n < 0 {
		return false
	}
	e := r.entries[n]
	e.refs--
	if e.refs <= 0 {
		last := len(r.entries) - 1
		copy(r.entries[n:], r.entries[n+1:])
		r.entries[last] = nil
		r.entries = r.entries[:last]
	}
	return true
}

func (r *registry) lookup(t Type) (Producer, bool) {
	r.lock()
	defer r.unlock()

	n := r.find(t)
	if n < 0 {
		return nil, false
	}
	return r.entries[n].fn, true
}

func (r *registry) len() int {
	r.lock()
	defer r.unlock()
	return len(r.entries)
}

func (r *registry) clear() {
	r.lock()
	r.entries = nil
	r.unlock()
}
