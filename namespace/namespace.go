// Package namespace bundles named handles so a set of bindings can be
// exported from one isolate and applied in another.
package namespace

import (
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/isolate"
	"github.com/wippyai/isolates/xidata"
)

// DataState summarizes which items of a namespace carry handles.
type DataState int

const (
	// DataNone means no item carries a handle.
	DataNone DataState = iota
	// DataPartial means some items carry handles, or owners differ.
	DataPartial
	// DataComplete means every item carries a handle from one owner.
	DataComplete
)

func (s DataState) String() string {
	switch s {
	case DataNone:
		return "none"
	case DataPartial:
		return "partial"
	case DataComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Item is one named slot. A slot without a handle applies the default value.
type Item struct {
	data *xidata.Handle
	name string
}

// Name returns the item's name.
func (it *Item) Name() string {
	return it.name
}

// Handle returns the item's handle, or nil when empty.
func (it *Item) Handle() *xidata.Handle {
	return it.data
}

// HasValue reports whether the item carries a handle.
func (it *Item) HasValue() bool {
	return it.data != nil
}

// Namespace is an ordered bag of named handles. Names are owned copies,
// independent of either isolate.
type Namespace struct {
	items []Item
}

// FromNames creates a namespace with one empty item per name.
// Duplicate names give independent items. Empty input is rejected.
func FromNames(names []string) (*Namespace, error) {
	if len(names) == 0 {
		return nil, errors.InvalidInput(errors.PhaseNamespace, "namespace needs at least one name")
	}
	ns := &Namespace{items: make([]Item, len(names))}
	for n, name := range names {
		if name == "" {
			return nil, errors.InvalidInput(errors.PhaseNamespace, "empty name")
		}
		ns.items[n].name = strings.Clone(name)
	}
	return ns, nil
}

// FromKeys creates a namespace from the keys of m in sorted order.
func FromKeys[V any](m map[string]V) (*Namespace, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return FromNames(names)
}

// FromBindings creates a namespace holding every binding of b, produced in
// the thread's current isolate. Empty or nil bindings yield a nil namespace
// and no error.
func FromBindings(th *isolate.Thread, mgr *xidata.Manager, b *isolate.Bindings) (*Namespace, error) {
	if b == nil || b.Len() == 0 {
		return nil, nil
	}
	ns, err := FromNames(b.Names())
	if err != nil {
		return nil, err
	}
	if err := ns.Fill(th, mgr, b); err != nil {
		return nil, err
	}
	return ns, nil
}

// Len returns the number of items.
func (ns *Namespace) Len() int {
	if ns == nil {
		return 0
	}
	return len(ns.items)
}

// Names returns the item names in order.
func (ns *Namespace) Names() []string {
	if ns == nil {
		return nil
	}
	out := make([]string, len(ns.items))
	for n := range ns.items {
		out[n] = ns.items[n].name
	}
	return out
}

// Item returns the i-th item.
func (ns *Namespace) Item(i int) *Item {
	return &ns.items[i]
}

// Fill produces a handle for each item whose name is bound in src. Names
// missing from src leave their item empty. If any value fails to produce,
// every handle produced so far is released and the namespace is left
// without values; a not_shareable failure is returned unwrapped.
func (ns *Namespace) Fill(th *isolate.Thread, mgr *xidata.Manager, src *isolate.Bindings) error {
	if ns.Len() == 0 {
		return errors.InvalidInput(errors.PhaseNamespace, "namespace is empty")
	}
	if state, _ := ns.Data(); state != DataNone {
		return errors.InvalidInput(errors.PhaseNamespace, "namespace already filled")
	}

	for n := range ns.items {
		it := &ns.items[n]
		v, ok := src.Get(it.name)
		if !ok {
			continue
		}
		h, err := mgr.Produce(th, v)
		if err != nil {
			_ = ns.clearValues(th, mgr)
			if errors.IsKind(err, errors.KindNotShareable) {
				return err
			}
			kind, ok := errors.KindOf(err)
			if !ok {
				kind = errors.KindOther
			}
			return errors.New(errors.PhaseNamespace, kind).
				Cause(err).
				Detail("produce %q", it.name).
				Build()
		}
		it.data = h
	}
	return nil
}

// Apply binds every item into dst: the reconstructed value when the item
// has a handle, dflt otherwise. It stops at the first reconstruction
// failure; items applied before it stay bound.
func (ns *Namespace) Apply(mgr *xidata.Manager, dst *isolate.Bindings, dflt any) error {
	for n := range ns.items {
		it := &ns.items[n]
		if it.data == nil {
			dst.Set(it.name, dflt)
			continue
		}
		v, err := mgr.NewObject(it.data)
		if err != nil {
			return errors.New(errors.PhaseNamespace, errors.KindApplyNamespaceFailed).
				Cause(err).
				Detail("reconstruct %q", it.name).
				Build()
		}
		dst.Set(it.name, v)
	}
	return nil
}

// Data reports the namespace's data state and, when complete, the owner of every handle.
func (ns *Namespace) Data() (DataState, int64) {
	if ns.Len() == 0 {
		return DataNone, xidata.NoOwner
	}
	populated := 0
	owner := xidata.NoOwner
	uniform := true
	for n := range ns.items {
		h := ns.items[n].data
		if h == nil {
			continue
		}
		if populated == 0 {
			owner = h.Owner
		} else if h.Owner != owner {
			uniform = false
		}
		populated++
	}
	switch {
	case populated == 0:
		return DataNone, xidata.NoOwner
	case populated == len(ns.items) && uniform:
		return DataComplete, owner
	default:
		return DataPartial, xidata.NoOwner
	}
}

// Free releases every handle and empties the namespace. A namespace whose
// handles all come from one owner is released as a batch; anything else
// is released item by item.
func (ns *Namespace) Free(th *isolate.Thread, mgr *xidata.Manager) error {
	if ns == nil {
		return nil
	}
	err := ns.clearValues(th, mgr)
	ns.items = nil
	return err
}

func (ns *Namespace) clearValues(th *isolate.Thread, mgr *xidata.Manager) error {
	state, _ := ns.Data()
	if state == DataNone {
		return nil
	}

	var err error
	if state == DataComplete {
		handles := make([]*xidata.Handle, len(ns.items))
		for n := range ns.items {
			handles[n] = ns.items[n].data
		}
		err = mgr.ReleaseAll(th, handles)
	} else {
		for n := range ns.items {
			err = multierr.Append(err, mgr.Release(th, ns.items[n].data))
		}
	}
	for n := range ns.items {
		ns.items[n].data = nil
	}
	return err
}
