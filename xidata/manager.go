package xidata

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/isolate"
	"github.com/wippyai/isolates/metrics"
)

// Manager owns the global producer registry and the per-isolate registries
// derived from it. A Manager is safe for concurrent use from any isolate.
type Manager struct {
	global    *registry
	metrics   *metrics.Metrics
	leaks     *rate.Limiter
	observers []Observer
	kinds     []KindInfo
	localKey  localRegistryKey
	initOnce  sync.Once
	obsMu     sync.RWMutex
	builtins  bool
}

type localRegistryKey struct {
	m *Manager
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records produced handles and release modes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithLeakLimit throttles leak reports to r per second with the given burst.
func WithLeakLimit(r rate.Limit, burst int) Option {
	return func(mgr *Manager) {
		mgr.leaks = rate.NewLimiter(r, burst)
	}
}

// WithoutBuiltins leaves the global registry empty.
func WithoutBuiltins() Option {
	return func(mgr *Manager) {
		mgr.builtins = false
	}
}

// NewManager creates a manager whose global registry holds the builtin kinds.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		global:   newGlobalRegistry(),
		leaks:    rate.NewLimiter(rate.Limit(10), 10),
		builtins: true,
	}
	m.localKey = localRegistryKey{m: m}
	for _, opt := range opts {
		opt(m)
	}
	m.initOnce.Do(func() {
		if m.builtins {
			m.registerBuiltins()
		}
	})
	return m
}

// Kinds describes the builtin shareable kinds.
func (m *Manager) Kinds() []KindInfo {
	out := make([]KindInfo, len(m.kinds))
	copy(out, m.kinds)
	return out
}

// local returns the registry of the thread's current isolate, creating it
// on first use. It is cleared when the isolate closes.
func (m *Manager) local(th *isolate.Thread) (*registry, error) {
	iso := th.Isolate()
	if iso == nil {
		return nil, errors.InvalidInput(errors.PhaseRegistry, "thread is not executing in an isolate")
	}
	if v, ok := iso.Local(m.localKey); ok {
		return v.(*registry), nil
	}
	r := &registry{}
	iso.SetLocal(m.localKey, r)
	iso.OnClose(r.clear)
	return r, nil
}

func (m *Manager) registryFor(th *isolate.Thread, t Type) (*registry, error) {
	if t.Dynamic() {
		return m.local(th)
	}
	return m.global, nil
}

// Register associates fn with t. Registering the same producer again only
// bumps a reference count; a different producer for a registered type is rejected.
// Classes are registered in the current isolate and tracked weakly.
func (m *Manager) Register(th *isolate.Thread, t Type, fn Producer) error {
	r, err := m.registryFor(th, t)
	if err != nil {
		return err
	}
	if err := r.add(t, fn); err != nil {
		return err
	}
	Logger().Debug("producer registered", zap.Stringer("type", t))
	return nil
}

// Unregister drops one reference to t's producer and reports whether t was registered.
func (m *Manager) Unregister(th *isolate.Thread, t Type) (bool, error) {
	r, err := m.registryFor(th, t)
	if err != nil {
		return false, err
	}
	return r.remove(t), nil
}

// Lookup returns the producer for v's exact type.
func (m *Manager) Lookup(th *isolate.Thread, v any) (Producer, bool) {
	t := TypeOf(v)
	r, err := m.registryFor(th, t)
	if err != nil {
		return nil, false
	}
	return r.lookup(t)
}

// Check reports whether v can be shared without producing a handle.
func (m *Manager) Check(th *isolate.Thread, v any) error {
	if th.Isolate() == nil {
		return errors.InvalidInput(errors.PhaseProduce, "thread is not executing in an isolate")
	}
	if _, ok := m.Lookup(th, v); !ok {
		return errors.NotShareable(errors.PhaseProduce, v, "")
	}
	return nil
}

// Produce builds a handle for v owned by the thread's current isolate.
func (m *Manager) Produce(th *isolate.Thread, v any) (*Handle, error) {
	h := &Handle{Owner: NoOwner}
	if err := m.ProduceInto(th, v, h); err != nil {
		return nil, err
	}
	return h, nil
}

// ProduceInto populates h for v. On failure h holds nothing.
func (m *Manager) ProduceInto(th *isolate.Thread, v any, h *Handle) error {
	iso := th.Isolate()
	if iso == nil {
		return errors.InvalidInput(errors.PhaseProduce, "thread is not executing in an isolate")
	}
	fn, ok := m.Lookup(th, v)
	if !ok {
		return errors.NotShareable(errors.PhaseProduce, v, "")
	}

	h.Owner = NoOwner
	h.released.Store(false)
	if err := fn(th, v, h); err != nil {
		_ = h.Clear()
		h.reset()
		return err
	}
	if err := h.Validate(); err != nil {
		_ = h.Clear()
		h.reset()
		return err
	}
	if h.Owner != iso.ID() {
		_ = h.Clear()
		h.reset()
		return errors.InvalidHandle(errors.PhaseProduce, "producer set a foreign owner")
	}

	h.kind = TypeOf(v).String()
	m.metrics.ObserveProduced(h.kind)
	m.notify(Event{Type: EventProduced, Handle: h, Kind: h.kind, Owner: h.Owner, Isolate: iso.ID()})
	return nil
}

// NewObject reconstructs a fresh value from h in the current isolate.
func (m *Manager) NewObject(h *Handle) (any, error) {
	return h.NewValue()
}
