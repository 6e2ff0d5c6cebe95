package isolate

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/heap"
	"github.com/wippyai/isolates/metrics"
)

const (
	stateAlive int32 = iota
	stateClosing
	stateClosed
)

// Isolate is an independently executing context with its own heap and
// top-level bindings. At most one ThreadState executes in it at a time;
// that is enforced by the isolate lock, which a Thread holds while one of
// its states for this isolate is current.
type Isolate struct {
	rt      *Runtime
	heap    *heap.Heap
	lock    chan struct{}
	running atomic.Pointer[ThreadState]
	main    *Bindings
	pending *pendingQueue
	locals  map[any]any
	onClose []func()
	name    string
	id      int64
	state   atomic.Int32
}

func newIsolate(rt *Runtime, id int64, name string, h *heap.Heap) *Isolate {
	return &Isolate{
		rt:      rt,
		id:      id,
		name:    name,
		heap:    h,
		lock:    make(chan struct{}, 1),
		main:    NewBindings(),
		pending: newPendingQueue(),
		locals:  make(map[any]any),
	}
}

// ID returns the isolate's id. Ids are never reused within a Runtime.
func (i *Isolate) ID() int64 {
	return i.id
}

// Name returns the name given at creation.
func (i *Isolate) Name() string {
	return i.name
}

// Runtime returns the runtime that owns the isolate.
func (i *Isolate) Runtime() *Runtime {
	return i.rt
}

// Heap returns the isolate's allocator.
func (i *Isolate) Heap() *heap.Heap {
	return i.heap
}

// Alive reports whether the isolate has not started closing.
func (i *Isolate) Alive() bool {
	return i.state.Load() == stateAlive
}

func (i *Isolate) String() string {
	return fmt.Sprintf("isolate %d (%s)", i.id, i.name)
}

func (i *Isolate) metrics() *metrics.Metrics {
	if i.rt == nil {
		return nil
	}
	return i.rt.metrics
}

func (i *Isolate) acquire() {
	i.lock <- struct{}{}
}

func (i *Isolate) acquireContext(ctx context.Context) error {
	select {
	case i.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Isolate) release() {
	<-i.lock
}

// MainBindings returns the isolate's top-level bindings.
// The caller must be executing in the isolate.
func (i *Isolate) MainBindings() (*Bindings, error) {
	if !i.Alive() {
		return nil, errors.New(errors.PhaseSession, errors.KindMainNamespaceUnavailable).
			Isolate(i.id).
			Detail("main bindings unavailable: isolate is closing").
			Build()
	}
	return i.main, nil
}

// SetRunningMain marks ts as the owner of the isolate's top-level execution.
// It fails with already_running if another state owns it and leaves that owner in place.
func (i *Isolate) SetRunningMain(ts *ThreadState) error {
	if ts == nil || ts.iso != i {
		return errors.InvalidInput(errors.PhaseSession, "thread state is not bound to this isolate")
	}
	if !i.Alive() {
		return errors.Closed(errors.PhaseSession, i.String())
	}
	if !i.running.CompareAndSwap(nil, ts) {
		return errors.AlreadyRunning(i.id)
	}
	return nil
}

// SetNotRunningMain clears the running flag if ts owns it.
func (i *Isolate) SetNotRunningMain(ts *ThreadState) bool {
	return i.running.CompareAndSwap(ts, nil)
}

// IsRunningMain reports whether some state owns the top-level execution.
func (i *Isolate) IsRunningMain() bool {
	return i.running.Load() != nil
}

// AddPendingCall posts fn to run on this isolate at its next safe point.
// It never blocks. Calls to the same isolate run in posting order.
func (i *Isolate) AddPendingCall(fn func() error) error {
	if fn == nil {
		return errors.InvalidInput(errors.PhaseIsolate, "nil pending call")
	}
	if !i.Alive() || !i.pending.push(fn) {
		return errors.Closed(errors.PhaseIsolate, i.String())
	}
	i.metrics().ObservePending(metrics.PendingQueued, 1)
	return nil
}

// PendingCalls returns the number of calls waiting for a safe point.
func (i *Isolate) PendingCalls() int {
	return i.pending.len()
}

// makePendingCalls runs queued calls. The caller must hold the isolate lock.
func (i *Isolate) makePendingCalls() (int, error) {
	calls := i.pending.take()
	if len(calls) == 0 {
		return 0, nil
	}

	var err error
	failed := 0
	for _, call := range calls {
		if cerr := call(); cerr != nil {
			failed++
			err = multierr.Append(err, cerr)
			Logger().Warn("pending call failed", zap.Int64("isolate", i.id), zap.Error(cerr))
		}
	}
	m := i.metrics()
	m.ObservePending(metrics.PendingExecuted, len(calls)-failed)
	m.ObservePending(metrics.PendingFailed, failed)
	return len(calls), err
}

// Serve drains the pending-call queue whenever calls arrive, until ctx is
// done or the isolate closes. It takes the isolate lock while draining, so
// it must not run on a goroutine that has a Thread current in this isolate.
func (i *Isolate) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-i.pending.done:
			return nil
		case <-i.pending.signal:
		}

		if err := i.acquireContext(ctx); err != nil {
			return err
		}
		if !i.Alive() {
			i.release()
			return nil
		}
		_, _ = i.makePendingCalls()
		i.release()
	}
}

// Local returns a value stored under key by SetLocal.
// The caller must be executing in the isolate.
func (i *Isolate) Local(key any) (any, bool) {
	v, ok := i.locals[key]
	return v, ok
}

// SetLocal stores isolate-local state. Passing nil deletes the key.
// The caller must be executing in the isolate.
func (i *Isolate) SetLocal(key, v any) {
	if v == nil {
		delete(i.locals, key)
		return
	}
	i.locals[key] = v
}

// OnClose registers fn to run, under the isolate lock, when the isolate closes.
// Hooks run in reverse registration order.
func (i *Isolate) OnClose(fn func()) {
	i.onClose = append(i.onClose, fn)
}

// DefineClass creates a dynamic type owned by this isolate.
func (i *Isolate) DefineClass(name string) *Class {
	return &Class{name: name, owner: i}
}

// Close tears the isolate down. Calls still pending are dropped and
// reported; they never run. The isolate must not be running main and no
// thread may have it current, otherwise Close waits for ctx.
func (i *Isolate) Close(ctx context.Context) error {
	if i.running.Load() != nil {
		return errors.New(errors.PhaseIsolate, errors.KindAlreadyRunning).
			Isolate(i.id).
			Detail("cannot close a running isolate").
			Build()
	}
	if !i.state.CompareAndSwap(stateAlive, stateClosing) {
		return nil
	}
	if err := i.acquireContext(ctx); err != nil {
		i.state.Store(stateAlive)
		return errors.Wrap(errors.PhaseIsolate, errors.KindOther, err, "waiting for isolate lock")
	}
	defer i.release()

	if i.rt != nil {
		i.rt.remove(i.id)
	}

	if dropped := i.pending.close(); dropped > 0 {
		Logger().Warn("dropping pending calls of closed isolate",
			zap.Int64("isolate", i.id),
			zap.Int("dropped", dropped))
		i.metrics().ObservePending(metrics.PendingDropped, dropped)
	}

	for n := len(i.onClose) - 1; n >= 0; n-- {
		i.onClose[n]()
	}
	i.onClose = nil
	i.locals = make(map[any]any)
	i.main.Clear()

	err := i.heap.Close(ctx)
	i.state.Store(stateClosed)
	i.metrics().IsolateStopped()
	Logger().Debug("isolate closed", zap.Int64("isolate", i.id), zap.String("name", i.name))
	return err
}
