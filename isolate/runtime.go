package isolate

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/heap"
	"github.com/wippyai/isolates/metrics"
)

// MainID is the id of the isolate created with the Runtime.
const MainID int64 = 0

// Runtime owns the isolate table. It is safe for concurrent use.
type Runtime struct {
	isolates map[int64]*Isolate
	main     *Isolate
	metrics  *metrics.Metrics
	heapCfg  heap.Config
	nextID   int64
	mu       sync.RWMutex
	closed   bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithHeapConfig sets the heap configuration used for every isolate.
func WithHeapConfig(cfg heap.Config) Option {
	return func(r *Runtime) {
		r.heapCfg = cfg
	}
}

// WithMetrics records isolate and pending-call metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

// New creates a runtime together with its main isolate.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		isolates: make(map[int64]*Isolate),
	}
	for _, opt := range opts {
		opt(r)
	}

	main, err := r.NewIsolate(ctx, "main")
	if err != nil {
		return nil, err
	}
	r.main = main
	return r, nil
}

// Main returns the main isolate.
func (r *Runtime) Main() *Isolate {
	return r.main
}

// NewIsolate creates a new isolate with its own heap, bindings and pending-call queue.
func (r *Runtime) NewIsolate(ctx context.Context, name string) (*Isolate, error) {
	h, err := heap.New(ctx, r.heapCfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIsolate, errors.KindAllocation, err, "create isolate heap")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = h.Close(ctx)
		return nil, errors.Closed(errors.PhaseIsolate, "runtime")
	}
	id := r.nextID
	r.nextID++
	iso := newIsolate(r, id, name, h)
	r.isolates[id] = iso
	r.mu.Unlock()

	r.metrics.IsolateStarted()
	Logger().Debug("isolate created", zap.Int64("isolate", id), zap.String("name", name))
	return iso, nil
}

// Lookup resolves an isolate by id. Closed isolates are not found.
func (r *Runtime) Lookup(id int64) (*Isolate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iso, ok := r.isolates[id]
	return iso, ok
}

// Isolates returns the live isolates ordered by id.
func (r *Runtime) Isolates() []*Isolate {
	r.mu.RLock()
	out := make([]*Isolate, 0, len(r.isolates))
	for _, iso := range r.isolates {
		out = append(out, iso)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Metrics returns the runtime's metrics, possibly nil.
func (r *Runtime) Metrics() *metrics.Metrics {
	return r.metrics
}

// Close closes every isolate, the main isolate last.
// All threads must have been closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	var err error
	for _, iso := range r.Isolates() {
		if iso == r.main {
			continue
		}
		err = multierr.Append(err, iso.Close(ctx))
	}
	if r.main != nil {
		err = multierr.Append(err, r.main.Close(ctx))
	}
	return err
}

func (r *Runtime) remove(id int64) {
	r.mu.Lock()
	delete(r.isolates, id)
	r.mu.Unlock()
}
