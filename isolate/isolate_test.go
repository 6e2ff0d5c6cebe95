package isolate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/metrics"
)

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func TestRuntime_Isolates(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	if rt.Main().ID() != MainID {
		t.Fatalf("main id = %d, want %d", rt.Main().ID(), MainID)
	}

	a, err := rt.NewIsolate(ctx, "a")
	if err != nil {
		t.Fatalf("NewIsolate failed: %v", err)
	}
	b, err := rt.NewIsolate(ctx, "b")
	if err != nil {
		t.Fatalf("NewIsolate failed: %v", err)
	}
	if a.ID() == b.ID() {
		t.Fatal("isolates share an id")
	}

	got, ok := rt.Lookup(b.ID())
	if !ok || got != b {
		t.Fatalf("Lookup(%d) = %v, %v", b.ID(), got, ok)
	}

	all := rt.Isolates()
	if len(all) != 3 || all[0] != rt.Main() || all[1] != a || all[2] != b {
		t.Fatalf("Isolates() = %v", all)
	}

	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := rt.Lookup(a.ID()); ok {
		t.Fatal("closed isolate still found")
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestRuntime_ClosedRejectsNewIsolate(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := rt.NewIsolate(ctx, "late"); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestRunningMain(t *testing.T) {
	rt := newTestRuntime(t)
	th := rt.NewThread(rt.Main())
	defer th.Close()

	main := rt.Main()
	owner := th.Current()
	other := th.NewState(main, WhenceSession)

	if err := main.SetRunningMain(owner); err != nil {
		t.Fatalf("SetRunningMain failed: %v", err)
	}
	if !main.IsRunningMain() {
		t.Fatal("expected running")
	}

	err := main.SetRunningMain(other)
	if !errors.IsKind(err, errors.KindAlreadyRunning) {
		t.Fatalf("expected already_running, got %v", err)
	}

	if main.SetNotRunningMain(other) {
		t.Fatal("non-owner cleared the running flag")
	}
	if !main.IsRunningMain() {
		t.Fatal("running flag lost after failed claim")
	}
	if !main.SetNotRunningMain(owner) {
		t.Fatal("owner could not clear the running flag")
	}
	if main.IsRunningMain() {
		t.Fatal("still running")
	}
}

func TestSetRunningMain_WrongIsolate(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	iso, err := rt.NewIsolate(ctx, "w")
	if err != nil {
		t.Fatalf("NewIsolate failed: %v", err)
	}
	th := rt.NewThread(rt.Main())
	defer th.Close()

	if err := iso.SetRunningMain(th.Current()); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestPendingCalls_SafePoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	rt := newTestRuntime(t, WithMetrics(m))
	th := rt.NewThread(rt.Main())
	defer th.Close()

	var order []int
	for n := 1; n <= 3; n++ {
		n := n
		if err := rt.Main().AddPendingCall(func() error {
			order = append(order, n)
			return nil
		}); err != nil {
			t.Fatalf("AddPendingCall failed: %v", err)
		}
	}
	if rt.Main().PendingCalls() != 3 {
		t.Fatalf("PendingCalls = %d, want 3", rt.Main().PendingCalls())
	}

	ran, err := th.SafePoint()
	if err != nil {
		t.Fatalf("SafePoint failed: %v", err)
	}
	if ran != 3 {
		t.Fatalf("ran %d calls, want 3", ran)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("calls ran out of order: %v", order)
	}
	if got := testutil.ToFloat64(m.Pending().WithLabelValues(metrics.PendingExecuted)); got != 3 {
		t.Fatalf("executed = %v, want 3", got)
	}
}

func TestPendingCalls_Failure(t *testing.T) {
	rt := newTestRuntime(t)
	th := rt.NewThread(rt.Main())
	defer th.Close()

	boom := ValueError.New("boom")
	ran := false
	_ = rt.Main().AddPendingCall(func() error { return boom })
	_ = rt.Main().AddPendingCall(func() error { ran = true; return nil })

	n, err := th.SafePoint()
	if n != 2 {
		t.Fatalf("ran %d calls, want 2", n)
	}
	if err == nil || !IsException(err, ValueError) {
		t.Fatalf("expected ValueError, got %v", err)
	}
	if !ran {
		t.Fatal("failure stopped later calls")
	}
}

func TestPendingCalls_DroppedOnClose(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	rt := newTestRuntime(t, WithMetrics(m))

	iso, err := rt.NewIsolate(ctx, "doomed")
	if err != nil {
		t.Fatalf("NewIsolate failed: %v", err)
	}
	ran := false
	if err := iso.AddPendingCall(func() error { ran = true; return nil }); err != nil {
		t.Fatalf("AddPendingCall failed: %v", err)
	}
	if err := iso.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if ran {
		t.Fatal("pending call ran during close")
	}
	if got := testutil.ToFloat64(m.Pending().WithLabelValues(metrics.PendingDropped)); got != 1 {
		t.Fatalf("dropped = %v, want 1", got)
	}
	if err := iso.AddPendingCall(func() error { return nil }); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt := newTestRuntime(t)

	iso, err := rt.NewIsolate(ctx, "served")
	if err != nil {
		t.Fatalf("NewIsolate failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = iso.Serve(ctx)
	}()

	done := make(chan struct{})
	if err := iso.AddPendingCall(func() error { close(done); return nil }); err != nil {
		t.Fatalf("AddPendingCall failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pending call was not served")
	}

	cancel()
	wg.Wait()
}

func TestServe_StopsOnClose(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	iso, err := rt.NewIsolate(ctx, "served")
	if err != nil {
		t.Fatalf("NewIsolate failed: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- iso.Serve(ctx) }()

	if err := iso.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestClose_RunningIsolate(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	iso, err := rt.NewIsolate(ctx, "busy")
	if err != nil {
		t.Fatalf("NewIsolate failed: %v", err)
	}

	th := rt.NewThread(iso)
	if err := iso.SetRunningMain(th.Current()); err != nil {
		t.Fatalf("SetRunningMain failed: %v", err)
	}
	if err := iso.Close(ctx); !errors.IsKind(err, errors.KindAlreadyRunning) {
		t.Fatalf("expected already_running, got %v", err)
	}
	iso.SetNotRunningMain(th.Current())
	th.Close()

	if err := iso.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestClose_WaitsForLock(t *testing.T) {
	rt := newTestRuntime(t)
	iso, err := rt.NewIsolate(context.Background(), "held")
	if err != nil {
		t.Fatalf("NewIsolate failed: %v", err)
	}
	th := rt.NewThread(iso)
	defer th.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := iso.Close(ctx); err == nil {
		t.Fatal("Close succeeded while a thread held the isolate")
	}
	if !iso.Alive() {
		t.Fatal("failed Close left the isolate dead")
	}
}

func TestOnCloseAndLocals(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	iso, err := rt.NewIsolate(ctx, "locals")
	if err != nil {
		t.Fatalf("NewIsolate failed: %v", err)
	}

	type key struct{}
	th := rt.NewThread(iso)
	iso.SetLocal(key{}, 42)
	if v, ok := iso.Local(key{}); !ok || v != 42 {
		t.Fatalf("Local = %v, %v", v, ok)
	}
	iso.SetLocal(key{}, nil)
	if _, ok := iso.Local(key{}); ok {
		t.Fatal("nil SetLocal did not delete")
	}

	var order []string
	iso.OnClose(func() { order = append(order, "first") })
	iso.OnClose(func() { order = append(order, "second") })
	th.Close()

	if err := iso.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("hooks ran as %v", order)
	}
	if _, err := iso.MainBindings(); !errors.IsKind(err, errors.KindMainNamespaceUnavailable) {
		t.Fatalf("expected main_namespace_unavailable, got %v", err)
	}
}

func TestIsolateMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	rt := newTestRuntime(t, WithMetrics(m))

	iso, err := rt.NewIsolate(ctx, "counted")
	if err != nil {
		t.Fatalf("NewIsolate failed: %v", err)
	}
	if got := testutil.ToFloat64(m.Isolates()); got != 2 {
		t.Fatalf("isolates = %v, want 2", got)
	}
	if err := iso.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := testutil.ToFloat64(m.Isolates()); got != 1 {
		t.Fatalf("isolates = %v, want 1", got)
	}
}
