// Package session drives another isolate's top-level execution from the
// current thread, carrying bindings in and failures out.
package session

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/excinfo"
	"github.com/wippyai/isolates/isolate"
	"github.com/wippyai/isolates/namespace"
	"github.com/wippyai/isolates/xidata"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateEntering
	StateActive
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEntering:
		return "entering"
	case StateActive:
		return "active"
	case StateExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// Session results recorded in metrics.
const (
	resultEntered        = "entered"
	resultFailed         = "failed"
	resultAlreadyRunning = "already_running"
)

// Session is a scoped entry of a thread into an isolate. Every Enter must
// be paired with an Exit, which is the single unwind point and is safe to
// call after a failed Enter or more than once.
type Session struct {
	th       *isolate.Thread
	mgr      *xidata.Manager
	iso      *isolate.Isolate
	prev     *isolate.ThreadState
	ts       *isolate.ThreadState
	main     *isolate.Bindings
	pending  error
	captured *excinfo.Info
	log      *zap.Logger
	override excinfo.Code
	state    State
	id       uuid.UUID
	owned    bool
	running  bool
	switched bool
}

// New creates an idle session for th.
func New(th *isolate.Thread, mgr *xidata.Manager) *Session {
	id := uuid.New()
	return &Session{
		th:  th,
		mgr: mgr,
		id:  id,
		log: Logger().With(zap.Stringer("session", id)),
	}
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Isolate returns the target isolate, or nil when idle.
func (s *Session) Isolate() *isolate.Isolate {
	return s.iso
}

// Main returns the target's main bindings while active.
func (s *Session) Main() *isolate.Bindings {
	return s.main
}

// Enter switches the thread into iso. Bindings in updates are converted
// to handles in the caller's isolate first and applied onto iso's main
// bindings after the switch. On failure the session has already unwound
// and the returned error belongs to the caller's context.
func (s *Session) Enter(iso *isolate.Isolate, updates *isolate.Bindings) error {
	if s.state != StateIdle {
		return errors.InvalidInput(errors.PhaseSession, "session already entered")
	}
	s.reset()
	s.state = StateEntering
	s.iso = iso
	m := s.th.Runtime().Metrics()

	ns, err := namespace.FromBindings(s.th, s.mgr, updates)
	if err != nil {
		// Nothing switched yet; the failure is already the caller's.
		s.state = StateIdle
		s.iso = nil
		m.ObserveSession(resultFailed)
		return err
	}

	ts := s.th.StateFor(iso)
	if ts == nil {
		ts = s.th.NewState(iso, isolate.WhenceSession)
		s.owned = true
	}
	s.ts = ts

	if err := iso.SetRunningMain(ts); err != nil {
		_ = ns.Free(s.th, s.mgr)
		if !errors.IsKind(err, errors.KindAlreadyRunning) {
			m.ObserveSession(resultFailed)
			_ = s.Exit()
			return err
		}
		s.log.Debug("isolate already running", zap.Int64("isolate", iso.ID()))
		s.override = excinfo.AlreadyRunning
		m.ObserveSession(resultAlreadyRunning)
		return s.abort()
	}
	s.running = true

	s.prev = s.th.Swap(ts)
	s.switched = true
	_, _ = s.th.SafePoint()

	main, err := iso.MainBindings()
	if err != nil {
		s.pending = err
		s.override = excinfo.MainNamespaceUnavailable
		_ = ns.Free(s.th, s.mgr)
		m.ObserveSession(resultFailed)
		return s.abort()
	}
	s.main = main

	if ns != nil {
		err := ns.Apply(s.mgr, main, nil)
		// Posted back to the caller's isolate.
		_ = ns.Free(s.th, s.mgr)
		if err != nil {
			// The reconstruct failure is what the caller sees as the cause.
			if e, ok := err.(*errors.Error); ok && e.Cause != nil {
				err = e.Cause
			}
			s.pending = err
			s.override = excinfo.ApplyNamespaceFailed
			m.ObserveSession(resultFailed)
			return s.abort()
		}
	}

	s.state = StateActive
	m.ObserveSession(resultEntered)
	s.log.Debug("session entered", zap.Int64("isolate", iso.ID()))
	return nil
}

// abort unwinds a failed Enter and raises the captured failure.
func (s *Session) abort() error {
	_ = s.Exit()
	if err := s.ApplyCapturedException(nil); err != nil {
		return err
	}
	return errors.New(errors.PhaseSession, errors.KindOther).Detail("enter failed").Build()
}

// Raise records err as the failure pending in the target isolate. The
// first failure wins; later ones are logged and dropped.
func (s *Session) Raise(err error) {
	if err == nil {
		return
	}
	if s.pending != nil {
		s.log.Debug("dropping secondary failure", zap.Error(err))
		return
	}
	s.pending = err
}

// Run calls fn with the target's main bindings. A returned error is raised
// in the session and also returned.
func (s *Session) Run(fn func(main *isolate.Bindings) error) error {
	if s.state != StateActive {
		return errors.InvalidInput(errors.PhaseSession, "session is not active")
	}
	err := fn(s.main)
	s.Raise(err)
	return err
}

// Export fills a namespace with the named main bindings, produced in the
// target isolate. A not_shareable failure is captured so the caller
// re-raises it unchanged.
func (s *Session) Export(names []string) (*namespace.Namespace, error) {
	if s.state != StateActive {
		return nil, errors.InvalidInput(errors.PhaseSession, "session is not active")
	}
	ns, err := namespace.FromNames(names)
	if err != nil {
		s.Raise(err)
		return nil, err
	}
	if err := ns.Fill(s.th, s.mgr, s.main); err != nil {
		if errors.IsKind(err, errors.KindNotShareable) {
			s.override = excinfo.NotShareable
		}
		s.Raise(err)
		return nil, err
	}
	return ns, nil
}

// Exit captures any pending failure, clears the running flag and restores
// the thread's previous context. Calling it on an idle session is a no-op.
func (s *Session) Exit() error {
	if s.state == StateIdle {
		return nil
	}
	s.state = StateExiting

	if s.pending != nil || s.override != excinfo.NoError {
		s.captured = excinfo.Capture(s.iso, s.pending, s.override)
		s.pending = nil
		s.override = excinfo.NoError
		if s.captured.Failed() {
			s.log.Debug("failure captured",
				zap.Int64("isolate", s.iso.ID()),
				zap.Stringer("info", s.captured))
		}
	}

	s.main = nil
	if s.running {
		s.iso.SetNotRunningMain(s.ts)
		s.running = false
	}

	var err error
	if s.switched {
		s.th.Swap(s.prev)
		s.switched = false
		// Releases posted back to us while we were away.
		_, _ = s.th.SafePoint()
	}
	if s.owned {
		err = s.ts.Delete()
		s.owned = false
	}
	s.ts = nil
	s.prev = nil
	s.state = StateIdle
	return err
}

// Captured returns the failure captured at exit.
func (s *Session) Captured() *excinfo.Info {
	return s.captured
}

// HasCapturedException reports whether a failure was captured at exit.
func (s *Session) HasCapturedException() bool {
	return s.captured.Failed()
}

// ApplyCapturedException raises the captured failure in the caller's
// context, as kind for uncaught exceptions, and clears it.
func (s *Session) ApplyCapturedException(kind *isolate.ExceptionType) error {
	info := s.captured
	s.captured = nil
	return info.Apply(kind)
}

func (s *Session) reset() {
	s.iso = nil
	s.prev = nil
	s.ts = nil
	s.main = nil
	s.pending = nil
	s.captured = nil
	s.override = excinfo.NoError
	s.owned = false
	s.running = false
	s.switched = false
}
