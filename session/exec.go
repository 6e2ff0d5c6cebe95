package session

import (
	"fmt"

	"github.com/wippyai/isolates/excinfo"
	"github.com/wippyai/isolates/isolate"
	"github.com/wippyai/isolates/namespace"
	"github.com/wippyai/isolates/xidata"
)

// ExecOptions configures Exec.
type ExecOptions struct {
	// Shared bindings are applied onto the target's main bindings before fn runs.
	Shared *isolate.Bindings
	// ExcType is the kind uncaught failures are raised as. Nil means RuntimeError.
	ExcType *isolate.ExceptionType
	// Export names main bindings to hand back after fn succeeds.
	Export []string
}

// RunFailedError reports an uncaught failure inside the target isolate.
// Its message is the original failure's "Type: message".
type RunFailedError struct {
	Info    *excinfo.Info
	Err     error
	Isolate int64
}

func (e *RunFailedError) Error() string {
	return e.Err.Error()
}

func (e *RunFailedError) Unwrap() error {
	return e.Err
}

// Detail describes where the failure happened.
func (e *RunFailedError) Detail() string {
	return fmt.Sprintf("isolate %d: %s", e.Isolate, e.Info)
}

// Exec runs fn in iso's top-level context and returns to the caller's.
// Failures inside iso come back as a *RunFailedError; failures to enter,
// to share or to export are returned as their own structured errors. The
// returned namespace, if any, holds handles owned by iso; callers apply
// and free it.
func Exec(th *isolate.Thread, mgr *xidata.Manager, iso *isolate.Isolate, opts ExecOptions, fn func(main *isolate.Bindings) error) (*namespace.Namespace, error) {
	s := New(th, mgr)
	if err := s.Enter(iso, opts.Shared); err != nil {
		return nil, err
	}

	var ns *namespace.Namespace
	if err := s.Run(fn); err == nil && len(opts.Export) > 0 {
		ns, _ = s.Export(opts.Export)
	}
	if err := s.Exit(); err != nil {
		_ = ns.Free(th, mgr)
		return nil, err
	}

	if !s.HasCapturedException() {
		return ns, nil
	}
	_ = ns.Free(th, mgr)
	info := s.Captured()
	err := s.ApplyCapturedException(opts.ExcType)
	if info.Code == excinfo.UncaughtException {
		return nil, &RunFailedError{Info: info, Err: err, Isolate: iso.ID()}
	}
	return nil, err
}
