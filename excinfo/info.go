package excinfo

import (
	"go.uber.org/zap"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/isolate"
)

// Info is a captured failure: a structured code and, when available, a
// snapshot of the original failure.
type Info struct {
	Snapshot *Snapshot `cbor:"3,keyasint,omitempty"`
	Code     Code      `cbor:"1,keyasint"`
	// Isolate is the isolate the failure was captured in.
	Isolate int64 `cbor:"2,keyasint"`
}

// Capture records err raised in iso. A non-zero override replaces the
// code derived from err; err is still snapshotted so the override's
// failure can carry it, except for already_running, which drops err.
// With no failure and no override Capture returns nil. If the snapshot
// cannot be taken the info degrades to no_memory or other without one.
func Capture(iso *isolate.Isolate, err error, override Code) *Info {
	if err == nil && override == NoError {
		return nil
	}
	id := int64(-1)
	if iso != nil {
		id = iso.ID()
	}

	info := &Info{Isolate: id, Code: override}
	if override == NoError {
		info.Code = CodeOf(err)
	}
	if err == nil || override == AlreadyRunning {
		return info
	}

	snap, serr := SnapshotOf(err)
	if serr != nil {
		if override == NoError {
			info.Code = Other
			if errors.IsKind(serr, errors.KindAllocation) {
				info.Code = NoMemory
			}
		}
		Logger().Warn("failure snapshot degraded",
			zap.Int64("isolate", id),
			zap.Stringer("code", info.Code),
			zap.Error(serr))
		return info
	}
	info.Snapshot = snap
	return info
}

// Failed reports whether info records a failure.
func (i *Info) Failed() bool {
	return i != nil && i.Code != NoError
}

// Apply raises the captured failure in the current isolate. Uncaught
// exceptions become kind formatted from the snapshot. not_shareable is
// raised directly as the not-shareable error. Other codes raise their
// canonical failure with the snapshot, if any, chained as the cause.
func (i *Info) Apply(kind *isolate.ExceptionType) error {
	if !i.Failed() {
		return nil
	}
	if kind == nil {
		kind = isolate.RuntimeError
	}

	switch i.Code {
	case UncaughtException:
		if i.Snapshot == nil {
			return kind.New("")
		}
		return i.Snapshot.Apply(kind)
	case NotShareable:
		msg := ""
		if i.Snapshot != nil {
			msg = i.Snapshot.Msg
		}
		return errors.NotShareable(errors.PhaseSession, nil, msg)
	}

	b := codeError(i.Code, i.Isolate)
	if i.Snapshot != nil {
		b.Cause(i.Snapshot.Apply(kind))
	}
	return b.Build()
}

// String renders the info for logs.
func (i *Info) String() string {
	if i == nil {
		return NoError.String()
	}
	if i.Snapshot == nil {
		return i.Code.String()
	}
	return i.Code.String() + ": " + i.Snapshot.String()
}
