package xidata

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/isolate"
	"github.com/wippyai/isolates/metrics"
)

// Release destroys h's payload on its owning isolate. When the current
// isolate is not the owner the destruction is posted to the owner's
// pending-call queue and Release returns without waiting. Releasing a
// handle twice is a no-op. If the owner is gone the handle is cleared
// locally and a warning-class owner_gone error is returned.
func (m *Manager) Release(th *isolate.Thread, h *Handle) error {
	return m.release(th, h, false)
}

// ReleaseAndFree is Release that also resets the handle itself once the
// payload has been destroyed.
func (m *Manager) ReleaseAndFree(th *isolate.Thread, h *Handle) error {
	return m.release(th, h, true)
}

// ReleaseAll releases handles that share one owner with a single deferred
// call instead of one per handle. Handles with differing owners are
// released one by one.
func (m *Manager) ReleaseAll(th *isolate.Thread, hs []*Handle) error {
	if th == nil {
		return errors.InvalidInput(errors.PhaseRelease, "nil thread")
	}
	ownerID, uniform := commonOwner(hs)
	current := NoOwner
	if iso := th.Isolate(); iso != nil {
		current = iso.ID()
	}
	owner, ok := th.Runtime().Lookup(ownerID)
	if !uniform || !ok || !owner.Alive() || ownerID == current {
		var err error
		for _, h := range hs {
			err = multierr.Append(err, m.release(th, h, false))
		}
		return err
	}

	var batch []*Handle
	for _, h := range hs {
		if h == nil || !h.released.CompareAndSwap(false, true) {
			continue
		}
		if !h.needsOwner() {
			_ = h.Clear()
			m.metrics.ObserveRelease(metrics.ReleaseInline)
			continue
		}
		batch = append(batch, h)
	}
	if len(batch) == 0 {
		return nil
	}

	events := make([]Event, len(batch))
	for n, h := range batch {
		events[n] = Event{Type: EventReleased, Handle: h, Kind: h.kind, Owner: ownerID, Isolate: current}
	}
	err := owner.AddPendingCall(func() error {
		var err error
		for n, h := range batch {
			err = multierr.Append(err, h.Clear())
			m.notify(events[n])
		}
		return err
	})
	if err != nil {
		var lerr error
		for _, h := range batch {
			lerr = multierr.Append(lerr, m.leak(h, current, false))
		}
		return lerr
	}
	for _, e := range events {
		m.metrics.ObserveRelease(metrics.ReleaseDeferred)
		e.Type = EventDeferred
		m.notify(e)
	}
	return nil
}

func commonOwner(hs []*Handle) (int64, bool) {
	owner := NoOwner
	for _, h := range hs {
		if h == nil {
			continue
		}
		if owner == NoOwner {
			owner = h.Owner
		} else if h.Owner != owner {
			return NoOwner, false
		}
	}
	return owner, owner != NoOwner
}

func (m *Manager) release(th *isolate.Thread, h *Handle, free bool) error {
	if h == nil {
		return nil
	}
	if th == nil {
		return errors.InvalidInput(errors.PhaseRelease, "nil thread")
	}
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}

	current := NoOwner
	if iso := th.Isolate(); iso != nil {
		current = iso.ID()
	}

	finish := func() error {
		err := h.Clear()
		if free {
			h.reset()
		}
		return err
	}

	if !h.needsOwner() {
		_ = finish()
		m.metrics.ObserveRelease(metrics.ReleaseInline)
		return nil
	}

	owner, ok := th.Runtime().Lookup(h.Owner)
	if !ok || !owner.Alive() {
		return m.leak(h, current, free)
	}

	released := Event{Type: EventReleased, Handle: h, Kind: h.kind, Owner: h.Owner, Isolate: current}
	if owner.ID() == current {
		err := finish()
		m.metrics.ObserveRelease(metrics.ReleaseSync)
		m.notify(released)
		return err
	}

	deferred := released
	deferred.Type = EventDeferred
	err := owner.AddPendingCall(func() error {
		err := finish()
		m.notify(released)
		return err
	})
	if err != nil {
		// Closed between the lookup and the post.
		return m.leak(h, current, free)
	}
	m.metrics.ObserveRelease(metrics.ReleaseDeferred)
	m.notify(deferred)
	return nil
}

func (m *Manager) leak(h *Handle, current int64, free bool) error {
	owner := h.Owner
	e := Event{Type: EventLeaked, Handle: h, Kind: h.kind, Owner: owner, Isolate: current}
	h.discard()
	if free {
		h.reset()
	}

	m.metrics.ObserveRelease(metrics.ReleaseLeaked)
	if m.leaks.Allow() {
		Logger().Warn("cross-isolate payload leaked: owning isolate is gone",
			zap.Int64("owner", owner),
			zap.Int64("isolate", current),
			zap.String("kind", e.Kind))
	}
	m.notify(e)
	return errors.OwnerGone(owner)
}
