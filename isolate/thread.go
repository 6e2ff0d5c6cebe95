package isolate

import "github.com/wippyai/isolates/errors"

// Whence records why a ThreadState was created.
type Whence int

const (
	WhenceUnknown Whence = iota
	// WhenceThread states are created with their Thread.
	WhenceThread
	// WhenceSession states are created by a session entering an isolate.
	WhenceSession
)

// ThreadState is an execution context of one Thread bound to one isolate.
type ThreadState struct {
	thread  *Thread
	iso     *Isolate
	whence  Whence
	deleted bool
}

// Isolate returns the isolate the state is bound to.
func (ts *ThreadState) Isolate() *Isolate {
	return ts.iso
}

// Thread returns the owning thread.
func (ts *ThreadState) Thread() *Thread {
	return ts.thread
}

// Whence returns how the state was created.
func (ts *ThreadState) Whence() Whence {
	return ts.whence
}

// Delete detaches the state from its thread. The state must not be current.
func (ts *ThreadState) Delete() error {
	if ts.deleted {
		return nil
	}
	t := ts.thread
	if t.cur == ts {
		return errors.InvalidInput(errors.PhaseIsolate, "cannot delete the current thread state")
	}
	for n, s := range t.states {
		if s == ts {
			t.states = append(t.states[:n], t.states[n+1:]...)
			break
		}
	}
	ts.deleted = true
	return nil
}

// Thread is an explicit thread of control. A Thread is confined to the
// goroutine using it; concurrent use of one Thread is not supported.
// While it has a current state it holds that state's isolate lock.
type Thread struct {
	rt     *Runtime
	cur    *ThreadState
	states []*ThreadState
	closed bool
}

// NewThread creates a thread and makes a fresh state for iso current.
// It blocks until iso's lock is free.
func (r *Runtime) NewThread(iso *Isolate) *Thread {
	t := &Thread{rt: r}
	t.Swap(t.NewState(iso, WhenceThread))
	return t
}

// Runtime returns the runtime the thread belongs to.
func (t *Thread) Runtime() *Runtime {
	return t.rt
}

// Current returns the current state, or nil when detached.
func (t *Thread) Current() *ThreadState {
	return t.cur
}

// Isolate returns the isolate of the current state, or nil when detached.
func (t *Thread) Isolate() *Isolate {
	if t.cur == nil {
		return nil
	}
	return t.cur.iso
}

// StateFor returns an existing state of this thread bound to iso.
func (t *Thread) StateFor(iso *Isolate) *ThreadState {
	for _, ts := range t.states {
		if ts.iso == iso {
			return ts
		}
	}
	return nil
}

// NewState creates a state bound to iso without making it current.
func (t *Thread) NewState(iso *Isolate, whence Whence) *ThreadState {
	ts := &ThreadState{thread: t, iso: iso, whence: whence}
	t.states = append(t.states, ts)
	return ts
}

// Swap makes ts current and returns the previous state. Switching
// between isolates releases the previous isolate's lock before taking
// the next one, so a thread never holds two isolate locks. ts may be nil
// to detach.
func (t *Thread) Swap(ts *ThreadState) *ThreadState {
	prev := t.cur
	if prev == ts {
		return prev
	}
	same := prev != nil && ts != nil && prev.iso == ts.iso
	if prev != nil && !same {
		prev.iso.release()
	}
	if ts != nil && !same {
		ts.iso.acquire()
	}
	t.cur = ts
	return prev
}

// SafePoint runs the pending calls of the current isolate and returns how many ran.
func (t *Thread) SafePoint() (int, error) {
	if t.cur == nil {
		return 0, nil
	}
	return t.cur.iso.makePendingCalls()
}

// Close detaches the thread and deletes all of its states.
func (t *Thread) Close() {
	if t.closed {
		return
	}
	t.Swap(nil)
	for _, ts := range t.states {
		ts.deleted = true
	}
	t.states = nil
	t.closed = true
}
