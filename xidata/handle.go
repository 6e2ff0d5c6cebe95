package xidata

import (
	"sync/atomic"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/heap"
	"github.com/wippyai/isolates/isolate"
)

// NoOwner marks a handle whose owning isolate is unset.
const NoOwner int64 = -1

// NewObjectFunc rebuilds a live value from a handle in the current isolate.
type NewObjectFunc func(h *Handle) (any, error)

// FreeFunc destroys a payload. It runs on the owning isolate.
type FreeFunc func(data any) error

// Handle is the portable form of a value produced in one isolate and
// reconstructed in another. A handle has a single holder; it is released
// exactly once and may be reconstructed any number of times before that.
type Handle struct {
	// Data is the payload: an inline scalar, a heap.Block in the owner's heap, or nil.
	Data any
	// Obj optionally retains the original value.
	Obj any
	// Free destroys Data. Nil means there is nothing to destroy.
	Free FreeFunc
	// NewObject is required; a handle without it is invalid.
	NewObject NewObjectFunc
	Owner     int64
	kind      string
	released  atomic.Bool
}

// Init populates h for the thread's current isolate with an inline payload.
func (h *Handle) Init(th *isolate.Thread, data, obj any, newObject NewObjectFunc) {
	h.Owner = NoOwner
	if iso := th.Isolate(); iso != nil {
		h.Owner = iso.ID()
	}
	h.Data = data
	h.Obj = obj
	h.Free = nil
	h.NewObject = newObject
	h.released.Store(false)
}

// InitWithSize populates h with a fresh block of size bytes in the current
// isolate's heap. The block is freed on release.
func (h *Handle) InitWithSize(th *isolate.Thread, size uint32, obj any, newObject NewObjectFunc) (heap.Block, error) {
	iso := th.Isolate()
	if iso == nil {
		return heap.Block{}, errors.InvalidInput(errors.PhaseProduce, "thread is not executing in an isolate")
	}
	h.Init(th, nil, obj, newObject)
	if size == 0 {
		return heap.Block{}, nil
	}

	block, err := iso.Heap().AllocBlock(size)
	if err != nil {
		return heap.Block{}, err
	}
	h.Data = block
	h.Free = freeBlock
	return block, nil
}

func freeBlock(data any) error {
	if b, ok := data.(heap.Block); ok {
		b.Free()
	}
	return nil
}

// Kind returns the name of the type the handle was produced from.
func (h *Handle) Kind() string {
	return h.kind
}

// Block returns the payload when it lives in a heap.
func (h *Handle) Block() (heap.Block, bool) {
	b, ok := h.Data.(heap.Block)
	return b, ok
}

// Validate reports whether h is usable.
func (h *Handle) Validate() error {
	if h == nil {
		return errors.InvalidHandle(errors.PhaseReconstruct, "nil handle")
	}
	if h.NewObject == nil {
		return errors.InvalidHandle(errors.PhaseProduce, "missing reconstruct function")
	}
	if h.Owner < 0 {
		return errors.InvalidHandle(errors.PhaseProduce, "unset owning isolate")
	}
	return nil
}

// NewValue reconstructs a fresh value from h.
func (h *Handle) NewValue() (any, error) {
	if h == nil || h.NewObject == nil {
		return nil, errors.InvalidHandle(errors.PhaseReconstruct, "missing reconstruct function")
	}
	return h.NewObject(h)
}

// HasValue reports whether h still carries a payload or retained value.
func (h *Handle) HasValue() bool {
	return h.Data != nil || h.Obj != nil
}

// Released reports whether h has been handed to a release.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// Clear destroys the payload and drops the retained value.
// It must run on the owning isolate.
func (h *Handle) Clear() error {
	var err error
	if h.Free != nil && h.Data != nil {
		err = h.Free(h.Data)
	}
	h.discard()
	return err
}

// discard drops the payload without destroying it.
func (h *Handle) discard() {
	h.Data = nil
	h.Obj = nil
	h.Free = nil
}

// reset returns h to its unset state.
func (h *Handle) reset() {
	h.discard()
	h.Owner = NoOwner
	h.NewObject = nil
}

// needsOwner reports whether releasing h must run on its owner.
func (h *Handle) needsOwner() bool {
	if h.Data == nil && h.Obj == nil {
		return false
	}
	return h.Free != nil
}
