package heap

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/isolates/errors"
)

// PageSize is the size of one linear memory page.
const PageSize = 65536

const (
	minAlign = 8
	// Offset 0 is reserved so that a zero pointer never names a live block.
	baseOffset = 8
)

// Config holds configuration for heap creation
type Config struct {
	// Cache is shared between heaps so the memory module compiles once.
	// Nil uses the package-wide cache.
	Cache wazero.CompilationCache

	// InitialPages is the starting memory size in pages (64KB each). 0 means 1.
	InitialPages uint32

	// MaxPages caps memory growth. 0 means 256 pages (16MB).
	MaxPages uint32
}

var (
	sharedCache     wazero.CompilationCache
	sharedCacheOnce sync.Once
)

func defaultCache() wazero.CompilationCache {
	sharedCacheOnce.Do(func() {
		sharedCache = wazero.NewCompilationCache()
	})
	return sharedCache
}

type span struct {
	ptr  uint32
	size uint32
}

// Heap is an isolate-local allocator over wazero linear memory.
type Heap struct {
	runtime wazero.Runtime
	module  api.Module
	mem     api.Memory
	free    []span
	top     uint32
	inUse   uint32
	blocks  int
	max     uint32
	memMu   sync.RWMutex
	closed  atomic.Bool
}

// Stats describes heap usage
type Stats struct {
	InUse  uint32
	Blocks int
	Pages  uint32
	Free   int
}

// New creates a heap backed by a fresh wazero runtime.
func New(ctx context.Context, cfg Config) (*Heap, error) {
	initial := cfg.InitialPages
	if initial == 0 {
		initial = 1
	}
	maxPages := cfg.MaxPages
	if maxPages == 0 {
		maxPages = 256
	}
	if maxPages < initial {
		return nil, errors.InvalidInput(errors.PhaseHeap, "max pages below initial pages")
	}
	cache := cfg.Cache
	if cache == nil {
		cache = defaultCache()
	}

	runtimeCfg := wazero.NewRuntimeConfig().
		WithCompilationCache(cache).
		WithMemoryLimitPages(maxPages)
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	mod, err := rt.InstantiateWithConfig(ctx, memoryModule(initial, maxPages),
		wazero.NewModuleConfig().WithName("heap"))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseHeap, errors.KindAllocation, err, "instantiate memory module")
	}

	mem := mod.ExportedMemory("memory")
	if mem == nil {
		_ = rt.Close(ctx)
		return nil, errors.InvalidInput(errors.PhaseHeap, "memory module exports no memory")
	}

	return &Heap{
		runtime: rt,
		module:  mod,
		mem:     mem,
		top:     baseOffset,
		max:     maxPages,
	}, nil
}

// Alloc reserves size bytes aligned to align (at least 8).
// Must be called by the owning isolate.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if h.closed.Load() {
		return 0, errors.Closed(errors.PhaseHeap, "heap")
	}
	if size == 0 {
		return 0, errors.InvalidInput(errors.PhaseHeap, "zero-size allocation")
	}
	if align < minAlign {
		align = minAlign
	}
	size = alignUp(size, minAlign)

	for i, s := range h.free {
		ptr := alignUp(s.ptr, align)
		pad := ptr - s.ptr
		if s.size < pad+size {
			continue
		}
		h.takeFree(i, ptr, size)
		h.inUse += size
		h.blocks++
		return ptr, nil
	}

	ptr := alignUp(h.top, align)
	end := uint64(ptr) + uint64(size)
	if err := h.ensure(end); err != nil {
		return 0, err
	}
	if ptr > h.top {
		h.insertFree(span{ptr: h.top, size: ptr - h.top})
	}
	h.top = uint32(end)
	h.inUse += size
	h.blocks++
	return ptr, nil
}

// Free returns a block to the heap. Freeing on a closed heap is a no-op.
// Must be called by the owning isolate.
func (h *Heap) Free(ptr, size, align uint32) {
	if h.closed.Load() || ptr == 0 || size == 0 {
		return
	}
	size = alignUp(size, minAlign)
	h.inUse -= size
	h.blocks--
	h.insertFree(span{ptr: ptr, size: size})

	// Give the tail back to the bump pointer.
	if n := len(h.free); n > 0 {
		last := h.free[n-1]
		if last.ptr+last.size == h.top {
			h.top = last.ptr
			h.free = h.free[:n-1]
		}
	}
}

// Read copies length bytes at offset. Safe from any isolate.
func (h *Heap) Read(offset, length uint32) ([]byte, error) {
	if h.closed.Load() {
		return nil, errors.Closed(errors.PhaseHeap, "heap")
	}
	h.memMu.RLock()
	defer h.memMu.RUnlock()

	view, ok := h.mem.Read(offset, length)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseHeap, "read out of range")
	}
	out := make([]byte, length)
	copy(out, view)
	return out, nil
}

// Write stores data at offset.
func (h *Heap) Write(offset uint32, data []byte) error {
	if h.closed.Load() {
		return errors.Closed(errors.PhaseHeap, "heap")
	}
	h.memMu.RLock()
	defer h.memMu.RUnlock()

	if !h.mem.Write(offset, data) {
		return errors.InvalidInput(errors.PhaseHeap, "write out of range")
	}
	return nil
}

// ReadU64 reads a little-endian uint64 at offset.
func (h *Heap) ReadU64(offset uint32) (uint64, error) {
	if h.closed.Load() {
		return 0, errors.Closed(errors.PhaseHeap, "heap")
	}
	h.memMu.RLock()
	defer h.memMu.RUnlock()

	v, ok := h.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.InvalidInput(errors.PhaseHeap, "read out of range")
	}
	return v, nil
}

// WriteU64 writes a little-endian uint64 at offset.
func (h *Heap) WriteU64(offset uint32, value uint64) error {
	if h.closed.Load() {
		return errors.Closed(errors.PhaseHeap, "heap")
	}
	h.memMu.RLock()
	defer h.memMu.RUnlock()

	if !h.mem.WriteUint64Le(offset, value) {
		return errors.InvalidInput(errors.PhaseHeap, "write out of range")
	}
	return nil
}

// Size returns the current memory size in bytes.
func (h *Heap) Size() uint32 {
	if h.closed.Load() {
		return 0
	}
	h.memMu.RLock()
	defer h.memMu.RUnlock()
	return h.mem.Size()
}

// Stats returns a usage snapshot. Must be called by the owning isolate.
func (h *Heap) Stats() Stats {
	return Stats{
		InUse:  h.inUse,
		Blocks: h.blocks,
		Pages:  h.Size() / PageSize,
		Free:   len(h.free),
	}
}

// Closed reports whether the heap has been closed.
func (h *Heap) Closed() bool {
	return h.closed.Load()
}

// Close releases the wazero runtime and every block with it.
func (h *Heap) Close(ctx context.Context) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.memMu.Lock()
	defer h.memMu.Unlock()
	h.free = nil
	return h.runtime.Close(ctx)
}

// ensure grows memory so that [0, end) is addressable.
func (h *Heap) ensure(end uint64) error {
	h.memMu.Lock()
	defer h.memMu.Unlock()

	size := uint64(h.mem.Size())
	if end <= size {
		return nil
	}
	need := (end - size + PageSize - 1) / PageSize
	if size/PageSize+need > uint64(h.max) {
		return errors.AllocationFailed(errors.PhaseHeap, uint32(end-size), nil)
	}
	if _, ok := h.mem.Grow(uint32(need)); !ok {
		return errors.AllocationFailed(errors.PhaseHeap, uint32(end-size), nil)
	}
	return nil
}

// takeFree carves [ptr, ptr+size) out of free span i.
func (h *Heap) takeFree(i int, ptr, size uint32) {
	s := h.free[i]
	h.free = append(h.free[:i], h.free[i+1:]...)
	if ptr > s.ptr {
		h.insertFree(span{ptr: s.ptr, size: ptr - s.ptr})
	}
	if end, sEnd := ptr+size, s.ptr+s.size; sEnd > end {
		h.insertFree(span{ptr: end, size: sEnd - end})
	}
}

// insertFree adds a span keeping the list sorted and coalesced.
func (h *Heap) insertFree(s span) {
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].ptr >= s.ptr })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = s

	if i+1 < len(h.free) && h.free[i].ptr+h.free[i].size == h.free[i+1].ptr {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].ptr+h.free[i-1].size == h.free[i].ptr {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}
