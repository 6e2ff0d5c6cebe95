// Package heap provides the per-isolate allocator.
//
// Every isolate allocates shared payloads (byte buffers, text, boxed floats)
// from its own Heap, a first-fit allocator over the linear memory of a
// memory-only WebAssembly module instantiated in a private wazero runtime.
// The allocation bookkeeping belongs to the owning isolate: Alloc and Free
// must only be called by the thread currently holding that isolate. Reads
// are safe from any isolate, which is what lets a destination isolate
// reconstruct a value straight out of the owner's memory.
//
//	h, err := heap.New(ctx, heap.Config{InitialPages: 1, MaxPages: 64})
//	blk, err := h.AllocBlock(uint32(len(data)))
//	err = blk.Write(data)
//	copied, err := blk.Bytes()
//	blk.Free() // owner only
package heap
