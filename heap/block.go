package heap

// Block is a live allocation in a Heap.
type Block struct {
	heap *Heap
	Ptr  uint32
	Size uint32
}

// AllocBlock allocates size bytes. Must be called by the owning isolate.
func (h *Heap) AllocBlock(size uint32) (Block, error) {
	ptr, err := h.Alloc(size, minAlign)
	if err != nil {
		return Block{}, err
	}
	return Block{heap: h, Ptr: ptr, Size: size}, nil
}

// Heap returns the heap the block was allocated from.
func (b Block) Heap() *Heap {
	return b.heap
}

// IsZero reports whether the block names no allocation.
func (b Block) IsZero() bool {
	return b.heap == nil || b.Ptr == 0
}

// Bytes copies the block contents.
func (b Block) Bytes() ([]byte, error) {
	if b.IsZero() {
		return nil, nil
	}
	return b.heap.Read(b.Ptr, b.Size)
}

// Write stores data at the start of the block.
func (b Block) Write(data []byte) error {
	if len(data) > int(b.Size) {
		data = data[:b.Size]
	}
	return b.heap.Write(b.Ptr, data)
}

// Free returns the block to its heap. Must run on the owning isolate.
func (b Block) Free() {
	if b.IsZero() {
		return
	}
	b.heap.Free(b.Ptr, b.Size, minAlign)
}
