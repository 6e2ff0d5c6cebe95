package isolates

// Memory is the byte-addressed storage behind an isolate's heap
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU64(offset uint32) (uint64, error)
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of an isolate's memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory owned by a single isolate.
// Free must run on the owning isolate.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
