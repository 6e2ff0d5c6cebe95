package heap

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/wippyai/isolates/errors"
)

func newTestHeap(t *testing.T, cfg Config) *Heap {
	t.Helper()
	h, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new heap: %v", err)
	}
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h
}

func TestHeap_AllocWriteRead(t *testing.T) {
	h := newTestHeap(t, Config{})

	data := []byte("hello, isolate")
	blk, err := h.AllocBlock(uint32(len(data)))
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if blk.IsZero() {
		t.Fatal("expected non-zero block")
	}
	if err := blk.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := blk.Bytes()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}

	// Returned bytes are a copy.
	got[0] = 'X'
	again, _ := blk.Bytes()
	if again[0] != 'h' {
		t.Fatal("Bytes must return a copy")
	}

	if s := h.Stats(); s.Blocks != 1 || s.InUse != 16 {
		t.Fatalf("unexpected stats: %+v", s)
	}

	blk.Free()
	if s := h.Stats(); s.Blocks != 0 || s.InUse != 0 {
		t.Fatalf("unexpected stats after free: %+v", s)
	}
}

func TestHeap_ReuseFreedSpace(t *testing.T) {
	h := newTestHeap(t, Config{})

	a, _ := h.AllocBlock(32)
	b, _ := h.AllocBlock(32)
	c, _ := h.AllocBlock(32)

	b.Free()
	d, err := h.AllocBlock(24)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if d.Ptr != b.Ptr {
		t.Fatalf("expected reuse of freed block at %d, got %d", b.Ptr, d.Ptr)
	}

	a.Free()
	c.Free()
	d.Free()
	if s := h.Stats(); s.Blocks != 0 || s.Free != 0 {
		t.Fatalf("heap should be empty and coalesced: %+v", s)
	}
}

func TestHeap_Grow(t *testing.T) {
	h := newTestHeap(t, Config{InitialPages: 1, MaxPages: 4})

	blk, err := h.AllocBlock(PageSize * 2)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if h.Size() < PageSize*3 {
		t.Fatalf("expected memory to grow, size=%d", h.Size())
	}
	blk.Free()
}

func TestHeap_Exhausted(t *testing.T) {
	h := newTestHeap(t, Config{InitialPages: 1, MaxPages: 1})

	_, err := h.AllocBlock(PageSize * 2)
	if err == nil {
		t.Fatal("expected allocation failure")
	}
	if !errors.IsKind(err, errors.KindAllocation) {
		t.Fatalf("expected allocation error, got %v", err)
	}
}

func TestHeap_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Config{InitialPages: 8, MaxPages: 2})
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestHeap_ZeroSize(t *testing.T) {
	h := newTestHeap(t, Config{})
	if _, err := h.Alloc(0, 8); err == nil {
		t.Fatal("expected zero-size allocation to fail")
	}
}

func TestHeap_U64(t *testing.T) {
	h := newTestHeap(t, Config{})

	ptr, err := h.Alloc(8, 8)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := h.WriteU64(ptr, 0xdeadbeefcafe); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, err := h.ReadU64(ptr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v != 0xdeadbeefcafe {
		t.Fatalf("got %x", v)
	}
}

func TestHeap_Closed(t *testing.T) {
	h, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	blk, _ := h.AllocBlock(8)

	if err := h.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !h.Closed() {
		t.Fatal("expected closed")
	}
	// Second close is a no-op.
	if err := h.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}

	blk.Free() // no-op, must not panic
	if _, err := blk.Bytes(); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if _, err := h.AllocBlock(8); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestHeap_ConcurrentReaders(t *testing.T) {
	h := newTestHeap(t, Config{MaxPages: 16})

	blk, _ := h.AllocBlock(4)
	_ = blk.Write([]byte("abcd"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := blk.Bytes()
				if err != nil || string(got) != "abcd" {
					t.Errorf("read %q, %v", got, err)
					return
				}
			}
		}()
	}

	// The owner keeps growing memory while others read.
	for i := 0; i < 8; i++ {
		if _, err := h.AllocBlock(PageSize); err != nil {
			t.Fatalf("alloc: %v", err)
		}
	}
	wg.Wait()
}

func TestMemoryModule(t *testing.T) {
	bin := memoryModule(1, 300)
	if !bytes.HasPrefix(bin, []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}) {
		t.Fatal("missing wasm header")
	}
	// 300 encodes as two LEB128 bytes.
	if !bytes.Contains(bin, []byte{0xac, 0x02}) {
		t.Fatalf("max pages not LEB128 encoded: %x", bin)
	}
}
