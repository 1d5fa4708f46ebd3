package process

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrHeapFull is returned by Heap.Alloc when the arena has no room left.
var ErrHeapFull = errors.New("process: heap exhausted")

// block is one allocation record in a Heap's free-list, identified by its
// offset into the arena.
type block struct {
	offset int
	size   int
	free   bool
}

// Allocation is a live carve-out of a Heap's arena, returned by Alloc and
// consumed by Release.
type Allocation struct {
	Bytes  []byte
	offset int
}

// Heap is a bounded first-fit allocator over a fixed []byte arena,
// standing in for the PSRAM carve-out a real BadgeVMS process is given at
// spawn. It exists so process code can simulate "out of memory" and
// fragmentation-sensitive behavior without the host's own heap getting
// involved.
type Heap struct {
	mu     sync.Mutex
	arena  []byte
	blocks []block
}

// NewHeap allocates an arena of size bytes. size must be positive.
func NewHeap(size int) (*Heap, error) {
	if size <= 0 {
		return nil, errors.New("process: heap size must be positive")
	}
	return &Heap{
		arena:  make([]byte, size),
		blocks: []block{{offset: 0, size: size, free: true}},
	}, nil
}

// Size returns the heap's total arena size.
func (h *Heap) Size() int {
	return len(h.arena)
}

// Free reports the number of bytes available across all free blocks.
func (h *Heap) Free() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, b := range h.blocks {
		if b.free {
			total += b.size
		}
	}
	return total
}

// Alloc carves n bytes out of the first free block large enough to hold
// them (first-fit). Requests for zero or negative bytes are rejected.
// Running out of room returns ErrHeapFull.
func (h *Heap) Alloc(n int) (*Allocation, error) {
	if n <= 0 {
		return nil, errors.New("process: alloc size must be positive")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, b := range h.blocks {
		if !b.free || b.size < n {
			continue
		}

		h.blocks[i].size = n
		h.blocks[i].free = false
		if b.size > n {
			rest := block{offset: b.offset + n, size: b.size - n, free: true}
			h.blocks = append(h.blocks, block{})
			copy(h.blocks[i+2:], h.blocks[i+1:])
			h.blocks[i+1] = rest
		}
		return &Allocation{
			Bytes:  h.arena[b.offset : b.offset+n : b.offset+n],
			offset: b.offset,
		}, nil
	}

	free := 0
	for _, b := range h.blocks {
		if b.free {
			free += b.size
		}
	}
	return nil, errors.Wrapf(ErrHeapFull, "requested %d of %d free", n, free)
}

// Release returns a previously allocated block to the free list, coalescing
// with its neighbors. Releasing nil or an already-released allocation is a
// no-op.
func (h *Heap) Release(a *Allocation) {
	if a == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.blocks {
		if h.blocks[i].offset == a.offset && !h.blocks[i].free {
			h.blocks[i].free = true
			h.coalesce()
			return
		}
	}
}

// coalesce merges adjacent free blocks in offset order; callers hold h.mu.
func (h *Heap) coalesce() {
	merged := h.blocks[:0]
	for _, b := range h.blocks {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.free && b.free && last.offset+last.size == b.offset {
				last.size += b.size
				continue
			}
		}
		merged = append(merged, b)
	}
	h.blocks = merged
}
