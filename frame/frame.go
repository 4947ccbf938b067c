// Package frame implements the physical-frame allocator spec.md §6 names
// as an external collaborator (frame_alloc/frame_free). It is grounded in
// the teacher's mem.Page_i interface shape (biscuit/src/mem/mem.go) with
// the x86 Pa_t/TLB-shootdown machinery stripped out: spec.md's own
// contract for this collaborator ("frame_alloc(flags) -> frame | none")
// is a software one, not a hardware one, so a fixed pool of byte slices
// stands in for physical RAM.
package frame

import "sync"

// PageSize is the size, in bytes, of a single physical frame.
const PageSize = 4096

// Flag selects allocation behavior, matching spec.md §6's USER/ZERO
// flags.
type Flag int

const (
	// USER selects the user pool (the only pool this allocator has).
	USER Flag = 1 << iota
	// ZERO zero-fills the frame on allocation.
	ZERO
)

// Frame_t is a physical frame: a fixed-size byte buffer plus the id the
// allocator uses to track it.
type Frame_t struct {
	ID   int
	Data []byte
}

// Pool_t is a fixed-size pool of physical frames, handed out by
// Alloc/freed by Free. It is a process-wide singleton, instantiated once
// at "boot" by whatever harness wires the subsystems together (spec.md
// §9's guidance to avoid ambient globals).
type Pool_t struct {
	mu    sync.Mutex
	free  []int
	inUse map[int]*Frame_t
	next  int
	cap   int
}

// MkPool allocates a pool capable of handing out up to n frames.
func MkPool(n int) *Pool_t {
	p := &Pool_t{inUse: make(map[int]*Frame_t), cap: n}
	return p
}

// Alloc returns a fresh frame, or ok=false if the pool is exhausted.
func (p *Pool_t) Alloc(flags Flag) (*Frame_t, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var id int
	if n := len(p.free); n > 0 {
		id = p.free[n-1]
		p.free = p.free[:n-1]
	} else if p.next < p.cap {
		id = p.next
		p.next++
	} else {
		return nil, false
	}
	f := &Frame_t{ID: id, Data: make([]byte, PageSize)}
	if flags&ZERO != 0 {
		for i := range f.Data {
			f.Data[i] = 0
		}
	}
	p.inUse[id] = f
	return f, true
}

// Free returns a frame to the pool.
func (p *Pool_t) Free(f *Frame_t) {
	if f == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, f.ID)
	p.free = append(p.free, f.ID)
}

// Used reports how many frames are currently allocated.
func (p *Pool_t) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// Cap reports the pool's total frame capacity.
func (p *Pool_t) Cap() int {
	return p.cap
}
