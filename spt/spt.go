// Package spt implements the supplemental page table and demand-paging
// fault handler (spec.md §4.4, component C4): one SptEntry per virtual
// page a process has mapped, backed by an executable, a memory-mapped
// file, or anonymous (swap-backed) storage.
//
// Grounded on original_source/src/vm/page.c's spt_entry/spt_init/
// insert_spte/delete_spte/find_spt_entry/fault_handler, translated into
// the teacher's idiom (biscuit/src/vm/as.go's Sys_pgfault for the
// fault-dispatch shape, with the x86 PTE/TLB machinery stripped out per
// frame's doc comment: spec.md's collaborator contract for frame_alloc/
// install_mapping is a software one).
package spt

import (
	"fmt"
	"sync"

	"duskos/defs"
	"duskos/frame"
	"duskos/hashtable"
	"duskos/inode"
	"duskos/swap"
)

// Kind distinguishes the three page origins original_source's
// VM_BIN/VM_FILE/VM_ANON enumerate.
type Kind int

const (
	// Bin pages are loaded once from an executable and are re-creatable
	// from that source, so they are never written to swap: eviction just
	// discards them.
	Bin Kind = iota
	// File pages back a memory-mapped file (component C5) and are
	// written back to the file, not swap, when dirty and evicted.
	File
	// Anon pages have no backing store but swap: stack and heap.
	Anon
)

// Source describes where a Bin or File page's initial (or evicted-back)
// contents live.
type Source struct {
	Ino       *inode.Inode_t
	Offset    int
	ReadBytes int // bytes to read from Ino; remainder is zero-filled
	MappingID int // C5's handle, used by mmap to target write-back
}

// Entry_t is one page's supplemental metadata.
type Entry_t struct {
	Vpn      uintptr
	Kind     Kind
	Writable bool
	Pinned   bool // excluded from eviction (e.g. syscall buffer in use)

	present bool
	dirty   bool
	frame   *frame.Frame_t
	slot    swap.SlotID

	Src Source
}

// Table_t is one process's supplemental page table.
type Table_t struct {
	mu    sync.Mutex
	ht    *hashtable.Hashtable_t
	pool  *frame.Pool_t
	sw    *swap.Swap_t
	owner defs.Pid_t
	hand  int
	order []uintptr // clock order, parallel to ht for eviction scanning
}

// MkTable creates an empty SPT for owner, drawing frames from pool and
// swap slots from sw.
func MkTable(owner defs.Pid_t, pool *frame.Pool_t, sw *swap.Swap_t) *Table_t {
	return &Table_t{ht: hashtable.MkHash(64), pool: pool, sw: sw, owner: owner}
}

// Owner returns the pid t was created for, the back-reference spec.md
// §3's SptEntry.owner names. Used to enrich fault/eviction errors so a
// frame shortage can be attributed to the process that hit it.
func (t *Table_t) Owner() defs.Pid_t { return t.owner }

func vpnKey(vpn uintptr) int { return int(vpn) }

// Insert adds a not-yet-resident entry to the table (original_source's
// insert_spte), failing if vpn is already mapped.
func (t *Table_t) Insert(e *Entry_t) error {
	e.slot = swap.NoSlot
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ht.Set(vpnKey(e.Vpn), e) {
		return fmt.Errorf("spt: vpn %#x already mapped", e.Vpn)
	}
	t.order = append(t.order, e.Vpn)
	return nil
}

// Find returns the entry for vpn, if any (original_source's
// find_spt_entry). The bool distinguishes "no entry" from "entry exists
// but its page isn't resident" — spec.md §9 calls out this ambiguity
// explicitly; Find always returns ok=true for a present-but-absent
// entry, and callers must inspect Resident() separately.
func (t *Table_t) Find(vpn uintptr) (*Entry_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.ht.Get(vpnKey(vpn))
	if !ok {
		return nil, false
	}
	return v.(*Entry_t), true
}

// Resident reports whether e currently occupies a physical frame.
func (e *Entry_t) Resident() bool { return e.present }

// Frame returns e's backing frame, or nil if not resident.
func (e *Entry_t) Frame() *frame.Frame_t { return e.frame }

// Delete removes vpn's entry, releasing its frame or swap slot.
// original_source's delete_spte; does not write back a dirty File page,
// since that is mmap's responsibility (munmap/process-exit call
// WriteBack first).
func (t *Table_t) Delete(vpn uintptr) {
	t.mu.Lock()
	v, ok := t.ht.Get(vpnKey(vpn))
	if !ok {
		t.mu.Unlock()
		return
	}
	e := v.(*Entry_t)
	t.ht.Del(vpnKey(vpn))
	for i, o := range t.order {
		if o == vpn {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	if e.frame != nil {
		t.pool.Free(e.frame)
	}
	if e.slot != swap.NoSlot {
		t.sw.Free(e.slot)
	}
}

// Destroy tears down every entry in t (original_source's spt_destroy),
// used at process exit.
func (t *Table_t) Destroy() {
	t.mu.Lock()
	vpns := append([]uintptr(nil), t.order...)
	t.mu.Unlock()
	for _, vpn := range vpns {
		t.Delete(vpn)
	}
}

// loadInto fills frm's data for e, reading from e.Src if Bin/File and
// zero-filling the remainder, or zero-filling entirely for Anon.
func loadInto(e *Entry_t, frm *frame.Frame_t) error {
	for i := range frm.Data {
		frm.Data[i] = 0
	}
	if e.Kind == Anon {
		return nil
	}
	if e.Src.Ino == nil || e.Src.ReadBytes <= 0 {
		return nil
	}
	n, err := e.Src.Ino.ReadAt(frm.Data[:e.Src.ReadBytes], e.Src.Offset)
	if err != nil {
		return fmt.Errorf("spt: load vpn %#x: %w", e.Vpn, err)
	}
	if n < e.Src.ReadBytes {
		return fmt.Errorf("spt: short read loading vpn %#x: got %d want %d", e.Vpn, n, e.Src.ReadBytes)
	}
	return nil
}

// Fault implements the page-fault policy (spec.md §4.4): look up the
// faulting page, bring it in from its backing source or from swap, and
// return the resident frame. If no entry exists, the caller must decide
// separately (via a stack-growth check) whether to install a fresh
// anonymous page before calling Fault again; Fault itself never invents
// an entry for an address it has never seen.
func (t *Table_t) Fault(vpn uintptr, forWrite bool) (*frame.Frame_t, error) {
	t.mu.Lock()
	v, ok := t.ht.Get(vpnKey(vpn))
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("spt: no supplemental entry for vpn %#x (pid %d)", vpn, t.owner)
	}
	e := v.(*Entry_t)

	if forWrite && !e.Writable {
		return nil, defs.EPERM
	}
	if e.present {
		e.dirty = e.dirty || forWrite
		return e.frame, nil
	}

	frm, ok := t.pool.Alloc(frame.USER)
	if !ok {
		frm, ok = t.evictOne()
		if !ok {
			return nil, fmt.Errorf("spt: out of frames (pid %d)", t.owner)
		}
	}

	if e.slot != swap.NoSlot {
		if err := t.sw.In(e.slot, frm.Data); err != nil {
			t.pool.Free(frm)
			return nil, err
		}
		e.slot = swap.NoSlot
	} else if err := loadInto(e, frm); err != nil {
		t.pool.Free(frm)
		return nil, err
	}

	e.frame = frm
	e.present = true
	e.dirty = e.dirty || forWrite
	return frm, nil
}

// evictOne advances a clock hand over t's entries in insertion order and
// takes the first resident, non-pinned one (no reference bit is kept, so
// a recently used page is not skipped), writes the victim out (to swap for Anon, to its file for a
// dirty File page, nowhere for a clean Bin/File page), and returns its
// now-free frame for reuse.
func (t *Table_t) evictOne() (*frame.Frame_t, bool) {
	t.mu.Lock()
	n := len(t.order)
	if n == 0 {
		t.mu.Unlock()
		return nil, false
	}
	var victim *Entry_t
	for i := 0; i < 2*n; i++ {
		vpn := t.order[t.hand%n]
		t.hand = (t.hand + 1) % n
		v, ok := t.ht.Get(vpnKey(vpn))
		if !ok {
			continue
		}
		e := v.(*Entry_t)
		if !e.present || e.Pinned {
			continue
		}
		victim = e
		break
	}
	t.mu.Unlock()
	if victim == nil {
		return nil, false
	}

	if err := writeBackLocked(t, victim); err != nil {
		return nil, false
	}
	frm := victim.frame
	victim.frame = nil
	victim.present = false
	victim.dirty = false
	return frm, true
}

func writeBackLocked(t *Table_t, e *Entry_t) error {
	switch e.Kind {
	case Anon:
		slot, err := t.sw.Out(e.frame.Data)
		if err != nil {
			return err
		}
		e.slot = slot
	case File:
		if e.dirty && e.Src.Ino != nil {
			if _, err := e.Src.Ino.WriteAt(e.frame.Data[:e.Src.ReadBytes], e.Src.Offset); err != nil {
				return err
			}
		}
	case Bin:
		// Discarded; re-loadable from the executable's backing file.
	}
	return nil
}

// WriteBack flushes a resident File-kind entry back to its backing
// inode without evicting it, used by mmap's munmap path. It writes
// unconditionally rather than trusting the dirty bit: spec.md §9 leaves
// munmap's dirty-tracking granularity open, and this repository resolves
// that by always writing back on unmap rather than risking a missed
// write from an under-tracked dirty bit (see DESIGN.md).
func (t *Table_t) WriteBack(vpn uintptr) error {
	t.mu.Lock()
	v, ok := t.ht.Get(vpnKey(vpn))
	t.mu.Unlock()
	if !ok {
		return nil
	}
	e := v.(*Entry_t)
	if e.Kind != File || !e.present {
		return nil
	}
	if e.Src.Ino == nil {
		return nil
	}
	_, err := e.Src.Ino.WriteAt(e.frame.Data[:e.Src.ReadBytes], e.Src.Offset)
	return err
}
