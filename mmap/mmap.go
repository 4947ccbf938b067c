// Package mmap implements memory-mapped files (spec.md §4.5, component
// C5), layered entirely on top of package spt: a mapping is just a run
// of File-kind supplemental page table entries sharing a mapping id, so
// page faults against a mapped region are already handled by spt.Fault.
//
// Grounded on original_source's VM_FILE entries in vm/page.c, which
// model mmap the same way (a file-backed spte per page); the
// parallel-install step here is this repository's own addition, using
// golang.org/x/sync/errgroup to install a multi-page mapping's
// supplemental entries concurrently instead of one at a time.
package mmap

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"duskos/defs"
	"duskos/frame"
	"duskos/inode"
	"duskos/limits"
	"duskos/spt"
	"duskos/util"
)

// Region_t describes one live mapping.
type Region_t struct {
	ID       int
	Ino      *inode.Inode_t
	Vpn0     uintptr
	NumPages int
	Length   int
}

// Manager_t tracks a process's live mappings and installs/tears down
// their entries in the process's supplemental page table.
type Manager_t struct {
	mu      sync.Mutex
	nextID  int
	regions map[int]*Region_t
	table   *spt.Table_t
}

// MkManager creates a mapping manager over a process's SPT.
func MkManager(table *spt.Table_t) *Manager_t {
	return &Manager_t{regions: make(map[int]*Region_t), table: table}
}

// Mmap maps length bytes of ino starting at file offset 0 into the
// virtual page range starting at vpn0, returning a mapping id (spec.md
// §9's resolution: a monotonic per-manager counter, not derived from
// the number of live mappings, so ids stay unique across munmap/mmap
// churn). Fails with EINVAL if length is non-positive.
func (m *Manager_t) Mmap(ino *inode.Inode_t, vpn0 uintptr, length int) (int, error) {
	if length <= 0 {
		return 0, defs.EINVAL
	}
	n := util.CeilDiv(length, frame.PageSize)

	if !limits.Syslimit.Mappings.Take() {
		return 0, defs.ENOHEAP
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	var g errgroup.Group
	installed := make([]bool, n)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			off := i * frame.PageSize
			rb := frame.PageSize
			if off+rb > length {
				rb = length - off
			}
			err := m.table.Insert(&spt.Entry_t{
				Vpn:      vpn0 + uintptr(i),
				Kind:     spt.File,
				Writable: true,
				Src: spt.Source{
					Ino:       ino,
					Offset:    off,
					ReadBytes: rb,
					MappingID: id,
				},
			})
			installed[i] = err == nil
			return err
		})
	}
	if err := g.Wait(); err != nil {
		for i := 0; i < n; i++ {
			if installed[i] {
				m.table.Delete(vpn0 + uintptr(i))
			}
		}
		limits.Syslimit.Mappings.Give()
		return 0, err
	}

	r := &Region_t{ID: id, Ino: ino, Vpn0: vpn0, NumPages: n, Length: length}
	m.mu.Lock()
	m.regions[id] = r
	m.mu.Unlock()
	return id, nil
}

// Munmap tears down mapping id, writing every one of its pages back to
// the backing file (conservatively, regardless of dirty state; see
// spt.Table_t.WriteBack) and removing its supplemental entries.
func (m *Manager_t) Munmap(id int) error {
	m.mu.Lock()
	r, ok := m.regions[id]
	if ok {
		delete(m.regions, id)
	}
	m.mu.Unlock()
	if !ok {
		return defs.EINVAL
	}

	for i := 0; i < r.NumPages; i++ {
		vpn := r.Vpn0 + uintptr(i)
		_ = m.table.WriteBack(vpn)
		m.table.Delete(vpn)
	}
	limits.Syslimit.Mappings.Give()
	return nil
}

// DestroyAll tears down every live mapping without error propagation,
// used at process exit.
func (m *Manager_t) DestroyAll() {
	m.mu.Lock()
	ids := make([]int, 0, len(m.regions))
	for id := range m.regions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Munmap(id)
	}
}
