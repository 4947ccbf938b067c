// Package swap implements the swap area (spec.md §4.4's eviction target):
// a bitmap-indexed block device where each slot holds one physical
// frame's worth of data, spread across SectorsPerSlot contiguous sectors.
//
// Grounded on original_source/src/vm/swap.c's swap_init/swap_out/
// swap_in (one bitmap bit per page-sized slot, 8 sectors per page),
// translated into the teacher's naming idiom.
package swap

import (
	"fmt"
	"sync"

	"duskos/bdev"
	"duskos/frame"
)

// SectorsPerSlot is how many device sectors one swap slot occupies:
// frame.PageSize (4096) / bdev.SectorSize (512) == 8, matching
// original_source's PAGE_SECTOR_CNT.
const SectorsPerSlot = frame.PageSize / bdev.SectorSize

// SlotID identifies one swap slot.
type SlotID int

// NoSlot marks the absence of a swap slot (spec.md §4.4's SptEntry.
// SwapIdx "not swapped" sentinel).
const NoSlot SlotID = -1

// Swap_t manages the swap device's slot bitmap.
type Swap_t struct {
	mu    sync.Mutex
	used  []bool
	disk  bdev.Disk_i
	slots int
}

// MkSwap initializes a swap area over disk, which must have role
// defs.SWAP. The slot count is derived from the device's sector count.
func MkSwap(disk bdev.Disk_i) *Swap_t {
	slots := int(disk.Size()) / SectorsPerSlot
	return &Swap_t{disk: disk, used: make([]bool, slots), slots: slots}
}

// Out writes one page (frame.PageSize bytes) to a free slot and returns
// its id, marking the slot used. Fails if the swap device is full,
// matching original_source's PANIC("swap_out: no free swap slot") made
// into a recoverable error instead of a kernel panic (spec.md §9's
// general stance: the boundary layer terminates the offending process,
// not the kernel).
func (s *Swap_t) Out(page []byte) (SlotID, error) {
	if len(page) != frame.PageSize {
		return NoSlot, fmt.Errorf("swap: page must be %d bytes", frame.PageSize)
	}
	s.mu.Lock()
	idx := -1
	for i, u := range s.used {
		if !u {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return NoSlot, fmt.Errorf("swap: device full")
	}
	s.used[idx] = true
	s.mu.Unlock()

	base := uint32(idx * SectorsPerSlot)
	for i := 0; i < SectorsPerSlot; i++ {
		off := i * bdev.SectorSize
		if err := s.disk.WriteSector(base+uint32(i), page[off:off+bdev.SectorSize]); err != nil {
			return NoSlot, fmt.Errorf("swap: write slot %d: %w", idx, err)
		}
	}
	return SlotID(idx), nil
}

// In reads slot back into page (which must be frame.PageSize bytes) and
// frees the slot.
func (s *Swap_t) In(slot SlotID, page []byte) error {
	if len(page) != frame.PageSize {
		return fmt.Errorf("swap: page must be %d bytes", frame.PageSize)
	}
	if int(slot) < 0 || int(slot) >= s.slots {
		return fmt.Errorf("swap: slot %d out of range", slot)
	}

	base := uint32(int(slot) * SectorsPerSlot)
	for i := 0; i < SectorsPerSlot; i++ {
		off := i * bdev.SectorSize
		if err := s.disk.ReadSector(base+uint32(i), page[off:off+bdev.SectorSize]); err != nil {
			return fmt.Errorf("swap: read slot %d: %w", slot, err)
		}
	}

	s.mu.Lock()
	s.used[slot] = false
	s.mu.Unlock()
	return nil
}

// Free releases slot without reading it back, used when a page is
// discarded rather than faulted back in (e.g. process exit).
func (s *Swap_t) Free(slot SlotID) {
	if slot == NoSlot {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(slot) >= 0 && int(slot) < s.slots {
		s.used[slot] = false
	}
}

// Capacity reports the total number of swap slots.
func (s *Swap_t) Capacity() int { return s.slots }
