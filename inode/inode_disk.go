// Package inode implements the indexed on-disk inode layer (spec.md §4.2,
// component C2): direct/indirect/double-indirect block pointers, inode
// creation and growth, and the open-inode table that lets every open file
// descriptor on the same sector share one in-memory inode.
//
// Grounded on original_source/src/filesys/inode.c (byte_to_sector,
// inode_create, inode_open/close/read_at/write_at, free_inode,
// grow_inode_disk), translated into the teacher's naming idiom
// (biscuit/src/fs/super.go's field-accessor pattern for the on-disk
// struct).
package inode

import (
	"encoding/binary"
	"fmt"

	"duskos/cache"
	"duskos/freemap"
)

const (
	// DirectCount is the number of direct block pointers stored in an
	// inode, sized so InodeDisk serializes to exactly one 512-byte sector.
	DirectCount = 123
	// PtrsPerBlock is how many uint32 sector pointers fit in one sector,
	// used for both the indirect and double-indirect blocks.
	PtrsPerBlock = cache.SectorSize / 4
	// Magic tags a sector as a valid on-disk inode.
	Magic = 0x494e4f44

	// MaxSectors is the largest file size, in sectors, this layout can
	// address: direct + indirect + double-indirect.
	MaxSectors = DirectCount + PtrsPerBlock + PtrsPerBlock*PtrsPerBlock
)

// InodeDisk is the on-disk inode layout. It is bit-exact to 512 bytes:
// 4 (IsDir) + 4 (Length) + 4 (Magic) + 123*4 (Direct) + 4 (Indirect) +
// 4 (DIndirect) == 512.
type InodeDisk struct {
	IsDir     bool
	Length    int32
	Direct    [DirectCount]uint32
	Indirect  uint32
	DIndirect uint32
}

func (d *InodeDisk) encode() [cache.SectorSize]byte {
	var buf [cache.SectorSize]byte
	off := 0
	putBool := func(b bool) {
		v := uint32(0)
		if b {
			v = 1
		}
		binary.LittleEndian.PutUint32(buf[off:], v)
		off += 4
	}
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[off:], v)
		off += 4
	}
	putI32 := func(v int32) {
		binary.LittleEndian.PutUint32(buf[off:], uint32(v))
		off += 4
	}
	putBool(d.IsDir)
	putI32(d.Length)
	putU32(Magic)
	for _, s := range d.Direct {
		putU32(s)
	}
	putU32(d.Indirect)
	putU32(d.DIndirect)
	return buf
}

func decodeInodeDisk(buf []byte) (*InodeDisk, error) {
	if len(buf) != cache.SectorSize {
		return nil, fmt.Errorf("inode: decode: need %d bytes, got %d", cache.SectorSize, len(buf))
	}
	off := 0
	getU32 := func() uint32 {
		v := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		return v
	}
	d := &InodeDisk{}
	d.IsDir = getU32() != 0
	d.Length = int32(getU32())
	magic := getU32()
	if magic != Magic {
		return nil, fmt.Errorf("inode: bad magic %#x", magic)
	}
	for i := range d.Direct {
		d.Direct[i] = getU32()
	}
	d.Indirect = getU32()
	d.DIndirect = getU32()
	return d, nil
}

func readInodeDisk(c *cache.Cache_t, sector uint32) (*InodeDisk, error) {
	var buf [cache.SectorSize]byte
	if err := c.Read(sector, buf[:], 0, cache.SectorSize, 0); err != nil {
		return nil, err
	}
	return decodeInodeDisk(buf[:])
}

func writeInodeDisk(c *cache.Cache_t, sector uint32, d *InodeDisk) error {
	buf := d.encode()
	return c.Write(sector, buf[:], 0, cache.SectorSize, 0)
}

func readPtrBlock(c *cache.Cache_t, sector uint32) ([]uint32, error) {
	var buf [cache.SectorSize]byte
	if err := c.Read(sector, buf[:], 0, cache.SectorSize, 0); err != nil {
		return nil, err
	}
	out := make([]uint32, PtrsPerBlock)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out, nil
}

func writePtrBlock(c *cache.Cache_t, sector uint32, ptrs []uint32) error {
	var buf [cache.SectorSize]byte
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(buf[i*4:], p)
	}
	return c.Write(sector, buf[:], 0, cache.SectorSize, 0)
}

// bytesToSectors rounds a byte length up to a sector count.
func bytesToSectors(length int32) int {
	if length <= 0 {
		return 0
	}
	return (int(length) + cache.SectorSize - 1) / cache.SectorSize
}

// sectorAtIndex returns the sector id backing block index idx (0-based)
// of d, or 0 if idx exceeds d's currently allocated extent. allocate, if
// non-nil, is used to allocate indirect/double-indirect index blocks and
// direct entries lazily, growing d in place; when allocate is nil the
// call is read-only and a zero return means "not yet allocated".
func sectorAtIndex(d *InodeDisk, idx int, c *cache.Cache_t, fm *freemap.FreeMap_t) (uint32, error) {
	switch {
	case idx < DirectCount:
		if d.Direct[idx] == 0 {
			if fm == nil {
				return 0, nil
			}
			s, ok := fm.Allocate(1)
			if !ok {
				return 0, fmt.Errorf("inode: freemap exhausted")
			}
			if err := zeroSector(c, s); err != nil {
				return 0, err
			}
			d.Direct[idx] = s
		}
		return d.Direct[idx], nil

	case idx < DirectCount+PtrsPerBlock:
		rel := idx - DirectCount
		if d.Indirect == 0 {
			if fm == nil {
				return 0, nil
			}
			s, ok := fm.Allocate(1)
			if !ok {
				return 0, fmt.Errorf("inode: freemap exhausted")
			}
			if err := zeroSector(c, s); err != nil {
				return 0, err
			}
			d.Indirect = s
		}
		ptrs, err := readPtrBlock(c, d.Indirect)
		if err != nil {
			return 0, err
		}
		if ptrs[rel] == 0 {
			if fm == nil {
				return 0, nil
			}
			s, ok := fm.Allocate(1)
			if !ok {
				return 0, fmt.Errorf("inode: freemap exhausted")
			}
			if err := zeroSector(c, s); err != nil {
				return 0, err
			}
			ptrs[rel] = s
			if err := writePtrBlock(c, d.Indirect, ptrs); err != nil {
				return 0, err
			}
		}
		return ptrs[rel], nil

	case idx < DirectCount+PtrsPerBlock+PtrsPerBlock*PtrsPerBlock:
		rel := idx - DirectCount - PtrsPerBlock
		outer := rel / PtrsPerBlock
		inner := rel % PtrsPerBlock
		if d.DIndirect == 0 {
			if fm == nil {
				return 0, nil
			}
			s, ok := fm.Allocate(1)
			if !ok {
				return 0, fmt.Errorf("inode: freemap exhausted")
			}
			if err := zeroSector(c, s); err != nil {
				return 0, err
			}
			d.DIndirect = s
		}
		outerPtrs, err := readPtrBlock(c, d.DIndirect)
		if err != nil {
			return 0, err
		}
		if outerPtrs[outer] == 0 {
			if fm == nil {
				return 0, nil
			}
			s, ok := fm.Allocate(1)
			if !ok {
				return 0, fmt.Errorf("inode: freemap exhausted")
			}
			if err := zeroSector(c, s); err != nil {
				return 0, err
			}
			outerPtrs[outer] = s
			if err := writePtrBlock(c, d.DIndirect, outerPtrs); err != nil {
				return 0, err
			}
		}
		innerPtrs, err := readPtrBlock(c, outerPtrs[outer])
		if err != nil {
			return 0, err
		}
		if innerPtrs[inner] == 0 {
			if fm == nil {
				return 0, nil
			}
			s, ok := fm.Allocate(1)
			if !ok {
				return 0, fmt.Errorf("inode: freemap exhausted")
			}
			if err := zeroSector(c, s); err != nil {
				return 0, err
			}
			innerPtrs[inner] = s
			if err := writePtrBlock(c, outerPtrs[outer], innerPtrs); err != nil {
				return 0, err
			}
		}
		return innerPtrs[inner], nil

	default:
		return 0, fmt.Errorf("inode: block index %d exceeds max file size", idx)
	}
}

func zeroSector(c *cache.Cache_t, sector uint32) error {
	var zero [cache.SectorSize]byte
	return c.Write(sector, zero[:], 0, cache.SectorSize, 0)
}

// byteToSector maps a byte offset within d to a sector id, allocating
// along the way when fm is non-nil (the write-growth path).
func byteToSector(d *InodeDisk, pos int, c *cache.Cache_t, fm *freemap.FreeMap_t) (uint32, error) {
	idx := pos / cache.SectorSize
	return sectorAtIndex(d, idx, c, fm)
}

// growInodeDisk extends d, allocating whatever direct/indirect/
// double-indirect blocks are needed so that every sector up to
// newLength is backed, and updates d.Length. Sectors are zero-filled on
// allocation so reads past old EOF but within the new length see zeros,
// per spec.md §4.2's hole semantics.
func growInodeDisk(d *InodeDisk, newLength int32, c *cache.Cache_t, fm *freemap.FreeMap_t) error {
	if newLength <= d.Length {
		return nil
	}
	oldSectors := bytesToSectors(d.Length)
	newSectors := bytesToSectors(newLength)
	for idx := oldSectors; idx < newSectors; idx++ {
		if _, err := sectorAtIndex(d, idx, c, fm); err != nil {
			return err
		}
	}
	d.Length = newLength
	return nil
}

// freeInode releases every sector d occupies (data + index blocks) back
// to fm. Partial failures are not rolled back, matching
// original_source/src/filesys/inode.c's free_inode, which never
// recovers from a mid-free allocator error either.
func freeInode(d *InodeDisk, c *cache.Cache_t, fm *freemap.FreeMap_t) {
	nsec := bytesToSectors(d.Length)

	for idx := 0; idx < nsec && idx < DirectCount; idx++ {
		if d.Direct[idx] != 0 {
			fm.Release(d.Direct[idx], 1)
		}
	}

	if d.Indirect != 0 {
		if ptrs, err := readPtrBlock(c, d.Indirect); err == nil {
			for i, p := range ptrs {
				if p == 0 {
					continue
				}
				if idx := DirectCount + i; idx >= nsec {
					break
				}
				fm.Release(p, 1)
			}
		}
		fm.Release(d.Indirect, 1)
	}

	if d.DIndirect != 0 {
		if outer, err := readPtrBlock(c, d.DIndirect); err == nil {
			for o, outerSec := range outer {
				if outerSec == 0 {
					continue
				}
				if inner, err := readPtrBlock(c, outerSec); err == nil {
					for i, p := range inner {
						if p == 0 {
							continue
						}
						idx := DirectCount + PtrsPerBlock + o*PtrsPerBlock + i
						if idx >= nsec {
							break
						}
						fm.Release(p, 1)
					}
				}
				fm.Release(outerSec, 1)
			}
		}
		fm.Release(d.DIndirect, 1)
	}
}
