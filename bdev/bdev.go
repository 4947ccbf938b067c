// Package bdev implements the block-device collaborator spec.md §6
// specifies (read/write/size, two device roles FILESYS and SWAP),
// adapted from the teacher's disk stand-in (biscuit/src/ufs/driver.go's
// ahci_disk_t), which backs a simulated disk with an *os.File.
package bdev

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"duskos/defs"
)

// SectorSize is the fixed block-device sector size spec.md §6 mandates.
const SectorSize = 512

// Disk_i is the block-device contract external to this repository's
// subsystems (spec.md §6).
type Disk_i interface {
	Role() defs.DeviceRole
	ReadSector(sector uint32, dst []byte) error
	WriteSector(sector uint32, src []byte) error
	Size() uint32 // sector count
	Sync() error
}

// FileDisk_t backs a Disk_i with a regular file, the same shape as the
// teacher's ahci_disk_t but driven with golang.org/x/sys/unix's
// positioned Pread/Pwrite instead of Seek+Read/Write, so concurrent
// sector accesses don't need to serialize on a shared file offset (the
// teacher's ahci_disk_t takes a mutex across Seek+I/O specifically to
// avoid that race; positioned I/O makes the mutex unnecessary).
type FileDisk_t struct {
	role  defs.DeviceRole
	f     *os.File
	nsecs uint32
	reads  int64
	writes int64
}

// OpenFileDisk opens (or creates, sized to nsectors) a file-backed disk
// image for the given role.
func OpenFileDisk(path string, role defs.DeviceRole, nsectors uint32) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("bdev: open %s: %w", path, err)
	}
	want := int64(nsectors) * SectorSize
	if fi, err := f.Stat(); err == nil && fi.Size() < want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, fmt.Errorf("bdev: truncate %s: %w", path, err)
		}
	}
	return &FileDisk_t{role: role, f: f, nsecs: nsectors}, nil
}

func (d *FileDisk_t) Role() defs.DeviceRole { return d.role }

func (d *FileDisk_t) Size() uint32 { return d.nsecs }

// ReadSector reads exactly SectorSize bytes from sector into dst.
func (d *FileDisk_t) ReadSector(sector uint32, dst []byte) error {
	if sector >= d.nsecs {
		return fmt.Errorf("bdev: sector %d out of range (%d sectors)", sector, d.nsecs)
	}
	if len(dst) != SectorSize {
		return fmt.Errorf("bdev: dst must be %d bytes", SectorSize)
	}
	n, err := unix.Pread(int(d.f.Fd()), dst, int64(sector)*SectorSize)
	if err != nil {
		return fmt.Errorf("bdev: pread sector %d: %w", sector, err)
	}
	if n != SectorSize {
		return fmt.Errorf("bdev: short read of sector %d: %d bytes", sector, n)
	}
	atomic.AddInt64(&d.reads, 1)
	return nil
}

// WriteSector writes exactly SectorSize bytes from src to sector.
func (d *FileDisk_t) WriteSector(sector uint32, src []byte) error {
	if sector >= d.nsecs {
		return fmt.Errorf("bdev: sector %d out of range (%d sectors)", sector, d.nsecs)
	}
	if len(src) != SectorSize {
		return fmt.Errorf("bdev: src must be %d bytes", SectorSize)
	}
	n, err := unix.Pwrite(int(d.f.Fd()), src, int64(sector)*SectorSize)
	if err != nil {
		return fmt.Errorf("bdev: pwrite sector %d: %w", sector, err)
	}
	if n != SectorSize {
		return fmt.Errorf("bdev: short write of sector %d: %d bytes", sector, n)
	}
	atomic.AddInt64(&d.writes, 1)
	return nil
}

// Sync flushes the backing file to stable storage.
func (d *FileDisk_t) Sync() error {
	return d.f.Sync()
}

// Close releases the backing file.
func (d *FileDisk_t) Close() error {
	return d.f.Close()
}

// Stats reports read/write counts, mirroring the teacher's Disk_i.Stats.
func (d *FileDisk_t) Stats() string {
	return fmt.Sprintf("%s: %d reads, %d writes", d.role, atomic.LoadInt64(&d.reads), atomic.LoadInt64(&d.writes))
}

// MemDisk_t is an in-memory Disk_i, used by tests that don't want to touch
// the filesystem.
type MemDisk_t struct {
	role  defs.DeviceRole
	sects [][SectorSize]byte
}

// MkMemDisk allocates an in-memory disk of nsectors sectors.
func MkMemDisk(role defs.DeviceRole, nsectors uint32) *MemDisk_t {
	return &MemDisk_t{role: role, sects: make([][SectorSize]byte, nsectors)}
}

func (d *MemDisk_t) Role() defs.DeviceRole { return d.role }
func (d *MemDisk_t) Size() uint32          { return uint32(len(d.sects)) }
func (d *MemDisk_t) Sync() error           { return nil }

func (d *MemDisk_t) ReadSector(sector uint32, dst []byte) error {
	if sector >= uint32(len(d.sects)) {
		return fmt.Errorf("bdev: sector %d out of range", sector)
	}
	copy(dst, d.sects[sector][:])
	return nil
}

func (d *MemDisk_t) WriteSector(sector uint32, src []byte) error {
	if sector >= uint32(len(d.sects)) {
		return fmt.Errorf("bdev: sector %d out of range", sector)
	}
	copy(d.sects[sector][:], src)
	return nil
}
