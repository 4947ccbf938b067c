// Package fs ties together the buffer cache, free-map, inode table, and
// directory layer into the top-level file system the rest of the
// kernel mounts (spec.md §2's full component stack, C1 through C3).
//
// Grounded on the teacher's ufs.Ufs_t (biscuit/src/ufs/ufs.go), which
// plays the same "glue layer wrapping fs.Fs_t + a disk + a cwd"
// role, though this repository's Fs_t owns the subsystems directly
// instead of wrapping a pre-existing one.
package fs

import (
	"fmt"

	"github.com/google/uuid"

	"duskos/bdev"
	"duskos/cache"
	"duskos/defs"
	"duskos/dir"
	"duskos/freemap"
	"duskos/inode"
	"duskos/ustr"
	"duskos/util"
)

// Fixed sector layout: sector 0 is reserved for a boot block, sector 1
// holds the root directory's inode, and the free-map bitmap starts at
// sector 2 and runs for as many sectors as it needs.
const (
	BootSector   uint32 = 0
	RootSector   uint32 = 1
	BitmapStart  uint32 = 2
)

// Fs_t is the mounted file system: cache, free-map, and open-inode
// table over one block device.
type Fs_t struct {
	Cache   *cache.Cache_t
	FreeMap *freemap.FreeMap_t
	Inodes  *inode.Table_t
	disk    bdev.Disk_i

	// MountID correlates log lines across a single mount's lifetime
	// (spec.md §9's suggestion to give ambient logging something to key
	// on beyond a raw pointer address).
	MountID uuid.UUID
}

func bitmapSectors(totalSectors int) int {
	bits := (totalSectors + 7) / 8
	return util.CeilDiv(bits, cache.SectorSize)
}

// Format initializes a fresh file system on disk: an empty root
// directory and an all-free free-map with the boot/root/bitmap sectors
// pre-marked allocated.
func Format(disk bdev.Disk_i, cacheSlots int) (*Fs_t, error) {
	if disk.Role() != defs.FILESYS {
		return nil, fmt.Errorf("fs: format: device role must be FILESYS")
	}
	c := cache.MkCache(disk, cacheSlots)
	total := int(disk.Size())
	fm := freemap.MkFreeMap(c, BitmapStart, total)

	reserved := int(BitmapStart) + bitmapSectors(total)
	fm.Mark(0, reserved)

	if err := inode.Create(c, fm, RootSector, 0, true); err != nil {
		return nil, fmt.Errorf("fs: format: create root inode: %w", err)
	}
	itab := inode.MkTable(c, fm)
	if err := dir.MkRoot(itab, RootSector); err != nil {
		return nil, fmt.Errorf("fs: format: populate root: %w", err)
	}
	if err := c.ShutdownFlush(); err != nil {
		return nil, fmt.Errorf("fs: format: flush: %w", err)
	}

	return &Fs_t{Cache: c, FreeMap: fm, Inodes: itab, disk: disk, MountID: uuid.New()}, nil
}

// StartFS mounts an already-formatted file system.
func StartFS(disk bdev.Disk_i, cacheSlots int) (*Fs_t, error) {
	if disk.Role() != defs.FILESYS {
		return nil, fmt.Errorf("fs: start: device role must be FILESYS")
	}
	c := cache.MkCache(disk, cacheSlots)
	total := int(disk.Size())
	fm, err := freemap.LoadFreeMap(c, BitmapStart, total)
	if err != nil {
		return nil, fmt.Errorf("fs: start: load free-map: %w", err)
	}
	itab := inode.MkTable(c, fm)
	return &Fs_t{Cache: c, FreeMap: fm, Inodes: itab, disk: disk, MountID: uuid.New()}, nil
}

// RootDir opens the root directory.
func (fs *Fs_t) RootDir() (*dir.Dir_t, error) {
	return dir.Open(fs.Inodes, RootSector)
}

// Create makes a new file (or, if isDir, directory) named by path
// relative to cwd, returning its inode sector.
func (fs *Fs_t) Create(cwd *dir.Dir_t, path ustr.Ustr, isDir bool) (uint32, error) {
	parent, leaf, err := dir.ResolveParent(fs.Inodes, RootSector, cwd, path)
	if err != nil {
		return 0, err
	}
	defer parent.Close()

	if _, ok, err := parent.Lookup(leaf); err != nil {
		return 0, err
	} else if ok {
		return 0, defs.EEXIST
	}

	sector, ok := fs.FreeMap.Allocate(1)
	if !ok {
		return 0, defs.ENOSPC
	}
	if err := inode.Create(fs.Cache, fs.FreeMap, sector, 0, isDir); err != nil {
		fs.FreeMap.Release(sector, 1)
		return 0, err
	}

	if isDir {
		if err := dir.MkSubdir(fs.Inodes, parent, leaf, sector); err != nil {
			fs.FreeMap.Release(sector, 1)
			return 0, err
		}
	} else if err := parent.Add(leaf, sector); err != nil {
		fs.FreeMap.Release(sector, 1)
		return 0, err
	}
	return sector, nil
}

// Open resolves path relative to cwd and returns its open inode plus
// whether it names a directory.
func (fs *Fs_t) Open(cwd *dir.Dir_t, path ustr.Ustr) (*inode.Inode_t, bool, error) {
	sector, isDir, err := dir.Resolve(fs.Inodes, RootSector, cwd, path)
	if err != nil {
		return nil, false, err
	}
	ino, err := fs.Inodes.Open(sector)
	if err != nil {
		return nil, false, err
	}
	return ino, isDir, nil
}

// Remove unlinks path relative to cwd. A directory may only be removed
// if it contains nothing but "." and "..".
func (fs *Fs_t) Remove(cwd *dir.Dir_t, path ustr.Ustr) error {
	parent, leaf, err := dir.ResolveParent(fs.Inodes, RootSector, cwd, path)
	if err != nil {
		return err
	}
	defer parent.Close()

	sector, ok, err := parent.Lookup(leaf)
	if err != nil {
		return err
	}
	if !ok {
		return defs.ENOENT
	}

	ino, err := fs.Inodes.Open(sector)
	if err != nil {
		return err
	}

	if ino.IsDir() {
		d, err := dir.Open(fs.Inodes, sector)
		if err != nil {
			fs.Inodes.Close(ino)
			return err
		}
		empty, err := d.IsEmpty()
		d.Close()
		if err != nil {
			fs.Inodes.Close(ino)
			return err
		}
		if !empty {
			fs.Inodes.Close(ino)
			return defs.ENOTEMPTY
		}
	}

	if err := parent.Remove(leaf); err != nil {
		fs.Inodes.Close(ino)
		return err
	}
	ino.Remove()
	return fs.Inodes.Close(ino)
}

// Stat returns path's length and whether it names a directory.
func (fs *Fs_t) Stat(cwd *dir.Dir_t, path ustr.Ustr) (int32, bool, error) {
	sector, isDir, err := dir.Resolve(fs.Inodes, RootSector, cwd, path)
	if err != nil {
		return 0, false, err
	}
	ino, err := fs.Inodes.Open(sector)
	if err != nil {
		return 0, false, err
	}
	defer fs.Inodes.Close(ino)
	return ino.Length(), isDir, nil
}

// Shutdown flushes every dirty cache entry back to disk.
func (fs *Fs_t) Shutdown() error {
	return fs.Cache.ShutdownFlush()
}
