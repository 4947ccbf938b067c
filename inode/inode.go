package inode

import (
	"fmt"
	"sync"

	"duskos/cache"
	"duskos/defs"
	"duskos/freemap"
	"duskos/hashtable"
	"duskos/limits"
)

// Inode_t is the in-memory running inode, shared by every open file
// descriptor that refers to the same sector (original_source's struct
// inode, open_inodes list). A copy of the on-disk layout is cached here
// so repeated reads of metadata (length, isdir) don't require a cache
// round trip for fields already in hand.
type Inode_t struct {
	mu             sync.Mutex
	sector         uint32
	disk           *InodeDisk
	openCount      int
	removed        bool
	denyWriteCount int

	c  *cache.Cache_t
	fm *freemap.FreeMap_t
}

// Table_t is the open-inode table (original_source's open_inodes list),
// keyed by sector id so that every opener of the same file shares one
// Inode_t and therefore one removed/deny-write state.
type Table_t struct {
	mu sync.Mutex
	ht *hashtable.Hashtable_t
	c  *cache.Cache_t
	fm *freemap.FreeMap_t
}

// MkTable creates an empty open-inode table over the given cache and
// free map.
func MkTable(c *cache.Cache_t, fm *freemap.FreeMap_t) *Table_t {
	return &Table_t{ht: hashtable.MkHash(64), c: c, fm: fm}
}

// Create allocates a fresh inode at sector holding an empty file (or
// directory, if isDir) of the given length, per
// original_source/src/filesys/inode.c's inode_create.
func Create(c *cache.Cache_t, fm *freemap.FreeMap_t, sector uint32, length int32, isDir bool) error {
	d := &InodeDisk{IsDir: isDir}
	if err := growInodeDisk(d, length, c, fm); err != nil {
		return err
	}
	return writeInodeDisk(c, sector, d)
}

// Open returns the shared in-memory inode for sector, reading it from
// disk on first open. Each call increments the open count; pair with
// Close.
func (t *Table_t) Open(sector uint32) (*Inode_t, error) {
	t.mu.Lock()
	if v, ok := t.ht.Get(int(sector)); ok {
		ino := v.(*Inode_t)
		t.mu.Unlock()
		ino.mu.Lock()
		ino.openCount++
		ino.mu.Unlock()
		return ino, nil
	}
	t.mu.Unlock()

	// A brand-new open-inode-table entry draws against the system-wide
	// vnode budget (package limits); a re-open of an already-resident
	// entry, handled above, does not.
	if !limits.Syslimit.Vnodes.Take() {
		return nil, defs.ENOHEAP
	}

	d, err := readInodeDisk(t.c, sector)
	if err != nil {
		limits.Syslimit.Vnodes.Give()
		return nil, fmt.Errorf("inode: open sector %d: %w", sector, err)
	}
	ino := &Inode_t{sector: sector, disk: d, openCount: 1, c: t.c, fm: t.fm}

	t.mu.Lock()
	if v, ok := t.ht.Get(int(sector)); ok {
		// Lost a race with another opener; adopt theirs and drop ours.
		existing := v.(*Inode_t)
		t.mu.Unlock()
		limits.Syslimit.Vnodes.Give()
		existing.mu.Lock()
		existing.openCount++
		existing.mu.Unlock()
		return existing, nil
	}
	t.ht.Set(int(sector), ino)
	t.mu.Unlock()
	return ino, nil
}

// Close decrements ino's open count. Once the count reaches zero it drops
// ino from the table and returns its vnode budget unit; if ino has also
// been marked removed, it releases the inode's data and index sectors and
// the inode sector itself, per original_source's inode_close.
func (t *Table_t) Close(ino *Inode_t) error {
	ino.mu.Lock()
	ino.openCount--
	doFree := ino.openCount == 0 && ino.removed
	sector := ino.sector
	disk := ino.disk
	ino.mu.Unlock()

	if ino.openCount > 0 {
		return nil
	}

	t.mu.Lock()
	t.ht.Del(int(sector))
	t.mu.Unlock()
	limits.Syslimit.Vnodes.Give()

	if doFree {
		freeInode(disk, t.c, t.fm)
		t.fm.Release(sector, 1)
	}
	return nil
}

// Sector returns ino's backing sector id, used as the stable file
// identity (spec.md §4.2: "a file's inode sector number is its stable
// identity across renames").
func (ino *Inode_t) Sector() uint32 { return ino.sector }

// Length returns the file's current length in bytes.
func (ino *Inode_t) Length() int32 {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.disk.Length
}

// IsDir reports whether ino names a directory.
func (ino *Inode_t) IsDir() bool {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.disk.IsDir
}

// Remove marks ino for deletion once its open count drops to zero.
func (ino *Inode_t) Remove() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.removed = true
}

// Removed reports whether ino has been marked for deletion.
func (ino *Inode_t) Removed() bool {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.removed
}

// DenyWrite increments the deny-write count, used to implement
// "executables can't be modified while running" (original_source's
// deny_write semantics as exposed through spec.md's data-change
// collaborator contract).
func (ino *Inode_t) DenyWrite() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.denyWriteCount++
}

// AllowWrite undoes one DenyWrite.
func (ino *Inode_t) AllowWrite() {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	if ino.denyWriteCount > 0 {
		ino.denyWriteCount--
	}
}

func (ino *Inode_t) writeDenied() bool {
	return ino.denyWriteCount > 0
}

// ReadAt reads len(dst) bytes starting at offset, returning the number
// of bytes actually read (short of len(dst) at EOF), per
// original_source's inode_read_at.
func (ino *Inode_t) ReadAt(dst []byte, offset int) (int, error) {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	if offset >= int(ino.disk.Length) {
		return 0, nil
	}
	want := len(dst)
	if offset+want > int(ino.disk.Length) {
		want = int(ino.disk.Length) - offset
	}
	n := 0
	for n < want {
		sectorOff := offset % cache.SectorSize
		chunk := cache.SectorSize - sectorOff
		if chunk > want-n {
			chunk = want - n
		}
		sec, err := byteToSector(ino.disk, offset, ino.c, nil)
		if err != nil {
			return n, err
		}
		if sec == 0 {
			for i := 0; i < chunk; i++ {
				dst[n+i] = 0
			}
		} else if err := ino.c.Read(sec, dst, n, chunk, sectorOff); err != nil {
			return n, err
		}
		n += chunk
		offset += chunk
	}
	return n, nil
}

// WriteAt writes src at offset, growing the file (and zero-filling any
// hole) if offset+len(src) exceeds the current length. Returns the
// number of bytes written. Fails with EPERM if a writer holds a deny
// set via DenyWrite (original_source's ASSERT against writing a
// deny_write_cnt > 0 file).
func (ino *Inode_t) WriteAt(src []byte, offset int) (int, error) {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	if ino.writeDenied() {
		return 0, defs.EPERM
	}

	end := offset + len(src)
	if end > int(ino.disk.Length) {
		if err := growInodeDisk(ino.disk, int32(end), ino.c, ino.fm); err != nil {
			return 0, err
		}
		if err := writeInodeDisk(ino.c, ino.sector, ino.disk); err != nil {
			return 0, err
		}
	}

	n := 0
	for n < len(src) {
		sectorOff := offset % cache.SectorSize
		chunk := cache.SectorSize - sectorOff
		if chunk > len(src)-n {
			chunk = len(src) - n
		}
		sec, err := byteToSector(ino.disk, offset, ino.c, ino.fm)
		if err != nil {
			return n, err
		}
		if err := ino.c.Write(sec, src, n, chunk, sectorOff); err != nil {
			return n, err
		}
		n += chunk
		offset += chunk
	}
	return n, nil
}
