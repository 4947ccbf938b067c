// Package dir implements the directory and path-resolution layer
// (spec.md §4.3, component C3): directories are files whose data is an
// array of fixed-size entries, walked by the same inode.Inode_t
// read/write path every other file uses.
//
// Grounded on original_source/src/filesys/filesys.c's path-parsing and
// dir_add/dir_remove/dir_readdir logic, translated into the teacher's Go
// idiom (biscuit/src/fd/fd.go's Cwd_t/Fullpath/Canonicalpath shape for
// the resolver).
package dir

import (
	"encoding/binary"
	"fmt"

	"duskos/defs"
	"duskos/inode"
	"duskos/ustr"
)

// NameMax is the longest name a directory entry can hold, following
// pintos convention (spec.md leaves the exact bound to the
// implementation).
const NameMax = 14

// EntrySize is the on-disk size of one directory entry: 1 (InUse) + 15
// (Name, NameMax+1 for the trailing encoding byte) + 4 (Sector), padded
// to 32 so sectors hold a whole number of entries (16 per sector).
const EntrySize = 32

// EntriesPerSector is how many directory entries fit in one sector.
const EntriesPerSector = 512 / EntrySize

type rawEntry struct {
	inUse  bool
	name   [NameMax + 1]byte
	sector uint32
}

func (e *rawEntry) encode() [EntrySize]byte {
	var buf [EntrySize]byte
	if e.inUse {
		buf[0] = 1
	}
	copy(buf[1:1+len(e.name)], e.name[:])
	binary.LittleEndian.PutUint32(buf[1+len(e.name):], e.sector)
	return buf
}

func decodeEntry(buf []byte) rawEntry {
	var e rawEntry
	e.inUse = buf[0] != 0
	copy(e.name[:], buf[1:1+len(e.name)])
	e.sector = binary.LittleEndian.Uint32(buf[1+len(e.name):])
	return e
}

func nameBytes(name ustr.Ustr) ([NameMax + 1]byte, error) {
	var out [NameMax + 1]byte
	n := ustr.Normalize(name)
	if len(n) > NameMax {
		return out, defs.ENAMETOOLONG
	}
	copy(out[:], n)
	return out, nil
}

// Dir_t is an open directory: a thin wrapper over the inode that stores
// its entries.
type Dir_t struct {
	ino   *inode.Inode_t
	table *inode.Table_t
}

// Open opens the directory stored at sector.
func Open(table *inode.Table_t, sector uint32) (*Dir_t, error) {
	ino, err := table.Open(sector)
	if err != nil {
		return nil, err
	}
	if !ino.IsDir() {
		table.Close(ino)
		return nil, defs.ENOTDIR
	}
	return &Dir_t{ino: ino, table: table}, nil
}

// Close releases d's underlying inode.
func (d *Dir_t) Close() error { return d.table.Close(d.ino) }

// Sector returns the sector backing this directory's inode.
func (d *Dir_t) Sector() uint32 { return d.ino.Sector() }

func (d *Dir_t) forEachSlot(visit func(off int, e rawEntry) (stop bool)) error {
	length := int(d.ino.Length())
	buf := make([]byte, EntrySize)
	for off := 0; off+EntrySize <= length; off += EntrySize {
		n, err := d.ino.ReadAt(buf, off)
		if err != nil {
			return err
		}
		if n < EntrySize {
			break
		}
		if visit(off, decodeEntry(buf)) {
			return nil
		}
	}
	return nil
}

// Lookup finds name within d and returns its inode sector.
func (d *Dir_t) Lookup(name ustr.Ustr) (uint32, bool, error) {
	target, err := nameBytes(name)
	if err != nil {
		return 0, false, err
	}
	var found uint32
	var ok bool
	err = d.forEachSlot(func(_ int, e rawEntry) bool {
		if e.inUse && e.name == target {
			found, ok = e.sector, true
			return true
		}
		return false
	})
	return found, ok, err
}

// Add inserts a new entry (name -> sector) into d, reusing a free slot
// if one exists or appending otherwise. Fails with EEXIST if name is
// already present.
func (d *Dir_t) Add(name ustr.Ustr, sector uint32) error {
	target, err := nameBytes(name)
	if err != nil {
		return err
	}

	freeOff := -1
	exists := false
	err = d.forEachSlot(func(off int, e rawEntry) bool {
		if e.inUse && e.name == target {
			exists = true
			return true
		}
		if !e.inUse && freeOff < 0 {
			freeOff = off
		}
		return false
	})
	if err != nil {
		return err
	}
	if exists {
		return defs.EEXIST
	}

	entry := rawEntry{inUse: true, name: target, sector: sector}
	buf := entry.encode()
	off := freeOff
	if off < 0 {
		off = int(d.ino.Length())
	}
	_, err = d.ino.WriteAt(buf[:], off)
	return err
}

// Remove marks name's slot unused. It does not free the backing inode;
// callers are responsible for calling the inode table's removal path
// once the inode's open count allows it (matching
// original_source/src/filesys/inode.c's deferred-free semantics).
func (d *Dir_t) Remove(name ustr.Ustr) error {
	target, err := nameBytes(name)
	if err != nil {
		return err
	}
	removed := false
	var removeOff int
	err = d.forEachSlot(func(off int, e rawEntry) bool {
		if e.inUse && e.name == target {
			removeOff = off
			removed = true
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if !removed {
		return defs.ENOENT
	}
	var empty rawEntry
	buf := empty.encode()
	_, err = d.ino.WriteAt(buf[:], removeOff)
	return err
}

// IsEmpty reports whether d has no entries besides "." and "..", the
// precondition spec.md §4.3 requires before removing a directory.
func (d *Dir_t) IsEmpty() (bool, error) {
	empty := true
	err := d.forEachSlot(func(_ int, e rawEntry) bool {
		if !e.inUse {
			return false
		}
		n := trimName(e.name)
		if n.Isdot() || n.Isdotdot() {
			return false
		}
		empty = false
		return true
	})
	return empty, err
}

// Readdir returns the names of every in-use entry except "." and "..".
func (d *Dir_t) Readdir() ([]string, error) {
	var names []string
	err := d.forEachSlot(func(_ int, e rawEntry) bool {
		if !e.inUse {
			return false
		}
		n := trimName(e.name)
		if n.Isdot() || n.Isdotdot() {
			return false
		}
		names = append(names, n.String())
		return false
	})
	return names, err
}

func trimName(raw [NameMax + 1]byte) ustr.Ustr {
	i := 0
	for i < len(raw) && raw[i] != 0 {
		i++
	}
	return ustr.Ustr(raw[:i])
}

// MkRoot formats sector as an empty root directory by adding "." and
// ".." entries that both point at sector itself. The directory inode at
// sector must already exist (see inode.Create); MkRoot does not create it.
func MkRoot(table *inode.Table_t, sector uint32) error {
	return populateSelfParent(table, sector, sector)
}

// MkSubdir populates the directory inode at sector with "." (itself) and
// ".." (parent), and links it into parent under name. The inode at sector
// must already exist as a directory (see inode.Create); MkSubdir does not
// create it.
func MkSubdir(table *inode.Table_t, parent *Dir_t, name ustr.Ustr, sector uint32) error {
	if err := populateSelfParent(table, sector, parent.Sector()); err != nil {
		return err
	}
	return parent.Add(name, sector)
}

func populateSelfParent(table *inode.Table_t, sector, parentSector uint32) error {
	d, err := Open(table, sector)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Add(ustr.MkUstrDot(), sector); err != nil {
		return err
	}
	return d.Add(ustr.DotDot, parentSector)
}

// ResolveParent walks every token of path except the last, starting
// from root if path is absolute or cwd otherwise, and returns the
// opened containing directory plus the final path component. Used by
// create/open/remove/mkdir, all of which operate in terms of
// (containing dir, leaf name). Matches original_source/src/filesys/
// filesys.c's path-parsing split between directory and base name.
func ResolveParent(table *inode.Table_t, rootSector uint32, cwd *Dir_t, path ustr.Ustr) (*Dir_t, ustr.Ustr, error) {
	if len(path) == 0 {
		return nil, nil, defs.EINVAL
	}
	toks := path.Tokens()

	startSector := cwd.Sector()
	if path.IsAbsolute() {
		startSector = rootSector
	}
	cur, err := Open(table, startSector)
	if err != nil {
		return nil, nil, err
	}

	if len(toks) == 0 {
		// A path with no components (e.g. "/") names the start
		// directory itself; original_source/src/filesys/filesys.c's
		// path_parsing returns "." as the leaf name in this case.
		return cur, ustr.MkUstrDot(), nil
	}

	for _, t := range toks[:len(toks)-1] {
		next, err := stepInto(table, cur, t)
		if err != nil {
			cur.Close()
			return nil, nil, err
		}
		cur.Close()
		cur = next
	}
	return cur, toks[len(toks)-1], nil
}

// Resolve walks every token of path and returns the final sector and
// whether it names a directory.
func Resolve(table *inode.Table_t, rootSector uint32, cwd *Dir_t, path ustr.Ustr) (uint32, bool, error) {
	if len(path) == 0 {
		return 0, false, defs.EINVAL
	}
	toks := path.Tokens()
	startSector := cwd.Sector()
	if path.IsAbsolute() {
		startSector = rootSector
	}
	if len(toks) == 0 {
		return startSector, true, nil
	}

	cur, err := Open(table, startSector)
	if err != nil {
		return 0, false, err
	}
	defer cur.Close()

	var lastSector uint32 = startSector
	var lastIsDir = true
	for i, t := range toks {
		sector, ok, err := cur.Lookup(t)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, defs.ENOENT
		}
		lastSector = sector
		if i == len(toks)-1 {
			ino, err := table.Open(sector)
			if err != nil {
				return 0, false, err
			}
			lastIsDir = ino.IsDir()
			table.Close(ino)
			break
		}
		next, err := Open(table, sector)
		if err != nil {
			return 0, false, err
		}
		cur.Close()
		cur = next
	}
	return lastSector, lastIsDir, nil
}

func stepInto(table *inode.Table_t, cur *Dir_t, tok ustr.Ustr) (*Dir_t, error) {
	if tok.Isdot() {
		return Open(table, cur.Sector())
	}
	sector, ok, err := cur.Lookup(tok)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, defs.ENOENT
	}
	next, err := Open(table, sector)
	if err != nil {
		return nil, fmt.Errorf("dir: resolve %q: %w", tok.String(), err)
	}
	return next, nil
}
