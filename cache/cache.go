// Package cache implements the sector-level buffer cache (spec.md §4.1,
// component C1): a fixed-size table of sectors over a block device with
// clock-hand replacement and write-back on eviction.
//
// Grounded on original_source/src/filesys/buffer_cache.c for exact
// lookup/admission/clock semantics, translated into the teacher's Go
// idiom (biscuit/src/fs/blk.go's Bdev_block_t for naming, mutex
// embedding, and the Disk_i collaborator shape).
package cache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"duskos/bdev"
	"duskos/stats"
)

// SectorSize matches bdev.SectorSize; redeclared so callers that only
// import cache don't also need bdev.
const SectorSize = bdev.SectorSize

// DefaultSlots is the table size spec.md §8's boundary test exercises
// ("cache with 64 slots, 65 distinct sectors").
const DefaultSlots = 64

// entry_t is a single cache slot. busy marks a slot mid eviction/admission
// (victim chosen, device I/O not yet complete): such a slot is excluded
// from both lookup and further victim selection.
type entry_t struct {
	valid     bool
	reference bool
	dirty     bool
	busy      bool
	sectorID  uint32
	data      [SectorSize]byte
}

// Stats_t are the cache's exported counters (spec.md §2's "buffer cache"
// row), read through stats.Stats2String/Snapshot.
type Stats_t struct {
	Hits      stats.Counter_t
	Misses    stats.Counter_t
	Evictions stats.Counter_t
	Writebacks stats.Counter_t
}

// Cache_t is the process-wide buffer cache singleton (spec.md §9: model
// subsystem-wide state as one instance owned by a top-level context, not
// an ambient global).
type Cache_t struct {
	mu      sync.Mutex
	entries []entry_t
	hand    int
	disk    bdev.Disk_i
	sf      singleflight.Group
	Stats   Stats_t
}

// MkCache allocates a cache of nslots entries over disk.
func MkCache(disk bdev.Disk_i, nslots int) *Cache_t {
	if nslots <= 0 {
		nslots = DefaultSlots
	}
	return &Cache_t{entries: make([]entry_t, nslots), disk: disk}
}

func (c *Cache_t) lookupLocked(sector uint32) *entry_t {
	for i := range c.entries {
		e := &c.entries[i]
		if e.valid && !e.busy && e.sectorID == sector {
			return e
		}
	}
	return nil
}

// selectVictimLocked advances the clock hand until it finds a non-busy
// slot with reference==false, clearing reference bits along the way. At
// most one full lap is required for termination, per spec.md §4.1.
func (c *Cache_t) selectVictimLocked() *entry_t {
	n := len(c.entries)
	for i := 0; i < 2*n; i++ {
		e := &c.entries[c.hand]
		idx := c.hand
		c.hand = (c.hand + 1) % n
		if c.entries[idx].busy {
			continue
		}
		if e.reference {
			e.reference = false
			continue
		}
		return e
	}
	return nil
}

// fetch returns the resident entry for sector, reading it from disk on a
// miss. Concurrent misses for the same sector are coalesced through a
// singleflight.Group keyed by sector id, which is the fix spec.md §4.1's
// concurrency note calls for ("the lookup/admission race... must remain
// impossible").
func (c *Cache_t) fetch(sector uint32) (*entry_t, error) {
	c.mu.Lock()
	if e := c.lookupLocked(sector); e != nil {
		e.reference = true
		c.mu.Unlock()
		c.Stats.Hits.Inc()
		return e, nil
	}
	c.mu.Unlock()
	c.Stats.Misses.Inc()

	key := fmt.Sprintf("%d", sector)
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		if e := c.lookupLocked(sector); e != nil {
			// Another caller admitted it while we were forming the
			// singleflight key.
			e.reference = true
			c.mu.Unlock()
			return e, nil
		}
		var victim *entry_t
		for victim == nil {
			victim = c.selectVictimLocked()
			if victim == nil {
				// All slots busy; release and retry. In practice this
				// only happens under heavy concurrent admission storms.
				c.mu.Unlock()
				c.mu.Lock()
			}
		}
		victim.busy = true
		wasValid := victim.valid
		writeback := victim.dirty
		wbSector := victim.sectorID
		wbData := victim.data
		c.mu.Unlock()

		if writeback {
			if err := c.disk.WriteSector(wbSector, wbData[:]); err != nil {
				c.mu.Lock()
				victim.busy = false
				c.mu.Unlock()
				return nil, err
			}
			c.Stats.Writebacks.Inc()
		}
		if wasValid {
			// Only a slot that already held another sector counts as an
			// eviction; admitting a sector into a never-used slot is just
			// a cold fill.
			c.Stats.Evictions.Inc()
		}

		var buf [SectorSize]byte
		if err := c.disk.ReadSector(sector, buf[:]); err != nil {
			c.mu.Lock()
			victim.busy = false
			c.mu.Unlock()
			return nil, err
		}

		c.mu.Lock()
		victim.valid = true
		victim.dirty = false
		victim.reference = true
		victim.busy = false
		victim.sectorID = sector
		victim.data = buf
		c.mu.Unlock()
		return victim, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry_t), nil
}

func checkBounds(secOff, ln int) error {
	if secOff < 0 || ln < 0 || secOff+ln > SectorSize {
		return fmt.Errorf("cache: out-of-bounds sector access (off=%d len=%d)", secOff, ln)
	}
	return nil
}

// Read copies len bytes from sector[secOff:secOff+len] into
// dst[dstOff:dstOff+len].
func (c *Cache_t) Read(sector uint32, dst []byte, dstOff, ln, secOff int) error {
	if err := checkBounds(secOff, ln); err != nil {
		return err
	}
	e, err := c.fetch(sector)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e.reference = true
	copy(dst[dstOff:dstOff+ln], e.data[secOff:secOff+ln])
	return nil
}

// Write copies len bytes from src[srcOff:srcOff+len] into
// sector[secOff:secOff+len] and marks the slot dirty.
func (c *Cache_t) Write(sector uint32, src []byte, srcOff, ln, secOff int) error {
	if err := checkBounds(secOff, ln); err != nil {
		return err
	}
	e, err := c.fetch(sector)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e.reference = true
	e.dirty = true
	copy(e.data[secOff:secOff+ln], src[srcOff:srcOff+ln])
	return nil
}

// flushLocked writes slot e back to disk if it is valid and dirty,
// clearing the dirty bit on success. Called with c.mu held, by
// FlushSector (one slot, looked up by sector id) and ShutdownFlush
// (every slot).
func (c *Cache_t) flushLocked(e *entry_t) error {
	if !e.valid || !e.dirty {
		return nil
	}
	if err := c.disk.WriteSector(e.sectorID, e.data[:]); err != nil {
		return err
	}
	e.dirty = false
	c.Stats.Writebacks.Inc()
	return nil
}

// FlushSector flushes the entry holding sector, if resident and dirty.
func (c *Cache_t) FlushSector(sector uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookupLocked(sector)
	if e == nil {
		return nil
	}
	return c.flushLocked(e)
}

// String renders c's hit/miss/eviction/writeback counters, matching the
// teacher's convention of a Stats2String method on subsystems that carry
// a Stats_t (biscuit/src/stats/stats.go's callers).
func (c *Cache_t) String() string {
	return stats.Stats2String(&c.Stats)
}

// ShutdownFlush flushes every valid, dirty entry, matching spec.md
// §4.1's shutdown_flush.
func (c *Cache_t) ShutdownFlush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if err := c.flushLocked(&c.entries[i]); err != nil {
			return err
		}
	}
	return nil
}
