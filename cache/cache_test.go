package cache

import (
	"bytes"
	"sync"
	"testing"

	"duskos/bdev"
	"duskos/defs"
)

func TestReadWriteRoundTrip(t *testing.T) {
	disk := bdev.MkMemDisk(defs.FILESYS, 16)
	c := MkCache(disk, 4)

	src := bytes.Repeat([]byte{0xAB}, SectorSize)
	if err := c.Write(3, src, 0, SectorSize, 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst := make([]byte, SectorSize)
	if err := c.Read(3, dst, 0, SectorSize, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(src, dst) {
		t.Fatalf("round trip mismatch")
	}
}

func TestEvictionWritesBackDirtySlot(t *testing.T) {
	disk := bdev.MkMemDisk(defs.FILESYS, 16)
	c := MkCache(disk, 2)

	a := bytes.Repeat([]byte{1}, SectorSize)
	b := bytes.Repeat([]byte{2}, SectorSize)
	d := bytes.Repeat([]byte{3}, SectorSize)

	if err := c.Write(0, a, 0, SectorSize, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Write(1, b, 0, SectorSize, 0); err != nil {
		t.Fatal(err)
	}
	// Both slots full and referenced; a third distinct sector forces an
	// eviction and, since both resident slots are dirty, a write-back.
	if err := c.Write(2, d, 0, SectorSize, 0); err != nil {
		t.Fatal(err)
	}

	raw := make([]byte, SectorSize)
	if err := disk.ReadSector(0, raw); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, a) {
		// sector 0 wasn't the victim; verify sector 1 was written back
		// instead, confirming the evicted slot was flushed either way.
		if err := disk.ReadSector(1, raw); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(raw, b) {
			t.Fatalf("neither dirty sector reached disk before eviction completed")
		}
	}
}

func TestConcurrentMissesOnSameSectorCoalesce(t *testing.T) {
	disk := bdev.MkMemDisk(defs.FILESYS, 16)
	c := MkCache(disk, 8)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dst := make([]byte, SectorSize)
			if err := c.Read(5, dst, 0, SectorSize, 0); err != nil {
				t.Errorf("concurrent read: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := c.Stats.Misses.Get(); got < 1 {
		t.Fatalf("expected at least one recorded miss, got %d", got)
	}
}

func TestSixtyFiveSectorsThroughSixtyFourSlotsEvictsExactlyOnce(t *testing.T) {
	disk := bdev.MkMemDisk(defs.FILESYS, 128)
	c := MkCache(disk, DefaultSlots)

	data := bytes.Repeat([]byte{0xCC}, SectorSize)
	for s := uint32(0); s < DefaultSlots+1; s++ {
		if err := c.Write(s, data, 0, SectorSize, 0); err != nil {
			t.Fatalf("write sector %d: %v", s, err)
		}
	}

	if got := c.Stats.Evictions.Get(); got != 1 {
		t.Fatalf("expected exactly one eviction for the 65th distinct sector, got %d", got)
	}
	if got := c.Stats.Writebacks.Get(); got != 1 {
		t.Fatalf("expected the evicted dirty slot written back exactly once, got %d", got)
	}

	// The evicted sector's data must already be on disk, not just in the
	// (now reused) cache slot.
	raw := make([]byte, SectorSize)
	if err := disk.ReadSector(0, raw); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, data) {
		t.Fatalf("victim sector 0's write never reached disk")
	}
}

func TestShutdownFlushPersistsAllDirtySlots(t *testing.T) {
	disk := bdev.MkMemDisk(defs.FILESYS, 16)
	c := MkCache(disk, 4)

	data := bytes.Repeat([]byte{7}, SectorSize)
	if err := c.Write(9, data, 0, SectorSize, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.ShutdownFlush(); err != nil {
		t.Fatalf("shutdown flush: %v", err)
	}

	raw := make([]byte, SectorSize)
	if err := disk.ReadSector(9, raw); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, data) {
		t.Fatalf("shutdown flush did not persist dirty sector")
	}
}
