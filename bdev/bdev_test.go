package bdev

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"duskos/defs"
)

func TestMemDiskReadWriteRoundTrip(t *testing.T) {
	d := MkMemDisk(defs.FILESYS, 8)
	src := bytes.Repeat([]byte{0x42}, SectorSize)
	if err := d.WriteSector(3, src); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst := make([]byte, SectorSize)
	if err := d.ReadSector(3, dst); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(src, dst) {
		t.Fatal("round trip mismatch")
	}
}

func TestMemDiskOutOfRange(t *testing.T) {
	d := MkMemDisk(defs.SWAP, 2)
	if err := d.ReadSector(5, make([]byte, SectorSize)); err == nil {
		t.Fatal("expected out-of-range read to fail")
	}
	if d.Role() != defs.SWAP {
		t.Fatalf("role = %v, want SWAP", d.Role())
	}
	if d.Size() != 2 {
		t.Fatalf("size = %d, want 2", d.Size())
	}
}

func TestFileDiskPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := OpenFileDisk(path, defs.FILESYS, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	src := bytes.Repeat([]byte{0x99}, SectorSize)
	if err := d.WriteSector(1, src); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenFileDisk(path, defs.FILESYS, 4)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	dst := make([]byte, SectorSize)
	if err := reopened.ReadSector(1, dst); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(src, dst) {
		t.Fatal("data did not survive reopen")
	}
	if got := reopened.Stats(); got == "" {
		t.Fatal("expected non-empty Stats summary")
	}
}

func TestOpenFileDiskCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.img")
	d, err := OpenFileDisk(path, defs.FILESYS, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Size() != 4*SectorSize {
		t.Fatalf("size = %d, want %d", fi.Size(), 4*SectorSize)
	}
}
