package swap

import (
	"bytes"
	"testing"

	"duskos/bdev"
	"duskos/defs"
	"duskos/frame"
)

func TestOutInRoundTrip(t *testing.T) {
	disk := bdev.MkMemDisk(defs.SWAP, SectorsPerSlot*4)
	s := MkSwap(disk)

	page := bytes.Repeat([]byte{0x5A}, frame.PageSize)
	slot, err := s.Out(page)
	if err != nil {
		t.Fatalf("out: %v", err)
	}

	back := make([]byte, frame.PageSize)
	if err := s.In(slot, back); err != nil {
		t.Fatalf("in: %v", err)
	}
	if !bytes.Equal(page, back) {
		t.Fatalf("round trip mismatch")
	}
}

func TestSlotReusedAfterIn(t *testing.T) {
	disk := bdev.MkMemDisk(defs.SWAP, SectorsPerSlot*1)
	s := MkSwap(disk)

	page := bytes.Repeat([]byte{1}, frame.PageSize)
	slot, err := s.Out(page)
	if err != nil {
		t.Fatal(err)
	}
	back := make([]byte, frame.PageSize)
	if err := s.In(slot, back); err != nil {
		t.Fatal(err)
	}

	// Device has exactly one slot; Out must succeed again now that it's
	// been freed by In.
	if _, err := s.Out(page); err != nil {
		t.Fatalf("expected slot to be reusable after In, got %v", err)
	}
}

func TestOutFailsWhenDeviceFull(t *testing.T) {
	disk := bdev.MkMemDisk(defs.SWAP, SectorsPerSlot*1)
	s := MkSwap(disk)

	page := bytes.Repeat([]byte{1}, frame.PageSize)
	if _, err := s.Out(page); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Out(page); err == nil {
		t.Fatal("expected swap-full error")
	}
}
