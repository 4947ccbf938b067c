package process

import (
	"testing"

	"duskos/bdev"
	"duskos/cache"
	"duskos/defs"
	"duskos/frame"
	"duskos/freemap"
	"duskos/inode"
	"duskos/swap"
)

func newTestProcess(t *testing.T) *Process_t {
	t.Helper()
	pool := frame.MkPool(64)
	disk := bdev.MkMemDisk(defs.SWAP, 64)
	sw := swap.MkSwap(disk)
	return MkProcess(1, 1, pool, sw, 0x1000)
}

func TestAllocFdStartsAtMinFd(t *testing.T) {
	p := newTestProcess(t)
	fdnum, err := p.AllocFd(&Fd_t{})
	if err != nil {
		t.Fatalf("AllocFd: %v", err)
	}
	if fdnum != MinFd {
		t.Fatalf("first allocated fd = %d, want %d", fdnum, MinFd)
	}
	if _, err := p.GetFd(0); err != defs.EBADF {
		t.Fatalf("GetFd(0) = %v, want EBADF (0/1 reserved for stdio)", err)
	}
	if _, err := p.GetFd(1); err != defs.EBADF {
		t.Fatalf("GetFd(1) = %v, want EBADF (0/1 reserved for stdio)", err)
	}
}

func TestAllocFdReusesFreedSlot(t *testing.T) {
	p := newTestProcess(t)
	a, err := p.AllocFd(&Fd_t{Pos: 1})
	if err != nil {
		t.Fatal(err)
	}
	p.FreeFd(a)
	b, err := p.AllocFd(&Fd_t{Pos: 2})
	if err != nil {
		t.Fatal(err)
	}
	if b != a {
		t.Fatalf("expected freed slot %d to be reused, got %d", a, b)
	}
}

func TestAllocFdExhaustsTable(t *testing.T) {
	p := newTestProcess(t)
	for i := MinFd; i < MaxFds; i++ {
		if _, err := p.AllocFd(&Fd_t{}); err != nil {
			t.Fatalf("AllocFd %d: %v", i, err)
		}
	}
	if _, err := p.AllocFd(&Fd_t{}); err != defs.ENOMEM {
		t.Fatalf("expected ENOMEM once table is full, got %v", err)
	}
}

func TestGrowStackOnlyWithinWindow(t *testing.T) {
	p := newTestProcess(t)
	top := p.StackTop * frame.PageSize

	if GrowStack(p, top, p.Esp) {
		t.Fatal("expected fault at/above StackTop to be rejected")
	}
	if GrowStack(p, top-MaxStackGrowthBytes-1, p.Esp) {
		t.Fatal("expected fault below the 8 MiB growth ceiling to be rejected")
	}
	if !GrowStack(p, top-1, p.Esp) {
		t.Fatal("expected fault just below StackTop, near esp, to grow the stack")
	}
	if GrowStack(p, top-1, p.Esp) {
		t.Fatal("expected a second fault on an already-mapped vpn to report false")
	}
}

func TestGrowStackRejectsFaultsFarBelowEsp(t *testing.T) {
	p := newTestProcess(t)
	top := p.StackTop * frame.PageSize
	esp := top - frame.PageSize

	// Within the 8 MiB ceiling but far enough below esp that it can't
	// be a PUSHA-style stack-pointer-adjacent fault.
	addr := esp - EspSlack - frame.PageSize
	if GrowStack(p, addr, esp) {
		t.Fatal("expected fault far below esp to be rejected")
	}
	if !GrowStack(p, esp-EspSlack, esp) {
		t.Fatal("expected fault at esp-EspSlack to grow the stack")
	}
}

func TestExitClosesOpenDescriptors(t *testing.T) {
	disk := bdev.MkMemDisk(defs.FILESYS, 512)
	c := cache.MkCache(disk, 32)
	fm := freemap.MkFreeMap(c, 2, 512)
	fm.Mark(0, 10)
	if err := inode.Create(c, fm, 2, 0, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	itab := inode.MkTable(c, fm)
	ino, err := itab.Open(2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	p := newTestProcess(t)
	fdnum, err := p.AllocFd(&Fd_t{Ino: ino})
	if err != nil {
		t.Fatal(err)
	}
	p.Exit(itab)

	if _, err := p.GetFd(fdnum); err != defs.EBADF {
		t.Fatalf("GetFd(%d) after Exit = %v, want EBADF", fdnum, err)
	}
	if ino.Removed() {
		t.Fatal("Exit should not mark inodes removed, only close descriptors")
	}
}
