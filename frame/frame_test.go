package frame

import "testing"

func TestAllocExhaustsPool(t *testing.T) {
	p := MkPool(2)
	f1, ok := p.Alloc(0)
	if !ok {
		t.Fatal("expected first alloc to succeed")
	}
	f2, ok := p.Alloc(0)
	if !ok {
		t.Fatal("expected second alloc to succeed")
	}
	if _, ok := p.Alloc(0); ok {
		t.Fatal("expected pool to be exhausted")
	}
	if p.Used() != 2 {
		t.Fatalf("Used = %d, want 2", p.Used())
	}
	if f1.ID == f2.ID {
		t.Fatal("distinct allocations should have distinct ids")
	}
}

func TestFreeRecyclesFrame(t *testing.T) {
	p := MkPool(1)
	f, ok := p.Alloc(0)
	if !ok {
		t.Fatal("alloc failed")
	}
	p.Free(f)
	if p.Used() != 0 {
		t.Fatalf("Used = %d, want 0 after Free", p.Used())
	}
	if _, ok := p.Alloc(0); !ok {
		t.Fatal("expected freed frame to be reusable")
	}
}

func TestZeroFlagZeroFillsFrame(t *testing.T) {
	p := MkPool(1)
	f, ok := p.Alloc(ZERO)
	if !ok {
		t.Fatal("alloc failed")
	}
	for i, b := range f.Data {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
	if len(f.Data) != PageSize {
		t.Fatalf("len(Data) = %d, want %d", len(f.Data), PageSize)
	}
}
