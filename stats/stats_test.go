package stats

import "testing"

func TestStats2StringRendersCounters(t *testing.T) {
	type sample struct {
		Hits   Counter_t
		Misses Counter_t
	}
	var s sample
	s.Hits.Add(3)
	s.Misses.Inc()

	out := Stats2String(&s)
	if want := "#Hits: 3"; !contains(out, want) {
		t.Fatalf("missing %q in %q", want, out)
	}
	if want := "#Misses: 1"; !contains(out, want) {
		t.Fatalf("missing %q in %q", want, out)
	}
}

func TestSnapshotBuildsOneSamplePerCounter(t *testing.T) {
	type sample struct {
		Hits   Counter_t
		Misses Counter_t
	}
	var s sample
	s.Hits.Add(5)
	s.Misses.Add(2)

	p := Snapshot("cache", &s)
	if len(p.Sample) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(p.Sample))
	}
	var total int64
	for _, samp := range p.Sample {
		total += samp.Value[0]
	}
	if total != 7 {
		t.Fatalf("expected total value 7, got %d", total)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
