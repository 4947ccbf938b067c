// Package stats implements lightweight counters, used by the buffer cache
// (package cache), adapted from the teacher's stats package
// (biscuit/src/stats/stats.go). The teacher gates counters behind
// runtime.Rdtsc(), a custom extension of biscuit's own modified Go
// runtime; since this repository runs on the stock toolchain, elapsed
// time is measured with time.Now()/time.Since() instead (see DESIGN.md).
package stats

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/pprof/profile"
)

// Enabled gates counter bookkeeping, matching the teacher's Stats const.
// Left on by default since this repository's counters are cheap (plain
// atomics, no cycle-counter instruction).
const Enabled = true

// Counter_t is a statistical counter.
type Counter_t int64

// Inc increments the counter by one.
func (c *Counter_t) Inc() {
	if Enabled {
		atomic.AddInt64((*int64)(c), 1)
	}
}

// Add adds n to the counter.
func (c *Counter_t) Add(n int64) {
	if Enabled {
		atomic.AddInt64((*int64)(c), n)
	}
}

// Get returns the current counter value.
func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Duration_t accumulates elapsed wall-clock time.
type Duration_t int64

// Since adds the time elapsed since start to the accumulator.
func (d *Duration_t) Since(start time.Time) {
	if Enabled {
		atomic.AddInt64((*int64)(d), int64(time.Since(start)))
	}
}

// Get returns the accumulated duration.
func (d *Duration_t) Get() time.Duration {
	return time.Duration(atomic.LoadInt64((*int64)(d)))
}

// Stats2String converts a struct of counters to a printable string by
// reflecting over its fields, matching the teacher's Stats2String.
func Stats2String(st interface{}) string {
	v := reflect.ValueOf(st)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		name := v.Type().Field(i).Name
		switch {
		case strings.HasSuffix(t, "Counter_t"):
			n := v.Field(i).Interface().(Counter_t)
			s += fmt.Sprintf("\n\t#%s: %s", name, strconv.FormatInt(int64(n), 10))
		case strings.HasSuffix(t, "Duration_t"):
			n := v.Field(i).Interface().(Duration_t)
			s += fmt.Sprintf("\n\t#%s: %s", name, time.Duration(n))
		}
	}
	return s + "\n"
}

// Snapshot builds a pprof profile.Profile sample from a struct of
// counters, so subsystem counters can be exported through the same
// profiling pipeline the teacher already depends on (github.com/google/
// pprof) instead of a bespoke text dump.
func Snapshot(name string, st interface{}) *profile.Profile {
	v := reflect.ValueOf(st)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: name, Unit: "count"}},
	}
	var values []int64
	var labels []string
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			values = append(values, int64(n))
			labels = append(labels, v.Type().Field(i).Name)
		}
	}
	for i, val := range values {
		fn := &profile.Function{ID: uint64(i + 1), Name: labels[i]}
		loc := &profile.Location{ID: uint64(i + 1), Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{val},
		})
	}
	return p
}
