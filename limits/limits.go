/// Package limits tracks system-wide resource budgets, adapted from the
/// teacher's limits package (biscuit/src/limits/limits.go). Narrowed to
/// the resources this repository's subsystems actually consume: open
/// inodes and live memory mappings. The teacher's networking/process
/// counters (Arpents, Routes, Tcpsegs, Sysprocs, ...) have no equivalent
/// subsystem here and are dropped rather than carried as dead fields.
package limits

import "sync/atomic"

/// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64((*int64)(s), int64(n))
}

/// Taken tries to decrement the limit by the provided amount, returning
/// whether there was enough budget left to do so.
func (s *Sysatomic_t) Taken(n uint) bool {
	g := atomic.AddInt64((*int64)(s), -int64(n))
	if g >= 0 {
		return true
	}
	atomic.AddInt64((*int64)(s), int64(n))
	return false
}

/// Take decrements the limit by one and reports success.
func (s *Sysatomic_t) Take() bool { return s.Taken(1) }

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() { s.Given(1) }

/// Get returns the current remaining budget.
func (s *Sysatomic_t) Get() int64 { return atomic.LoadInt64((*int64)(s)) }

/// Syslimit_t tracks the resource budgets this repository's subsystems
/// draw down against.
type Syslimit_t struct {
	// Vnodes bounds how many inodes may be open system-wide at once
	// (package inode's open-inode table).
	Vnodes Sysatomic_t
	// Mappings bounds how many live memory mappings may exist
	// system-wide at once (package mmap's Manager_t).
	Mappings Sysatomic_t
}

/// MkSysLimit returns the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Vnodes:   20000,
		Mappings: 4096,
	}
}

/// Syslimit is the process-wide default limit set.
var Syslimit = MkSysLimit()
