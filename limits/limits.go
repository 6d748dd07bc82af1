// Package limits counts the handful of system-wide resources this core
// actually bounds (§3 Processes: NPROC; §4.10's pipe supplement;
// buffer-cache/disk blocks). It is trimmed from the teacher's
// limits.Syslimit_t (limits/limits.go), which also tracks network
// sockets, ARP/route table entries, futexes, and memory-filesystem
// pages -- all subsystems this core's Non-goals exclude (no network
// stack, no futexes, no tmpfs), so those counters would never be read
// or written by anything in this module and are dropped rather than
// kept as dead fields. Sysatomic_t's lock-free take/give pair and the
// package-level Syslimit singleton carry over unchanged.
package limits

import "unsafe"
import "sync/atomic"

/// Lhits counts limit hits.
var Lhits int

/// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

/// Syslimit_t tracks system wide resource limits.
type Syslimit_t struct {
	// protected by proclock
	Sysprocs int
	// total pipes live system-wide (§4.10 pipe)
	Pipes Sysatomic_t
	// bdev blocks resident in the buffer cache (§4.4 bio)
	Blocks int
}

/// Syslimit describes the configured system wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs: 1e4,
		Pipes:    1e4,
		// 100000 blocks (the teacher's 1 << 21 was 8GB of block pages)
		Blocks: 100000, // 1 << 21,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

/// Take decrements the limit and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
