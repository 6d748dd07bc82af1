// Package clock is the timer-interrupt tick counter (§4.8 Usertrap: "a
// timer interrupt -> bump ticks on hart 0, wake sleepers on the ticks
// address, rearm"; §5: "ticks counter ... guarded by its own spin
// lock"). It has no teacher file to ground on -- biscuit's timer
// interrupt drives its patched runtime's own scheduler directly -- so
// this is written fresh in the spinlock-guarded-counter idiom the rest
// of this module uses for small shared state (kalloc.Allocator_t,
// limits.Counter_t).
package clock

import "github.com/nicemissing/xv6/spinlock"

// Chan is the wait-channel address every sleep(n) syscall blocks on;
// only its identity matters, never its contents (§4.9 sleep/wakeup).
var Chan = new(int)

// Ticks_t is the global tick counter bumped once per timer interrupt.
// Guard is exported so sleep(n)'s wait loop can hold it across the
// Sleep call the same way Wait holds the process table's lock (§4.9
// sleep/wakeup's double-lock dance).
type Ticks_t struct {
	Guard *spinlock.Lock_t
	n     int
}

// MkTicks allocates a zeroed tick counter.
func MkTicks() *Ticks_t {
	return &Ticks_t{Guard: spinlock.MkLock("ticks")}
}

// Bump increments the counter; called only from the timer-interrupt
// path on hart 0 (§4.8).
func (t *Ticks_t) Bump(h *spinlock.HartState) {
	t.Guard.Acquire(h)
	t.n++
	t.Guard.Release(h)
}

// Get reads the current tick count.
func (t *Ticks_t) Get(h *spinlock.HartState) int {
	t.Guard.Acquire(h)
	defer t.Guard.Release(h)
	return t.n
}
