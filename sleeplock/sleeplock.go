// Package sleeplock implements the long-term lock (§4.1) used to guard
// buffer and inode contents across blocking disk I/O. Unlike Lock_t it may
// be held across a suspension point; acquiring it blocks via the proc
// package's sleep/wakeup primitive rather than spinning.
package sleeplock

import (
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/spinlock"
)

// Sleeper_i is the minimal proc-package surface sleeplock needs: block the
// calling thread on chan until woken, and wake every thread blocked on
// chan. proc.Sched_t satisfies it; keeping it as an interface here
// (rather than importing proc directly) avoids a cycle, since proc
// depends, through fs and bio, on this package.
type Sleeper_i interface {
	Sleep(chan_ interface{}, lk *spinlock.Lock_t, h *spinlock.HartState)
	Wakeup(chan_ interface{})
}

// Lock_t is a boolean "locked" flag guarded by an internal spin lock.
// Acquire sleeps on the lock's own address while the flag is set; this is
// the same primitive a buffer's per-buffer lock and an inode's per-inode
// lock both use (§3 Buffer cache, Inodes in memory).
type Lock_t struct {
	guard  *spinlock.Lock_t
	locked bool
	name   string
	sl     Sleeper_i
}

// MkLock returns an unlocked Lock_t. sl provides the sleep/wakeup
// primitive; it is supplied at construction rather than wired globally so
// tests can use a fake scheduler.
func MkLock(name string, sl Sleeper_i) *Lock_t {
	return &Lock_t{guard: spinlock.MkLock(name + ".guard"), name: name, sl: sl}
}

// Acquire blocks the calling thread until the lock is free, then claims it.
func (l *Lock_t) Acquire(h *spinlock.HartState) {
	l.guard.Acquire(h)
	for l.locked {
		l.sl.Sleep(l, l.guard, h)
	}
	l.locked = true
	l.guard.Release(h)
}

// Release clears the flag and wakes every waiter. Releasing an unlocked
// Lock_t is a bug.
func (l *Lock_t) Release(h *spinlock.HartState) {
	l.guard.Acquire(h)
	if !l.locked {
		klog.Panicf("sleeplock", "release of unlocked %q", l.name)
	}
	l.locked = false
	l.guard.Release(h)
	l.sl.Wakeup(l)
}

// Holding reports whether the lock is currently held by anyone. It takes
// the guard briefly; callers use it only for assertions (ilock/brelse
// invariants), never to decide control flow racily.
func (l *Lock_t) Holding(h *spinlock.HartState) bool {
	l.guard.Acquire(h)
	v := l.locked
	l.guard.Release(h)
	return v
}
