// Package spinlock implements the mutual-exclusion primitive used by every
// shared table in the kernel (§4.1). There is no teacher source file for
// it -- biscuit relies on its patched Go runtime's own internal locks and
// never exposes a spinlock type to kernel code -- so this is built fresh
// in the idiom the rest of the pack uses for small mutex-guarded types: an
// embedded lock plus Type_t naming (vm.Vm_t, mem.Physmem_t) and panic on
// misuse rather than a silent no-op.
package spinlock

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/nicemissing/xv6/klog"
)

// Lock_t is a spin lock: mutual exclusion with interrupts disabled on the
// acquiring hart for as long as it is held. Held locks must never bracket
// a suspension point (§5 Suspension points) -- only sleep() and sleep-lock
// acquisition may block.
type Lock_t struct {
	held int32
	name string
	// owner is advisory: it lets Release and the double-acquire check
	// name the offending hart in a panic message. It is only valid while
	// held == 1.
	owner int32
}

// MkLock returns a named, unheld lock. The name is used only in panic
// diagnostics.
func MkLock(name string) *Lock_t {
	return &Lock_t{name: name, owner: -1}
}

// Holding reports whether the lock is currently held by any hart.
func (l *Lock_t) Holding() bool {
	return atomic.LoadInt32(&l.held) != 0
}

// Acquire disables interrupts on the calling hart (pushing the nesting
// depth, §4.1), then spins on an atomic test-and-set until the lock is
// free. Acquiring a lock already held by this hart is a bug (locks are
// not reentrant) and panics rather than deadlocking silently.
func (l *Lock_t) Acquire(h *HartState) {
	h.pushIntrOff()
	if h.holding(l) {
		klog.Panicf("spinlock", "hart %d: recursive acquire of %q", h.ID, l.name)
	}
	for !atomic.CompareAndSwapInt32(&l.held, 0, 1) {
		// busy-wait; a real hart would pause here, a goroutine yields
		// to the Go scheduler so other harts make progress.
		yieldProc()
	}
	atomic.StoreInt32(&l.owner, int32(h.ID))
	h.noteHeld(l)
}

// Release clears the lock and restores the hart's interrupt-enable state
// once the outermost acquire has been released. Releasing a lock this
// hart does not hold panics.
func (l *Lock_t) Release(h *HartState) {
	if !h.holding(l) {
		klog.Panicf("spinlock", "hart %d: release of %q not held by this hart", h.ID, l.name)
	}
	atomic.StoreInt32(&l.owner, -1)
	atomic.StoreInt32(&l.held, 0)
	h.forgetHeld(l)
	h.popIntrOff()
}

func yieldProc() { runtime.Gosched() }

// HartState tracks one hart's interrupt-disable nesting depth and the set
// of spin locks it currently holds, mirroring xv6's per-CPU noff/intena
// (original_source/xv6-riscv-riscv/kernel/spinlock.c).
type HartState struct {
	ID int

	mu          sync.Mutex
	intrEnabledFlag bool
	noff        int
	intenaSaved bool
	held        map[*Lock_t]bool
}

func (h *HartState) intrEnabled() bool { return h.intrEnabledFlag }
func (h *HartState) setIntr(v bool)    { h.intrEnabledFlag = v }

// NewHartState allocates per-hart bookkeeping for hart id.
func NewHartState(id int) *HartState {
	return &HartState{ID: id, held: make(map[*Lock_t]bool)}
}

func (h *HartState) holding(l *Lock_t) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.held[l]
}

func (h *HartState) noteHeld(l *Lock_t) {
	h.mu.Lock()
	h.held[l] = true
	h.mu.Unlock()
}

func (h *HartState) forgetHeld(l *Lock_t) {
	h.mu.Lock()
	delete(h.held, l)
	h.mu.Unlock()
}

// pushIntrOff disables interrupts, remembering the pre-existing state only
// at nesting depth zero so that a nested Acquire/Release pair cannot
// re-enable interrupts early.
func (h *HartState) pushIntrOff() {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.intrEnabled()
	if h.noff == 0 {
		h.intenaSaved = old
	}
	h.setIntr(false)
	h.noff++
}

func (h *HartState) popIntrOff() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.noff < 1 {
		klog.Panicf("spinlock", "hart %d: interrupt nesting underflow", h.ID)
	}
	h.noff--
	if h.noff == 0 && h.intenaSaved {
		h.setIntr(true)
	}
}

// IntrOn re-enables interrupts directly; it panics if called while more
// than one level of spin lock is held, since a nested critical section
// enabling interrupts would violate the "interrupts disabled while holding
// any spin lock" invariant of §5.
func (h *HartState) IntrOn() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.noff > 1 {
		klog.Panicf("spinlock", "hart %d: IntrOn with nesting depth %d", h.ID, h.noff)
	}
	h.setIntr(true)
}

func (h *HartState) IntrOff() {
	h.mu.Lock()
	h.setIntr(false)
	h.mu.Unlock()
}

func (h *HartState) NestingDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.noff
}
