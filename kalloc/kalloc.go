// Package kalloc is the physical page allocator (§3 Physical memory, §4.2).
// It is grounded on the teacher's mem.Physmem_t (mem/mem.go) -- the global
// singleton pattern, the embedded spin lock, and the "poison on free"
// debug habit all carry over -- but the teacher's per-CPU free-list
// sharding and page-refcounting (needed for its copy-on-write fork) are
// dropped: this core's lazy-allocation policy (§4.3 "Lazy-fill policy")
// never shares a physical frame between address spaces, so a single
// singly-linked free list under one spin lock is both what the spec
// requires and all the teacher's own code would need without COW.
package kalloc

import (
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
)

// Frame is one page-aligned 4 KiB physical frame, represented as a byte
// slice view over backing memory the allocator owns. A real kernel would
// address physical memory directly; this hosted simulation backs PHYSTOP
// bytes with a Go byte slice and hands out aligned sub-slices of it.
type Frame = []byte

const poison = 0xdb

// Allocator_t owns every frame in [start, end) and threads free frames
// through a singly linked list whose head is protected by lock (§3: "the
// first machine word of each free frame stores the next-pointer"). Here
// the next-pointer is stored the same way, as the first 8 bytes of the
// frame, interpreted as an index into backing rather than a bare pointer
// since Go does not let kernel code fabricate arbitrary *byte values.
type Allocator_t struct {
	lock    *spinlock.Lock_t
	backing []byte
	base    uintptr // the address Frame index 0 corresponds to
	freeHead int64   // -1 when empty, else byte offset into backing
}

// MkAllocator creates an allocator owning npages page-aligned frames
// starting at base, and threads them all onto the free list. base is an
// opaque simulated physical address (§3: "[end, PHYSTOP)"); it need not be
// a real pointer since kalloc never dereferences it outside this package.
func MkAllocator(base uintptr, npages int) *Allocator_t {
	a := &Allocator_t{
		lock:    spinlock.MkLock("kalloc"),
		backing: make([]byte, npages*riscv.PGSIZE),
		base:    base,
		freeHead: -1,
	}
	for i := npages - 1; i >= 0; i-- {
		off := i * riscv.PGSIZE
		a.putLink(off, a.freeHead)
		a.freeHead = int64(off)
	}
	return a
}

func (a *Allocator_t) putLink(off int, next int64) {
	b := a.backing[off : off+8]
	for i := 0; i < 8; i++ {
		b[i] = byte(next >> (8 * i))
	}
}

func (a *Allocator_t) getLink(off int) int64 {
	b := a.backing[off : off+8]
	var v int64
	for i := 0; i < 8; i++ {
		v |= int64(b[i]) << (8 * i)
	}
	return v
}

// Alloc removes the head of the free list and returns it, zeroed. It
// returns (nil, 0, false) when the free list is empty -- §4.2 does not
// define an OOM kill path for the allocator itself; callers (uvm_alloc,
// vmfault, buffer/inode allocation) are responsible for translating a
// failed Alloc into ENOMEM or, for resources the design claims cannot be
// exhausted (e.g. the process table), a panic.
func (a *Allocator_t) Alloc(h *spinlock.HartState) (Frame, uintptr, bool) {
	a.lock.Acquire(h)
	if a.freeHead < 0 {
		a.lock.Release(h)
		return nil, 0, false
	}
	off := int(a.freeHead)
	a.freeHead = a.getLink(off)
	a.lock.Release(h)

	f := a.backing[off : off+riscv.PGSIZE]
	for i := range f {
		f[i] = 0
	}
	return f, a.base + uintptr(off), true
}

// Free returns a frame to the free list after poisoning its contents, so
// that a stale pointer to freed memory reads garbage instead of
// plausible-looking zeroes (§3: "release poisons the frame with a known
// byte pattern before linking it"). It panics if pa is not page-aligned
// or not within this allocator's range, mirroring §4.2's "rejects
// unaligned, out-of-range ... addresses by panic".
func (a *Allocator_t) Free(pa uintptr, h *spinlock.HartState) {
	if pa%riscv.PGSIZE != 0 {
		klog.Panicf("kalloc", "free of unaligned address %#x", pa)
	}
	if pa < a.base || pa >= a.base+uintptr(len(a.backing)) {
		klog.Panicf("kalloc", "free of out-of-range address %#x", pa)
	}
	off := int(pa - a.base)
	f := a.backing[off : off+riscv.PGSIZE]
	for i := range f {
		f[i] = poison
	}

	a.lock.Acquire(h)
	a.putLink(off, a.freeHead)
	a.freeHead = int64(off)
	a.lock.Release(h)
}

// FrameAt returns a view of the frame at simulated physical address pa,
// for code (the page-table walker, the buffer cache) that already knows
// pa is allocated and just needs the bytes.
func (a *Allocator_t) FrameAt(pa uintptr) Frame {
	if pa < a.base || pa >= a.base+uintptr(len(a.backing)) {
		klog.Panicf("kalloc", "address %#x outside managed range", pa)
	}
	off := int(pa - a.base)
	return a.backing[off : off+riscv.PGSIZE]
}

// FreeCount reports the number of frames currently on the free list, for
// diagnostics and tests; it is not part of the spec's allocator contract.
func (a *Allocator_t) FreeCount(h *spinlock.HartState) int {
	a.lock.Acquire(h)
	defer a.lock.Release(h)
	n := 0
	for off := a.freeHead; off >= 0; off = a.getLink(int(off)) {
		n++
	}
	return n
}
