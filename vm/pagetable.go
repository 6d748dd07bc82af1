// Package vm is the Sv39 page-table engine (§3 Page table, §4.3). It is
// grounded on the teacher's vm package (vm/as.go, vm/userbuf.go): the
// Vm_t-style "one struct per address space with an embedded lock", the
// Userdmap8/copy-in/copy-out naming, and the panic-on-invariant-violation
// style all carry over from x86 COW biscuit. The page-table *walk* and
// *fault* policy are rewritten from scratch against §4.3's Sv39 three-level
// walk and lazy-allocation fault policy, since the teacher's x86
// four-level, copy-on-write engine is a different algorithm entirely (§9
// Design notes: this core documents lazy allocation only, not COW).
package vm

import (
	"unsafe"

	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/kalloc"
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
)

// PTE_t is one Sv39 page-table entry.
type PTE_t uint64

func pteAt(frame kalloc.Frame, idx uint64) *PTE_t {
	return (*PTE_t)(unsafe.Pointer(&frame[idx*8]))
}

// AddrSpace_t represents one process's (or the kernel's) address space: a
// root page table plus, for user address spaces, the current process
// size. The mutex is the "pmap lock" of §4.3 -- every walk, map, unmap,
// and copy that touches this address space's page tables holds it, the
// same discipline the teacher's Vm_t.Lock_pmap/Unlock_pmap enforce.
type AddrSpace_t struct {
	lock  *spinlock.Lock_t
	Root  uintptr // simulated physical address of the root page table
	Sz    int     // bytes, only meaningful for user address spaces
	Alloc *kalloc.Allocator_t

	// Killed, when set by the owning process (proc.Allocproc/Exec point
	// it at their Proc_t's Killed field), lets a blocking operation that
	// only ever sees an AddrSpace_t -- a pipe read/write, namely -- sample
	// the same flag usertrap checks, without vm importing proc (§5
	// cancellation: "the flag is sampled at ... every blocking syscall's
	// wake point").
	Killed *bool
}

// MkAddrSpace allocates a fresh, empty root page table.
func MkAddrSpace(a *kalloc.Allocator_t, h *spinlock.HartState) *AddrSpace_t {
	_, pa, ok := a.Alloc(h)
	if !ok {
		return nil
	}
	return &AddrSpace_t{lock: spinlock.MkLock("addrspace"), Root: pa, Alloc: a}
}

func (as *AddrSpace_t) Lock(h *spinlock.HartState)   { as.lock.Acquire(h) }
func (as *AddrSpace_t) Unlock(h *spinlock.HartState) { as.lock.Release(h) }

func (as *AddrSpace_t) rootFrame() kalloc.Frame {
	return as.Alloc.FrameAt(as.Root)
}

// Walk returns a pointer to the leaf PTE for va within the page table
// rooted at root, allocating interior levels on demand when allocNew is
// true (§4.3 walk). It returns ok=false on OOM, or when allocNew is false
// and an interior level is missing. It panics when va >= MAXVA, matching
// the spec's stated panic condition.
func Walk(alloc *kalloc.Allocator_t, root uintptr, va uint64, allocNew bool, h *spinlock.HartState) (*PTE_t, bool) {
	if va >= riscv.MAXVA {
		klog.Panicf("vm", "walk: va %#x >= MAXVA", va)
	}
	pa := root
	for level := 2; level > 0; level-- {
		frame := alloc.FrameAt(pa)
		idx := riscv.PX(level, va)
		pte := pteAt(frame, idx)
		if *pte&riscv.PTE_V != 0 {
			pa = uintptr(riscv.PTE2PA(uint64(*pte)))
			continue
		}
		if !allocNew {
			return nil, false
		}
		childFrame, childPa, ok := alloc.Alloc(h)
		if !ok {
			return nil, false
		}
		_ = childFrame
		*pte = PTE_t(riscv.PA2PTE(uint64(childPa)) | riscv.PTE_V)
		pa = childPa
	}
	frame := alloc.FrameAt(pa)
	idx := riscv.PX(0, va)
	return pteAt(frame, idx), true
}

// MapPages installs size/PGSIZE consecutive leaf entries starting at va,
// mapping physical frames starting at pa with permission bits perm. Both
// va and size must be page-aligned and size must be positive; remapping
// an already-valid leaf is a bug and panics (§4.3 map_pages).
func MapPages(alloc *kalloc.Allocator_t, root uintptr, va uint64, size int, pa uintptr, perm uint64, h *spinlock.HartState) bool {
	if size <= 0 {
		klog.Panicf("vm", "map_pages: size must be > 0")
	}
	if va%riscv.PGSIZE != 0 || size%riscv.PGSIZE != 0 {
		klog.Panicf("vm", "map_pages: va/size must be page-aligned")
	}
	n := size / riscv.PGSIZE
	a := va
	p := uint64(pa)
	for i := 0; i < n; i++ {
		pte, ok := Walk(alloc, root, a, true, h)
		if !ok {
			return false
		}
		if *pte&riscv.PTE_V != 0 {
			klog.Panicf("vm", "map_pages: remap of va %#x", a)
		}
		*pte = PTE_t(riscv.PA2PTE(p) | perm | riscv.PTE_V)
		a += riscv.PGSIZE
		p += riscv.PGSIZE
	}
	return true
}

// UnmapPages clears n consecutive leaf entries starting at va, optionally
// returning their backing frames to alloc (§4.3 unmap_pages).
func UnmapPages(alloc *kalloc.Allocator_t, root uintptr, va uint64, n int, free bool, h *spinlock.HartState) {
	if va%riscv.PGSIZE != 0 {
		klog.Panicf("vm", "unmap_pages: unaligned va %#x", va)
	}
	a := va
	for i := 0; i < n; i++ {
		pte, ok := Walk(alloc, root, a, false, h)
		if ok && pte != nil && *pte&riscv.PTE_V != 0 {
			if *pte&(riscv.PTE_R|riscv.PTE_W|riscv.PTE_X) == 0 {
				klog.Panicf("vm", "unmap_pages: leaf at %#x looks like an interior entry", a)
			}
			if free {
				alloc.Free(uintptr(riscv.PTE2PA(uint64(*pte))), h)
			}
			*pte = 0
		}
		a += riscv.PGSIZE
	}
}

// WalkAddr translates a user virtual address to a physical address,
// enforcing the user bit; it returns 0 on any missing, invalid, or
// non-user entry (§4.3 walk_addr).
func WalkAddr(alloc *kalloc.Allocator_t, root uintptr, va uint64, h *spinlock.HartState) uintptr {
	if va >= riscv.MAXVA {
		return 0
	}
	pte, ok := Walk(alloc, root, va, false, h)
	if !ok || pte == nil {
		return 0
	}
	if *pte&riscv.PTE_V == 0 || *pte&riscv.PTE_U == 0 {
		return 0
	}
	pa := riscv.PTE2PA(uint64(*pte))
	return uintptr(pa) + uintptr(va&riscv.PGMASK)
}

// Freewalk tears down the interior page-table pages of the tree rooted at
// root. Every leaf must already have been unmapped; a valid leaf found
// here indicates a caller bug and panics (§3 invariant: a leaf is either
// absent or valid, a valid entry with none of {R,W,X} is always interior,
// never a leaf -- so this routine must never observe a leaf).
func Freewalk(alloc *kalloc.Allocator_t, root uintptr, h *spinlock.HartState) {
	frame := alloc.FrameAt(root)
	for i := uint64(0); i < 512; i++ {
		pte := pteAt(frame, i)
		if *pte&riscv.PTE_V == 0 {
			continue
		}
		if *pte&(riscv.PTE_R|riscv.PTE_W|riscv.PTE_X) != 0 {
			klog.Panicf("vm", "freewalk: leaf entry still mapped")
		}
		child := uintptr(riscv.PTE2PA(uint64(*pte)))
		Freewalk(alloc, child, h)
	}
	alloc.Free(root, h)
}

// Uvmfree unmaps the user portion [0, sz) of an address space, then frees
// its interior page-table pages via Freewalk.
func (as *AddrSpace_t) Uvmfree(h *spinlock.HartState) {
	if as.Sz > 0 {
		UnmapPages(as.Alloc, as.Root, 0, as.Sz/riscv.PGSIZE, true, h)
	}
	Freewalk(as.Alloc, as.Root, h)
}

// CopyOut copies len(src) bytes from kernel memory into the user address
// space at dstva, page by page, calling Vmfault when a page in range is
// missing but within as.Sz (§4.3 copy_out).
func (as *AddrSpace_t) CopyOut(dstva uint64, src []byte, h *spinlock.HartState) defs.Err_t {
	for len(src) > 0 {
		va0 := dstva &^ (riscv.PGSIZE - 1)
		pa0 := WalkAddr(as.Alloc, as.Root, va0, h)
		if pa0 == 0 {
			if err := as.Vmfault(va0, true, h); err != 0 {
				return err
			}
			pa0 = WalkAddr(as.Alloc, as.Root, va0, h)
			if pa0 == 0 {
				return -defs.EFAULT
			}
		}
		n := riscv.PGSIZE - int(dstva-va0)
		if n > len(src) {
			n = len(src)
		}
		frame := as.Alloc.FrameAt(pa0 &^ (riscv.PGSIZE - 1))
		off := int(dstva - va0)
		copy(frame[off:off+n], src[:n])
		src = src[n:]
		dstva = va0 + riscv.PGSIZE
	}
	return 0
}

// CopyIn is the mirror of CopyOut: it reads from the user address space
// at srcva into dst (§4.3 copy_in).
func (as *AddrSpace_t) CopyIn(dst []byte, srcva uint64, h *spinlock.HartState) defs.Err_t {
	for len(dst) > 0 {
		va0 := srcva &^ (riscv.PGSIZE - 1)
		pa0 := WalkAddr(as.Alloc, as.Root, va0, h)
		if pa0 == 0 {
			if err := as.Vmfault(va0, false, h); err != 0 {
				return err
			}
			pa0 = WalkAddr(as.Alloc, as.Root, va0, h)
			if pa0 == 0 {
				return -defs.EFAULT
			}
		}
		n := riscv.PGSIZE - int(srcva-va0)
		if n > len(dst) {
			n = len(dst)
		}
		frame := as.Alloc.FrameAt(pa0 &^ (riscv.PGSIZE - 1))
		off := int(srcva - va0)
		copy(dst[:n], frame[off:off+n])
		dst = dst[n:]
		srcva = va0 + riscv.PGSIZE
	}
	return 0
}

// CopyInStr copies a NUL-terminated string from srcva into dst, stopping
// at the first NUL byte or when max bytes have been copied without one
// (§4.3 copy_instr), returning ENAMETOOLONG in the latter case.
func (as *AddrSpace_t) CopyInStr(dst []byte, srcva uint64, max int, h *spinlock.HartState) defs.Err_t {
	got := 0
	for got < max {
		va0 := srcva &^ (riscv.PGSIZE - 1)
		pa0 := WalkAddr(as.Alloc, as.Root, va0, h)
		if pa0 == 0 {
			if err := as.Vmfault(va0, false, h); err != 0 {
				return err
			}
			pa0 = WalkAddr(as.Alloc, as.Root, va0, h)
			if pa0 == 0 {
				return -defs.EFAULT
			}
		}
		frame := as.Alloc.FrameAt(pa0 &^ (riscv.PGSIZE - 1))
		off := int(srcva - va0)
		for off < riscv.PGSIZE && got < max {
			c := frame[off]
			if got < len(dst) {
				dst[got] = c
			}
			got++
			off++
			srcva++
			if c == 0 {
				return 0
			}
		}
	}
	return -defs.ENAMETOOLONG
}
