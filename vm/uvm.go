package vm

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
)

// UvmAlloc grows a process's user image from oldsz to newsz one page at a
// time, mapping each new page with the user bit plus xperm (§4.3
// uvm_alloc). It tears down any pages it has already mapped before
// returning an error, so a partially grown image is never left behind.
func (as *AddrSpace_t) UvmAlloc(oldsz, newsz int, xperm uint64, h *spinlock.HartState) (int, defs.Err_t) {
	if newsz < oldsz {
		return oldsz, 0
	}
	a := roundup(oldsz)
	for ; a < newsz; a += riscv.PGSIZE {
		_, pa, ok := as.Alloc.Alloc(h)
		if !ok {
			as.UvmDealloc(a, oldsz, h)
			return oldsz, -defs.ENOMEM
		}
		perm := riscv.PTE_R | riscv.PTE_U | xperm
		if !MapPages(as.Alloc, as.Root, uint64(a), riscv.PGSIZE, pa, perm, h) {
			as.Alloc.Free(pa, h)
			as.UvmDealloc(a, oldsz, h)
			return oldsz, -defs.ENOMEM
		}
	}
	as.Sz = newsz
	return newsz, 0
}

// UvmDealloc shrinks a process's user image from oldsz to newsz,
// unmapping and freeing whole pages (§4.3 uvm_dealloc).
func (as *AddrSpace_t) UvmDealloc(oldsz, newsz int, h *spinlock.HartState) int {
	if newsz >= oldsz {
		return oldsz
	}
	lo := roundup(newsz)
	hi := roundup(oldsz)
	if lo < hi {
		n := (hi - lo) / riscv.PGSIZE
		UnmapPages(as.Alloc, as.Root, uint64(lo), n, true, h)
	}
	as.Sz = newsz
	return newsz
}

func roundup(n int) int {
	return (n + riscv.PGSIZE - 1) &^ (riscv.PGSIZE - 1)
}

// UvmCopy deep-copies an address space: for every mapped page in [0, sz)
// of src, it allocates a fresh frame in dst, copies the bytes, and maps it
// with the source's permission bits (§4.3 uvm_copy). A zero-size source
// trivially succeeds, producing a destination with no user mappings
// (§8 boundary behavior). The only other mapping a process's space holds
// is the trapframe, installed by the caller (proc.Allocproc), not here,
// since UvmCopy only ever touches the user range [0, sz); no trampoline
// page is mapped in this hosted model.
func UvmCopy(src, dst *AddrSpace_t, sz int, h *spinlock.HartState) defs.Err_t {
	for i := 0; i < sz; i += riscv.PGSIZE {
		pte, ok := Walk(src.Alloc, src.Root, uint64(i), false, h)
		if !ok || pte == nil || *pte&riscv.PTE_V == 0 {
			klog.Panicf("vm", "uvm_copy: missing mapping at %#x", i)
		}
		perm := uint64(*pte) & (riscv.PTE_R | riscv.PTE_W | riscv.PTE_X | riscv.PTE_U)
		srcpa := riscv.PTE2PA(uint64(*pte))
		_, dstpa, ok := dst.Alloc.Alloc(h)
		if !ok {
			UnmapPages(dst.Alloc, dst.Root, 0, i/riscv.PGSIZE, true, h)
			return -defs.ENOMEM
		}
		srcFrame := src.Alloc.FrameAt(uintptr(srcpa))
		dstFrame := dst.Alloc.FrameAt(dstpa)
		copy(dstFrame, srcFrame)
		if !MapPages(dst.Alloc, dst.Root, uint64(i), riscv.PGSIZE, dstpa, perm, h) {
			dst.Alloc.Free(dstpa, h)
			UnmapPages(dst.Alloc, dst.Root, 0, i/riscv.PGSIZE, true, h)
			return -defs.ENOMEM
		}
	}
	dst.Sz = sz
	return 0
}

// UvmClear strips the user bit from the leaf mapping at va, used to turn
// a regular stack page into a guard page that traps if the user stack
// underflows into it (§4.3 uvm_clear).
func (as *AddrSpace_t) UvmClear(va uint64, h *spinlock.HartState) {
	pte, ok := Walk(as.Alloc, as.Root, va, false, h)
	if !ok || pte == nil {
		klog.Panicf("vm", "uvm_clear: no mapping at %#x", va)
	}
	*pte &^= PTE_t(riscv.PTE_U)
}
