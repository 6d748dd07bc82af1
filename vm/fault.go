package vm

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
)

// Vmfault implements the lazy-fill policy (§4.3, §9 "this spec documents
// lazy allocation only"): on a fault at an address below the process's
// current size that is not already mapped, allocate a zeroed frame and
// map it R+W+U. A fault outside [0, sz) or on an address that already has
// a valid mapping (two threads racing on the same fault, or a genuine
// protection violation) fails.
func (as *AddrSpace_t) Vmfault(faultva uint64, iswrite bool, h *spinlock.HartState) defs.Err_t {
	va := faultva &^ (riscv.PGSIZE - 1)
	if int(va) >= as.Sz {
		return -defs.EFAULT
	}
	pte, ok := Walk(as.Alloc, as.Root, va, true, h)
	if !ok {
		return -defs.ENOMEM
	}
	if *pte&riscv.PTE_V != 0 {
		// Two threads simultaneously faulted on the same page; the
		// other one already filled it in, not an error (§4.3).
		return 0
	}
	_, pa, ok := as.Alloc.Alloc(h)
	if !ok {
		return -defs.ENOMEM
	}
	*pte = PTE_t(riscv.PA2PTE(uint64(pa)) | riscv.PTE_W | riscv.PTE_R | riscv.PTE_U | riscv.PTE_V)
	return 0
}
