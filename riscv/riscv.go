// Package riscv holds the Sv39 page-table bit layout, the fixed virtual
// memory map, and MMIO addresses from §6. It plays the role the teacher's
// mem package plays for x86 PTE_* constants (mem/mem.go), redefined for
// RISC-V Sv39's bit positions and three 9-bit VPN levels instead of x86's
// four 9-bit levels.
package riscv

import "unsafe"

// PGSHIFT/PGSIZE: both ISAs use 4 KiB pages, so these numbers happen to
// match the teacher's; VPN indexing and PTE flag bit positions do not.
const (
	PGSHIFT = 12
	PGSIZE  = 1 << PGSHIFT
	PGMASK  = PGSIZE - 1
)

// Sv39 PTE permission/status bits (low 10 bits of a 64-bit PTE).
const (
	PTE_V = 1 << 0 // valid
	PTE_R = 1 << 1 // readable
	PTE_W = 1 << 2 // writable
	PTE_X = 1 << 3 // executable
	PTE_U = 1 << 4 // user-accessible
	PTE_G = 1 << 5 // global
	PTE_A = 1 << 6 // accessed
	PTE_D = 1 << 7 // dirty
)

// PTE2PA extracts the physical page number from a PTE and shifts it back
// into a physical address. The PPN occupies bits [53:10] of the PTE.
func PTE2PA(pte uint64) uint64 { return (pte >> 10) << PGSHIFT }

// PA2PTE shifts a physical address into PPN position for storage in a PTE.
func PA2PTE(pa uint64) uint64 { return (pa >> PGSHIFT) << 10 }

// Sv39 virtual addresses have 3 levels of 9-bit indices over a 27-bit VPN.
const PXMASK = 0x1ff

// PX returns the 9-bit index for the given page-table level (2, 1, or 0)
// of virtual address va.
func PX(level int, va uint64) uint64 {
	shift := uint(PGSHIFT + 9*level)
	return (va >> shift) & PXMASK
}

// MAXVA is one bit less than the full 39-bit virtual address space so
// that the sign-extension rule for the top bit never needs to be modeled.
const MAXVA = 1 << (9 + 9 + 9 + 12 - 1)

// Virtual memory layout (§3 Address spaces, §6 Page-table virtual layout).
const (
	TRAMPOLINE = MAXVA - PGSIZE
	TRAPFRAME  = TRAMPOLINE - PGSIZE

	// KERNBASE is where the kernel's own image and heap begin in the
	// kernel page table's identity mapping.
	KERNBASE = 0x80000000
	PHYSTOP  = KERNBASE + 128*1024*1024

	// Per-process kernel stacks live below TRAMPOLINE, one page each
	// with a one-page unmapped guard below it (§3 Address spaces).
	KSTACKSIZE = PGSIZE
)

// KStack returns the virtual address of the top of the kernel stack for
// process-table slot index, spaced two pages apart (stack + guard).
func KStack(index int) uint64 {
	return TRAMPOLINE - uint64(index+1)*2*PGSIZE
}

// MMIO addresses (§6 External interfaces). In this hosted simulation
// these are used only as stable names/keys, not real bus addresses.
const (
	UART0  = 0x10000000
	VIRTIO0 = 0x10001000
	PLIC    = 0x0c000000
)

// PLIC per-hart claim/complete and enable offsets, matching plic.c's
// layout (original_source/xv6-riscv-riscv/kernel/plic.c), parameterized
// by hart id and the context (S-mode context is 2*hart+1 on real
// hardware).
const (
	PLIC_PRIORITY = PLIC + 0x0
	PLIC_PENDING  = PLIC + 0x1000
)

func PlicSEnable(hart int) uint64  { return PLIC + 0x2080 + uint64(hart)*0x100 }
func PlicSPriority(hart int) uint64 { return PLIC + 0x201000 + uint64(hart)*0x2000 }
func PlicSClaim(hart int) uint64    { return PLIC + 0x201004 + uint64(hart)*0x2000 }

// IRQ numbers wired on the reference platform.
const (
	UART_IRQ  = 10
	VIRTIO_IRQ = 1
)

// Scause values decoded by Usertrap/Kerneltrap (§4.8): the top bit of a
// real scause register marks an interrupt rather than an exception;
// InterruptBit plus one of the Interrupt* codes reproduces that
// encoding so trap dispatch can switch on a single uint64 the way real
// scause decoding does, without this hosted simulation needing an
// actual CSR.
const InterruptBit = 1 << 63

const (
	ExceptionEcallU       = 8
	ExceptionLoadFault    = 13
	ExceptionStoreFault   = 15
	InterruptSupervisorTimer    = 5
	InterruptSupervisorExternal = 9
)

// Trapframe_t is the per-process frame the trampoline saves the user
// register file into and reads four fields from on entry (§3 Address
// spaces: "Trapframe page ... backed by a per-process frame holding
// saved user registers plus the four fields the trampoline reads on
// entry"). The trampoline itself is out of scope (§1 Non-goals); this
// struct is the state it is specified to exchange with the kernel, laid
// out with unsafe.Pointer overlay like every other on-wire record in
// this module (§1b Domain stack), not a Go struct the kernel computes
// offsets into by hand.
type Trapframe_t struct {
	// Fields read by the trampoline on user entry.
	KernelSatp  uint64
	KernelSp    uint64
	KernelTrap  uint64
	Epc         uint64
	Hartid      uint64

	Ra, Sp, Gp, Tp                     uint64
	T0, T1, T2                         uint64
	S0, S1                             uint64
	A0, A1, A2, A3, A4, A5, A6, A7      uint64
	S2, S3, S4, S5, S6, S7, S8, S9, S10, S11 uint64
	T3, T4, T5, T6                     uint64
}

// Context_t is a kernel thread's saved register state across a context
// switch: the 13 callee-saved registers (s0-s11, ra) plus sp (§3
// Processes: "saved kernel context (13 callee-saved registers plus
// return address and stack pointer)"). The switch itself (swtch.S) is
// out of scope (§1 Non-goals); this struct is only the data it carries.
type Context_t struct {
	Ra, Sp                                               uint64
	S0, S1, S2, S3, S4, S5, S6, S7, S8, S9, S10, S11 uint64
}

// FrameAsTrapframe overlays a Trapframe_t onto a freshly allocated
// physical frame, the same overlay idiom fs/dinode.go uses for on-disk
// records.
func FrameAsTrapframe(frame []byte) unsafe.Pointer {
	return unsafe.Pointer(&frame[0])
}
