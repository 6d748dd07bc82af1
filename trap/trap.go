// Package trap is the trap dispatcher (§4.8 Trap dispatch). There is no
// single teacher file to ground it on: biscuit's patched runtime fields
// traps through its own assembly vectors and never exposes a dispatch
// table to ordinary Go code. This package is written fresh against
// original_source/xv6-riscv-riscv/kernel/trap.c's usertrap/kerneltrap/
// devintr/clockintr, translated into this module's own riscv/proc/vm/
// syscall/clock/virtio types. The trampoline, stvec, and the sepc/scause/
// stval CSRs themselves are out of scope (§1 Non-goals: "the assembly
// trampoline ... specified only by the state they exchange with the
// core"); every value that real hardware would place in a CSR arrives
// here as an explicit argument instead, standing in for the trampoline's
// register save.
package trap

import (
	"github.com/nicemissing/xv6/caller"
	"github.com/nicemissing/xv6/clock"
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/syscall"
)

// IntrHandler services one PLIC-routed device interrupt.
type IntrHandler func(h *spinlock.HartState)

// Plic_t models the platform-level interrupt controller's per-hart
// claim/complete pair (§4.8: "a supervisor external interrupt -> claim
// from PLIC, route to the UART or disk ISR, complete at PLIC";
// original_source/xv6-riscv-riscv/kernel/plic.c). Nothing in this hosted
// simulation raises a real external-interrupt line -- virtio.Disk_t's
// device goroutine calls its own Isr directly -- so Plic_t exists purely
// as the IRQ-to-handler routing table plic_claim()/plic_complete() would
// otherwise consult in hardware, registered once at boot via Register.
type Plic_t struct {
	handlers map[int]IntrHandler
}

// MkPlic allocates an empty routing table.
func MkPlic() *Plic_t {
	return &Plic_t{handlers: make(map[int]IntrHandler)}
}

// Register installs the ISR for irq (riscv.UART_IRQ or riscv.VIRTIO_IRQ).
func (pl *Plic_t) Register(irq int, fn IntrHandler) {
	pl.handlers[irq] = fn
}

// Claim routes irq to its registered handler and implicitly completes
// the claim (a real plic_complete() write is a fire-and-forget MMIO
// store; there is no pending-bit state here to clear). An IRQ with no
// registered handler -- the UART console is out of scope, §1 Non-goals
// -- is silently dropped, matching devintr's "unexpected interrupt" path
// collapsing into "other device" either way.
func (pl *Plic_t) Claim(irq int, h *spinlock.HartState) {
	if fn, ok := pl.handlers[irq]; ok {
		fn(h)
	}
}

// which_dev return values (original_source's devintr()).
const (
	devNone  = 0
	devOther = 1
	devTimer = 2
)

// Dispatcher_t bundles everything Usertrap/Kerneltrap reach into: the
// syscall layer, the process table, the tick counter, and the PLIC
// routing table. cmd/kernel constructs exactly one per boot.
type Dispatcher_t struct {
	Sys   *syscall.Sys_t
	Procs *proc.Table_t
	Ticks *clock.Ticks_t
	Plic  *Plic_t

	// unrecognized logs an "unexpected scause" warning only once per
	// distinct call path (caller.Distinct_caller_t, caller/caller.go),
	// rather than once per trap -- a process that keeps faulting the
	// same way would otherwise flood the log.
	unrecognized caller.Distinct_caller_t
}

// MkDispatcher wires a dispatcher to its subsystems.
func MkDispatcher(sys *syscall.Sys_t, procs *proc.Table_t, ticks *clock.Ticks_t, plic *Plic_t) *Dispatcher_t {
	d := &Dispatcher_t{Sys: sys, Procs: procs, Ticks: ticks, Plic: plic}
	d.unrecognized.Enabled = true
	return d
}

func (d *Dispatcher_t) logUnrecognized(scause uint64, pid defs.Pid_t) {
	if fresh, stack := d.unrecognized.Distinct(); fresh {
		klog.For("trap").Info("unexpected scause", "scause", scause, "pid", pid, "stack", stack)
	}
}

// devintr implements original_source's devintr(): decode scause as
// either the supervisor external interrupt (route through the PLIC) or
// the supervisor timer interrupt (bump ticks and wake sleepers, hart 0
// only), returning which kind fired so the caller can decide whether to
// yield.
func (d *Dispatcher_t) devintr(scause uint64, irq int, h *spinlock.HartState) int {
	switch scause {
	case riscv.InterruptBit | riscv.InterruptSupervisorExternal:
		d.Plic.Claim(irq, h)
		return devOther
	case riscv.InterruptBit | riscv.InterruptSupervisorTimer:
		if h.ID == 0 {
			d.Ticks.Bump(h)
			d.Procs.Wakeup(clock.Chan)
		}
		return devTimer
	default:
		return devNone
	}
}

// Usertrap implements §4.8 Usertrap. scause/stval/irq stand in for the
// sepc-adjacent CSRs the real trampoline would have already copied into
// the trapframe (Epc) and left in hardware registers (scause, stval);
// irq is only meaningful when scause decodes to the external-interrupt
// case. p.Trapframe.Epc must already hold the faulting pc (the
// trampoline's job, out of scope) before this is called.
func (d *Dispatcher_t) Usertrap(p *proc.Proc_t, scause, stval uint64, irq int, h *spinlock.HartState) {
	inttime := p.Acct.Now()
	defer p.Acct.Finish(inttime)

	which := devNone
	switch {
	case scause == riscv.ExceptionEcallU:
		if p.Killed {
			d.Procs.Exit(p, -1, h)
			return
		}
		p.Trapframe.Epc += 4
		h.IntrOn()
		ret, err := d.Sys.Dispatch(p, h)
		if err != 0 {
			p.Trapframe.A0 = uint64(int64(err))
		} else {
			p.Trapframe.A0 = ret
		}

	case scause&riscv.InterruptBit != 0:
		which = d.devintr(scause, irq, h)
		if which == devNone {
			d.logUnrecognized(scause, p.Pid)
			p.Killed = true
		}

	case scause == riscv.ExceptionLoadFault || scause == riscv.ExceptionStoreFault:
		iswrite := scause == riscv.ExceptionStoreFault
		if err := p.As.Vmfault(stval, iswrite, h); err != 0 {
			p.Killed = true
		}

	default:
		d.logUnrecognized(scause, p.Pid)
		p.Killed = true
	}

	if p.Killed {
		d.Procs.Exit(p, -1, h)
		return
	}
	if which == devTimer {
		d.Procs.Yield(p, h)
	}
}

// Kerneltrap implements §4.8 Kerneltrap: entered with interrupts
// disabled, must be a device interrupt (anything else is a kernel bug,
// not a recoverable fault, so it panics). cur is the hart's current
// process if any; on a timer interrupt it yields that process, then
// restores sepc/sstatus. This hosted model has no separate sepc/sstatus
// register a yield could clobber -- Trapframe_t.Epc belongs to the
// process, not the hart -- so the "restore" step is the assertion below
// rather than an actual register write; the invariant it guards
// (interrupts stay disabled across the call) still matters.
func (d *Dispatcher_t) Kerneltrap(cur *proc.Proc_t, scause uint64, irq int, h *spinlock.HartState) {
	if h.NestingDepth() == 0 {
		klog.Panicf("trap", "kerneltrap: interrupts not disabled on entry")
	}
	which := d.devintr(scause, irq, h)
	if which == devNone {
		klog.Panicf("trap", "kerneltrap: unrecognized scause 0x%x", scause)
	}
	if which == devTimer && cur != nil {
		d.Procs.Yield(cur, h)
	}
}

// PrepareReturn implements §4.8 Prepare-return: disable interrupts and
// stash into the trapframe the four fields the trampoline's user-entry
// path reads back out (kernel page-table root, kernel stack top, kernel
// trap-handler address, hart id). The stvec write and the sstatus
// SPP/SPIE bit manipulation belong to the trampoline/CSR layer and are
// out of scope; kernelTrapVector is an opaque placeholder for the
// trampoline's jump target, which this hosted model never actually uses.
func (d *Dispatcher_t) PrepareReturn(p *proc.Proc_t, kernelSatp uint64, kernelTrapVector uint64, h *spinlock.HartState) {
	h.IntrOff()
	p.Trapframe.KernelSatp = kernelSatp
	p.Trapframe.KernelSp = p.Kstack + riscv.PGSIZE
	p.Trapframe.KernelTrap = kernelTrapVector
	p.Trapframe.Hartid = uint64(h.ID)
}
