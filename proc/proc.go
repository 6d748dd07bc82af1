// Package proc is the process table and scheduler (§3 Processes, §4.9).
// There is no single teacher file to ground it on: biscuit represents a
// "process" very differently, as a cluster of goroutines scheduled
// directly by its own patched Go runtime rather than by kernel code
// (tinfo/tinfo.go's runtime.Gptr()/Setgptr() thread-local trick is the
// clearest sign of this -- it is not portable to a standard Go runtime,
// see DESIGN.md). This package instead follows the distilled spec's xv6
// data model directly: a fixed-size process table guarded by a single
// lock, Sleep/Wakeup built on a condition variable broadcast rather than
// the teacher's runtime-assisted parking, and fork/exit/wait written
// against this module's own vm/fs/file packages. accnt.Accnt_t (reused
// unchanged from accnt/accnt.go) and file.Cwd_t (adapted from the
// teacher's fd.Fd_t/Cwd_t, see file/cwd.go) are the two pieces of
// teacher code that do carry over directly.
package proc

import (
	"sync"

	"github.com/nicemissing/xv6/accnt"
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/file"
	"github.com/nicemissing/xv6/fs"
	"github.com/nicemissing/xv6/kalloc"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/vm"
)

// NPROC/NOFILE are xv6-riscv's defaults
// (original_source/xv6-riscv-riscv/kernel/param.h).
const (
	NPROC  = 64
	NOFILE = 16
)

// State_t is one process-table slot's lifecycle state (§3 Processes:
// "UNUSED -> (allocproc) USED -> ... -> ZOMBIE -> (parent wait) UNUSED").
type State_t int

const (
	UNUSED State_t = iota
	USED
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

// String renders a state the way a ps-equivalent dump wants it (§1a
// Tabular reporting).
func (s State_t) String() string {
	switch s {
	case UNUSED:
		return "UNUSED"
	case USED:
		return "USED"
	case SLEEPING:
		return "SLEEPING"
	case RUNNABLE:
		return "RUNNABLE"
	case RUNNING:
		return "RUNNING"
	case ZOMBIE:
		return "ZOMBIE"
	default:
		return "?"
	}
}

// Proc_t is one process-table slot (§3 Processes).
type Proc_t struct {
	guard *spinlock.Lock_t

	State    State_t
	Pid      defs.Pid_t
	Parent   *Proc_t
	As        *vm.AddrSpace_t
	Sz        int
	Trapframe *riscv.Trapframe_t
	TrapframePa uintptr // physical frame backing Trapframe, reinstalled by Exec into the new address space
	Context   riscv.Context_t
	Kstack    uint64

	Waitchan   interface{}
	Killed     bool
	ExitStatus int

	Ofile [NOFILE]*file.File_t
	Cwd   *file.Cwd_t
	Name  string
	Acct  accnt.Accnt_t
}

// Sched_t is the kernel's single sleep/wakeup channel broadcaster. It
// implements the Sleeper_i/sleepWaker interface every blocking primitive
// in this module (sleeplock.Lock_t, log.Log_t, virtio.Disk_t) already
// depends on, so one instance wires all of them together (§4.9
// sleep/wakeup).
type Sched_t struct {
	mu   sync.Mutex
	cond *sync.Cond
}

// MkSched allocates a scheduler's sleep/wakeup broadcaster.
func MkSched() *Sched_t {
	s := &Sched_t{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Sleep blocks the calling goroutine until some Wakeup call occurs,
// releasing lk for the duration and reacquiring it before returning
// (§4.9 sleep: "atomically release the held lock and block"). Every
// caller loops on its own wait predicate after Sleep returns, exactly as
// xv6's sleep()/wakeup() require, since a broadcast wakes every waiter
// regardless of which address they slept on.
func (s *Sched_t) Sleep(chan_ interface{}, lk *spinlock.Lock_t, h *spinlock.HartState) {
	s.mu.Lock()
	lk.Release(h)
	s.cond.Wait()
	s.mu.Unlock()
	lk.Acquire(h)
}

// Wakeup wakes every goroutine blocked in Sleep.
func (s *Sched_t) Wakeup(chan_ interface{}) {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Table_t is the fixed-size process table (§3 Processes).
type Table_t struct {
	guard   *spinlock.Lock_t
	procs   [NPROC]*Proc_t
	nextPid defs.Pid_t

	Sched *Sched_t
	FS    *fs.FS_t
	Files *file.Table_t
	Alloc *kalloc.Allocator_t

	Init *Proc_t // the reparenting target for orphaned children
}

// MkTable allocates an empty process table wired to the file system,
// open-file table, and physical allocator every process needs.
func MkTable(fsys *fs.FS_t, files *file.Table_t, alloc *kalloc.Allocator_t) *Table_t {
	t := &Table_t{guard: spinlock.MkLock("ptable"), Sched: MkSched(), FS: fsys, Files: files, Alloc: alloc}
	for i := range t.procs {
		t.procs[i] = &Proc_t{guard: spinlock.MkLock("proc")}
	}
	return t
}

// Allocproc claims an UNUSED slot, assigns it a pid, and allocates its
// address space and trapframe frame (§4.9 allocproc). It returns nil
// when the table is full or the allocator is out of memory.
func (t *Table_t) Allocproc(h *spinlock.HartState) *Proc_t {
	t.guard.Acquire(h)
	var p *Proc_t
	for _, cand := range t.procs {
		if cand.State == UNUSED {
			p = cand
			break
		}
	}
	if p == nil {
		t.guard.Release(h)
		return nil
	}
	t.nextPid++
	pid := t.nextPid
	p.State = USED
	t.guard.Release(h)

	p.Pid = pid
	p.Killed = false
	p.ExitStatus = 0
	p.Parent = nil
	p.Waitchan = nil

	as := vm.MkAddrSpace(t.Alloc, h)
	if as == nil {
		t.freeproc(p, h)
		return nil
	}
	as.Killed = &p.Killed
	p.As = as
	p.Sz = 0

	tfFrame, tfPa, ok := t.Alloc.Alloc(h)
	if !ok {
		t.freeproc(p, h)
		return nil
	}
	p.Trapframe = (*riscv.Trapframe_t)(riscv.FrameAsTrapframe(tfFrame))
	p.TrapframePa = tfPa
	if !vm.MapPages(t.Alloc, as.Root, riscv.TRAPFRAME, riscv.PGSIZE, tfPa, riscvPTE_RW(), h) {
		t.Alloc.Free(tfPa, h)
		t.freeproc(p, h)
		return nil
	}
	return p
}

func riscvPTE_RW() uint64 { return riscv.PTE_R | riscv.PTE_W }

// freeproc tears a partially or fully constructed process back down to
// UNUSED; it is used both by Allocproc's own failure paths and by Exit's
// parent-side reap (§4.9 freeproc).
func (t *Table_t) freeproc(p *Proc_t, h *spinlock.HartState) {
	if p.Trapframe != nil {
		vm.UnmapPages(t.Alloc, p.As.Root, riscv.TRAPFRAME, 1, true, h)
		p.Trapframe = nil
		p.TrapframePa = 0
	}
	if p.As != nil {
		p.As.Uvmfree(h)
		p.As = nil
	}
	p.State = UNUSED
	p.Pid = 0
	p.Parent = nil
	p.Name = ""
	p.Killed = false
	p.Sz = 0
	p.Waitchan = nil
	p.Acct = accnt.Accnt_t{}
}

// Sleep blocks p on chan_ (§4.9 sleep, process-level wrapper): it
// records the wait channel and SLEEPING state for table introspection,
// then delegates the actual blocking to Sched.
func (t *Table_t) Sleep(p *Proc_t, chan_ interface{}, lk *spinlock.Lock_t, h *spinlock.HartState) {
	p.guard.Acquire(h)
	p.Waitchan = chan_
	p.State = SLEEPING
	p.guard.Release(h)

	since := p.Acct.Now()
	t.Sched.Sleep(chan_, lk, h)
	p.Acct.Sleep_time(since)

	p.guard.Acquire(h)
	p.Waitchan = nil
	p.State = RUNNING
	p.guard.Release(h)
}

// Wakeup wakes every process sleeping on chan_ (§4.9 wakeup).
func (t *Table_t) Wakeup(chan_ interface{}) {
	t.Sched.Wakeup(chan_)
}

// Yield gives up the hart voluntarily, marking p RUNNABLE until the
// scheduler picks it again (§4.9, used by the timer-interrupt path).
func (t *Table_t) Yield(p *Proc_t, h *spinlock.HartState) {
	p.guard.Acquire(h)
	p.State = RUNNABLE
	p.guard.Release(h)
	t.Scheduler(h)
	p.guard.Acquire(h)
	p.State = RUNNING
	p.guard.Release(h)
}

// Scheduler scans the table from slot 0 on every call and runs the first
// RUNNABLE proc found; it keeps no record of which proc ran last, so a
// lower slot that stays RUNNABLE is picked ahead of higher ones. "Run"
// here means flip its state to RUNNING and return control to the
// caller -- the actual context switch (saving/restoring the 13
// callee-saved registers named in Context_t) is asm the spec explicitly
// scopes out (§1 Non-goals: "the assembly trampoline and context-switch
// stubs, specified only by the state they exchange with the core"); this
// module models that state (Context_t, Trapframe_t) without the stub that
// moves it.
func (t *Table_t) Scheduler(h *spinlock.HartState) *Proc_t {
	t.guard.Acquire(h)
	defer t.guard.Release(h)
	for _, p := range t.procs {
		if p.State == RUNNABLE {
			p.State = RUNNING
			return p
		}
	}
	return nil
}

// Kill marks the process with pid as killed and wakes it if sleeping, so
// it notices Killed the next time it checks (§4.9 kill; the usertrap
// path is what actually observes p.Killed and exits).
func (t *Table_t) Kill(pid defs.Pid_t, h *spinlock.HartState) defs.Err_t {
	t.guard.Acquire(h)
	defer t.guard.Release(h)
	for _, p := range t.procs {
		if p.State != UNUSED && p.Pid == pid {
			p.Killed = true
			if p.State == SLEEPING {
				p.State = RUNNABLE
				t.Sched.Wakeup(nil)
			}
			return 0
		}
	}
	return -defs.ESRCH
}

// ProcSnapshot is a point-in-time, lock-free-to-read copy of one table
// slot, the shape cmd/kernel's ps-equivalent dump renders with
// tablewriter (§1a Tabular reporting).
type ProcSnapshot struct {
	Pid   defs.Pid_t
	State State_t
	Name  string
}

// Snapshot copies every non-UNUSED slot's identity fields out from under
// the table lock, so the caller can format them without holding it across
// a tablewriter render.
func (t *Table_t) Snapshot(h *spinlock.HartState) []ProcSnapshot {
	t.guard.Acquire(h)
	defer t.guard.Release(h)
	out := make([]ProcSnapshot, 0, NPROC)
	for _, p := range t.procs {
		if p.State == UNUSED {
			continue
		}
		out = append(out, ProcSnapshot{Pid: p.Pid, State: p.State, Name: p.Name})
	}
	return out
}
