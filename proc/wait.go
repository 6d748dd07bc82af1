package proc

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/spinlock"
)

// Wait blocks parent until one of its children becomes a ZOMBIE, then
// reaps it (frees its address space and trapframe, returns the slot to
// UNUSED) and returns its pid and exit status (§4.9 wait). It returns
// ECHILD immediately if parent has no children at all.
func (t *Table_t) Wait(parent *Proc_t, h *spinlock.HartState) (defs.Pid_t, int, defs.Err_t) {
	t.guard.Acquire(h)
	for {
		haveKids := false
		for _, c := range t.procs {
			if c.Parent != parent {
				continue
			}
			haveKids = true
			if c.State == ZOMBIE {
				pid := c.Pid
				status := c.ExitStatus
				parent.Acct.Add(&c.Acct)
				t.guard.Release(h)
				t.freeproc(c, h)
				t.guard.Acquire(h)
				c.State = UNUSED
				t.guard.Release(h)
				return pid, status, 0
			}
		}
		if !haveKids || parent.Killed {
			t.guard.Release(h)
			return 0, 0, -defs.ECHILD
		}
		// t.guard is both the wait-predicate lock and the lock Sleep
		// releases/reacquires around blocking; it is distinct from
		// parent.guard, which Table_t.Sleep itself acquires to record
		// Waitchan/State, so there is no recursive self-acquire here.
		t.Sleep(parent, parent, t.guard, h)
	}
}
