package proc

import (
	"github.com/nicemissing/xv6/spinlock"
)

// Exit closes every open file, reparents live children to Init, marks p
// a ZOMBIE with the given status, and wakes its parent (§4.9 exit; §3
// Processes lifecycle: "(exit) -> ZOMBIE -> (parent wait) -> UNUSED").
// The slot itself is not reclaimed here; Wait does that once the parent
// collects the status.
func (t *Table_t) Exit(p *Proc_t, status int, h *spinlock.HartState) {
	for i, f := range p.Ofile {
		if f != nil {
			f.Close(h)
			p.Ofile[i] = nil
		}
	}
	if p.Cwd != nil && p.Cwd.Fd != nil {
		p.Cwd.Fd.Close(h)
		p.Cwd.Fd = nil
	}

	t.guard.Acquire(h)
	for _, c := range t.procs {
		if c.Parent == p {
			c.Parent = t.Init
		}
	}
	t.guard.Release(h)
	if t.Init != nil {
		t.Wakeup(t.Init)
	}

	parent := p.Parent
	p.guard.Acquire(h)
	p.ExitStatus = status
	p.State = ZOMBIE
	p.guard.Release(h)
	if parent != nil {
		t.Wakeup(parent)
	}
}
