package proc

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/file"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/ustr"
	"github.com/nicemissing/xv6/vm"
)

// Fork duplicates parent into a freshly allocated process (§4.9 fork):
// deep-copy the address space, copy the trapframe and set its a0 to 0
// (so the child returns from the same syscall with a 0 return value),
// bump every open file's reference, duplicate the working directory, and
// make the child RUNNABLE under the parent.
func (t *Table_t) Fork(parent *Proc_t, h *spinlock.HartState) (*Proc_t, defs.Err_t) {
	child := t.Allocproc(h)
	if child == nil {
		return nil, -defs.ENOMEM
	}
	if err := vm.UvmCopy(parent.As, child.As, parent.Sz, h); err != 0 {
		t.guard.Acquire(h)
		child.State = UNUSED
		t.guard.Release(h)
		t.freeproc(child, h)
		return nil, err
	}
	child.Sz = parent.Sz
	*child.Trapframe = *parent.Trapframe
	child.Trapframe.A0 = 0 // the child's fork() return value (§4.9 fork)

	for i, f := range parent.Ofile {
		if f != nil {
			f.Reopen(h)
			child.Ofile[i] = f
		}
	}
	// Each process owns its own Cwd_t (sysChdir mutates it in place); only
	// the inode-file reference and the path string are shared/copied, the
	// way fork duplicates an inode pointer's refcount rather than the
	// process struct holding it.
	if parent.Cwd != nil {
		if parent.Cwd.Fd != nil {
			parent.Cwd.Fd.Reopen(h)
		}
		child.Cwd = &file.Cwd_t{Fd: parent.Cwd.Fd, Path: append(ustr.Ustr{}, parent.Cwd.Path...)}
	}
	child.Name = parent.Name
	child.Parent = parent

	t.guard.Acquire(h)
	child.State = RUNNABLE
	t.guard.Release(h)
	return child, 0
}
