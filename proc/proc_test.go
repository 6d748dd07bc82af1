package proc_test

import (
	"path/filepath"
	"testing"

	"github.com/nicemissing/xv6/boot"
	"github.com/nicemissing/xv6/file"
	"github.com/nicemissing/xv6/fs"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/stretchr/testify/require"
)

// harness formats a fresh image and wires a process table over it,
// mirroring cmd/kernel's runBoot wiring (boot.Format + file.MkTable +
// proc.MkTable + a root-rooted init slot), so fork/exit/wait exercise
// the real dependency chain rather than a stub file system.
func harness(t *testing.T) (*proc.Table_t, *spinlock.HartState) {
	t.Helper()
	h := spinlock.NewHartState(0)
	layout := boot.ComputeLayout(2048, 200)
	stk := boot.Format(filepath.Join(t.TempDir(), "disk.img"), layout, h)
	files := file.MkTable()
	procs := proc.MkTable(stk.FS, files, stk.Alloc)

	root := stk.FS.Iget(0, fs.ROOTINO, h)
	stk.FS.Ilock(root, h)
	stk.FS.Iunlock(root, h)

	init := procs.Allocproc(h)
	require.NotNil(t, init)
	init.Name = "init"
	init.Cwd = file.MkRootCwd(nil)
	init.State = proc.RUNNABLE
	procs.Init = init
	return procs, h
}

// §8 end-to-end scenario 2: fork-exit-wait. A child forked from a
// running process exits with a status; the parent's Wait must observe
// that exact pid and status, and the child's slot returns to UNUSED.
func TestForkExitWaitRoundTrip(t *testing.T) {
	procs, h := harness(t)
	parent := procs.Allocproc(h)
	require.NotNil(t, parent)
	parent.Name = "parent"
	parent.Cwd = file.MkRootCwd(nil)

	child, err := procs.Fork(parent, h)
	require.Zero(t, err)
	require.Equal(t, proc.RUNNABLE, child.State)
	require.Equal(t, parent, child.Parent)
	require.Zero(t, child.Trapframe.A0, "the child's fork return value must be 0")

	procs.Exit(child, 42, h)
	require.Equal(t, proc.ZOMBIE, child.State)

	pid, status, werr := procs.Wait(parent, h)
	require.Zero(t, werr)
	require.Equal(t, child.Pid, pid)
	require.Equal(t, 42, status)
}

// §8 law: fork/exit/wait balance -- once every forked child has been
// waited on, the number of UNUSED slots returns to its value before any
// forking happened.
func TestForkExitWaitBalanceRestoresFreeSlots(t *testing.T) {
	procs, h := harness(t)
	parent := procs.Allocproc(h)
	parent.Name = "parent"
	parent.Cwd = file.MkRootCwd(nil)

	before := countUnused(procs, h)

	const n = 5
	var kids []*proc.Proc_t
	for i := 0; i < n; i++ {
		c, err := procs.Fork(parent, h)
		require.Zero(t, err)
		kids = append(kids, c)
	}
	require.Equal(t, before-n, countUnused(procs, h))

	for i, c := range kids {
		procs.Exit(c, i, h)
	}
	for range kids {
		_, _, werr := procs.Wait(parent, h)
		require.Zero(t, werr)
	}

	require.Equal(t, before, countUnused(procs, h))
}

// Wait on a process with no children at all fails immediately with
// ECHILD rather than blocking forever (§4.9 wait).
func TestWaitWithNoChildrenFailsImmediately(t *testing.T) {
	procs, h := harness(t)
	parent := procs.Allocproc(h)
	parent.Name = "lonely"
	parent.Cwd = file.MkRootCwd(nil)

	_, _, err := procs.Wait(parent, h)
	require.NotZero(t, err)
}

// A forked child must own its own Cwd_t: sysChdir (syscall/sys_file.go)
// mutates p.Cwd.Fd/Path in place rather than replacing the pointer, so a
// shared *file.Cwd_t would let a child's chdir silently relocate its
// parent too.
func TestForkGivesChildIndependentCwd(t *testing.T) {
	procs, h := harness(t)
	parent := procs.Allocproc(h)
	parent.Name = "parent"
	parent.Cwd = file.MkRootCwd(nil)
	parentPath := append(parent.Cwd.Path[:0:0], parent.Cwd.Path...)

	child, err := procs.Fork(parent, h)
	require.Zero(t, err)
	require.NotSame(t, parent.Cwd, child.Cwd)

	child.Cwd.Path = append(child.Cwd.Path[:0:0], []byte("/elsewhere")...)

	require.Equal(t, parentPath, parent.Cwd.Path)
}

// countUnused relies on Snapshot excluding UNUSED slots by construction.
func countUnused(procs *proc.Table_t, h *spinlock.HartState) int {
	return proc.NPROC - len(procs.Snapshot(h))
}
