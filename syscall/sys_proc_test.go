package syscall

import (
	"path/filepath"
	"testing"

	"github.com/nicemissing/xv6/boot"
	"github.com/nicemissing/xv6/file"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/vm"
	"github.com/stretchr/testify/require"
)

// §8 end-to-end scenario 5: a freshly forked process grows by 8 pages via
// sbrk and then touches only one of them. Growth must never itself map a
// page (§9 lazy allocation only); exactly one frame is allocated, on the
// first access, by vm.Vmfault.
func TestSysSbrkGrowthIsLazy(t *testing.T) {
	h := spinlock.NewHartState(0)
	layout := boot.ComputeLayout(2048, 200)
	stk := boot.Format(filepath.Join(t.TempDir(), "disk.img"), layout, h)
	files := file.MkTable()
	procs := proc.MkTable(stk.FS, files, stk.Alloc)

	p := procs.Allocproc(h)
	require.NotNil(t, p)
	p.Cwd = file.MkRootCwd(nil)

	const grow = 8
	p.Trapframe.A0 = uint64(grow * riscv.PGSIZE)

	// A forked image already has page-table pages for its low range;
	// build them here so the count below sees only the leaf frame.
	_, ok := vm.Walk(p.As.Alloc, p.As.Root, 0, true, h)
	require.True(t, ok)

	freeBefore := stk.Alloc.FreeCount(h)
	oldsz, err := sysSbrk(nil, p, h)
	require.Zero(t, err)
	require.Zero(t, oldsz, "Allocproc starts a process at size 0")
	require.Equal(t, grow*riscv.PGSIZE, p.Sz)
	require.Equal(t, p.Sz, p.As.Sz)
	require.Equal(t, freeBefore, stk.Alloc.FreeCount(h), "growing Sz must not allocate any frame")

	touched := uint64(3 * riscv.PGSIZE)
	require.Zero(t, p.As.Vmfault(touched, true, h))
	require.Equal(t, freeBefore-1, stk.Alloc.FreeCount(h), "touching one page must allocate exactly one frame")

	for i := 0; i < grow; i++ {
		va := uint64(i * riscv.PGSIZE)
		pa := vm.WalkAddr(p.As.Alloc, p.As.Root, va, h)
		if va == touched {
			require.NotZero(t, pa, "the touched page must now be mapped")
		} else {
			require.Zero(t, pa, "page %d must remain unmapped", i)
		}
	}
}

// Shrinking via a negative sbrk argument unmaps and frees any pages that
// were actually touched, since those physically exist and must not leak.
func TestSysSbrkShrinkFreesMappedPages(t *testing.T) {
	h := spinlock.NewHartState(0)
	layout := boot.ComputeLayout(2048, 200)
	stk := boot.Format(filepath.Join(t.TempDir(), "disk.img"), layout, h)
	files := file.MkTable()
	procs := proc.MkTable(stk.FS, files, stk.Alloc)

	p := procs.Allocproc(h)
	p.Cwd = file.MkRootCwd(nil)

	p.Trapframe.A0 = uint64(4 * riscv.PGSIZE)
	_, err := sysSbrk(nil, p, h)
	require.Zero(t, err)
	require.Zero(t, p.As.Vmfault(0, true, h))

	freeBeforeShrink := stk.Alloc.FreeCount(h)
	p.Trapframe.A0 = uint64(int64(-4 * riscv.PGSIZE))
	oldsz, serr := sysSbrk(nil, p, h)
	require.Zero(t, serr)
	require.Equal(t, 4*riscv.PGSIZE, oldsz)
	require.Zero(t, p.Sz)
	require.Equal(t, freeBeforeShrink+1, stk.Alloc.FreeCount(h), "the one touched page must be freed back")
}
