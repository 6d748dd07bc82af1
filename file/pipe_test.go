package file

import (
	"testing"
	"time"

	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/kalloc"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/vm"
	"github.com/stretchr/testify/require"
)

// userBuf builds a one-page user address space so pipe reads/writes have
// somewhere real to CopyIn/CopyOut through.
func userBuf(t *testing.T) (*vm.AddrSpace_t, *spinlock.HartState) {
	t.Helper()
	h := spinlock.NewHartState(0)
	alloc := kalloc.MkAllocator(0x80000000, 4)
	as := vm.MkAddrSpace(alloc, h)
	require.NotNil(t, as)
	_, err := as.UvmAlloc(0, riscv.PGSIZE, riscv.PTE_R|riscv.PTE_W, h)
	require.Zero(t, err)
	return as, h
}

// A read on an empty pipe blocks until a writer supplies data, then
// returns exactly what was written (§4.10 pipe).
func TestPipeReadBlocksUntilWrite(t *testing.T) {
	sched := proc.MkSched()
	p := MkPipe(sched)
	require.NotNil(t, p)
	as, h := userBuf(t)

	type result struct {
		n   int
		err int
	}
	done := make(chan result, 1)
	go func() {
		rh := spinlock.NewHartState(1)
		n, err := p.Read(as, 0, 5, rh)
		done <- result{n, int(err)}
	}()

	select {
	case <-done:
		t.Fatal("read returned before any data was written")
	case <-time.After(30 * time.Millisecond):
	}

	n, werr := p.Write(as, riscv.PGSIZE/2, 5, h)
	require.Zero(t, werr)
	require.Equal(t, 5, n)

	select {
	case r := <-done:
		require.Zero(t, r.err)
		require.Equal(t, 5, r.n)
	case <-time.After(time.Second):
		t.Fatal("read never woke up after a write")
	}
}

// Writing after every reader has closed fails with EPIPE instead of
// blocking forever (§4.10).
func TestPipeWriteAfterReaderClosedFails(t *testing.T) {
	sched := proc.MkSched()
	p := MkPipe(sched)
	require.NotNil(t, p)
	as, h := userBuf(t)

	p.CloseEnd(false, h) // close the read end

	_, err := p.Write(as, 0, 1, h)
	require.Equal(t, -defs.EPIPE, err)
}

// Reading an empty pipe after the write end closes returns EOF (0, nil
// error) rather than blocking.
func TestPipeReadAfterWriterClosedReturnsEOF(t *testing.T) {
	sched := proc.MkSched()
	p := MkPipe(sched)
	require.NotNil(t, p)
	as, h := userBuf(t)

	p.CloseEnd(true, h) // close the write end

	n, err := p.Read(as, 0, 5, h)
	require.Zero(t, err)
	require.Zero(t, n)
}
