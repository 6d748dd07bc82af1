package file

import (
	"github.com/nicemissing/xv6/circbuf"
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/vm"
)

// pipeSize is the ring-buffer capacity, xv6-riscv's default
// (original_source/xv6-riscv-riscv/kernel/pipe.c: PIPESIZE).
const pipeSize = 512

// killed reports whether the address space's owning process has been
// marked killed (vm.AddrSpace_t.Killed, set by proc.Allocproc/Exec),
// mirroring xv6-riscv's piperead/pipewrite checking killed(pr) on every
// iteration of their blocking loops (§5 cancellation).
func killed(as *vm.AddrSpace_t) bool {
	return as.Killed != nil && *as.Killed
}

// sleepWaker is the scheduler surface a pipe needs to block a reader
// against an empty buffer or a writer against a full one.
type sleepWaker interface {
	Sleep(chan_ interface{}, lk *spinlock.Lock_t, h *spinlock.HartState)
	Wakeup(chan_ interface{})
}

// Pipe_t is a pipe's shared state, read and written through its two
// File_t ends (§4.10 pipe). Adapted from circbuf.Circbuf_t (see
// circbuf/circbuf.go) plus xv6-riscv's pipe.c open-end bookkeeping:
// closing either end wakes the other side so a blocked reader sees
// EOF and a blocked writer sees a broken pipe instead of hanging
// forever.
type Pipe_t struct {
	guard      *spinlock.Lock_t
	sl         sleepWaker
	buf        *circbuf.Circbuf_t
	readOpen   bool
	writeOpen  bool
}

// MkPipe allocates a pipe's shared buffer, charging the system-wide
// pipe limit (limits.Syslimit.Pipes, limits/limits.go). It returns nil
// when the limit is exhausted.
func MkPipe(sl sleepWaker) *Pipe_t {
	if !pipeLimit() {
		return nil
	}
	return &Pipe_t{
		guard:     spinlock.MkLock("pipe"),
		sl:        sl,
		buf:       circbuf.MkCircbuf(pipeSize),
		readOpen:  true,
		writeOpen: true,
	}
}

// Read copies up to n bytes into the user's address space at dstva,
// blocking while the buffer is empty and the write end is still open
// (§4.10: read from an empty pipe blocks until data arrives or every
// writer closes).
func (p *Pipe_t) Read(as *vm.AddrSpace_t, dstva uint64, n int, h *spinlock.HartState) (int, defs.Err_t) {
	p.guard.Acquire(h)
	defer p.guard.Release(h)
	for p.buf.Empty() && p.writeOpen {
		if killed(as) {
			return 0, -defs.EINTR
		}
		p.sl.Sleep(p, p.guard, h)
	}
	if p.buf.Empty() && !p.writeOpen {
		return 0, 0
	}
	tmp := make([]byte, n)
	got := p.buf.Copyout(tmp)
	p.sl.Wakeup(p)
	if got == 0 {
		return 0, 0
	}
	if err := as.CopyOut(dstva, tmp[:got], h); err != 0 {
		return 0, err
	}
	return got, 0
}

// Write copies n bytes from the user's address space at srcva into
// the pipe, blocking while the buffer is full and the read end is
// still open, failing with EPIPE once every reader has closed
// (§4.10: write to a pipe whose read end is fully closed fails rather
// than blocking forever).
func (p *Pipe_t) Write(as *vm.AddrSpace_t, srcva uint64, n int, h *spinlock.HartState) (int, defs.Err_t) {
	tmp := make([]byte, n)
	if err := as.CopyIn(tmp, srcva, h); err != 0 {
		return 0, err
	}
	p.guard.Acquire(h)
	defer p.guard.Release(h)
	put := 0
	for put < n {
		if !p.readOpen {
			return put, -defs.EPIPE
		}
		for p.buf.Full() && p.readOpen {
			if killed(as) {
				return put, -defs.EINTR
			}
			p.sl.Wakeup(p)
			p.sl.Sleep(p, p.guard, h)
		}
		if !p.readOpen {
			return put, -defs.EPIPE
		}
		put += p.buf.Copyin(tmp[put:])
	}
	p.sl.Wakeup(p)
	return put, 0
}

// CloseEnd marks one end of the pipe closed and wakes the other side;
// once both ends are closed the buffer is released and the system
// pipe-count charge is given back.
func (p *Pipe_t) CloseEnd(wasWriteEnd bool, h *spinlock.HartState) {
	p.guard.Acquire(h)
	if wasWriteEnd {
		p.writeOpen = false
	} else {
		p.readOpen = false
	}
	both := !p.readOpen && !p.writeOpen
	p.guard.Release(h)
	p.sl.Wakeup(p)
	if both {
		pipeUnlimit()
	}
}
