package syscall

import (
	"github.com/nicemissing/xv6/clock"
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/ustr"
)

func sysFork(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	child, err := s.Procs.Fork(p, h)
	if err != 0 {
		return badReturn, err
	}
	return uint64(child.Pid), 0
}

// sysExit never returns to the caller of Dispatch in spirit (§4.9 exit:
// "enter the scheduler via sched (never returns)"); in this hosted
// model the goroutine driving p's syscalls simply stops issuing them
// once it observes p's state as ZOMBIE.
func sysExit(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	status := argInt(p, 0)
	s.Procs.Exit(p, status, h)
	return 0, 0
}

func sysWait(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	addr := argRaw(p, 0)
	pid, status, err := s.Procs.Wait(p, h)
	if err != 0 {
		return badReturn, err
	}
	if addr != 0 {
		var buf [4]byte
		for i := 0; i < 4; i++ {
			buf[i] = byte(status >> (8 * i))
		}
		if cerr := p.As.CopyOut(addr, buf[:], h); cerr != 0 {
			return badReturn, cerr
		}
	}
	return uint64(pid), 0
}

func sysExec(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	path, err := argStr(p, 0, h)
	if err != 0 {
		return badReturn, err
	}
	argv, err := fetchArgv(p, argRaw(p, 1), h)
	if err != 0 {
		return badReturn, err
	}
	root, cwd := s.rootAndCwd(p)
	if err := s.Procs.Exec(p, path, argv, root, cwd, h); err != 0 {
		return badReturn, err
	}
	return uint64(len(argv)), 0
}

// fetchArgv reads the NUL-terminated array of user string pointers at
// uargv (§6 Syscall ABI argv convention) into a kernel-side []string,
// resolving each one with CopyInStr.
func fetchArgv(p *proc.Proc_t, uargv uint64, h *spinlock.HartState) ([]string, defs.Err_t) {
	var argv []string
	for i := 0; i < MAXARG; i++ {
		var ptrBuf [8]byte
		if err := p.As.CopyIn(ptrBuf[:], uargv+uint64(i*8), h); err != 0 {
			return nil, err
		}
		var uptr uint64
		for b := 0; b < 8; b++ {
			uptr |= uint64(ptrBuf[b]) << (8 * b)
		}
		if uptr == 0 {
			return argv, 0
		}
		buf := make([]byte, MAXPATH)
		if err := p.As.CopyInStr(buf, uptr, MAXPATH, h); err != 0 {
			return nil, err
		}
		argv = append(argv, ustr.MkUstrSlice(buf).String())
	}
	return nil, -defs.EINVAL
}

func sysKill(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	pid := argInt(p, 0)
	if err := s.Procs.Kill(defs.Pid_t(pid), h); err != 0 {
		return badReturn, err
	}
	return 0, 0
}

func sysGetpid(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	return uint64(p.Pid), 0
}

// sysSbrk grows or shrinks p's address space by n bytes, returning the
// old size on success, mirroring xv6's brk-returns-old-break
// convention. Growth never maps a page itself (§9: this core documents
// lazy allocation only) -- it just raises p.Sz/p.As.Sz so that
// vm.Vmfault can fill pages in one at a time on first touch (§8
// boundary scenario 5: forking, growing by 8 pages, and writing to only
// one of them must allocate exactly one frame). Shrinking still walks
// and frees any pages that do happen to be mapped, since those
// physically exist and must not leak.
func sysSbrk(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	n := argInt(p, 0)
	oldsz := p.Sz
	if n >= 0 {
		newsz := oldsz + n
		if newsz < oldsz || uint64(newsz) >= riscv.TRAPFRAME {
			return badReturn, -defs.ENOMEM
		}
		p.Sz = newsz
		p.As.Sz = newsz
	} else {
		newsz := p.As.UvmDealloc(oldsz, oldsz+n, h)
		p.Sz = newsz
	}
	return uint64(oldsz), 0
}

func sysSleep(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	n := argInt(p, 0)
	if n <= 0 {
		return 0, 0
	}
	start := s.Ticks.Get(h)
	for s.Ticks.Get(h)-start < n {
		if p.Killed {
			return badReturn, -defs.EINVAL
		}
		s.Ticks.Guard.Acquire(h)
		s.Procs.Sleep(p, clock.Chan, s.Ticks.Guard, h)
		s.Ticks.Guard.Release(h)
	}
	return 0, 0
}
