// Package syscall is the thin argument-fetch-and-dispatch layer over
// the process, file, and file-system packages (§4.10 System calls:
// "in scope only as a thin layer over the above"). There is no teacher
// file to ground it on -- biscuit's syscall surface is POSIX-shaped and
// routes through its own fd.Fd_t/Proc_t -- so the handler set and the
// argument-fetch helpers below are written against
// original_source/xv6-riscv-riscv/kernel/sysproc.c and sysfile.c,
// translated into this module's own proc/file/fs types.
package syscall

import (
	"github.com/nicemissing/xv6/clock"
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/file"
	"github.com/nicemissing/xv6/fs"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/ustr"
)

// MAXPATH bounds a path or arg string copied in from user space
// (xv6-riscv's param.h MAXPATH).
const MAXPATH = 128

// MAXARG is the largest argv exec accepts.
const MAXARG = 32

// Sys_t bundles the kernel subsystems a syscall handler needs. cmd/kernel
// constructs exactly one and wires it into the trap dispatcher.
type Sys_t struct {
	Procs *proc.Table_t
	Files *file.Table_t
	FS    *fs.FS_t
	Root  *fs.Inode_t
	Ticks *clock.Ticks_t
}

func argRaw(p *proc.Proc_t, n int) uint64 {
	switch n {
	case 0:
		return p.Trapframe.A0
	case 1:
		return p.Trapframe.A1
	case 2:
		return p.Trapframe.A2
	case 3:
		return p.Trapframe.A3
	case 4:
		return p.Trapframe.A4
	case 5:
		return p.Trapframe.A5
	default:
		return 0
	}
}

func argInt(p *proc.Proc_t, n int) int { return int(int64(argRaw(p, n))) }

// argStr copies a NUL-terminated string argument in from user space
// (§4.10, the copy_instr-backed argument fetch every path-taking
// syscall performs first).
func argStr(p *proc.Proc_t, n int, h *spinlock.HartState) (ustr.Ustr, defs.Err_t) {
	buf := make([]byte, MAXPATH)
	if err := p.As.CopyInStr(buf, argRaw(p, n), MAXPATH, h); err != 0 {
		return nil, err
	}
	return ustr.MkUstrSlice(buf), 0
}

// argFd resolves argument n to an open file, failing with EBADF for an
// out-of-range or empty slot (§4.10 read/write/close/dup/fstat
// share this check).
func argFd(p *proc.Proc_t, n int) (int, *file.File_t, defs.Err_t) {
	fd := argInt(p, n)
	if fd < 0 || fd >= proc.NOFILE || p.Ofile[fd] == nil {
		return 0, nil, -defs.EBADF
	}
	return fd, p.Ofile[fd], 0
}

// fdAlloc installs f into p's lowest free descriptor slot.
func fdAlloc(p *proc.Proc_t, f *file.File_t) (int, defs.Err_t) {
	for i := range p.Ofile {
		if p.Ofile[i] == nil {
			p.Ofile[i] = f
			return i, 0
		}
	}
	return 0, -defs.EMFILE
}

// root/cwd resolves the two starting inodes Namex-based fs calls need;
// every path syscall below calls this once.
func (s *Sys_t) rootAndCwd(p *proc.Proc_t) (*fs.Inode_t, *fs.Inode_t) {
	return s.Root, p.Cwd.Fd.Inode()
}

// Dispatch decodes the syscall number in a7 and runs the matching
// handler (§4.8 Usertrap: "dispatch the syscall by number"). It returns
// the raw a0 value the trap-return path installs into the trapframe;
// callers needing the richer defs.Err_t (to log, say) get it back too.
func (s *Sys_t) Dispatch(p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t) {
	num := p.Trapframe.A7
	handler, ok := table[num]
	if !ok {
		return badReturn, -defs.EINVAL
	}
	return handler(s, p, h)
}

// badReturn is the ABI's generic failure value (§6 Syscall ABI:
// "Return -1 on failure for all calls except those specified
// otherwise").
const badReturn = ^uint64(0)

type handlerFunc func(s *Sys_t, p *proc.Proc_t, h *spinlock.HartState) (uint64, defs.Err_t)

var table = map[uint64]handlerFunc{
	SYS_fork:   sysFork,
	SYS_exit:   sysExit,
	SYS_wait:   sysWait,
	SYS_exec:   sysExec,
	SYS_kill:   sysKill,
	SYS_getpid: sysGetpid,
	SYS_sbrk:   sysSbrk,
	SYS_sleep:  sysSleep,
	SYS_open:   sysOpen,
	SYS_close:  sysClose,
	SYS_read:   sysRead,
	SYS_write:  sysWrite,
	SYS_dup:    sysDup,
	SYS_fstat:  sysFstat,
	SYS_link:   sysLink,
	SYS_unlink: sysUnlink,
	SYS_mkdir:  sysMkdir,
	SYS_chdir:  sysChdir,
	SYS_pipe:   sysPipe,
}

// Syscall numbers, matching
// original_source/xv6-riscv-riscv/kernel/syscall.h so a binary built
// against that header's conventions still dispatches correctly here.
const (
	SYS_fork   = 1
	SYS_exit   = 2
	SYS_wait   = 3
	SYS_pipe   = 4
	SYS_read   = 5
	SYS_kill   = 6
	SYS_exec   = 7
	SYS_fstat  = 8
	SYS_chdir  = 9
	SYS_dup    = 10
	SYS_getpid = 11
	SYS_sbrk   = 12
	SYS_sleep  = 13
	SYS_open   = 15
	SYS_write  = 16
	SYS_unlink = 18
	SYS_link   = 19
	SYS_mkdir  = 20
	SYS_close  = 21
)
