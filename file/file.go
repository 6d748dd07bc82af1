// Package file is the open-file table (§3 Open files). It is adapted
// from the teacher's fd.Fd_t/Cwd_t (fd/fd.go): Copyfd's
// shallow-copy-then-Reopen pattern and Cwd_t's Fullpath/Canonicalpath
// carry over, generalized from the teacher's single Fops indirection
// into the spec's three explicit variant tags (PIPE, INODE, DEVICE)
// sharing one fixed-size global table, since biscuit instead gives
// every file kind its own heap-allocated type reachable only through
// the Fdops_i interface.
package file

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/fdops"
	"github.com/nicemissing/xv6/fs"
	"github.com/nicemissing/xv6/limits"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/vm"
)

// NFILE is the size of the global open-file table, xv6-riscv's
// default (original_source/xv6-riscv-riscv/kernel/param.h: NFILE).
const NFILE = 100

// Variant tags for a File_t's payload (§3 Open files).
type Variant int

const (
	FD_NONE Variant = iota
	FD_PIPE
	FD_INODE
	FD_DEVICE
)

// File_t is one slot of the global table. Only the fields relevant to
// its Variant are meaningful; Ip is shared by INODE and DEVICE since a
// device file is still backed by a dinode (major/minor live in the
// dinode, §3 Inodes on disk).
type File_t struct {
	guard    *spinlock.Lock_t
	variant  Variant
	ref      int
	readable bool
	writable bool
	appendf  bool

	fs     *fs.FS_t
	ip     *fs.Inode_t
	off    int
	pipe   *Pipe_t
	major  int16
}

var _ fdops.Fdops_i = (*File_t)(nil)

// Inode returns the backing dinode of an INODE or DEVICE file, for
// callers (namex-based syscalls) that need a starting directory rather
// than a stream to read/write.
func (f *File_t) Inode() *fs.Inode_t { return f.ip }

// Table_t is the global fixed-size file table (§3: "A global
// fixed-size table of file-handle records").
type Table_t struct {
	guard *spinlock.Lock_t
	slots [NFILE]*File_t
}

// MkTable allocates an empty table.
func MkTable() *Table_t {
	return &Table_t{guard: spinlock.MkLock("ftable")}
}

// Alloc reserves a free slot and returns it with ref count 1, or nil
// if the table is full (§7: recoverable syscall failure, not a
// panic -- a process opening too many files is user error, not a
// kernel invariant violation).
func (t *Table_t) Alloc(h *spinlock.HartState) *File_t {
	t.guard.Acquire(h)
	defer t.guard.Release(h)
	for i := range t.slots {
		if t.slots[i] == nil {
			f := &File_t{guard: spinlock.MkLock("file"), ref: 1}
			t.slots[i] = f
			return f
		}
	}
	return nil
}

func (t *Table_t) free(f *File_t, h *spinlock.HartState) {
	t.guard.Acquire(h)
	for i := range t.slots {
		if t.slots[i] == f {
			t.slots[i] = nil
			break
		}
	}
	t.guard.Release(h)
}

var table *Table_t

// SetTable installs the process-visible global table; cmd/kernel
// calls this once during boot before any process opens a file.
func SetTable(t *Table_t) { table = t }

// MkInodeFile wires a newly opened regular file or directory's dinode
// into a fresh table slot (§4.10 open).
func MkInodeFile(t *Table_t, fsys *fs.FS_t, ip *fs.Inode_t, readable, writable, appendf bool, h *spinlock.HartState) *File_t {
	f := t.Alloc(h)
	if f == nil {
		return nil
	}
	f.variant = FD_INODE
	f.fs = fsys
	f.ip = ip
	f.readable = readable
	f.writable = writable
	f.appendf = appendf
	return f
}

// MkDeviceFile wires a character device dinode (T_DEV) into a fresh
// slot; major identifies which entry of the device registry (devsw,
// below) services it. Console/UART specifics are out of scope (§1
// Non-goals); this dispatch exists so the DEVICE variant is not dead
// code and so a future device can be added without touching File_t.
func MkDeviceFile(t *Table_t, ip *fs.Inode_t, major int16, readable, writable bool, h *spinlock.HartState) *File_t {
	f := t.Alloc(h)
	if f == nil {
		return nil
	}
	f.variant = FD_DEVICE
	f.ip = ip
	f.major = major
	f.readable = readable
	f.writable = writable
	return f
}

// MkPipeFile wires one end of a pipe into a fresh slot.
func MkPipeFile(t *Table_t, p *Pipe_t, writeEnd bool, h *spinlock.HartState) *File_t {
	f := t.Alloc(h)
	if f == nil {
		return nil
	}
	f.variant = FD_PIPE
	f.pipe = p
	f.readable = !writeEnd
	f.writable = writeEnd
	return f
}

// Read implements fdops.Fdops_i (§4.10 read).
func (f *File_t) Read(as *vm.AddrSpace_t, dstva uint64, n int, h *spinlock.HartState) (int, defs.Err_t) {
	if !f.readable {
		return 0, -defs.EBADF
	}
	switch f.variant {
	case FD_PIPE:
		return f.pipe.Read(as, dstva, n, h)
	case FD_INODE, FD_DEVICE:
		if f.variant == FD_DEVICE {
			dev := lookupDevice(f.major)
			if dev == nil || dev.Read == nil {
				return 0, -defs.EINVAL
			}
			return dev.Read(as, dstva, n, h)
		}
		f.guard.Acquire(h)
		f.fs.Ilock(f.ip, h)
		got, err := f.fs.ReadiUser(f.ip, as, dstva, f.off, n, h)
		if err == 0 {
			f.off += got
		}
		f.fs.Iunlock(f.ip, h)
		f.guard.Release(h)
		return got, err
	}
	return 0, -defs.EINVAL
}

// Write implements fdops.Fdops_i (§4.10 write).
func (f *File_t) Write(as *vm.AddrSpace_t, srcva uint64, n int, h *spinlock.HartState) (int, defs.Err_t) {
	if !f.writable {
		return 0, -defs.EBADF
	}
	switch f.variant {
	case FD_PIPE:
		return f.pipe.Write(as, srcva, n, h)
	case FD_INODE, FD_DEVICE:
		if f.variant == FD_DEVICE {
			dev := lookupDevice(f.major)
			if dev == nil || dev.Write == nil {
				return 0, -defs.EINVAL
			}
			return dev.Write(as, srcva, n, h)
		}
		f.guard.Acquire(h)
		f.fs.Ilock(f.ip, h)
		if f.appendf {
			f.off = int(f.fs.Isize(f.ip))
		}
		f.fs.Log.BeginOp(h)
		got, err := f.fs.WriteiUser(f.ip, as, srcva, f.off, n, h)
		f.fs.Log.EndOp(h)
		if err == 0 {
			f.off += got
		}
		f.fs.Iunlock(f.ip, h)
		f.guard.Release(h)
		return got, err
	}
	return 0, -defs.EINVAL
}

// Lseek implements fdops.Fdops_i; pipes cannot be repositioned.
func (f *File_t) Lseek(off int, whence int, h *spinlock.HartState) (int, defs.Err_t) {
	if f.variant != FD_INODE {
		return 0, -defs.EINVAL
	}
	f.guard.Acquire(h)
	defer f.guard.Release(h)
	switch whence {
	case defs.SEEK_SET:
		f.off = off
	case defs.SEEK_CUR:
		f.off += off
	case defs.SEEK_END:
		f.off = int(f.fs.Isize(f.ip)) + off
	default:
		return 0, -defs.EINVAL
	}
	if f.off < 0 {
		f.off = 0
		return 0, -defs.EINVAL
	}
	return f.off, 0
}

// Fstat implements fdops.Fdops_i (§4.10 fstat).
func (f *File_t) Fstat(st fdops.StatWriter, h *spinlock.HartState) defs.Err_t {
	if f.variant == FD_PIPE {
		return -defs.EINVAL
	}
	f.fs.Ilock(f.ip, h)
	f.fs.Stat(f.ip, st)
	f.fs.Iunlock(f.ip, h)
	return 0
}

// Close implements fdops.Fdops_i: drops this slot's reference, and on
// the last reference releases the underlying resource (§3 "reference
// count (covers all pointer holders)").
func (f *File_t) Close(h *spinlock.HartState) defs.Err_t {
	f.guard.Acquire(h)
	f.ref--
	last := f.ref == 0
	f.guard.Release(h)
	if !last {
		return 0
	}
	switch f.variant {
	case FD_PIPE:
		f.pipe.CloseEnd(f.writable, h)
	case FD_INODE, FD_DEVICE:
		f.fs.Log.BeginOp(h)
		f.fs.Iput(f.ip, h)
		f.fs.Log.EndOp(h)
	}
	table.free(f, h)
	return 0
}

// Reopen implements fdops.Fdops_i, called by proc.Fork and sysDup when
// a second descriptor slot comes to share f, giving it its own
// independent close.
func (f *File_t) Reopen(h *spinlock.HartState) defs.Err_t {
	f.guard.Acquire(h)
	f.ref++
	f.guard.Release(h)
	return 0
}

// deviceOps is one character device's read/write entry points,
// indexed by major number (§3 Open files: "inode pointer plus major
// device number"). No concrete device is registered by default since
// console/UART specifics are out of scope (§1 Non-goals); nothing in
// this module, tests included, calls RegisterDevice.
type deviceOps struct {
	Read  func(as *vm.AddrSpace_t, dstva uint64, n int, h *spinlock.HartState) (int, defs.Err_t)
	Write func(as *vm.AddrSpace_t, srcva uint64, n int, h *spinlock.HartState) (int, defs.Err_t)
}

var devsw [8]*deviceOps

func lookupDevice(major int16) *deviceOps {
	if major < 0 || int(major) >= len(devsw) {
		return nil
	}
	return devsw[major]
}

// RegisterDevice installs the read/write entry points for major.
func RegisterDevice(major int16, read, write func(as *vm.AddrSpace_t, dstva uint64, n int, h *spinlock.HartState) (int, defs.Err_t)) {
	devsw[major] = &deviceOps{Read: read, Write: write}
}

// pipeLimit caps the number of live pipes system-wide, reusing the
// teacher's limits.Syslimit.Pipes counter (limits/limits.go) instead of
// an unbounded allocation.
func pipeLimit() bool { return limits.Syslimit.Pipes.Take() }
func pipeUnlimit()     { limits.Syslimit.Pipes.Give() }
