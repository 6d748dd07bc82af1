// Package defs holds the identifiers shared by every layer of the kernel:
// the syscall error-code type, open/seek flags, and the thread/process id
// types. Keeping them in one leaf package (grounded on the teacher's own
// defs package) avoids import cycles between vm, fs, file, and proc.
package defs

// Err_t is a syscall error code. Zero means success; a nonzero value is
// always negative, mirroring the convention that a syscall handler
// returns -errno directly as its a0 value (§6 Syscall ABI).
type Err_t int

// Errno values implemented by this core. Only the codes actually produced
// by a handler below are listed; there is no attempt at POSIX completeness
// (§1 Non-goals).
const (
	EPERM         Err_t = 1
	ENOENT        Err_t = 2
	ESRCH         Err_t = 3
	EINTR         Err_t = 4
	EIO           Err_t = 5
	EBADF         Err_t = 9
	ECHILD        Err_t = 10
	ENOMEM        Err_t = 12
	EEXIST        Err_t = 17
	EFAULT        Err_t = 14
	ENOTDIR       Err_t = 20
	EISDIR        Err_t = 21
	EINVAL        Err_t = 22
	ENFILE        Err_t = 23
	EMFILE        Err_t = 24
	EFBIG         Err_t = 27
	ENOSPC        Err_t = 28
	EROFS         Err_t = 30
	EMLINK        Err_t = 31
	ENAMETOOLONG  Err_t = 36
	ENOTEMPTY     Err_t = 39
	EPIPE         Err_t = 32
	EXDEV         Err_t = 18
)

// Tid_t names a logical kernel thread (one per process in this core --
// there is no user-level threading, so Tid_t and Pid_t coincide).
type Tid_t int

// Pid_t names a process.
type Pid_t int

// Open-call flags, §4.10 / §6.
const (
	O_RDONLY = 0
	O_WRONLY = 1
	O_RDWR   = 2
	O_CREAT  = 0x40
	O_TRUNC  = 0x200
	O_APPEND = 0x400
)

// Lseek whence values.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// File-type tags, shared between the in-memory inode and the stat result.
const (
	T_UNUSED = 0
	T_DIR    = 1
	T_FILE   = 2
	T_DEV    = 3
)
