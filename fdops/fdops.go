// Package fdops defines the operations every kind of open file must
// support (§3 Open files). It is grounded on the teacher's fd.Fd_t,
// whose Fops field is typed fdops.Fdops_i in fd/fd.go, but the
// interface itself is rebuilt around this kernel's vm.AddrSpace_t
// user-copy calls instead of the teacher's Userio_i abstraction --
// there is exactly one address-space representation here, so a
// userspace read/write takes the destination/source user virtual
// address and the calling process's AddrSpace_t directly rather than
// going through an intermediate copy-in/copy-out object.
package fdops

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/vm"
)

// Fdops_i is the operation set an open file (inode, pipe end, or
// device) must implement; file.File_t implements it for every
// variant (§4.10 read/write/close/dup/fstat).
type Fdops_i interface {
	// Read copies up to n bytes starting at the file's current
	// offset into the caller's address space at dstva, advancing the
	// offset by the amount actually transferred.
	Read(as *vm.AddrSpace_t, dstva uint64, n int, h *spinlock.HartState) (int, defs.Err_t)
	// Write copies n bytes from the caller's address space at srcva
	// into the file starting at its current offset (or at EOF when
	// the descriptor was opened O_APPEND), advancing the offset.
	Write(as *vm.AddrSpace_t, srcva uint64, n int, h *spinlock.HartState) (int, defs.Err_t)
	// Fstat fills st with this file's metadata (§4.10 fstat).
	Fstat(st StatWriter, h *spinlock.HartState) defs.Err_t
	// Lseek repositions the file's offset per whence (§4.10 SEEK_*).
	Lseek(off int, whence int, h *spinlock.HartState) (int, defs.Err_t)
	// Close drops this descriptor's reference, releasing the
	// underlying resource once the last reference is gone.
	Close(h *spinlock.HartState) defs.Err_t
	// Reopen bumps the underlying resource's refcount; proc.Fork and
	// sysDup call it when a second descriptor slot comes to share the
	// same open file, so each slot owns an independent close (§3 "duplicated descriptors share an
	// offset").
	Reopen(h *spinlock.HartState) defs.Err_t
}

// StatWriter is the subset of stat.Stat_t's setters Fstat needs; kept
// as an interface here so fdops does not import the stat package
// (which in turn would pull unsafe-pointer layout assumptions into
// every Fdops_i implementer's import graph unnecessarily).
type StatWriter interface {
	Wdev(uint)
	Wino(uint)
	Wmode(uint)
	Wsize(uint)
	Wrdev(uint)
}
