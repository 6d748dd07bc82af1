package file

import (
	"sync"

	"github.com/nicemissing/xv6/bpath"
	"github.com/nicemissing/xv6/ustr"
)

// Cwd_t tracks a process's current working directory (§3 Processes:
// "current working directory inode"). Adapted from the teacher's
// fd.Cwd_t (fd/fd.go): Fullpath/Canonicalpath carry over unchanged, with
// Fd retyped from the teacher's fd.Fd_t to this package's own File_t
// since File_t already plays the role the teacher splits across Fd_t
// and its Fops indirection.
type Cwd_t struct {
	sync.Mutex
	Fd   *File_t
	Path ustr.Ustr
}

// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	full := append(append(ustr.Ustr{}, cwd.Path...), '/')
	return append(full, p...)
}

// Canonicalpath resolves path components relative to cwd.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	return bpath.Canonicalize(cwd.Fullpath(p))
}

// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(fd *File_t) *Cwd_t {
	return &Cwd_t{Fd: fd, Path: ustr.MkUstrRoot()}
}
