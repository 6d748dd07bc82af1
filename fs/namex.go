package fs

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/ustr"
)

// skipelem strips leading slashes from path, returns the next component
// and the remaining (slash-stripped-at-front) path, and reports whether
// a component was found at all.
func skipelem(path ustr.Ustr) (elem ustr.Ustr, rest ustr.Ustr, ok bool) {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if len(path) == 0 {
		return nil, nil, false
	}
	i := path.IndexByte('/')
	if i < 0 {
		return path, nil, true
	}
	return path[:i], path[i+1:], true
}

// Namex resolves path starting from root (if path is absolute) or cwd,
// one component at a time, locking each directory in turn (§4.6
// namex). When wantParent is true and the final component remains
// unresolved, it returns the parent directory and copies the final
// component's name into lastName; otherwise it returns the resolved
// inode itself. Failure returns nil without leaking any inode
// reference.
func (fs *FS_t) Namex(path ustr.Ustr, wantParent bool, lastName *ustr.Ustr, root, cwd *Inode_t, h *spinlock.HartState) (*Inode_t, defs.Err_t) {
	var ip *Inode_t
	if path.IsAbsolute() {
		ip = root
		fs.itableGuard.Acquire(h)
		ip.ref++
		fs.itableGuard.Release(h)
	} else {
		ip = cwd
		fs.itableGuard.Acquire(h)
		ip.ref++
		fs.itableGuard.Release(h)
	}

	rest := path
	for {
		var elem ustr.Ustr
		var ok bool
		elem, rest, ok = skipelem(rest)
		if !ok {
			break
		}
		fs.Ilock(ip, h)
		if ip.Typ != T_DIR {
			fs.IputLocked(ip, h)
			return nil, -defs.ENOTDIR
		}
		if wantParent && len(rest) == 0 {
			fs.Iunlock(ip, h)
			*lastName = elem
			return ip, 0
		}
		next, _ := fs.Dirlookup(ip, elem, h)
		if next == nil {
			fs.IputLocked(ip, h)
			return nil, -defs.ENOENT
		}
		fs.IputLocked(ip, h)
		ip = next
	}
	if wantParent {
		fs.Iput(ip, h)
		return nil, -defs.ENOENT
	}
	return ip, 0
}
