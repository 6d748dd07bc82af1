package fs

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/ustr"
)

// isDirEmpty reports whether dp, a locked directory, has no entry
// besides "." and ".." (§4.6, the unlink-on-directory guard).
func (fs *FS_t) isDirEmpty(dp *Inode_t, h *spinlock.HartState) bool {
	var de rawDirent
	buf := direntBytes(&de)
	for off := 2 * DirentSize; off < int(dp.Size); off += DirentSize {
		n, err := fs.ReadiKernel(dp, buf, off, DirentSize, h)
		if err != 0 || n != DirentSize {
			return false
		}
		if de.Inum != 0 {
			return false
		}
	}
	return true
}

// Unlink removes path's directory entry and drops the target's link
// count, freeing it once both the link count and open-reference count
// reach zero (§4.6 unlink). The caller must already be inside a log
// transaction.
func (fs *FS_t) Unlink(path ustr.Ustr, root, cwd *Inode_t, h *spinlock.HartState) defs.Err_t {
	var name ustr.Ustr
	dp, derr := fs.Namex(path, true, &name, root, cwd, h)
	if derr != 0 {
		return derr
	}
	fs.Ilock(dp, h)
	defer fs.IputLocked(dp, h)

	if name.Isdot() || name.Isdotdot() {
		return -defs.EPERM
	}

	ip, off := fs.Dirlookup(dp, name, h)
	if ip == nil {
		return -defs.ENOENT
	}
	fs.Ilock(ip, h)

	if ip.Nlink < 1 {
		fs.IputLocked(ip, h)
		return -defs.EPERM
	}
	if ip.Typ == T_DIR && !fs.isDirEmpty(ip, h) {
		fs.IputLocked(ip, h)
		return -defs.ENOTEMPTY
	}

	var zero rawDirent
	if _, err := fs.WriteiKernel(dp, direntBytes(&zero), off, DirentSize, h); err != 0 {
		fs.IputLocked(ip, h)
		return err
	}
	if ip.Typ == T_DIR {
		dp.Nlink--
		fs.Iupdate(dp, h)
	}
	ip.Nlink--
	fs.Iupdate(ip, h)
	fs.IputLocked(ip, h)
	return 0
}

// Link adds a new name for an existing file, bumping its link count
// (§4.6 link). Directories cannot be hard-linked. The caller must
// already be inside a log transaction.
func (fs *FS_t) Link(oldpath, newpath ustr.Ustr, root, cwd *Inode_t, h *spinlock.HartState) defs.Err_t {
	ip, err := fs.Namex(oldpath, false, nil, root, cwd, h)
	if err != 0 {
		return err
	}
	fs.Ilock(ip, h)
	if ip.Typ == T_DIR {
		fs.IputLocked(ip, h)
		return -defs.EPERM
	}
	ip.Nlink++
	fs.Iupdate(ip, h)
	fs.Iunlock(ip, h)

	var name ustr.Ustr
	dp, derr := fs.Namex(newpath, true, &name, root, cwd, h)
	if derr != 0 {
		fs.Ilock(ip, h)
		ip.Nlink--
		fs.Iupdate(ip, h)
		fs.IputLocked(ip, h)
		return derr
	}
	fs.Ilock(dp, h)
	if dp.Dev != ip.Dev {
		fs.IputLocked(dp, h)
		fs.Ilock(ip, h)
		ip.Nlink--
		fs.Iupdate(ip, h)
		fs.IputLocked(ip, h)
		return -defs.EXDEV
	}
	if lerr := fs.Dirlink(dp, name, ip.Inum, h); lerr != 0 {
		fs.IputLocked(dp, h)
		fs.Ilock(ip, h)
		ip.Nlink--
		fs.Iupdate(ip, h)
		fs.IputLocked(ip, h)
		return lerr
	}
	fs.IputLocked(dp, h)
	fs.Iput(ip, h)
	return 0
}
