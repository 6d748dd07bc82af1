package fs

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/ustr"
)

// Create resolves path's parent, then either returns the existing entry
// (only when typ is T_FILE, matching open(O_CREAT) on an existing
// plain file) or allocates a fresh inode of the given type and links it
// into the parent (§4.6 create, backing open/mkdir/mknod). Directory
// creation additionally links "." and ".." the way mkdir in
// original_source/xv6-riscv-riscv/kernel/sysfile.c does. The caller must
// already be inside a log transaction.
func (fs *FS_t) Create(path ustr.Ustr, typ, major, minor int16, root, cwd *Inode_t, h *spinlock.HartState) (*Inode_t, defs.Err_t) {
	var name ustr.Ustr
	dp, err := fs.Namex(path, true, &name, root, cwd, h)
	if err != 0 {
		return nil, err
	}
	fs.Ilock(dp, h)

	if ip, _ := fs.Dirlookup(dp, name, h); ip != nil {
		fs.IputLocked(dp, h)
		fs.Ilock(ip, h)
		if typ == T_FILE && (ip.Typ == T_FILE || ip.Typ == T_DEV) {
			return ip, 0
		}
		fs.IputLocked(ip, h)
		return nil, -defs.EEXIST
	}

	ip := fs.Ialloc(dp.Dev, typ, h)
	if ip == nil {
		fs.IputLocked(dp, h)
		return nil, -defs.ENOSPC
	}
	fs.Ilock(ip, h)
	ip.Major = major
	ip.Minor = minor
	ip.Nlink = 1
	fs.Iupdate(ip, h)

	if typ == T_DIR {
		dp.Nlink++
		fs.Iupdate(ip, h)
		fs.Iupdate(dp, h)
		if err := fs.Dirlink(ip, ustr.MkUstrDot(), ip.Inum, h); err != 0 {
			fs.Iunlock(ip, h)
			fs.IputLocked(dp, h)
			return nil, err
		}
		if err := fs.Dirlink(ip, ustr.DotDot, dp.Inum, h); err != 0 {
			fs.Iunlock(ip, h)
			fs.IputLocked(dp, h)
			return nil, err
		}
	}
	if err := fs.Dirlink(dp, name, ip.Inum, h); err != 0 {
		fs.Iunlock(ip, h)
		fs.IputLocked(dp, h)
		return nil, err
	}
	fs.IputLocked(dp, h)
	return ip, 0
}
