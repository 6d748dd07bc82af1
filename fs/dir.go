package fs

import (
	"unsafe"

	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/ustr"
)

func direntBytes(de *rawDirent) []byte {
	return (*[DirentSize]byte)(unsafe.Pointer(de))[:]
}

// Dirlookup scans dp's directory entries linearly for name, returning
// the referenced (unlocked) inode and the byte offset of its entry
// (§4.6 dirlookup). dp must already be locked.
func (fs *FS_t) Dirlookup(dp *Inode_t, name ustr.Ustr, h *spinlock.HartState) (*Inode_t, int) {
	if dp.Typ != T_DIR {
		return nil, 0
	}
	var de rawDirent
	buf := direntBytes(&de)
	for off := 0; off < int(dp.Size); off += DirentSize {
		n, err := fs.ReadiKernel(dp, buf, off, DirentSize, h)
		if err != 0 || n != DirentSize {
			break
		}
		if de.Inum == 0 {
			continue
		}
		if direntNameEq(de.Name[:], name) {
			return fs.Iget(dp.Dev, int(de.Inum), h), off
		}
	}
	return nil, 0
}

// Dirlink writes a new entry (name, inum) into dp's data, reusing the
// first free slot or appending (§4.6 dirlink). It fails if name already
// exists.
func (fs *FS_t) Dirlink(dp *Inode_t, name ustr.Ustr, inum int, h *spinlock.HartState) defs.Err_t {
	if ip, _ := fs.Dirlookup(dp, name, h); ip != nil {
		fs.Iput(ip, h)
		return -defs.EEXIST
	}
	var de rawDirent
	buf := direntBytes(&de)
	off := 0
	for ; off < int(dp.Size); off += DirentSize {
		n, err := fs.ReadiKernel(dp, buf, off, DirentSize, h)
		if err != 0 || n != DirentSize {
			return -defs.EIO
		}
		if de.Inum == 0 {
			break
		}
	}
	de.Inum = uint16(inum)
	for i := range de.Name {
		de.Name[i] = 0
	}
	copy(de.Name[:], []byte(name))
	if _, err := fs.WriteiKernel(dp, buf, off, DirentSize, h); err != 0 {
		return err
	}
	return 0
}

func direntNameEq(raw []byte, name ustr.Ustr) bool {
	n := len(name)
	if n > DIRSIZ {
		n = DIRSIZ
	}
	for i := 0; i < DIRSIZ; i++ {
		var want byte
		if i < n {
			want = name[i]
		}
		if raw[i] != want {
			return false
		}
	}
	return true
}
