package fs

import (
	"github.com/nicemissing/xv6/defs"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/vm"
)

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// readi walks off-aligned chunks of ip's data, bmap-ing and bread-ing
// each logical block, and hands the in-cache bytes to copyOut (§4.6
// readi/writei). The two exported wrappers below supply copyOut for a
// kernel destination or a user address space.
func (fs *FS_t) readi(ip *Inode_t, off, n int, h *spinlock.HartState, copyOut func(buf []byte, tot int) defs.Err_t) (int, defs.Err_t) {
	if off < 0 || off > int(ip.Size) || off+n < off {
		return 0, -defs.EINVAL
	}
	if off+n > int(ip.Size) {
		n = int(ip.Size) - off
	}
	tot := 0
	for tot < n {
		bn := fs.Bmap(ip, off/BSIZE, h)
		b := fs.Cache.Bread(ip.Dev, bn, h)
		boff := off % BSIZE
		m := minInt(n-tot, BSIZE-boff)
		err := copyOut(b.Data[boff:boff+m], tot)
		fs.Cache.Brelse(b, h)
		if err != 0 {
			return tot, err
		}
		tot += m
		off += m
	}
	return tot, 0
}

// ReadiKernel reads into a kernel-owned destination slice.
func (fs *FS_t) ReadiKernel(ip *Inode_t, dst []byte, off, n int, h *spinlock.HartState) (int, defs.Err_t) {
	return fs.readi(ip, off, n, h, func(buf []byte, tot int) defs.Err_t {
		copy(dst[tot:], buf)
		return 0
	})
}

// ReadiUser reads into a user address space at dstva, page-faulting in
// destination pages on demand via as.CopyOut (§4.3 copy_out).
func (fs *FS_t) ReadiUser(ip *Inode_t, as *vm.AddrSpace_t, dstva uint64, off, n int, h *spinlock.HartState) (int, defs.Err_t) {
	return fs.readi(ip, off, n, h, func(buf []byte, tot int) defs.Err_t {
		return as.CopyOut(dstva+uint64(tot), buf, h)
	})
}

// writei is readi's mirror: it grows ip.Size and always calls Iupdate,
// since bmap may have allocated a fresh indirect block even when no
// byte actually changed (§4.6 writei). A write that would push the
// file past MAXFILE*BSIZE fails outright before touching any block.
func (fs *FS_t) writei(ip *Inode_t, off, n int, h *spinlock.HartState, copyIn func(buf []byte, tot int) defs.Err_t) (int, defs.Err_t) {
	if off < 0 || off+n < off {
		return 0, -defs.EINVAL
	}
	if off+n > MAXFILE*BSIZE {
		return 0, -defs.EFBIG
	}
	tot := 0
	var ferr defs.Err_t
	for tot < n {
		bn := fs.Bmap(ip, off/BSIZE, h)
		b := fs.Cache.Bread(ip.Dev, bn, h)
		boff := off % BSIZE
		m := minInt(n-tot, BSIZE-boff)
		if err := copyIn(b.Data[boff:boff+m], tot); err != 0 {
			fs.Cache.Brelse(b, h)
			ferr = err
			break
		}
		fs.Log.LogWrite(b, h)
		fs.Cache.Brelse(b, h)
		tot += m
		off += m
	}
	if off > int(ip.Size) {
		ip.Size = uint32(off)
	}
	fs.Iupdate(ip, h)
	return tot, ferr
}

// WriteiKernel writes from a kernel-owned source slice.
func (fs *FS_t) WriteiKernel(ip *Inode_t, src []byte, off, n int, h *spinlock.HartState) (int, defs.Err_t) {
	return fs.writei(ip, off, n, h, func(buf []byte, tot int) defs.Err_t {
		copy(buf, src[tot:])
		return 0
	})
}

// WriteiUser writes from a user address space at srcva.
func (fs *FS_t) WriteiUser(ip *Inode_t, as *vm.AddrSpace_t, srcva uint64, off, n int, h *spinlock.HartState) (int, defs.Err_t) {
	return fs.writei(ip, off, n, h, func(buf []byte, tot int) defs.Err_t {
		return as.CopyIn(buf, srcva+uint64(tot), h)
	})
}
