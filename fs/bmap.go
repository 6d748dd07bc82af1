package fs

import (
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/util"
)

// Balloc scans the bitmap blocks linearly for a zero bit, claims it
// under a log write, zeroes the new data block, and returns its block
// number (§4.6 Block bitmap). It panics when the disk is full, the
// same "resource the design claims bounded, not gracefully handled"
// treatment as ialloc.
func (fs *FS_t) Balloc(dev int, h *spinlock.HartState) int {
	size := fs.Super.Size()
	datastart := size - fs.Super.Nblocks()
	for base := 0; base < size; base += BPB {
		bn := fs.Super.BblockOf(base)
		b := fs.Cache.Bread(dev, bn, h)
		for bi := 0; bi < BPB && base+bi < size; bi++ {
			if base+bi < datastart {
				continue
			}
			m := byte(1) << (uint(bi) % 8)
			byteOff := bi / 8
			if b.Data[byteOff]&m == 0 {
				b.Data[byteOff] |= m
				fs.Log.LogWrite(b, h)
				fs.Cache.Brelse(b, h)
				fs.zeroBlock(dev, base+bi, h)
				return base + bi
			}
		}
		fs.Cache.Brelse(b, h)
	}
	klog.Panicf("fs", "balloc: out of data blocks")
	return 0
}

func (fs *FS_t) zeroBlock(dev, bn int, h *spinlock.HartState) {
	b := fs.Cache.Bread(dev, bn, h)
	for i := range b.Data {
		b.Data[i] = 0
	}
	fs.Log.LogWrite(b, h)
	fs.Cache.Brelse(b, h)
}

// Bfree clears the bit for block b, asserting it was set (§4.6 bfree).
func (fs *FS_t) Bfree(dev, bnum int, h *spinlock.HartState) {
	bn := fs.Super.BblockOf(bnum)
	b := fs.Cache.Bread(dev, bn, h)
	bi := bnum % BPB
	m := byte(1) << (uint(bi) % 8)
	byteOff := bi / 8
	if b.Data[byteOff]&m == 0 {
		klog.Panicf("fs", "bfree: block %d already free", bnum)
	}
	b.Data[byteOff] &^= m
	fs.Log.LogWrite(b, h)
	fs.Cache.Brelse(b, h)
}

// Bmap returns the disk block number holding the n-th logical block of
// ip, allocating it (and, if n falls in the indirect range, the
// indirect block itself) on demand (§4.6 Block map).
func (fs *FS_t) Bmap(ip *Inode_t, n int, h *spinlock.HartState) int {
	if n < NDIRECT {
		if ip.Addrs[n] == 0 {
			ip.Addrs[n] = uint32(fs.Balloc(ip.Dev, h))
		}
		return int(ip.Addrs[n])
	}
	n -= NDIRECT
	if n >= NINDIRECT {
		klog.Panicf("fs", "bmap: offset out of range")
	}
	if ip.Addrs[NDIRECT] == 0 {
		ip.Addrs[NDIRECT] = uint32(fs.Balloc(ip.Dev, h))
	}
	ib := fs.Cache.Bread(ip.Dev, int(ip.Addrs[NDIRECT]), h)
	a := util.Readn(ib.Data[:], 4, n*4)
	if a == 0 {
		a = fs.Balloc(ip.Dev, h)
		util.Writen(ib.Data[:], 4, n*4, a)
		fs.Log.LogWrite(ib, h)
	}
	fs.Cache.Brelse(ib, h)
	return a
}

// itrunc frees every data block (direct and indirect) owned by ip and
// resets its size to zero (§4.6 iput's escalation path).
func (fs *FS_t) itrunc(ip *Inode_t, h *spinlock.HartState) {
	for i := 0; i < NDIRECT; i++ {
		if ip.Addrs[i] != 0 {
			fs.Bfree(ip.Dev, int(ip.Addrs[i]), h)
			ip.Addrs[i] = 0
		}
	}
	if ip.Addrs[NDIRECT] != 0 {
		ib := fs.Cache.Bread(ip.Dev, int(ip.Addrs[NDIRECT]), h)
		for i := 0; i < NINDIRECT; i++ {
			a := util.Readn(ib.Data[:], 4, i*4)
			if a != 0 {
				fs.Bfree(ip.Dev, a, h)
			}
		}
		fs.Cache.Brelse(ib, h)
		fs.Bfree(ip.Dev, int(ip.Addrs[NDIRECT]), h)
		ip.Addrs[NDIRECT] = 0
	}
	ip.Size = 0
	fs.Iupdate(ip, h)
}
