package fs

import (
	"github.com/nicemissing/xv6/bio"
	"github.com/nicemissing/xv6/hashtable"
	"github.com/nicemissing/xv6/klog"
	golog "github.com/nicemissing/xv6/log"
	"github.com/nicemissing/xv6/spinlock"
)

// NINODE is the size of the in-memory inode table (§3 Inodes in
// memory), xv6-riscv's param.h default.
const NINODE = 50

// Inode_t is one in-memory cached inode (§3 Inodes in memory): identity
// fields (Dev, Inum, ref, valid) plus, once valid, a copy of the
// dinode's mutable fields.
type Inode_t struct {
	Dev   int
	Inum  int
	ref   int
	valid bool
	lock  Sleeplock_i

	Typ   int16
	Major int16
	Minor int16
	Nlink int16
	Size  uint32
	Addrs [NDIRECT + 1]uint32
}

// Sleeplock_i is the minimal per-inode sleep-lock surface fs needs; the
// concrete type is sleeplock.Lock_t, injected this way to keep fs
// independent of sleeplock's Sleeper_i wiring.
type Sleeplock_i = interface {
	Acquire(h *spinlock.HartState)
	Release(h *spinlock.HartState)
	Holding(h *spinlock.HartState) bool
}

// FS_t is the whole file system: superblock, buffer cache, log, and
// in-memory inode table, bundled the way ufs.Fs_t bundles its
// subsystems (ufs/ufs.go), but with this package's own fs-internal
// types rather than biscuit's COW-era ones.
type FS_t struct {
	Dev   int
	Super *Superblock_t
	Cache *bio.Cache_t
	Log   *golog.Log_t

	itableGuard *spinlock.Lock_t
	itable      []*Inode_t
	itableIndex *hashtable.Hashtable_t // (dev,inum) -> *Inode_t, §1b Domain stack
	mkSleep     func(name string) Sleeplock_i
}

// inodeKey packs (dev, inum) into an int, one of the key types
// hashtable.Hashtable_t supports.
func inodeKey(dev, inum int) int { return dev<<32 | inum }

// MkFS wires a superblock, buffer cache, and log into a usable file
// system and pre-allocates the in-memory inode table. mkSleep
// constructs each inode's sleep lock (kept as a factory so fs does not
// import sleeplock directly and create an import cycle with proc).
func MkFS(dev int, super *Superblock_t, cache *bio.Cache_t, log *golog.Log_t, mkSleep func(name string) Sleeplock_i) *FS_t {
	fs := &FS_t{
		Dev:         dev,
		Super:       super,
		Cache:       cache,
		Log:         log,
		itableGuard: spinlock.MkLock("itable"),
		itableIndex: hashtable.MkHash(2 * NINODE),
		mkSleep:     mkSleep,
	}
	for i := 0; i < NINODE; i++ {
		fs.itable = append(fs.itable, &Inode_t{lock: nil})
	}
	return fs
}

// Iget finds or allocates a cache entry for (dev, inum) without
// touching disk (§4.6 iget).
func (fs *FS_t) Iget(dev, inum int, h *spinlock.HartState) *Inode_t {
	fs.itableGuard.Acquire(h)
	defer fs.itableGuard.Release(h)

	key := inodeKey(dev, inum)
	if v, ok := fs.itableIndex.Get(key); ok {
		ip := v.(*Inode_t)
		ip.ref++
		return ip
	}

	var empty *Inode_t
	for _, ip := range fs.itable {
		if empty == nil && ip.ref == 0 {
			empty = ip
		}
	}
	if empty == nil {
		klog.Panicf("fs", "iget: no free in-memory inode slots")
	}
	if v, ok := fs.itableIndex.Get(inodeKey(empty.Dev, empty.Inum)); ok && v.(*Inode_t) == empty {
		fs.itableIndex.Del(inodeKey(empty.Dev, empty.Inum))
	}
	empty.Dev = dev
	empty.Inum = inum
	empty.ref = 1
	empty.valid = false
	if empty.lock == nil {
		empty.lock = fs.mkSleep("inode")
	}
	fs.itableIndex.Set(key, empty)
	return empty
}

// Ilock acquires ip's sleep lock and, if this is the first lock since
// the slot was claimed, reads the dinode from disk (§4.6 ilock).
func (fs *FS_t) Ilock(ip *Inode_t, h *spinlock.HartState) {
	if ip == nil || ip.ref < 1 {
		klog.Panicf("fs", "ilock: bad inode")
	}
	ip.lock.Acquire(h)
	if !ip.valid {
		b := fs.Cache.Bread(ip.Dev, fs.Super.IblockOf(ip.Inum), h)
		d := dinodeAt(b.Data[:], ip.Inum)
		ip.Typ = d.Typ
		ip.Major = d.Major
		ip.Minor = d.Minor
		ip.Nlink = d.Nlink
		ip.Size = d.Size
		ip.Addrs = d.Addrs
		fs.Cache.Brelse(b, h)
		ip.valid = true
		if ip.Typ == T_FREE {
			klog.Panicf("fs", "ilock: inode %d has no type", ip.Inum)
		}
	}
}

func (fs *FS_t) Iunlock(ip *Inode_t, h *spinlock.HartState) {
	ip.lock.Release(h)
}

// Iupdate writes ip's cached fields back to its on-disk dinode inside
// the current transaction (§4.6, used by writei/ialloc/itrunc).
func (fs *FS_t) Iupdate(ip *Inode_t, h *spinlock.HartState) {
	b := fs.Cache.Bread(ip.Dev, fs.Super.IblockOf(ip.Inum), h)
	d := dinodeAt(b.Data[:], ip.Inum)
	d.Typ = ip.Typ
	d.Major = ip.Major
	d.Minor = ip.Minor
	d.Nlink = ip.Nlink
	d.Size = ip.Size
	d.Addrs = ip.Addrs
	fs.Log.LogWrite(b, h)
	fs.Cache.Brelse(b, h)
}

// Ialloc scans the inode blocks for a free dinode, claims it with the
// given type, and returns a cache entry for it via Iget (§4.6 ialloc).
// It panics when no free inode exists, per spec.
func (fs *FS_t) Ialloc(dev int, typ int16, h *spinlock.HartState) *Inode_t {
	for inum := 1; inum < fs.Super.Ninodes(); inum++ {
		b := fs.Cache.Bread(dev, fs.Super.IblockOf(inum), h)
		d := dinodeAt(b.Data[:], inum)
		if d.Typ == T_FREE {
			*d = rawDinode{}
			d.Typ = typ
			fs.Log.LogWrite(b, h)
			fs.Cache.Brelse(b, h)
			return fs.Iget(dev, inum, h)
		}
		fs.Cache.Brelse(b, h)
	}
	klog.Panicf("fs", "ialloc: no free inodes")
	return nil
}

// Iput drops one reference to ip, truncating and freeing the inode
// when this was the last reference to a disk-unlinked file (§4.6 iput).
// The caller must already be inside a transaction, since the escalation
// path writes disk.
func (fs *FS_t) Iput(ip *Inode_t, h *spinlock.HartState) {
	fs.itableGuard.Acquire(h)
	if ip.ref == 1 && ip.valid && ip.Nlink == 0 {
		ip.lock.Acquire(h)
		fs.itableGuard.Release(h)

		fs.itrunc(ip, h)
		ip.Typ = T_FREE
		fs.Iupdate(ip, h)
		ip.valid = false

		ip.lock.Release(h)
		fs.itableGuard.Acquire(h)
	}
	ip.ref--
	fs.itableGuard.Release(h)
}

// IputLocked drops the reference to an already-locked ip and releases
// the lock, the common caller pattern (equivalent to xv6's iunlockput).
func (fs *FS_t) IputLocked(ip *Inode_t, h *spinlock.HartState) {
	fs.Iunlock(ip, h)
	fs.Iput(ip, h)
}
