// Package bio is the LRU buffer cache (§3 Buffer cache, §4.4). It is
// grounded on the teacher's fs.Bdev_block_t/BlkList_t (fs/blk.go): the
// separation between a block's identity (device, block number) and its
// backing page, the Disk_i request interface, and the synchronous/async
// Read/Write split all carry over. The teacher's own buffer list is a
// bare container/list with no fixed capacity and no LRU-eviction bget
// algorithm (biscuit's bcache is unbounded, sized only by available
// physical pages); this package instead implements §4.4's bget exactly:
// a fixed-size array of slots threaded onto a doubly linked MRU/LRU list
// with a sentinel head, found on a hit via a secondary hash index
// (§1b Domain stack) and scanned LRU->MRU for an eviction victim.
package bio

import (
	"github.com/nicemissing/xv6/hashtable"
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/sleeplock"
	"github.com/nicemissing/xv6/spinlock"
)

// BSIZE is the size of a disk block in bytes (§6 Glossary: "Block").
const BSIZE = 1024

// Disk_i is the block driver surface the cache needs: a single blocking
// read-or-write call (§4.7 rw). The virtio package implements it.
type Disk_i interface {
	Rw(b *Buf_t, write bool, h *spinlock.HartState)
}

// Buf_t is one cached block (§3 Buffer cache). DiskOwned is set by the
// driver while a request for this buffer is outstanding (§4.7 step 3);
// it is a field on the buffer, not the cache, because the driver sleeps
// callers directly on *Buf_t.
type Buf_t struct {
	Dev       int
	Blockno   int
	Valid     bool
	refcnt    int
	Data      [BSIZE]byte
	DiskOwned bool

	lock *sleeplock.Lock_t
	prev *Buf_t
	next *Buf_t
}

// Lock/Unlock expose the buffer's sleep lock to callers that need to hold
// it across calls into other packages (e.g. the log copying a buffer's
// dirty data into the log region).
func (b *Buf_t) Lock(h *spinlock.HartState)   { b.lock.Acquire(h) }
func (b *Buf_t) Unlock(h *spinlock.HartState) { b.lock.Release(h) }

// Cache_t is the fixed-size buffer cache. guard protects slot identity
// (dev, blockno, refcnt) and the LRU list; each buffer's contents are
// protected by its own sleep lock (§3 invariants).
type Cache_t struct {
	guard *spinlock.Lock_t
	bufs  []*Buf_t
	head  *Buf_t // sentinel; head.next is MRU, head.prev is LRU
	disk  Disk_i
	sl    sleeplock.Sleeper_i

	// index is a secondary lookup structure over the mandated
	// array+LRU-list (§1b Domain stack: "Hash-indexed lookups"),
	// adapted from the teacher's hashtable.Hashtable_t
	// (hashtable/hashtable.go). It only accelerates the cache-hit
	// path; eviction victim selection still walks the LRU list
	// LRU->MRU exactly as §4.4 specifies, since that ordering is not
	// something a hash index can answer.
	index *hashtable.Hashtable_t
}

// cacheKey packs (dev, blockno) into an int, one of the key types
// hashtable.Hashtable_t supports.
func cacheKey(dev, blockno int) int { return dev<<32 | blockno }

// MkCache allocates an n-slot cache backed by disk, with sl supplying the
// sleep/wakeup primitive each buffer's sleep lock needs.
func MkCache(n int, disk Disk_i, sl sleeplock.Sleeper_i) *Cache_t {
	c := &Cache_t{guard: spinlock.MkLock("bcache"), disk: disk, sl: sl, index: hashtable.MkHash(2 * n)}
	c.head = &Buf_t{}
	c.head.next = c.head
	c.head.prev = c.head
	for i := 0; i < n; i++ {
		b := &Buf_t{lock: sleeplock.MkLock("buf", sl)}
		c.bufs = append(c.bufs, b)
		c.pushMRU(b)
	}
	return c
}

func (c *Cache_t) pushMRU(b *Buf_t) {
	b.next = c.head.next
	b.prev = c.head
	c.head.next.prev = b
	c.head.next = b
}

func (c *Cache_t) unlink(b *Buf_t) {
	b.prev.next = b.next
	b.next.prev = b.prev
}

// bget implements §4.4's bget algorithm: scan MRU->LRU for a cache hit;
// on miss scan LRU->MRU for the first unreferenced slot to evict. It
// panics if every slot is pinned, matching the spec's "if no victim
// exists, panic" (a resource the design claims cannot be exhausted under
// correct use, since every bread is paired with a brelse).
func (c *Cache_t) bget(dev, blockno int, h *spinlock.HartState) *Buf_t {
	c.guard.Acquire(h)
	key := cacheKey(dev, blockno)
	if v, ok := c.index.Get(key); ok {
		b := v.(*Buf_t)
		b.refcnt++
		c.guard.Release(h)
		b.lock.Acquire(h)
		return b
	}
	for b := c.head.prev; b != c.head; b = b.prev {
		if b.refcnt == 0 {
			if b.refcnt == 0 && b.Valid {
				c.index.Del(cacheKey(b.Dev, b.Blockno))
			}
			b.Dev = dev
			b.Blockno = blockno
			b.Valid = false
			b.refcnt = 1
			c.index.Set(key, b)
			c.guard.Release(h)
			b.lock.Acquire(h)
			return b
		}
	}
	klog.Panicf("bio", "bget: no unpinned buffers")
	panic("unreachable")
}

// Bread returns a locked buffer with valid contents for (dev, blockno),
// issuing a synchronous disk read on a cold slot (§4.4 bread).
func (c *Cache_t) Bread(dev, blockno int, h *spinlock.HartState) *Buf_t {
	b := c.bget(dev, blockno, h)
	if !b.Valid {
		c.disk.Rw(b, false, h)
		b.Valid = true
	}
	return b
}

// Bwrite synchronously writes b to disk; the caller must already hold
// b's sleep lock (§4.4 bwrite -- used only by the log).
func (c *Cache_t) Bwrite(b *Buf_t, h *spinlock.HartState) {
	if !b.lock.Holding(h) {
		klog.Panicf("bio", "bwrite: buffer not locked")
	}
	c.disk.Rw(b, true, h)
}

// Brelse releases the sleep lock, decrements the refcount, and splices
// the buffer to the MRU end of the LRU list once the refcount reaches
// zero (§4.4 brelse).
func (c *Cache_t) Brelse(b *Buf_t, h *spinlock.HartState) {
	if !b.lock.Holding(h) {
		klog.Panicf("bio", "brelse: buffer not locked")
	}
	b.lock.Release(h)

	c.guard.Acquire(h)
	b.refcnt--
	if b.refcnt < 0 {
		klog.Panicf("bio", "brelse: refcount underflow on block %d", b.Blockno)
	}
	if b.refcnt == 0 {
		c.unlink(b)
		c.pushMRU(b)
	}
	c.guard.Release(h)
}

// Bpin/Bunpin bump or drop the refcount without releasing the sleep lock,
// keeping a dirty buffer resident across a log's begin_op/end_op window
// (§4.4, used only by the log).
func (c *Cache_t) Bpin(b *Buf_t, h *spinlock.HartState) {
	c.guard.Acquire(h)
	b.refcnt++
	c.guard.Release(h)
}

func (c *Cache_t) Bunpin(b *Buf_t, h *spinlock.HartState) {
	c.guard.Acquire(h)
	b.refcnt--
	if b.refcnt < 0 {
		klog.Panicf("bio", "bunpin: refcount underflow on block %d", b.Blockno)
	}
	c.guard.Release(h)
}
