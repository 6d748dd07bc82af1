// Package boot assembles the dependency chain common to both cmd/mkfs and
// cmd/kernel: page allocator, virtio disk, buffer cache, superblock, log,
// and file system (§2 System overview's dependency order, leaves first).
// Neither teacher command ever shared this logic -- biscuit's mkfs.go and
// its kernel boot path each construct their own ufs.Ufs_t independently --
// but this module's mkfs and kernel subcommands both need the identical
// bio/log/fs stack over the same on-disk layout, so it is factored out
// once rather than duplicated, the way arctir-proctor's cmd/ entry points
// share setup helpers instead of repeating them per subcommand.
package boot

import (
	"github.com/nicemissing/xv6/bio"
	"github.com/nicemissing/xv6/fs"
	"github.com/nicemissing/xv6/kalloc"
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/log"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/sleeplock"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/virtio"
)

// NBUF is the buffer cache's fixed slot count (§4.4 bget: "a fixed-size
// array of slots").
const NBUF = 128

// Layout describes a formatted image's fixed on-disk extents (§6 External
// interfaces), computed once by cmd/mkfs and re-derived by cmd/kernel by
// reading the existing superblock instead.
type Layout struct {
	Nblocks    int
	Ninodes    int
	Logstart   int
	Inodestart int
	Bmapstart  int
	Datastart  int
}

// ComputeLayout lays out a fresh image of nblocks total blocks holding
// ninodes inodes: superblock, then the log, then inode blocks, then the
// bitmap, then data (§4.6 Block bitmap, §6 dinode). Mirrors the real
// xv6 mkfs.c layout order exactly.
func ComputeLayout(nblocks, ninodes int) Layout {
	logstart := fs.SuperBlockNo + 1
	inodestart := logstart + log.LOGBLOCKS
	nblockforinodes := (ninodes + fs.IPB - 1) / fs.IPB
	bmapstart := inodestart + nblockforinodes
	nbitmap := (nblocks + fs.BPB - 1) / fs.BPB
	datastart := bmapstart + nbitmap
	return Layout{
		Nblocks:    nblocks,
		Ninodes:    ninodes,
		Logstart:   logstart,
		Inodestart: inodestart,
		Bmapstart:  bmapstart,
		Datastart:  datastart,
	}
}

// Stack is the constructed dependency chain shared by mkfs and boot.
type Stack struct {
	Sched *proc.Sched_t
	Alloc *kalloc.Allocator_t
	Disk  *virtio.Disk_t
	Cache *bio.Cache_t
	Super *fs.Superblock_t
	Log   *log.Log_t
	FS    *fs.FS_t
}

// physBase and physPages size the simulated physical frame pool this
// hosted kernel backs with a Go byte slice (§3 Physical memory). 256 MiB
// is generous for a teaching image; cmd/kernel does not yet expose a
// flag to change it since nothing in the spec calls for one.
const (
	physBase  = 0x80000000
	physPages = 65536
)

func mkSleeplockFactory(sched *proc.Sched_t) func(name string) fs.Sleeplock_i {
	return func(name string) fs.Sleeplock_i {
		return sleeplock.MkLock(name, sched)
	}
}

// Format builds a fresh Stack over diskPath, writing a brand-new
// superblock sized by layout (§4.5 "Recovery on boot" is a no-op on a
// freshly zeroed log, so constructing the log after the superblock write
// is safe even though no transaction has ever run). The superblock itself
// is written directly through the cache, bypassing the log entirely --
// the same thing real xv6 mkfs.c does, since no log exists yet to log it
// into.
func Format(diskPath string, layout Layout, h *spinlock.HartState) *Stack {
	sched := proc.MkSched()
	alloc := kalloc.MkAllocator(physBase, physPages)
	disk := virtio.MkDisk(diskPath, layout.Nblocks, sched)
	cache := bio.MkCache(NBUF, disk, sched)

	sb := cache.Bread(0, fs.SuperBlockNo, h)
	super := &fs.Superblock_t{Data: append([]byte(nil), sb.Data[:]...)}
	super.SetMagic(fs.SuperMagic)
	super.SetSize(layout.Nblocks)
	super.SetNblocks(layout.Nblocks - layout.Datastart)
	super.SetNinodes(layout.Ninodes)
	super.SetNlog(log.LOGBLOCKS)
	super.SetLogstart(layout.Logstart)
	super.SetInodestart(layout.Inodestart)
	super.SetBmapstart(layout.Bmapstart)
	copy(sb.Data[:], super.Data)
	cache.Bwrite(sb, h)
	cache.Brelse(sb, h)

	klog.For("boot").Info("formatted image", "path", diskPath, "nblocks", layout.Nblocks, "ninodes", layout.Ninodes)

	lg := log.MkLog(0, layout.Logstart, cache, sched, h)
	fsys := fs.MkFS(0, super, cache, lg, mkSleeplockFactory(sched))
	return &Stack{Sched: sched, Alloc: alloc, Disk: disk, Cache: cache, Super: super, Log: lg, FS: fsys}
}

// Open builds a Stack over an existing image at diskPath, reading its
// superblock instead of writing one (§4.5 "Recovery on boot": MkLog's
// constructor replays any committed-but-not-installed transaction before
// this function returns).
func Open(diskPath string, nblocks int, h *spinlock.HartState) *Stack {
	sched := proc.MkSched()
	alloc := kalloc.MkAllocator(physBase, physPages)
	disk := virtio.MkDisk(diskPath, nblocks, sched)
	cache := bio.MkCache(NBUF, disk, sched)

	sb := cache.Bread(0, fs.SuperBlockNo, h)
	super := &fs.Superblock_t{Data: append([]byte(nil), sb.Data[:]...)}
	cache.Brelse(sb, h)
	if super.Magic() != fs.SuperMagic {
		klog.Panicf("boot", "open: %s is not a valid image (bad superblock magic)", diskPath)
	}

	lg := log.MkLog(0, super.Logstart(), cache, sched, h)
	fsys := fs.MkFS(0, super, cache, lg, mkSleeplockFactory(sched))
	return &Stack{Sched: sched, Alloc: alloc, Disk: disk, Cache: cache, Super: super, Log: lg, FS: fsys}
}
