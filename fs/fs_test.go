package fs

import (
	"path/filepath"
	"testing"

	"github.com/nicemissing/xv6/bio"
	"github.com/nicemissing/xv6/defs"
	golog "github.com/nicemissing/xv6/log"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/sleeplock"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/ustr"
	"github.com/nicemissing/xv6/virtio"
	"github.com/stretchr/testify/require"
)

// harness builds a formatted, in-process file system over a temp-file
// image: allocator-free (fs doesn't need one), disk, cache, superblock,
// log, and the root directory, the same wiring boot.Format performs but
// local to this package so it can stay a white-box test of FS_t without
// importing the boot/proc/file cycle boot.Stack would otherwise need.
func harness(t *testing.T) (*FS_t, *Inode_t, *spinlock.HartState) {
	t.Helper()
	h := spinlock.NewHartState(0)
	sched := proc.MkSched()

	const nblocks, ninodes = 2048, 200
	logstart := SuperBlockNo + 1
	inodestart := logstart + golog.LOGBLOCKS
	nblockforinodes := (ninodes + IPB - 1) / IPB
	bmapstart := inodestart + nblockforinodes
	nbitmap := (nblocks + BPB - 1) / BPB
	datastart := bmapstart + nbitmap
	require.Less(t, datastart, nblocks)

	disk := virtio.MkDisk(filepath.Join(t.TempDir(), "disk.img"), nblocks, sched)
	cache := bio.MkCache(64, disk, sched)

	sb := cache.Bread(0, SuperBlockNo, h)
	super := &Superblock_t{Data: append([]byte(nil), sb.Data[:]...)}
	super.SetMagic(SuperMagic)
	super.SetSize(nblocks)
	super.SetNblocks(nblocks - datastart)
	super.SetNinodes(ninodes)
	super.SetNlog(golog.LOGBLOCKS)
	super.SetLogstart(logstart)
	super.SetInodestart(inodestart)
	super.SetBmapstart(bmapstart)
	copy(sb.Data[:], super.Data)
	cache.Bwrite(sb, h)
	cache.Brelse(sb, h)

	lg := golog.MkLog(0, logstart, cache, sched, h)
	mkSleep := func(name string) Sleeplock_i { return sleeplock.MkLock(name, sched) }
	fsys := MkFS(0, super, cache, lg, mkSleep)

	lg.BeginOp(h)
	root := fsys.Ialloc(0, T_DIR, h)
	require.Equal(t, ROOTINO, root.Inum)
	fsys.Ilock(root, h)
	root.Nlink = 1
	fsys.Iupdate(root, h)
	require.Zero(t, fsys.Dirlink(root, ustr.MkUstrDot(), root.Inum, h))
	require.Zero(t, fsys.Dirlink(root, ustr.DotDot, root.Inum, h))
	fsys.Iunlock(root, h)
	lg.EndOp(h)

	return fsys, root, h
}

// §8 end-to-end scenario 1: create-read-close. Open "/f" with O_CREATE,
// write "hello", close, reopen read-only, read 5 bytes back.
func TestCreateWriteReadRoundTrip(t *testing.T) {
	fsys, root, h := harness(t)

	fsys.Log.BeginOp(h)
	ip, err := fsys.Create(ustr.MkUstrRoot().ExtendStr("f"), T_FILE, 0, 0, root, root, h)
	require.Zero(t, err)
	n, werr := fsys.WriteiKernel(ip, []byte("hello"), 0, 5, h)
	require.Zero(t, werr)
	require.Equal(t, 5, n)
	fsys.IputLocked(ip, h)
	fsys.Log.EndOp(h)

	var name ustr.Ustr
	fsys.Log.BeginOp(h)
	dp, nerr := fsys.Namex(ustr.MkUstrRoot().ExtendStr("f"), true, &name, root, root, h)
	require.Zero(t, nerr)
	fsys.Ilock(dp, h)
	found, _ := fsys.Dirlookup(dp, name, h)
	fsys.IputLocked(dp, h)
	require.NotNil(t, found)

	fsys.Ilock(found, h)
	buf := make([]byte, 5)
	rn, rerr := fsys.ReadiKernel(found, buf, 0, 5, h)
	fsys.IputLocked(found, h)
	fsys.Log.EndOp(h)

	require.Zero(t, rerr)
	require.Equal(t, 5, rn)
	require.Equal(t, "hello", string(buf))
}

// §8 boundary behavior: writei at offset exactly MAXFILE*BSIZE must
// fail (EFBIG); at MAXFILE*BSIZE-1 it must succeed for exactly one byte.
func TestWriteiMaxFileBoundary(t *testing.T) {
	fsys, root, h := harness(t)

	fsys.Log.BeginOp(h)
	ip, err := fsys.Create(ustr.MkUstrRoot().ExtendStr("big"), T_FILE, 0, 0, root, root, h)
	require.Zero(t, err)

	_, ferr := fsys.WriteiKernel(ip, []byte{1}, MAXFILE*BSIZE, 1, h)
	require.Equal(t, -defs.EFBIG, ferr)

	n, werr := fsys.WriteiKernel(ip, []byte{1}, MAXFILE*BSIZE-1, 1, h)
	require.Zero(t, werr)
	require.Equal(t, 1, n)

	fsys.IputLocked(ip, h)
	fsys.Log.EndOp(h)
}

// §8 boundary behavior: dirlookup of "." in the root returns the root
// inode itself, with its reference count freshly bumped.
func TestDirlookupDotInRootReturnsRootWithFreshRef(t *testing.T) {
	fsys, root, h := harness(t)

	fsys.Ilock(root, h)
	before := root.ref
	found, _ := fsys.Dirlookup(root, ustr.MkUstrDot(), h)
	fsys.Iunlock(root, h)

	require.NotNil(t, found)
	require.Equal(t, root.Inum, found.Inum)
	require.Equal(t, before+1, found.ref)
	require.Same(t, root, found) // same in-memory cache slot, not a fresh copy
	fsys.Iput(found, h)          // drop the reference Dirlookup/Iget handed back
}
