package fs

import "github.com/nicemissing/xv6/spinlock"

// RecoverOrphans walks every inode block once at boot, after log
// recovery has already run, and drives the normal free path for any
// dinode left with a nonzero type but a zero link count -- a file that
// was unlinked while still open, whose last close never got to run
// because of a crash (§4.6 "Orphan reclamation (boot)"). The spec's
// distillation only mentions this in passing; SPEC_FULL.md wires it
// explicitly into cmd/kernel's boot sequence.
func (fs *FS_t) RecoverOrphans(h *spinlock.HartState) int {
	recovered := 0
	for inum := 1; inum < fs.Super.Ninodes(); inum++ {
		b := fs.Cache.Bread(fs.Dev, fs.Super.IblockOf(inum), h)
		d := dinodeAt(b.Data[:], inum)
		orphan := d.Typ != T_FREE && d.Nlink == 0
		fs.Cache.Brelse(b, h)
		if !orphan {
			continue
		}
		fs.Log.BeginOp(h)
		ip := fs.Iget(fs.Dev, inum, h)
		fs.Ilock(ip, h)
		fs.Iunlock(ip, h)
		fs.Iput(ip, h)
		fs.Log.EndOp(h)
		recovered++
	}
	return recovered
}
