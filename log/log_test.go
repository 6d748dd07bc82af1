package log

import (
	"path/filepath"
	"testing"

	"github.com/nicemissing/xv6/bio"
	"github.com/nicemissing/xv6/proc"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/util"
	"github.com/nicemissing/xv6/virtio"
	"github.com/stretchr/testify/require"
)

// newHarness builds a bare cache/disk over a fresh temp-file image,
// without a Log_t yet, so tests can stage raw blocks (home blocks, log
// data blocks, log header) directly through the cache the way a crash
// would leave them -- exactly as §4.5's recovery routine expects to find
// them on boot.
func newHarness(t *testing.T) (*bio.Cache_t, *spinlock.HartState) {
	t.Helper()
	h := spinlock.NewHartState(0)
	sched := proc.MkSched()
	disk := virtio.MkDisk(filepath.Join(t.TempDir(), "disk.img"), 64, sched)
	c := bio.MkCache(16, disk, sched)
	return c, h
}

const logStart = 2 // arbitrary, mirrors boot.ComputeLayout's placement after the superblock

// writeHeaderRaw stages a header block directly (bypassing Log_t), the
// same shape §6 describes: a count followed by that many block numbers.
func writeHeaderRaw(c *bio.Cache_t, h *spinlock.HartState, n int, blocks []int) {
	b := c.Bread(0, logStart, h)
	util.Writen(b.Data[:], 4, 0, n)
	for i, bn := range blocks {
		util.Writen(b.Data[:], 4, 4*(i+1), bn)
	}
	c.Bwrite(b, h)
	c.Brelse(b, h)
}

// §8 law, log atomicity, crash point "after data blocks + header
// committed, before installation completes" (scenario 3): recovery must
// still install every staged block, since the header write is the true
// commit point.
func TestRecoveryInstallsAfterHeaderCommitted(t *testing.T) {
	c, h := newHarness(t)
	const nblocks = 8
	homeBlocks := []int{20, 21, 22, 23, 24, 25, 26, 27}

	for i, bn := range homeBlocks {
		b := c.Bread(0, bn, h)
		for j := range b.Data {
			b.Data[j] = byte(0xAA + i)
		}
		c.Bwrite(b, h)
		c.Brelse(b, h)
	}

	for i, bn := range homeBlocks {
		lb := c.Bread(0, logStart+1+i, h)
		for j := range lb.Data {
			lb.Data[j] = byte(0x11 + i) // the post-write contents being staged
		}
		c.Bwrite(lb, h)
		c.Brelse(lb, h)
	}
	writeHeaderRaw(c, h, nblocks, homeBlocks)

	MkLog(0, logStart, c, proc.MkSched(), h)

	for i, bn := range homeBlocks {
		b := c.Bread(0, bn, h)
		require.Equal(t, byte(0x11+i), b.Data[0], "home block %d must carry the staged post-write contents", bn)
		c.Brelse(b, h)
	}
}

// Crash point "before the header write" (scenario 4): nothing was ever
// committed, so recovery must be a no-op and every home block must
// retain its pre-transaction contents.
func TestRecoveryNoOpBeforeHeaderWritten(t *testing.T) {
	c, h := newHarness(t)
	homeBlocks := []int{20, 21, 22}

	for i, bn := range homeBlocks {
		b := c.Bread(0, bn, h)
		for j := range b.Data {
			b.Data[j] = byte(0xAA + i)
		}
		c.Bwrite(b, h)
		c.Brelse(b, h)
	}
	writeHeaderRaw(c, h, 0, nil)

	MkLog(0, logStart, c, proc.MkSched(), h)

	for i, bn := range homeBlocks {
		b := c.Bread(0, bn, h)
		require.Equal(t, byte(0xAA+i), b.Data[0], "home block %d must be untouched by a no-op recovery", bn)
		c.Brelse(b, h)
	}
}

// §8 law, log idempotence: once a committed header (n > 0) has been
// installed, constructing a second Log_t over the same image (a second
// "reboot" with nothing new written) must leave disk state unchanged,
// since recovery always resets n to 0 after installing.
func TestRecoveryIdempotentAcrossRepeatedBoots(t *testing.T) {
	c, h := newHarness(t)
	homeBlocks := []int{30, 31}

	for i, bn := range homeBlocks {
		lb := c.Bread(0, logStart+1+i, h)
		for j := range lb.Data {
			lb.Data[j] = byte(0x55 + i)
		}
		c.Bwrite(lb, h)
		c.Brelse(lb, h)
	}
	writeHeaderRaw(c, h, len(homeBlocks), homeBlocks)

	MkLog(0, logStart, c, proc.MkSched(), h)

	snapshot := make([][]byte, len(homeBlocks))
	for i, bn := range homeBlocks {
		b := c.Bread(0, bn, h)
		snapshot[i] = append([]byte(nil), b.Data[:]...)
		c.Brelse(b, h)
	}

	// Second boot: header on disk now has n == 0 (recovery already reset
	// it), so this MkLog's recovery is a no-op -- applying install-trans
	// "twice" (once for real, once as a no-op against an already-clean
	// header) reaches the same disk state either way.
	MkLog(0, logStart, c, proc.MkSched(), h)
	for i, bn := range homeBlocks {
		b := c.Bread(0, bn, h)
		require.Equal(t, snapshot[i], append([]byte(nil), b.Data[:]...))
		c.Brelse(b, h)
	}
}

// BeginOp/EndOp/LogWrite end-to-end: a normal (uncrashed) transaction
// commits its staged block to the home location.
func TestBeginEndOpCommitsStagedWrite(t *testing.T) {
	c, h := newHarness(t)
	sched := proc.MkSched()
	lg := MkLog(0, logStart, c, sched, h)

	lg.BeginOp(h)
	b := c.Bread(0, 40, h)
	b.Data[0] = 0x77
	lg.LogWrite(b, h)
	c.Brelse(b, h)
	lg.EndOp(h)

	b2 := c.Bread(0, 40, h)
	require.Equal(t, byte(0x77), b2.Data[0])
	c.Brelse(b2, h)
}
