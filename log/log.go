// Package log is the group-commit redo log (§3 Log, §4.5). xv6-riscv's
// kernel/log.c (see original_source) is the direct model: the package
// keeps that file's begin_op/end_op/log_write/commit structure and its
// group-commit rationale (a commit only runs once every concurrent
// caller has left its transaction) almost verbatim, translated from C
// globals and sleep/wakeup calls into a struct guarded by the teacher's
// spinlock.Lock_t and blocked via sleeplock.Sleeper_i. The teacher repo
// itself has no direct log equivalent (biscuit's crash consistency is
// out of the retrieved source), so this package leans on xv6 and on
// bio's Cache_t for bread/bwrite/bpin/bunpin.
package log

import (
	"github.com/nicemissing/xv6/bio"
	"github.com/nicemissing/xv6/klog"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/nicemissing/xv6/util"
)

// MAXOPBLOCKS bounds how many distinct blocks one system call may log;
// LOGBLOCKS is sized for three concurrent worst-case transactions, both
// xv6-riscv's param.h defaults.
const (
	MAXOPBLOCKS = 10
	LOGBLOCKS   = MAXOPBLOCKS * 3
)

// header is the in-memory and on-disk log header (§3 Log, §6 Log header
// block): a count followed by that many target block numbers.
type header struct {
	n     int
	block [LOGBLOCKS]int
}

// Log_t tracks one device's transaction log (§3 Log: "outstanding
// operations count, a committing flag, and a staged header").
type Log_t struct {
	lock        *spinlock.Lock_t
	sl          sleepWaker
	dev         int
	start       int
	outstanding int
	committing  bool
	lh          header
	cache       *bio.Cache_t
}

type sleepWaker interface {
	Sleep(chan_ interface{}, lk *spinlock.Lock_t, h *spinlock.HartState)
	Wakeup(chan_ interface{})
}

// MkLog constructs a log over [start, start+LOGBLOCKS) on dev and runs
// recovery (§4.5 "Recovery on boot").
func MkLog(dev, start int, cache *bio.Cache_t, sl sleepWaker, h *spinlock.HartState) *Log_t {
	l := &Log_t{
		lock:  spinlock.MkLock("log"),
		sl:    sl,
		dev:   dev,
		start: start,
		cache: cache,
	}
	l.recoverFromLog(h)
	return l
}

func (l *Log_t) readHead(h *spinlock.HartState) {
	b := l.cache.Bread(l.dev, l.start, h)
	n := util.Readn(b.Data[:], 4, 0)
	l.lh.n = n
	for i := 0; i < n; i++ {
		l.lh.block[i] = util.Readn(b.Data[:], 4, 4*(i+1))
	}
	l.cache.Brelse(b, h)
}

// writeHead writes the in-memory header to disk -- "the true point at
// which the current transaction commits" (§4.5 step 2).
func (l *Log_t) writeHead(h *spinlock.HartState) {
	b := l.cache.Bread(l.dev, l.start, h)
	util.Writen(b.Data[:], 4, 0, l.lh.n)
	for i := 0; i < l.lh.n; i++ {
		util.Writen(b.Data[:], 4, 4*(i+1), l.lh.block[i])
	}
	l.cache.Bwrite(b, h)
	l.cache.Brelse(b, h)
}

// installTrans copies committed blocks from the log to their home
// locations (§4.5 commit step 3, and verbatim again during recovery).
func (l *Log_t) installTrans(recovering bool, h *spinlock.HartState) {
	for tail := 0; tail < l.lh.n; tail++ {
		lbuf := l.cache.Bread(l.dev, l.start+tail+1, h)
		dbuf := l.cache.Bread(l.dev, l.lh.block[tail], h)
		copy(dbuf.Data[:], lbuf.Data[:])
		l.cache.Bwrite(dbuf, h)
		if !recovering {
			l.cache.Bunpin(dbuf, h)
		}
		l.cache.Brelse(lbuf, h)
		l.cache.Brelse(dbuf, h)
	}
}

func (l *Log_t) recoverFromLog(h *spinlock.HartState) {
	l.readHead(h)
	l.installTrans(true, h)
	l.lh.n = 0
	l.writeHead(h)
}

// BeginOp marks the start of one file-system system call (§4.5
// begin_op). It blocks while a commit is in progress, or while this
// call's worst-case footprint would overrun the log.
func (l *Log_t) BeginOp(h *spinlock.HartState) {
	l.lock.Acquire(h)
	for {
		if l.committing {
			l.sl.Sleep(l, l.lock, h)
		} else if l.lh.n+(l.outstanding+1)*MAXOPBLOCKS > LOGBLOCKS {
			l.sl.Sleep(l, l.lock, h)
		} else {
			l.outstanding++
			l.lock.Release(h)
			return
		}
	}
}

// EndOp marks the end of one system call, committing if it was the
// last outstanding one (§4.5 end_op).
func (l *Log_t) EndOp(h *spinlock.HartState) {
	l.lock.Acquire(h)
	l.outstanding--
	if l.committing {
		klog.Panicf("log", "end_op: committing set while outstanding")
	}
	doCommit := false
	if l.outstanding == 0 {
		doCommit = true
		l.committing = true
	} else {
		l.sl.Wakeup(l)
	}
	l.lock.Release(h)

	if doCommit {
		l.commit(h)
		l.lock.Acquire(h)
		l.committing = false
		l.sl.Wakeup(l)
		l.lock.Release(h)
	}
}

func (l *Log_t) writeLog(h *spinlock.HartState) {
	for tail := 0; tail < l.lh.n; tail++ {
		to := l.cache.Bread(l.dev, l.start+tail+1, h)
		from := l.cache.Bread(l.dev, l.lh.block[tail], h)
		copy(to.Data[:], from.Data[:])
		l.cache.Bwrite(to, h)
		l.cache.Brelse(from, h)
		l.cache.Brelse(to, h)
	}
}

// commit runs the four-step sequence of §4.5, skipped entirely when
// nothing was staged.
func (l *Log_t) commit(h *spinlock.HartState) {
	if l.lh.n == 0 {
		return
	}
	l.writeLog(h)
	l.writeHead(h)
	l.installTrans(false, h)
	l.lh.n = 0
	l.writeHead(h)
}

// LogWrite registers b as modified within the current transaction
// (§4.5 log_write): coalesces with an existing entry for the same
// block (log absorption), otherwise appends and pins b.
func (l *Log_t) LogWrite(b *bio.Buf_t, h *spinlock.HartState) {
	l.lock.Acquire(h)
	if l.lh.n >= LOGBLOCKS-1 {
		klog.Panicf("log", "log_write: too big a transaction")
	}
	if l.outstanding < 1 {
		klog.Panicf("log", "log_write: called outside of a transaction")
	}
	i := 0
	for ; i < l.lh.n; i++ {
		if l.lh.block[i] == b.Blockno {
			break
		}
	}
	l.lh.block[i] = b.Blockno
	if i == l.lh.n {
		l.cache.Bpin(b, h)
		l.lh.n++
	}
	l.lock.Release(h)
}
