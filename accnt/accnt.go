// Package accnt is a process's CPU-time accounting record. §3 Processes
// doesn't name accounting as a field, but SPEC_FULL.md's tabular
// reporting (§1a, the ps-equivalent tablewriter dump) needs somewhere
// to keep user/system time per process, and the teacher's accnt.Accnt_t
// (accnt/accnt.go) is exactly that: it has nothing RISC-V- or
// xv6-specific about it, so it carries over with its import path fixed
// (the teacher's tree only compiles under its own GOPATH-style layout)
// and is actually exercised: package trap brackets every trap with
// Finish, proc.Table_t.Sleep brackets every sleep with Sleep_time, and
// proc.Table_t.Wait folds a reaped child's record into its parent's.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nicemissing/xv6/util"
)

// Accnt_t accumulates per-process accounting information. Both Userns
// and Sysns store runtime in nanoseconds; the embedded mutex lets
// callers take a consistent snapshot when exporting usage (Fetch).
type Accnt_t struct {
	Userns int64 // nanoseconds of user time consumed
	Sysns  int64 // nanoseconds of system time consumed
	sync.Mutex
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

// Io_time removes time spent waiting for the disk driver from system
// time, so a process blocked in virtio.Disk_t.Rw isn't charged as if
// it were running.
func (a *Accnt_t) Io_time(since int) {
	a.Systadd(-(a.Now() - since))
}

// Sleep_time removes time spent inside proc.Table_t.Sleep from system
// time, for the same reason as Io_time.
func (a *Accnt_t) Sleep_time(since int) {
	a.Systadd(-(a.Now() - since))
}

// Finish adds the time elapsed since inttime to system time; package
// trap calls this once per trap, bracketing Usertrap/Kerneltrap.
func (a *Accnt_t) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

// Add merges another accounting record into this one (§4.9 wait: a
// reaped zombie's usage folds into its parent's).
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
	a.Unlock()
}

// Fetch returns a consistent rusage-encoded snapshot of the record.
func (a *Accnt_t) Fetch() []uint8 {
	a.Lock()
	ru := a.toRusage()
	a.Unlock()
	return ru
}

// toRusage encodes the pair of timevals (user, sys) the getrusage wire
// format expects: four 8-byte words (sec, usec, sec, usec).
func (a *Accnt_t) toRusage() []uint8 {
	const words = 4
	ret := make([]uint8, words*8)
	totv := func(nano int64) (int, int) {
		secs := int(nano / 1e9)
		usecs := int((nano % 1e9) / 1000)
		return secs, usecs
	}
	off := 0
	s, us := totv(a.Userns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	off += 8
	s, us = totv(a.Sysns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	return ret
}
