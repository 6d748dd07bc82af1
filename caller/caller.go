// Package caller renders and deduplicates goroutine call stacks for
// diagnostics. It is grounded on the teacher's caller.go
// (caller/caller.go): Callerdump's frame-walking loop and
// Distinct_caller_t's "have we already reported this call chain" trick
// carry over unchanged in algorithm. Two call sites in this module
// exercise it: klog.Panicf attaches Dump's output as a structured field
// on every panic, and package trap uses a Distinct_caller_t to log an
// unrecognized scause only once per distinct call path instead of once
// per trap (matching the teacher's own rationale for the type: avoid
// flooding a diagnostic stream with the same warning).
package caller

import (
	"fmt"
	"runtime"
	"sync"
)

// Dump renders the call stack starting at the given runtime.Caller
// depth as a single newline-joined string (the teacher's Callerdump
// printed the same text straight to stdout via fmt.Printf).
func Dump(start int) string {
	s := ""
	for i := start; ; i++ {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if s == "" {
			s = fmt.Sprintf("%s:%d", f, l)
		} else {
			s += fmt.Sprintf("\n\t<-%s:%d", f, l)
		}
	}
	return s
}

// Distinct_caller_t tracks whether a call chain has been seen before,
// so a caller can log/report only the first occurrence of each distinct
// path of ancestor callers. Fields are protected by the embedded mutex.
type Distinct_caller_t struct {
	sync.Mutex
	Enabled bool
	did     map[uintptr]bool
	Whitel  map[string]bool
}

// pchash returns a poor-man's hash of the given RIP values, which is
// probably unique enough to key a "seen before" set.
func (dc *Distinct_caller_t) pchash(pcs []uintptr) uintptr {
	if len(pcs) == 0 {
		panic("pchash: empty pc slice")
	}
	var ret uintptr
	for _, pc := range pcs {
		pc = pc*1103515245 + 12345
		ret ^= pc
	}
	return ret
}

// Len returns the number of unique caller paths recorded.
func (dc *Distinct_caller_t) Len() int {
	dc.Lock()
	ret := len(dc.did)
	dc.Unlock()
	return ret
}

// Distinct reports whether the current call chain is new. It returns
// true along with a formatted stack trace the first time a given chain
// is seen, and false (with an empty string) on every repeat, or when a
// whitelisted function is found on the chain.
func (dc *Distinct_caller_t) Distinct() (bool, string) {
	dc.Lock()
	defer dc.Unlock()
	if !dc.Enabled {
		return false, ""
	}
	if dc.did == nil {
		dc.did = make(map[uintptr]bool)
	}

	var pcs []uintptr
	for sz, got := 30, 30; got >= sz; sz *= 2 {
		pcs = make([]uintptr, sz)
		got = runtime.Callers(3, pcs)
		if got == 0 {
			panic("Distinct: runtime.Callers returned nothing")
		}
		pcs = pcs[:got]
	}
	h := dc.pchash(pcs)
	if dc.did[h] {
		return false, ""
	}
	dc.did[h] = true

	frames := runtime.CallersFrames(pcs)
	fs := ""
	for {
		fr, more := frames.Next()
		if dc.Whitel[fr.Function] {
			return false, ""
		}
		if fs == "" {
			fs = fmt.Sprintf("%v (%v:%v)", fr.Function, fr.File, fr.Line)
		} else {
			fs += fmt.Sprintf("\n\t%v (%v:%v)", fr.Function, fr.File, fr.Line)
		}
		if !more || fr.Function == "runtime.goexit" {
			break
		}
	}
	return true, fs
}
