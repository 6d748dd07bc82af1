// Package klog is the kernel's diagnostic logging surface. The teacher
// (biscuit) prints diagnostics with bare fmt.Printf because it runs
// bare-metal with no hosted logging ecosystem available to it; this module
// runs hosted, so it adopts the logging stack jra3-system-agent uses for
// its own kernel-adjacent (eBPF collector) diagnostics: zap wrapped behind
// go-logr's logr.Logger via zapr, so call sites depend on the small logr
// interface rather than zap directly.
package klog

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/nicemissing/xv6/caller"
)

var (
	once sync.Once
	root logr.Logger
)

// Root returns the process-wide logger, constructing a production zap
// configuration on first use.
func Root() logr.Logger {
	once.Do(func() {
		zl, err := zap.NewProduction()
		if err != nil {
			// logging must not itself be a source of kernel failure;
			// fall back to a discard logger rather than panic.
			zl = zap.NewNop()
		}
		root = zapr.NewLogger(zl)
	})
	return root
}

// For returns a named sub-logger, e.g. klog.For("trap") or klog.For("log").
func For(component string) logr.Logger {
	return Root().WithName(component)
}

// Panicf formats a message and panics with it, after logging it at error
// level with the given component name. Spec §7: panics remain Go panics
// (a halting diagnostic); this only enriches what gets printed before the
// halt, it never recovers or converts the panic into a soft error.
func Panicf(component, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	For(component).Error(nil, msg, "stack", callerStack())
	panic(msg)
}

// callerStack captures the goroutine's call chain above Panicf, the
// way the teacher's caller.Callerdump prints it to stdout -- here it
// is attached as a structured field instead of being printed directly.
func callerStack() string {
	return caller.Dump(2)
}
