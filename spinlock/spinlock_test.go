package spinlock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Basic ownership: Acquire makes the lock held by this hart, and a
// matched Acquire/Release pair leaves the lock free for the next caller.
func TestLockAcquireRelease(t *testing.T) {
	h := NewHartState(0)
	l := MkLock("test")

	require.False(t, l.Holding())
	l.Acquire(h)
	require.True(t, l.Holding())
	l.Release(h)
	require.False(t, l.Holding())

	// Reusable: a second Acquire/Release on the same lock succeeds.
	l.Acquire(h)
	l.Release(h)
}

// §5: interrupts must be disabled for as long as any spin lock is held.
// Acquire must push an interrupt-off nesting level, and the matching
// Release must pop it back off.
func TestAcquireReleaseNestingDepth(t *testing.T) {
	h := NewHartState(0)
	l := MkLock("test")

	require.Equal(t, 0, h.NestingDepth())
	l.Acquire(h)
	require.Equal(t, 1, h.NestingDepth())
	l.Release(h)
	require.Equal(t, 0, h.NestingDepth())
}

// Recursively acquiring the same lock on the same hart is a bug this
// package must catch rather than deadlock on.
func TestRecursiveAcquirePanics(t *testing.T) {
	h := NewHartState(0)
	l := MkLock("test")
	l.Acquire(h)
	defer l.Release(h)

	require.Panics(t, func() {
		l.Acquire(h)
	})
}

// Releasing a lock this hart does not hold is a bug, not a silent no-op.
func TestReleaseNotHeldPanics(t *testing.T) {
	h := NewHartState(0)
	l := MkLock("test")

	require.Panics(t, func() {
		l.Release(h)
	})
}

// §5: a nested critical section may never re-enable interrupts early.
func TestIntrOnPanicsAtNestingDepthGreaterThanOne(t *testing.T) {
	h := NewHartState(0)
	outer := MkLock("outer")
	inner := MkLock("inner")

	outer.Acquire(h)
	inner.Acquire(h)
	require.Equal(t, 2, h.NestingDepth())

	require.Panics(t, func() {
		h.IntrOn()
	})

	inner.Release(h)
	outer.Release(h)
}
