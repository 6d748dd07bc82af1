package kalloc

import (
	"testing"

	"github.com/nicemissing/xv6/riscv"
	"github.com/nicemissing/xv6/spinlock"
	"github.com/stretchr/testify/require"
)

// Alloc hands out zeroed, page-aligned frames, and every frame eventually
// returns to the free list: allocating the whole pool and freeing it all
// back must leave FreeCount where it started.
func TestAllocFreeRoundTrip(t *testing.T) {
	h := spinlock.NewHartState(0)
	a := MkAllocator(0x80000000, 8)
	require.Equal(t, 8, a.FreeCount(h))

	var pas []uintptr
	for i := 0; i < 8; i++ {
		frame, pa, ok := a.Alloc(h)
		require.True(t, ok)
		for _, b := range frame {
			require.Equal(t, byte(0), b)
		}
		pas = append(pas, pa)
	}
	require.Equal(t, 0, a.FreeCount(h))

	_, _, ok := a.Alloc(h)
	require.False(t, ok, "pool exhausted, Alloc must report failure rather than panic")

	for _, pa := range pas {
		a.Free(pa, h)
	}
	require.Equal(t, 8, a.FreeCount(h))
}

// §3: Free poisons a frame's contents before relinking it, so a stale
// pointer into freed memory reads garbage rather than plausible zeroes.
func TestFreePoisonsContents(t *testing.T) {
	h := spinlock.NewHartState(0)
	a := MkAllocator(0x80000000, 2)

	frame, pa, ok := a.Alloc(h)
	require.True(t, ok)
	for i := range frame {
		frame[i] = 0x42
	}
	a.Free(pa, h)

	// The first 8 bytes are overwritten with the free-list link after
	// poisoning; everything past that must still read as poison.
	raw := a.FrameAt(pa)
	for i := 8; i < len(raw); i++ {
		require.Equal(t, byte(poison), raw[i], "byte %d not poisoned", i)
	}
}

// §4.2: Free rejects addresses that could never have come from Alloc.
func TestFreeRejectsUnalignedOrOutOfRange(t *testing.T) {
	h := spinlock.NewHartState(0)
	a := MkAllocator(0x80000000, 2)

	require.Panics(t, func() {
		a.Free(0x80000000+1, h)
	})
	require.Panics(t, func() {
		a.Free(0x90000000, h)
	})
}

func TestFrameSizeMatchesPageSize(t *testing.T) {
	h := spinlock.NewHartState(0)
	a := MkAllocator(0x80000000, 1)
	frame, _, ok := a.Alloc(h)
	require.True(t, ok)
	require.Len(t, frame, riscv.PGSIZE)
}
