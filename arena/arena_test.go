package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireCarvesDistinctSlices(t *testing.T) {
	a := newArena(Request, defaultSlabSize, false)

	b1 := a.Acquire(16, 1)
	b2 := a.Acquire(16, 1)

	require.Len(t, b1, 16)
	require.Len(t, b2, 16)

	b1[0] = 'x'
	assert.NotEqual(t, byte('x'), b2[0])
}

func TestAcquireAlignsOffsets(t *testing.T) {
	a := newArena(Request, defaultSlabSize, false)

	a.Acquire(1, 1)
	b := a.Acquire(8, 8)

	// The slab's backing array address isn't observable directly, but an
	// 8-aligned acquire after a 1-byte acquire must have skipped 7 bytes
	// of padding, which shows up as a gap in the slab's bookkeeping.
	require.Len(t, b, 8)
	assert.Equal(t, 16, a.slabs[0].offset)
}

func TestAcquireOversizedGetsPrivateSlab(t *testing.T) {
	a := newArena(Request, 1024, false)

	b := a.Acquire(4096, 1)
	require.Len(t, b, 4096)
	assert.Len(t, a.slabs, 1)
}

func TestResetReclaimsSlabsInO1SlabCount(t *testing.T) {
	a := newArena(Request, 64, false)

	for i := 0; i < 10; i++ {
		a.Acquire(32, 1)
	}
	require.True(t, len(a.slabs) > 1)

	a.Reset()
	assert.Equal(t, 0, len(a.slabs))

	// A slab acquired after Reset must be usable again (returned to the
	// pool, not leaked).
	b := a.Acquire(8, 1)
	require.Len(t, b, 8)
}

func TestStatsOnlyTrackedWhenProfilingEnabled(t *testing.T) {
	off := newArena(Request, defaultSlabSize, false)
	off.Acquire(100, 1)
	assert.Equal(t, uint64(0), off.Stats().Allocated)

	on := newArena(Request, defaultSlabSize, true)
	on.Acquire(100, 1)
	assert.Equal(t, uint64(100), on.Stats().Allocated)
}

func TestPoolResetDoesNotAffectOtherArenas(t *testing.T) {
	p := NewPool(true)

	reqBuf := p.Arena(Request).Acquire(64, 1)
	resBuf := p.Arena(Response).Acquire(64, 1)
	require.NotNil(t, reqBuf)
	require.NotNil(t, resBuf)

	p.Reset(Request)

	assert.Equal(t, uint64(0), p.Arena(Request).Stats().Allocated)
	assert.Equal(t, uint64(64), p.Arena(Response).Stats().Allocated)
}

func TestPoolResetAllClearsEveryArena(t *testing.T) {
	p := NewPool(true)
	for id := ID(0); id < numArenas; id++ {
		p.Arena(id).Acquire(16, 1)
	}

	p.ResetAll()

	for _, s := range p.Stats() {
		assert.Equal(t, uint64(0), s.Allocated)
	}
}

func TestFragmentationRatioIsZeroWhenEmpty(t *testing.T) {
	var s Stats
	assert.Equal(t, 0.0, s.FragmentationRatio())
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "request", Request.String())
	assert.Equal(t, "cache", Cache.String())
	assert.Equal(t, "unknown", ID(99).String())
}
