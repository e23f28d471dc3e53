package pager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPagerAllocGetRoundTrip(t *testing.T) {
	p := newTestPager(t)

	ref, err := p.AllocPage()
	require.NoError(t, err)
	id := ref.ID()
	copy(ref.Bytes(), []byte("hello page"))
	require.NoError(t, p.Unref(ref))

	got, err := p.GetPage(id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello page"), got.Bytes()[:len("hello page")])
	require.NoError(t, p.Unref(got))
}

// TestPagerMutableExclusivity exercises IsMutable's fixed bitwise check
// (spec §9's "bitwise AND, not OR" recommendation): a page only reports
// mutable after MakeMutable succeeds, and MakeMutable refuses a page
// with more than one outstanding reference.
func TestPagerMutableExclusivity(t *testing.T) {
	p := newTestPager(t)
	ref, err := p.AllocPage()
	require.NoError(t, err)
	require.True(t, p.IsMutable(ref))
	require.NoError(t, p.Unref(ref))

	shared, err := p.GetPage(ref.ID())
	require.NoError(t, err)
	require.False(t, p.IsMutable(shared))

	second, err := p.GetPage(ref.ID())
	require.NoError(t, err)
	require.False(t, p.MakeMutable(second))

	require.NoError(t, p.Unref(second))
	require.True(t, p.MakeMutable(shared))
	require.True(t, p.IsMutable(shared))
	require.NoError(t, p.Unref(shared))
}

// TestPagerFreeListReuse covers invariant 8: a deleted page is neither
// reachable from any tree nor double-counted, and AllocPage reuses it
// before growing the file.
func TestPagerFreeListReuse(t *testing.T) {
	p := newTestPager(t)

	before := p.PageCount()
	a, err := p.AllocPage()
	require.NoError(t, err)
	idA := a.ID()
	require.NoError(t, p.Unref(a))

	aRef, err := p.GetPageMutable(idA)
	require.NoError(t, err)
	freed, err := p.DeletePage(aRef)
	require.NoError(t, err)
	require.True(t, freed)

	b, err := p.AllocPage()
	require.NoError(t, err)
	require.Equal(t, idA, b.ID(), "freed page should be recycled before growing the file")
	require.NoError(t, p.Unref(b))

	require.Equal(t, before+1, p.PageCount(), "reusing a freed page must not grow the file")
}

func TestPagerStatsReflectsCache(t *testing.T) {
	p := newTestPager(t)
	ref, err := p.AllocPage()
	require.NoError(t, err)
	require.NoError(t, p.Unref(ref))

	stats := p.Stats()
	require.Equal(t, p.PageSize(), stats.PageSize)
	require.Equal(t, p.PageCount(), stats.PageCount)
	require.NotEmpty(t, stats.String())
}
