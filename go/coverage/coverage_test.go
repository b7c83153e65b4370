// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsEmptyRange(t *testing.T) {
	var c Coverage
	err := c.Add(4, 0)
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.True(t, c.Empty())
}

func TestAddMergesOverlapping(t *testing.T) {
	var c Coverage
	require.NoError(t, c.Add(0, 4))
	require.NoError(t, c.Add(2, 4))
	assert.False(t, c.Empty())
	assert.True(t, c.IsCovered(0, 6))
	assert.False(t, c.IsCovered(0, 7))
}

func TestAddMergesAdjacentTouchingRanges(t *testing.T) {
	var c Coverage
	require.NoError(t, c.Add(0, 4))
	require.NoError(t, c.Add(4, 4))
	assert.True(t, c.IsCovered(0, 8))

	var holes []interval
	c.FindHoles(0, 8, func(start, length uint64) bool {
		holes = append(holes, interval{start: start, end: start + length})
		return true
	})
	assert.Empty(t, holes)
}

// TestFindHolesBoundaryScenario reproduces the canonical two-hole case: a
// 16-byte section with [0,4) and [8,12) covered leaves holes at (4,4) and
// (12,4), reported in ascending order.
func TestFindHolesBoundaryScenario(t *testing.T) {
	var c Coverage
	require.NoError(t, c.Add(0, 4))
	require.NoError(t, c.Add(8, 4))

	type hole struct{ start, length uint64 }
	var got []hole
	c.FindHoles(0, 16, func(start, length uint64) bool {
		got = append(got, hole{start, length})
		return true
	})

	require.Len(t, got, 2)
	assert.Equal(t, hole{4, 4}, got[0])
	assert.Equal(t, hole{12, 4}, got[1])
}

func TestFindHolesStopsEarly(t *testing.T) {
	var c Coverage
	require.NoError(t, c.Add(0, 4))
	require.NoError(t, c.Add(8, 4))

	var calls int
	c.FindHoles(0, 16, func(start, length uint64) bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
}

func TestIsOverlap(t *testing.T) {
	var c Coverage
	require.NoError(t, c.Add(10, 10))
	assert.True(t, c.IsOverlap(15, 2))
	assert.True(t, c.IsOverlap(5, 10))
	assert.False(t, c.IsOverlap(0, 5))
	assert.False(t, c.IsOverlap(20, 5))
}

func TestIsCoveredPartial(t *testing.T) {
	var c Coverage
	require.NoError(t, c.Add(10, 5))
	assert.False(t, c.IsCovered(8, 5))
	assert.False(t, c.IsCovered(12, 5))
	assert.True(t, c.IsCovered(10, 5))
	assert.True(t, c.IsCovered(11, 2))
}

func TestDisjointnessInvariantAfterManyAdds(t *testing.T) {
	var c Coverage
	for _, r := range [][2]uint64{{0, 2}, {10, 2}, {4, 2}, {2, 2}, {6, 4}} {
		require.NoError(t, c.Add(r[0], r[1]))
	}
	for i := 1; i < len(c.intervals); i++ {
		assert.Less(t, c.intervals[i-1].end, c.intervals[i].start+1)
		assert.LessOrEqual(t, c.intervals[i-1].end, c.intervals[i].start)
	}
	assert.True(t, c.IsCovered(0, 12))
}
