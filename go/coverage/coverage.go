// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package coverage implements Coverage: an ordered, disjoint, half-open
// set of byte ranges over [0, 2^64). It tracks which bytes of a section
// the validator has already accounted for, so holes and overlaps can be
// reported once the walk is done.
package coverage

import (
	"errors"
	"slices"
	"sort"

	"github.com/samber/lo"
)

// ErrInvalidRange is returned by Add for a zero-length interval.
var ErrInvalidRange = errors.New("coverage: invalid (empty) range")

type interval struct {
	start uint64
	end   uint64 // exclusive
}

// Coverage is a minimal disjoint family of half-open intervals, kept
// sorted ascending by start. The zero value is an empty set ready to use.
type Coverage struct {
	intervals []interval
}

// Add inserts [start, start+length) into the set, merging it with any
// overlapping or adjacent existing intervals so the family stays minimal
// and disjoint.
func (c *Coverage) Add(start, length uint64) error {
	if length == 0 {
		return ErrInvalidRange
	}
	end := start + length

	// lo: first interval that could merge from the left (its end reaches
	// at least to our start). hi: first interval strictly past our end
	// (its start is beyond end, so it cannot touch us).
	lo := sort.Search(len(c.intervals), func(i int) bool { return c.intervals[i].end >= start })
	hi := sort.Search(len(c.intervals), func(i int) bool { return c.intervals[i].start > end })

	merged := interval{start: start, end: end}
	if lo < hi {
		merged.start = min64(start, c.intervals[lo].start)
		merged.end = max64(end, c.intervals[hi-1].end)
	}
	c.intervals = slices.Replace(c.intervals, lo, hi, merged)
	return nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// IsOverlap reports whether any byte of [start, start+length) is already
// in the set.
func (c *Coverage) IsOverlap(start, length uint64) bool {
	if length == 0 {
		return false
	}
	end := start + length
	idx := sort.Search(len(c.intervals), func(i int) bool { return c.intervals[i].end > start })
	return idx < len(c.intervals) && c.intervals[idx].start < end
}

// IsCovered reports whether every byte of [start, start+length) is in the
// set.
func (c *Coverage) IsCovered(start, length uint64) bool {
	if length == 0 {
		return true
	}
	end := start + length
	idx := sort.Search(len(c.intervals), func(i int) bool { return c.intervals[i].end > start })
	if idx >= len(c.intervals) {
		return false
	}
	return c.intervals[idx].start <= start && c.intervals[idx].end >= end
}

// FindHoles enumerates, in ascending order, the maximal sub-intervals of
// [begin, end) not present in the set, invoking cb(start, length) for
// each. Enumeration stops early if cb returns false.
func (c *Coverage) FindHoles(begin, end uint64, cb func(start, length uint64) bool) {
	for _, hole := range c.holesOf(begin, end) {
		if !cb(hole.start, hole.end-hole.start) {
			return
		}
	}
}

// holesOf computes the complement of the set within [begin,end) as a
// plain slice, filtering out any degenerate zero-length gap a boundary
// coincidence might produce.
func (c *Coverage) holesOf(begin, end uint64) []interval {
	if begin >= end {
		return nil
	}
	cursor := begin
	var raw []interval
	for _, iv := range c.intervals {
		if iv.end <= begin {
			continue
		}
		if iv.start >= end {
			break
		}
		if iv.start > cursor {
			raw = append(raw, interval{start: cursor, end: iv.start})
		}
		cursor = max64(cursor, iv.end)
	}
	if cursor < end {
		raw = append(raw, interval{start: cursor, end: end})
	}
	return lo.Filter(raw, func(iv interval, _ int) bool { return iv.end > iv.start })
}

// Empty reports whether the set has no intervals at all.
func (c *Coverage) Empty() bool { return len(c.intervals) == 0 }
