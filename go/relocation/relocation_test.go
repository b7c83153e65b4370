// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package relocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wf-tools/dwarflint/go/diag"
	"github.com/wf-tools/dwarflint/go/elf"
)

func TestNextReturnsExactMatchAndConsumes(t *testing.T) {
	sink := &diag.CollectingSink{}
	facade := diag.NewFacade(diag.All(), diag.None(), sink)
	where := diag.NewWhere(elf.SecLoc, 0)

	rels := []*elf.Relocation{
		{Offset: 4},
		{Offset: 8},
	}
	c := NewCursor(nil, rels, facade)

	r := c.Next(4, SkipMismatched, where)
	require.NotNil(t, r)
	assert.Equal(t, uint64(4), r.Offset)

	assert.Nil(t, c.Next(5, SkipMismatched, where))
}

func TestNextSkipMismatchedReportsStale(t *testing.T) {
	sink := &diag.CollectingSink{}
	facade := diag.NewFacade(diag.All(), diag.None(), sink)
	where := diag.NewWhere(elf.SecLoc, 0)

	rels := []*elf.Relocation{{Offset: 2}, {Offset: 10}}
	c := NewCursor(nil, rels, facade)

	r := c.Next(10, SkipMismatched, where)
	require.NotNil(t, r)
	assert.Equal(t, uint64(10), r.Offset)
	assert.Len(t, sink.Diagnostics, 1)
}

func TestNextSkipUnrefDropsSilently(t *testing.T) {
	sink := &diag.CollectingSink{}
	facade := diag.NewFacade(diag.All(), diag.None(), sink)
	where := diag.NewWhere(elf.SecLoc, 0)

	rels := []*elf.Relocation{{Offset: 2}, {Offset: 10}}
	c := NewCursor(nil, rels, facade)

	r := c.Next(10, SkipUnref, where)
	require.NotNil(t, r)
	assert.Empty(t, sink.Diagnostics)
}

func TestNextSkipOKAcceptsStaleRelocation(t *testing.T) {
	rels := []*elf.Relocation{{Offset: 2}}
	c := NewCursor(nil, rels, nil)

	r := c.Next(99, SkipOK, diag.NewWhere(elf.SecLoc, 0))
	require.NotNil(t, r)
	assert.Equal(t, uint64(2), r.Offset)
}

func TestApplyResolvesSymbolAndMasksSize(t *testing.T) {
	sym := &elf.Symbol{Value: 0x1_0000_0000}
	rel := &elf.Relocation{Offset: 0, Addend: 4, Symbol: sym}
	c := NewCursor(nil, nil, nil)

	var value uint64
	var outSym *elf.Symbol
	c.Apply(rel, 4, &value, RelValue, &outSym, diag.NewWhere(elf.SecLoc, 0))

	assert.Equal(t, uint64(0x0000_0004), value) // masked to 32 bits
	assert.Same(t, sym, outSym)
}

func TestApplyReportsTargetKindMismatch(t *testing.T) {
	sink := &diag.CollectingSink{}
	facade := diag.NewFacade(diag.All(), diag.None(), sink)
	where := diag.NewWhere(elf.SecLoc, 0)

	sec := &elf.SectionHeader{Name: ".text"} // no SHF_ALLOC
	sym := &elf.Symbol{Section: sec}
	rel := &elf.Relocation{Symbol: sym}

	c := NewCursor(nil, nil, facade)
	var value uint64
	c.Apply(rel, 8, &value, RelAddress, nil, where)
	assert.Len(t, sink.Diagnostics, 1)
}

func TestSkipToLeavesExactMatchForNext(t *testing.T) {
	sink := &diag.CollectingSink{}
	facade := diag.NewFacade(diag.All(), diag.None(), sink)
	where := diag.NewWhere(elf.SecLoc, 0)

	rels := []*elf.Relocation{{Offset: 2}, {Offset: 10}}
	c := NewCursor(nil, rels, facade)

	c.SkipTo(10, SkipUnref, where)
	assert.Empty(t, sink.Diagnostics)

	r := c.Next(10, SkipMismatched, where)
	require.NotNil(t, r)
	assert.Equal(t, uint64(10), r.Offset)
}

func TestSkipToReportsStaleUnderSkipMismatched(t *testing.T) {
	sink := &diag.CollectingSink{}
	facade := diag.NewFacade(diag.All(), diag.None(), sink)
	where := diag.NewWhere(elf.SecLoc, 0)

	rels := []*elf.Relocation{{Offset: 2}, {Offset: 4}, {Offset: 10}}
	c := NewCursor(nil, rels, facade)

	c.SkipTo(10, SkipMismatched, where)
	assert.Len(t, sink.Diagnostics, 2)

	r := c.Next(10, SkipMismatched, where)
	require.NotNil(t, r)
	assert.Equal(t, uint64(10), r.Offset)
}

func TestSkipToStopsAtGreaterOffsetWithoutConsuming(t *testing.T) {
	rels := []*elf.Relocation{{Offset: 20}}
	c := NewCursor(nil, rels, nil)

	c.SkipTo(10, SkipUnref, diag.NewWhere(elf.SecLoc, 0))
	assert.Equal(t, 0, c.idx)
}

func TestSkipRestReportsEachRemainingRelocation(t *testing.T) {
	sink := &diag.CollectingSink{}
	facade := diag.NewFacade(diag.All(), diag.None(), sink)
	where := diag.NewWhere(elf.SecLoc, 0)

	rels := []*elf.Relocation{{Offset: 2}, {Offset: 4}, {Offset: 6}}
	c := NewCursor(nil, rels, facade)
	c.idx = 1 // simulate one already consumed

	c.SkipRest(elf.SecLoc, where)
	assert.Len(t, sink.Diagnostics, 2)
}
