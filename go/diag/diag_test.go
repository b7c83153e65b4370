// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wf-tools/dwarflint/go/elf"
)

func TestTermMatches(t *testing.T) {
	t1 := Term{Positive: CatLoc, Negative: CatAccBloat}
	assert.True(t, t1.Matches(CatLoc|CatError))
	assert.False(t, t1.Matches(CatLoc|CatAccBloat))
	assert.False(t, t1.Matches(CatRanges))
}

func TestCriteriaAnyTermMatches(t *testing.T) {
	c := Criteria{Terms: []Term{
		{Positive: CatLoc},
		{Positive: CatRanges},
	}}
	assert.True(t, c.Matches(CatLoc))
	assert.True(t, c.Matches(CatRanges))
	assert.False(t, c.Matches(CatAbbrev))
}

func TestFacadePromotionRules(t *testing.T) {
	sink := &CollectingSink{}
	f := NewFacade(Only(CatLoc), Only(CatLoc|CatError), sink)
	where := NewWhere(elf.SecLoc, 0x10)

	// matches both -> error
	f.Report(CatLoc|CatError, where, "boom")
	// matches only warning -> warning
	f.Report(CatLoc|CatAccBloat, where, "bloat")
	// matches neither -> suppressed
	f.Report(CatAbbrev, where, "dropped")

	assert := assert.New(t)
	assert.Len(sink.Diagnostics, 2)
	assert.Equal(SeverityError, sink.Diagnostics[0].Severity)
	assert.Equal(SeverityWarning, sink.Diagnostics[1].Severity)
	assert.Equal(1, f.ErrorCount())
}

func TestFacadeSuppressesErrorOnlyMatch(t *testing.T) {
	sink := &CollectingSink{}
	// warning criteria excludes CatRanges entirely; error criteria includes
	// it. A category matched only by the error criteria must not surface
	// as an error just because some narrower custom -warnings excludes it.
	f := NewFacade(Only(CatLoc), Only(CatRanges|CatError), sink)
	where := NewWhere(elf.SecRanges, 0)

	f.Report(CatRanges|CatError, where, "should be dropped")

	assert.Empty(t, sink.Diagnostics)
	assert.Equal(t, 0, f.ErrorCount())
}

func TestWhereChainFormatting(t *testing.T) {
	w := NewWhere(elf.SecRanges, 0).Push(elf.SecLocExpr, 0x30)
	assert.Contains(t, w.String(), "->")
}

func TestParseCategoryName(t *testing.T) {
	bit, ok := ParseCategoryName("loc")
	assert.True(t, ok)
	assert.Equal(t, CatLoc, bit)

	bit, ok = ParseCategoryName("acc_bloat")
	assert.True(t, ok)
	assert.Equal(t, CatAccBloat, bit)

	_, ok = ParseCategoryName("not_a_category")
	assert.False(t, ok)
}
