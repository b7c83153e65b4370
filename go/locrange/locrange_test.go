// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package locrange

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wf-tools/dwarflint/go/diag"
	"github.com/wf-tools/dwarflint/go/dwarfmodel"
	"github.com/wf-tools/dwarflint/go/elf"
)

func newFacade() (*diag.Facade, *diag.CollectingSink) {
	sink := &diag.CollectingSink{}
	return diag.NewFacade(diag.All(), diag.Only(diag.CatError), sink), sink
}

func rangesFile(data []byte) *elf.Elf {
	return &elf.Elf{
		Sections: []*elf.SectionHeader{
			{Name: ".debug_ranges", Data: data},
		},
	}
}

// TestSimpleRangeList is scenario S1: one payload entry relative to the
// CU's low_pc, a base-address selector, then a terminator.
func TestSimpleRangeList(t *testing.T) {
	data := []byte{
		0x00, 0x10, 0x00, 0x00, 0x00, 0x20, 0x00, 0x00, // (0x1000, 0x2000)
		0xff, 0xff, 0xff, 0xff, 0x00, 0x40, 0x00, 0x00, // base := 0x4000
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // terminator
	}
	facade, sink := newFacade()
	d, err := NewDriver(rangesFile(data), elf.SecRanges, facade, nil)
	require.NoError(t, err)

	cu := &dwarfmodel.CU{AddressSize: 4, HasLowPC: true, LowPC: 0x1000, Head: &dwarfmodel.CUHead{OffsetSize: 4}}
	d.checkRef(0, cu)

	assert.Empty(t, sink.Diagnostics)
	assert.True(t, d.pcCoverage.IsCovered(0x2000, 0x1000))
	assert.False(t, d.pcCoverage.IsOverlap(0x3000, 0x1000))
}

// TestNegativeRangeIsError is scenario S2.
func TestNegativeRangeIsError(t *testing.T) {
	data := []byte{0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00} // (0xff, 0)
	facade, sink := newFacade()
	d, err := NewDriver(rangesFile(data), elf.SecRanges, facade, nil)
	require.NoError(t, err)

	cu := &dwarfmodel.CU{AddressSize: 4, HasLowPC: true, LowPC: 0, Head: &dwarfmodel.CUHead{OffsetSize: 4}}
	d.checkRef(0, cu)

	require.NotEmpty(t, sink.Diagnostics)
	assert.Contains(t, sink.Diagnostics[0].Message, "precedes its begin address")
}

// TestOverlappingRefIsRefIntoOther is scenario S3: a second reference
// into the middle of a list another reference already fully consumed.
func TestOverlappingRefIsRefIntoOther(t *testing.T) {
	data := make([]byte, 80)
	copy(data[0:], []byte{0x10, 0x00, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00}) // (0x10, 0x20)
	copy(data[8:], []byte{0x30, 0x00, 0x00, 0x00, 0x40, 0x00, 0x00, 0x00}) // (0x30, 0x40)
	// bytes 16-23 stay zero: the terminator.

	facade, sink := newFacade()
	d, err := NewDriver(rangesFile(data), elf.SecRanges, facade, nil)
	require.NoError(t, err)

	cu := &dwarfmodel.CU{AddressSize: 4, HasLowPC: true, LowPC: 0, Head: &dwarfmodel.CUHead{OffsetSize: 4}}
	d.checkRef(0, cu)
	assert.Empty(t, sink.Diagnostics)

	d.checkRef(8, cu)
	require.NotEmpty(t, sink.Diagnostics)
	found := false
	for _, diagnostic := range sink.Diagnostics {
		if strings.Contains(diagnostic.Message, "middle of another entry") {
			found = true
		}
	}
	assert.True(t, found, "expected a RefIntoOther diagnostic among %v", sink.Diagnostics)
}

func TestEmptyRangeIsBloatWarningNotError(t *testing.T) {
	data := []byte{
		0x10, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, // (0x10, 0x10): empty
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // terminator
	}
	facade, sink := newFacade()
	d, err := NewDriver(rangesFile(data), elf.SecRanges, facade, nil)
	require.NoError(t, err)

	cu := &dwarfmodel.CU{AddressSize: 4, HasLowPC: true, LowPC: 0, Head: &dwarfmodel.CUHead{OffsetSize: 4}}
	d.checkRef(0, cu)

	require.Len(t, sink.Diagnostics, 1)
	assert.Equal(t, diag.SeverityWarning, sink.Diagnostics[0].Severity)
	assert.Contains(t, sink.Diagnostics[0].Message, "covers no range")
	assert.True(t, d.pcCoverage.Empty())
}

// TestCheckAllDoesNotConsumeFirstEntrysRelocation guards against the
// fast-forward in CheckAll eating the relocation that belongs to the
// first reference's own begin address: that relocation sits at exactly
// ref.Offset, the same position the fast-forward is told to skip up to.
func TestCheckAllDoesNotConsumeFirstEntrysRelocation(t *testing.T) {
	data := []byte{
		0x10, 0x00, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00, // (0x10, 0x20), both addresses relocated
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // terminator
	}
	sec := &elf.SectionHeader{Name: ".debug_ranges", Data: data}
	text := &elf.SectionHeader{Name: ".text", Flags: elf.SHF_ALLOC}
	sym := &elf.Symbol{Section: text}
	file := &elf.Elf{
		Sections: []*elf.SectionHeader{sec, text},
		Relocations: map[*elf.SectionHeader][]*elf.Relocation{
			sec: {
				{Section: sec, Symbol: sym, Offset: 0}, // relocates the begin address
				{Section: sec, Symbol: sym, Offset: 4}, // relocates the end address
			},
		},
	}

	facade, sink := newFacade()
	d, err := NewDriver(file, elf.SecRanges, facade, nil)
	require.NoError(t, err)

	cu := &dwarfmodel.CU{AddressSize: 4, HasLowPC: true, LowPC: 0, Head: &dwarfmodel.CUHead{OffsetSize: 4}}
	chain := &dwarfmodel.CUChain{CUs: []*dwarfmodel.CU{cu}}
	cu.RangeRefs = []dwarfmodel.Reference{{Offset: 0, CU: cu}}

	d.CheckAll(chain)

	for _, diagnostic := range sink.Diagnostics {
		assert.NotContains(t, diagnostic.Message, "only one of its two addresses")
	}
}

// TestLocBaseAddressSelectorHasNoLocationExpression guards against
// reading a 2-byte length field (and the bytes after it) following a
// base-address selector entry in .debug_loc: only payload entries carry
// a location expression.
func TestLocBaseAddressSelectorHasNoLocationExpression(t *testing.T) {
	data := []byte{
		0xff, 0xff, 0xff, 0xff, 0x00, 0x40, 0x00, 0x00, // base selector -> base = 0x4000
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // terminator
	}
	facade, sink := newFacade()
	d, err := NewDriver(&elf.Elf{Sections: []*elf.SectionHeader{{Name: ".debug_loc", Data: data}}}, elf.SecLoc, facade, nil)
	require.NoError(t, err)

	cu := &dwarfmodel.CU{AddressSize: 4, HasLowPC: true, LowPC: 0, Head: &dwarfmodel.CUHead{OffsetSize: 4}}
	d.checkRef(0, cu)

	assert.Empty(t, sink.Diagnostics)
	assert.True(t, d.coverage.IsCovered(0, uint64(len(data))))
}

func TestFinishReportsUnreferencedNonZeroHole(t *testing.T) {
	data := []byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // terminator at offset 0
		0x01, 0x02, 0x03, 0x04, // 4 unreferenced non-zero bytes
	}
	facade, sink := newFacade()
	d, err := NewDriver(rangesFile(data), elf.SecRanges, facade, nil)
	require.NoError(t, err)

	cu := &dwarfmodel.CU{AddressSize: 4, HasLowPC: true, LowPC: 0, Head: &dwarfmodel.CUHead{OffsetSize: 4}}
	d.checkRef(0, cu)
	d.Finish()

	found := false
	for _, diagnostic := range sink.Diagnostics {
		if diagnostic.Severity == diag.SeverityError {
			found = true
			assert.Contains(t, diagnostic.Message, "unreferenced non-zero bytes")
		}
	}
	assert.True(t, found)
}
