// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package locrange

import (
	"github.com/samber/lo"

	"github.com/wf-tools/dwarflint/go/coverage"
	"github.com/wf-tools/dwarflint/go/diag"
	"github.com/wf-tools/dwarflint/go/elf"
)

// mappedSection is one allocated section CoverageMap tracks coverage
// against. warn is set for every allocated section that isn't also
// executable: a DWARF range landing in data is suspicious but not
// necessarily wrong, so it's tagged warn rather than error. hit records
// whether any range has ever landed here at all; an untouched section
// that never gets hit is exempted from the final hole pass unless it's
// executable and not one of the sections known to be only partially
// covered by design.
type mappedSection struct {
	sec      *elf.SectionHeader
	warn     bool
	hit      bool
	coverage coverage.Coverage
}

// CoverageMap is a second coverage pass that projects every
// `.debug_ranges` payload range onto the file's allocated sections, to
// catch ranges that point outside of any known code or data and ranges
// that straddle section boundaries.
type CoverageMap struct {
	file     *elf.Elf
	sections []*mappedSection
	// allowOverlap suppresses the "overlaps another one" error Add would
	// otherwise raise when two ranges land on the same bytes of a mapped
	// section. The original ties this to whether the section under check
	// is .debug_loc, where overlapping location lists are routine; this
	// map is only ever built to check `.debug_ranges`, so it stays false.
	allowOverlap bool
}

// alwaysPartiallyCovered names executable sections that FindHoles exempts
// from the hole pass as long as no range has ever hit them; once hit,
// their holes are reported like any other section's.
var alwaysPartiallyCovered = map[string]bool{".init": true, ".fini": true, ".plt": true}

// NewCoverageMap builds a map over every ALLOC section of file.
func NewCoverageMap(file *elf.Elf) *CoverageMap {
	alloc := lo.Filter(file.Sections, func(sec *elf.SectionHeader, _ int) bool { return sec.IsAlloc() })
	m := &CoverageMap{file: file}
	for _, sec := range alloc {
		m.sections = append(m.sections, &mappedSection{sec: sec, warn: !sec.IsExec()})
	}
	return m
}

// Add records that [addr, addr+length) is used by some DWARF range,
// splitting the contribution across every section it overlaps and
// reporting the sub-portion, if any, that falls into no mapped section.
func (m *CoverageMap) Add(addr, length uint64, facade *diag.Facade, where *diag.Where) {
	end := addr + length
	var rangeCov coverage.Coverage
	found := false
	crossesBoundary := false
	overlapReported := false

	for _, ms := range m.sections {
		secStart := ms.sec.Address
		secEnd := secStart + uint64(ms.sec.Size)
		if secEnd <= addr || secStart >= end {
			continue
		}

		if found && !crossesBoundary {
			facade.Warnf(diag.CatRanges|diag.CatImpact2, where, "range %#x..%#x crosses section boundaries", addr, end)
			crossesBoundary = true
		}
		found = true
		if length == 0 {
			// An empty range covers nothing and can't fall into more than
			// one section; nothing further to accumulate or report.
			break
		}

		ovStart, ovEnd := max64(addr, secStart), min64(end, secEnd)
		covStart, covEnd := ovStart-secStart, ovEnd-secStart

		if !overlapReported && !m.allowOverlap && ms.coverage.IsOverlap(covStart, covEnd-covStart) {
			facade.Errorf(diag.CatRanges|diag.CatImpact2, where, "range %#x..%#x overlaps another one", addr, end)
			overlapReported = true
		}
		if ms.warn {
			facade.Warnf(diag.CatRanges|diag.CatImpact2, where, "range %#x..%#x covers non-text section %q", addr, end, ms.sec.Name)
		}

		ms.coverage.Add(covStart, covEnd-covStart)
		ms.hit = true
		rangeCov.Add(ovStart-addr, ovEnd-ovStart)
	}

	switch {
	case !found:
		facade.Errorf(diag.CatRanges, where, "range %#x..%#x matches no allocated section", addr, end)
	case length > 0:
		rangeCov.FindHoles(0, length, func(start, holeLen uint64) bool {
			facade.Errorf(diag.CatRanges, where, "portion %#x..%#x of the range %#x..%#x doesn't fall into any ALLOC section", addr+start, addr+start+holeLen, addr, end)
			return true
		})
	}
}

// FindHoles runs the final hole pass over every mapped section, reporting
// addresses no .debug_ranges payload ever touched. sectionID identifies
// the section being checked (elf.SecRanges) for the diagnostics' Where.
func (m *CoverageMap) FindHoles(facade *diag.Facade, sectionID elf.DebugSectionID) {
	where := diag.NewWhere(sectionID, 0)
	relocatable := m.file != nil && m.file.FileKind() == elf.Relocatable

	for _, ms := range m.sections {
		ms.coverage.FindHoles(0, uint64(ms.sec.Size), func(start, length uint64) bool {
			if !ms.hit && (ms.warn || alwaysPartiallyCovered[ms.sec.Name]) {
				// Never hit, and either not code or one of the sections
				// that's only ever partially covered by design: no point
				// reporting a hole that's the expected, normal case.
				return true
			}
			if sectionAllZero(ms.sec.Data, start, length) {
				return true
			}
			base := ms.sec.Address
			if relocatable {
				base = 0
			}
			facade.Warnf(diag.CatRanges|diag.CatAccSuboptimal|diag.CatImpact4, where,
				"addresses %#x..%#x of section %q are not covered", start+base, start+length+base, ms.sec.Name)
			return true
		})
	}
}

// sectionAllZero reports whether data[start:start+length] is present and
// entirely zero. Sections with no backing data at all (stripped, or
// NOBITS like .bss) are treated as exempt rather than reported, since
// there's nothing to inspect to tell padding from a genuine hole.
func sectionAllZero(data []byte, start, length uint64) bool {
	if data == nil {
		return true
	}
	if start+length > uint64(len(data)) {
		return false
	}
	for _, b := range data[start : start+length] {
		if b != 0 {
			return false
		}
	}
	return true
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
