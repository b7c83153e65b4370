// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package locrange walks .debug_loc and .debug_ranges: the two sections
// whose payload is a list of (begin, end[, expression]) entries addressed
// indirectly, by offset, from DW_AT_location/DW_AT_ranges attributes
// elsewhere in .debug_info.
package locrange

import (
	"encoding/binary"
	"errors"
	"slices"

	"github.com/wf-tools/dwarflint/go/coverage"
	"github.com/wf-tools/dwarflint/go/diag"
	"github.com/wf-tools/dwarflint/go/dwarfmodel"
	"github.com/wf-tools/dwarflint/go/elf"
	"github.com/wf-tools/dwarflint/go/locexpr"
	"github.com/wf-tools/dwarflint/go/readctx"
	"github.com/wf-tools/dwarflint/go/relocation"
)

// ErrNoSection is returned by NewDriver when the file carries no section
// for the requested id.
var ErrNoSection = errors.New("locrange: section not present")

// categoryFor maps a driven section to the domain bit its diagnostics
// carry.
func categoryFor(id elf.DebugSectionID) diag.Category {
	if id == elf.SecRanges {
		return diag.CatRanges
	}
	return diag.CatLoc
}

// Driver walks every (offset, CU) reference into one section, either
// .debug_loc or .debug_ranges, reconciling relocations and accumulating
// the section's own byte coverage as it goes.
type Driver struct {
	file        *elf.Elf
	sectionID   elf.DebugSectionID
	sec         *elf.SectionHeader
	root        *readctx.Ctx
	rel         *relocation.Cursor
	category    diag.Category
	facade      *diag.Facade
	coverage    coverage.Coverage // bytes of sec already accounted for
	pcCoverage  coverage.Coverage // target PC ranges contributed by payload entries
	coverageMap *CoverageMap      // only consulted for .debug_ranges, may be nil
}

// NewDriver builds a driver over file's section tagged sectionID.
// coverageMap is only used when sectionID is elf.SecRanges; pass nil
// otherwise or when §4.7's cross-section pass isn't enabled.
func NewDriver(file *elf.Elf, sectionID elf.DebugSectionID, facade *diag.Facade, coverageMap *CoverageMap) (*Driver, error) {
	sec := file.SectionByDebugID(sectionID)
	if sec == nil {
		return nil, ErrNoSection
	}
	var byteOrder binary.ByteOrder = binary.LittleEndian
	if file.Endian == elf.ELFDATA2MSB {
		byteOrder = binary.BigEndian
	}
	return &Driver{
		file:        file,
		sectionID:   sectionID,
		sec:         sec,
		root:        readctx.New(sec.Data, byteOrder),
		rel:         relocation.NewCursor(sec, file.RelocationsFor(sec), facade),
		category:    categoryFor(sectionID),
		facade:      facade,
		coverageMap: coverageMap,
	}, nil
}

// CheckAll is the driver loop: gather every reference every CU makes into
// this section, sort and dedup by offset, fast-forward the relocation
// cursor past anything never referenced, and check each reference.
func (d *Driver) CheckAll(chain *dwarfmodel.CUChain) {
	var refs []dwarfmodel.Reference
	if d.sectionID == elf.SecRanges {
		refs = chain.AllRangeRefs()
	} else {
		refs = chain.AllLocRefs()
	}
	slices.SortFunc(refs, func(a, b dwarfmodel.Reference) int {
		if a.Offset < b.Offset {
			return -1
		}
		if a.Offset > b.Offset {
			return 1
		}
		return 0
	})
	refs = slices.CompactFunc(refs, func(a, b dwarfmodel.Reference) bool { return a.Offset == b.Offset })

	for _, ref := range refs {
		where := diag.NewWhere(d.sectionID, ref.Offset)
		d.rel.SkipTo(ref.Offset, relocation.SkipUnref, where)
		d.checkRef(ref.Offset, ref.CU)
	}
}

// Finish drains any relocation this driver never reached, then
// enumerates the holes left in the section's own byte coverage.
func (d *Driver) Finish() {
	d.rel.SkipRest(d.sectionID, diag.NewWhere(d.sectionID, 0))
	reportHoles(&d.coverage, d.sec.Data, uint64(d.sec.AddrAlign), d.category, d.sectionID, d.facade)
}

// checkRef implements check_loc_or_range_ref for one reference at offset
// a, owned by cu. It returns false if the reference's contribution to
// pc_coverage/coverage_map was suppressed because it started inside
// already-covered bytes.
func (d *Driver) checkRef(a uint64, cu *dwarfmodel.CU) bool {
	refWhere := diag.NewWhere(d.sectionID, a)

	if a >= uint64(len(d.sec.Data)) {
		d.facade.Errorf(d.category, refWhere, "reference at %#x is out of bounds", a)
		return false
	}

	retval := true
	if d.coverage.IsCovered(a, 1) {
		d.facade.Errorf(d.category, refWhere, "reference at %#x refers into the middle of another entry", a)
		retval = false
	}

	sub, err := readctx.InitSub(d.root, int(a), len(d.sec.Data))
	if err != nil {
		d.facade.Errorf(d.category, refWhere, "reference at %#x: %v", a, err)
		return false
	}

	addrSize := cu.AddressSize
	escape := addressMask(addrSize)
	var base *uint64
	if cu.HasLowPC {
		lowPC := cu.LowPC
		base = &lowPC
	}

	for {
		entryStart := uint64(sub.Offset())
		overlapReported := false
		checkOverlap := func(start, length uint64) {
			if overlapReported || length == 0 {
				return
			}
			if d.coverage.IsOverlap(start, length) {
				d.facade.Errorf(d.category, diag.NewWhere(d.sectionID, start), "overlaps data already covered by another reference")
				overlapReported = true
			}
		}

		beginOff := uint64(sub.Offset())
		checkOverlap(beginOff, uint64(addrSize))
		beginAddr, err := readAddr(sub, addrSize)
		if err != nil {
			d.facade.Errorf(d.category, refWhere, "can't read range begin address: %v", err)
			return retval
		}
		var beginSym *elf.Symbol
		beginRelocated := false
		if r := d.rel.Next(beginOff, relocation.SkipMismatched, refWhere); r != nil {
			d.rel.Apply(r, addrSize, &beginAddr, relocation.RelValue, &beginSym, refWhere)
			beginRelocated = true
		}

		endOff := uint64(sub.Offset())
		checkOverlap(endOff, uint64(addrSize))
		endAddr, err := readAddr(sub, addrSize)
		if err != nil {
			d.facade.Errorf(d.category, refWhere, "can't read range end address: %v", err)
			return retval
		}
		var endSym *elf.Symbol
		endRelocated := false
		if r := d.rel.Next(endOff, relocation.SkipMismatched, refWhere); r != nil {
			d.rel.Apply(r, addrSize, &endAddr, relocation.RelValue, &endSym, refWhere)
			endRelocated = true
		}

		if beginAddr != escape {
			switch {
			case beginRelocated != endRelocated:
				d.facade.Warnf(d.category|diag.CatReloc, refWhere, "range entry has a relocation on only one of its two addresses")
			case beginRelocated && endRelocated:
				if symbolSection(beginSym) != symbolSection(endSym) {
					d.facade.Errorf(d.category|diag.CatReloc, refWhere, "range entry's begin and end relocate against different sections")
				}
			}
		}

		done := false
		switch {
		case beginAddr == 0 && endAddr == 0 && !beginRelocated && !endRelocated:
			done = true
		case beginAddr == escape:
			if base != nil && endAddr == *base {
				d.facade.Warnf(d.category|diag.CatAccBloat, refWhere, "base address selector doesn't change the base address")
			}
			newBase := endAddr
			base = &newBase
		default:
			switch {
			case base == nil:
				d.facade.Errorf(d.category, refWhere, "range entry has no base address to resolve against")
			case endAddr < beginAddr:
				d.facade.Errorf(d.category, refWhere, "range entry's end address precedes its begin address")
			case endAddr == beginAddr:
				d.facade.Warnf(d.category|diag.CatAccBloat, refWhere, "range entry covers no range")
			case retval:
				lowPC, highPC := *base+beginAddr, *base+endAddr
				d.pcCoverage.Add(lowPC, highPC-lowPC)
				if d.coverageMap != nil {
					d.coverageMap.Add(lowPC, highPC-lowPC, d.facade, refWhere)
				}
			}

			// Only a payload entry carries a location expression; a base
			// address selector is just the two addresses read above.
			if d.sectionID == elf.SecLoc {
				lenOff := uint64(sub.Offset())
				checkOverlap(lenOff, 2)
				length, err := sub.Read2UByte()
				if err != nil {
					d.facade.Errorf(d.category, refWhere, "can't read location expression length: %v", err)
					return retval
				}
				exprOff := uint64(sub.Offset())
				checkOverlap(exprOff, uint64(length))
				_ = locexpr.Check(sub, cu, d.rel, int(length), refWhere, d.facade)
			}
		}

		d.coverage.Add(entryStart, uint64(sub.Offset())-entryStart)
		if done {
			break
		}
	}
	return retval
}

func symbolSection(sym *elf.Symbol) *elf.SectionHeader {
	if sym == nil {
		return nil
	}
	return sym.Section
}

// addressMask computes the DWARF "largest representable address" escape
// value for a target of addrSize bytes: 2^(8*addrSize) - 1.
func addressMask(addrSize int) uint64 {
	if addrSize >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(8*addrSize)) - 1
}

func readAddr(ctx *readctx.Ctx, size int) (uint64, error) {
	switch size {
	case 8:
		return ctx.Read8UByte()
	case 2:
		v, err := ctx.Read2UByte()
		return uint64(v), err
	default:
		v, err := ctx.Read4UByte()
		return uint64(v), err
	}
}

// reportHoles enumerates the complement of cov within [0, len(data)) and
// classifies each hole as zero padding (a bloat note) or unreferenced
// non-zero bytes (an error).
func reportHoles(cov *coverage.Coverage, data []byte, align uint64, category diag.Category, sectionID elf.DebugSectionID, facade *diag.Facade) {
	if align == 0 {
		align = 1
	}
	cov.FindHoles(0, uint64(len(data)), func(start, length uint64) bool {
		where := diag.NewWhere(sectionID, start)
		allZero := true
		for _, b := range data[start : start+length] {
			if b != 0 {
				allZero = false
				break
			}
		}
		if allZero && start%align == 0 {
			facade.Warnf(category|diag.CatAccBloat, where, "%d bytes of zero padding at %#x", length, start)
		} else {
			facade.Errorf(category, where, "%d unreferenced non-zero bytes at %#x", length, start)
		}
		return true
	})
}
