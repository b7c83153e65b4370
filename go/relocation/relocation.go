// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package relocation walks the REL/RELA entries of one ELF section in
// offset order and reconciles them against the bytes the validator reads
// out of that section, exactly as the original dwarflint's
// relocation_next/relocate_one/relocation_skip_rest do.
package relocation

import (
	"fmt"

	"github.com/wf-tools/dwarflint/go/diag"
	"github.com/wf-tools/dwarflint/go/elf"
)

// Policy controls how Next treats a relocation whose offset lies before
// the position the caller is asking about, a sign the cursor and the
// relocation table have drifted out of sync.
type Policy int

const (
	// SkipMismatched advances past stale relocations and reports each one.
	SkipMismatched Policy = iota
	// SkipUnref advances past stale relocations silently.
	SkipUnref
	// SkipOK returns a stale relocation to the caller instead of dropping
	// it; as with the other policies, a relocation past minOff is left alone.
	SkipOK
)

// TargetKind constrains which relocation a caller is willing to apply.
type TargetKind int

const (
	// RelValue is a plain datum relocation (e.g. an absolute location
	// expression operand) with no further constraint.
	RelValue TargetKind = iota
	// RelAddress expects the relocation to resolve to a code or data
	// address in an allocated section.
	RelAddress
	// SecInfo expects the relocation to resolve into debug info, as
	// DW_OP_call2/DW_OP_call4 targets do.
	SecInfo
)

func (k TargetKind) String() string {
	switch k {
	case RelAddress:
		return "address"
	case SecInfo:
		return "sec_info"
	default:
		return "value"
	}
}

// Cursor walks a section's relocations, which must be sorted ascending by
// Offset; elf.ReadELF does this for every section it loads.
type Cursor struct {
	section *elf.SectionHeader
	rels    []*elf.Relocation
	idx     int
	facade  *diag.Facade
}

// NewCursor builds a cursor over sec's relocations. facade may be nil, in
// which case stale/unconsumed relocations are silently dropped instead of
// reported.
func NewCursor(sec *elf.SectionHeader, rels []*elf.Relocation, facade *diag.Facade) *Cursor {
	return &Cursor{section: sec, rels: rels, facade: facade}
}

// Next looks for the relocation applicable at minOff. A relocation whose
// offset exactly matches minOff is consumed and returned. A relocation
// whose offset is less than minOff is stale; it is handled per policy and
// the search continues. A relocation whose offset is greater than minOff
// means nothing applies yet, and nil is returned without consuming it.
func (c *Cursor) Next(minOff uint64, policy Policy, where *diag.Where) *elf.Relocation {
	for c.idx < len(c.rels) {
		rel := c.rels[c.idx]
		switch {
		case rel.Offset == minOff:
			c.idx++
			return rel
		case rel.Offset < minOff:
			c.idx++
			switch policy {
			case SkipMismatched:
				c.report(where, "relocation at offset %#x skipped, out of order (expected >= %#x)", rel.Offset, minOff)
			case SkipUnref:
				// known-absent reference, drop silently
			case SkipOK:
				return rel
			}
			continue
		default: // rel.Offset > minOff
			return nil
		}
	}
	return nil
}

// SkipTo advances the cursor past every relocation strictly before minOff,
// handling each per policy, without consuming a relocation whose offset
// equals minOff. Use this to fast-forward over references the caller is
// about to skip entirely; Next is reserved for consuming the relocation
// that applies to a position the caller is actually about to read.
func (c *Cursor) SkipTo(minOff uint64, policy Policy, where *diag.Where) {
	for c.idx < len(c.rels) && c.rels[c.idx].Offset < minOff {
		rel := c.rels[c.idx]
		c.idx++
		switch policy {
		case SkipMismatched:
			c.report(where, "relocation at offset %#x skipped, out of order (expected >= %#x)", rel.Offset, minOff)
		case SkipUnref:
			// known-absent reference, drop silently
		case SkipOK:
			// accept without reporting; caller chose not to care
		}
	}
}

// Apply substitutes *value with the datum rel relocates to, constrained
// to kind. A relocation whose resolved symbol doesn't fit kind's
// expectation is reported but still applied, matching the original's
// "warn and continue" posture for relocation mismatches.
func (c *Cursor) Apply(rel *elf.Relocation, size int, value *uint64, kind TargetKind, outSymbol **elf.Symbol, where *diag.Where) {
	if !kindAccepts(kind, rel) {
		c.report(where, "relocation at offset %#x targets %s, but a %s relocation was expected", rel.Offset, describeTarget(rel), kind)
	}

	resolved := uint64(rel.Addend)
	if rel.Symbol != nil {
		resolved += rel.Symbol.Value
	} else {
		resolved += *value
	}
	if size < 8 {
		resolved &= (uint64(1) << (uint(size) * 8)) - 1
	}
	*value = resolved

	if outSymbol != nil {
		*outSymbol = rel.Symbol
	}
}

// SkipRest drains any relocations this cursor never reached and reports
// each as referring to bytes the validator never examined.
func (c *Cursor) SkipRest(sectionID elf.DebugSectionID, where *diag.Where) {
	for ; c.idx < len(c.rels); c.idx++ {
		rel := c.rels[c.idx]
		c.report(where, "relocation at offset %#x in %s refers to unvalidated data", rel.Offset, sectionID)
	}
}

func (c *Cursor) report(where *diag.Where, format string, args ...any) {
	if c.facade == nil {
		return
	}
	c.facade.Warnf(diag.CatReloc, where, format, args...)
}

func kindAccepts(kind TargetKind, rel *elf.Relocation) bool {
	switch kind {
	case RelAddress:
		return rel.Symbol == nil || rel.Symbol.Section == nil || rel.Symbol.Section.IsAlloc()
	case SecInfo:
		return rel.Symbol != nil && rel.Symbol.Section != nil && rel.Symbol.Section.DebugID() == elf.SecInfo
	default:
		return true
	}
}

func describeTarget(rel *elf.Relocation) string {
	if rel.Symbol == nil || rel.Symbol.Section == nil {
		return "an undefined symbol"
	}
	return fmt.Sprintf("section %q", rel.Symbol.Section.Name)
}
