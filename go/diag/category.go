// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package diag

// Category is a bit flag set. Every diagnostic carries one Category value
// combining a domain bit (which section/subsystem found it) with zero or
// more accent bits (how bad it is). This mirrors the
// mc_<domain>|mc_<accent> composition in the original dwarflint.
type Category uint32

const (
	// Domain bits: which checker raised the diagnostic.
	CatLEB128 Category = 1 << iota
	CatLoc
	CatRanges
	CatAranges
	CatAbbrev
	CatInfo
	CatLine
	CatReloc
	CatELF

	// Accent bits: how the diagnostic should be read.
	CatError          // structural/semantic defect, not just stylistic noise
	CatAccBloat       // technically legal but wasteful (e.g. skip 0)
	CatAccSuboptimal  // legal but a better producer wouldn't do this
	CatImpact1        // informational
	CatImpact2        // minor
	CatImpact3        // moderate
	CatImpact4        // severe
)

// domainNames and accentNames back Category.String(); kept as separate
// tables so a diagnostic's text mentions each set bit by name.
var domainNames = []struct {
	bit  Category
	name string
}{
	{CatLEB128, "leb128"},
	{CatLoc, "loc"},
	{CatRanges, "ranges"},
	{CatAranges, "aranges"},
	{CatAbbrev, "abbrev"},
	{CatInfo, "info"},
	{CatLine, "line"},
	{CatReloc, "reloc"},
	{CatELF, "elf"},
}

var accentNames = []struct {
	bit  Category
	name string
}{
	{CatError, "error"},
	{CatAccBloat, "acc_bloat"},
	{CatAccSuboptimal, "acc_suboptimal"},
	{CatImpact1, "impact_1"},
	{CatImpact2, "impact_2"},
	{CatImpact3, "impact_3"},
	{CatImpact4, "impact_4"},
}

// ParseCategoryName looks up a single domain or accent name (e.g. "loc",
// "reloc", "acc_bloat") by the spelling Category.String() prints it with.
// It's exported for hosts that parse criterion strings from the command
// line or a config file; the category bitmask itself stays internal to
// this package's Term/Criteria matching.
func ParseCategoryName(name string) (Category, bool) {
	for _, d := range domainNames {
		if d.name == name {
			return d.bit, true
		}
	}
	for _, a := range accentNames {
		if a.name == name {
			return a.bit, true
		}
	}
	return 0, false
}

func (c Category) String() string {
	names := make([]string, 0, 4)
	for _, d := range domainNames {
		if c&d.bit != 0 {
			names = append(names, d.name)
		}
	}
	for _, a := range accentNames {
		if c&a.bit != 0 {
			names = append(names, a.name)
		}
	}
	if len(names) == 0 {
		return "(none)"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += "|" + n
	}
	return out
}
