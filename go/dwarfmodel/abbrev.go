// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package dwarfmodel

import (
	"fmt"

	"github.com/wf-tools/dwarflint/go/readctx"
)

// abbrevAttrib is one (attribute, form) pair of an abbreviation entry.
type abbrevAttrib struct {
	Name uint64
	Form uint64
}

// abbrev is one decoded entry of a .debug_abbrev table, keyed by its code
// within that table.
type abbrev struct {
	Tag         uint64
	HasChildren bool
	Attribs     []abbrevAttrib
}

// parseAbbrevTable reads one abbreviation table starting at ctx's current
// offset, stopping at the terminating code-0 entry.
func parseAbbrevTable(ctx *readctx.Ctx) (map[uint64]*abbrev, error) {
	table := make(map[uint64]*abbrev)
	for !ctx.EOF() {
		code, err := ctx.ReadULEB128()
		if err != nil {
			return nil, fmt.Errorf("abbrev code: %w", err)
		}
		if code == 0 {
			return table, nil
		}

		tag, err := ctx.ReadULEB128()
		if err != nil {
			return nil, fmt.Errorf("abbrev tag: %w", err)
		}
		hasChildren, err := ctx.ReadUByte()
		if err != nil {
			return nil, fmt.Errorf("abbrev has_children: %w", err)
		}

		entry := &abbrev{Tag: tag, HasChildren: hasChildren != 0}
		for {
			name, err := ctx.ReadULEB128()
			if err != nil {
				return nil, fmt.Errorf("abbrev attrib name: %w", err)
			}
			form, err := ctx.ReadULEB128()
			if err != nil {
				return nil, fmt.Errorf("abbrev attrib form: %w", err)
			}
			if name == 0 && form == 0 {
				break
			}
			entry.Attribs = append(entry.Attribs, abbrevAttrib{Name: name, Form: form})
		}
		table[code] = entry
	}
	return table, nil
}
