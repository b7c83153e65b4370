// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package diag

import (
	"fmt"
	"strings"

	"github.com/ianlancetaylor/demangle"
	"github.com/wf-tools/dwarflint/go/elf"
)

// Frame is one link of a Where chain: a section/subsystem tag plus the
// byte address within it that is under discussion. Symbol is optional and
// is only set when the frame is reporting a relocation mismatch against a
// named symbol.
type Frame struct {
	Section elf.DebugSectionID
	Address uint64
	Symbol  string
}

// Where is the nested containment path of a diagnostic: CU -> DIE ->
// attribute -> location expression -> opcode, outermost frame first.
type Where struct {
	frames []Frame
}

// NewWhere starts a chain at one frame.
func NewWhere(section elf.DebugSectionID, address uint64) *Where {
	return &Where{frames: []Frame{{Section: section, Address: address}}}
}

// Push returns a new Where with an additional, innermost frame. The
// receiver is left untouched so callers can branch a chain across
// sibling checks (e.g. one per opcode) without aliasing bugs.
func (w *Where) Push(section elf.DebugSectionID, address uint64) *Where {
	frames := make([]Frame, len(w.frames)+1)
	copy(frames, w.frames)
	frames[len(w.frames)] = Frame{Section: section, Address: address}
	return &Where{frames: frames}
}

// WithSymbol attaches a symbol name to the innermost frame, for
// diagnostics about relocation mismatches.
func (w *Where) WithSymbol(name string) *Where {
	if len(w.frames) == 0 {
		return w
	}
	frames := make([]Frame, len(w.frames))
	copy(frames, w.frames)
	frames[len(frames)-1].Symbol = name
	return &Where{frames: frames}
}

// Frames exposes the chain outermost-first.
func (w *Where) Frames() []Frame { return w.frames }

func (w *Where) String() string {
	var b strings.Builder
	for i, f := range w.frames {
		if i > 0 {
			b.WriteString(" -> ")
		}
		fmt.Fprintf(&b, "%s+%#x", f.Section, f.Address)
		if f.Symbol != "" {
			b.WriteString(" (")
			b.WriteString(demangleName(f.Symbol))
			b.WriteString(")")
		}
	}
	return b.String()
}

// demangleName best-effort demangles a C++ symbol name for display; names
// that aren't mangled (or that demangle can't parse) are returned as-is.
func demangleName(name string) string {
	out, err := demangle.ToString(name, demangle.NoParams)
	if err != nil {
		return name
	}
	return out
}
