// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package diag

// Term is one disjunct of a criterion: a category matches the term iff
// every positive bit is set and no negative bit is set. Positive and
// negative must be disjoint, mirroring the assertion in the original
// dwarflint's message_term.
type Term struct {
	Positive Category
	Negative Category
}

// Matches reports whether cat satisfies this term.
func (t Term) Matches(cat Category) bool {
	return (t.Positive&cat) == t.Positive && (t.Negative&cat) == 0
}

// Criteria is a disjunction of Terms: a category matches the criteria iff
// any term matches, exactly message_accept in the original dwarflint.
type Criteria struct {
	Terms []Term
}

// Matches reports whether cat is accepted by any term.
func (c Criteria) Matches(cat Category) bool {
	for _, t := range c.Terms {
		if t.Matches(cat) {
			return true
		}
	}
	return false
}

// All is a convenience criterion that accepts every category.
func All() Criteria {
	return Criteria{Terms: []Term{{}}}
}

// None is a convenience criterion that accepts nothing.
func None() Criteria {
	return Criteria{}
}

// Only builds a single-term criterion requiring every bit in positive to
// be set, with no excluded bits.
func Only(positive Category) Criteria {
	return Criteria{Terms: []Term{{Positive: positive}}}
}
