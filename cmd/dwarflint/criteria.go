// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package main

import (
	"fmt"
	"strings"

	"github.com/wf-tools/dwarflint/go/diag"
)

// parseCriteria parses a -warnings/-errors flag value into a diag.Criteria.
// Terms are separated by "|" (any term matching accepts the category);
// within a term, category names are comma-separated and ANDed together,
// with a leading "!" negating that name (e.g. "loc,!acc_bloat|ranges").
// An empty string returns def unchanged.
func parseCriteria(s string, def diag.Criteria) (diag.Criteria, error) {
	if s == "" {
		return def, nil
	}
	var c diag.Criteria
	for _, termStr := range strings.Split(s, "|") {
		var term diag.Term
		for _, name := range strings.Split(termStr, ",") {
			negate := false
			if strings.HasPrefix(name, "!") {
				negate = true
				name = name[1:]
			}
			bit, ok := diag.ParseCategoryName(name)
			if !ok {
				return diag.Criteria{}, fmt.Errorf("unknown category %q", name)
			}
			if negate {
				term.Negative |= bit
			} else {
				term.Positive |= bit
			}
		}
		c.Terms = append(c.Terms, term)
	}
	return c, nil
}
