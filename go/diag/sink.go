// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package diag

import (
	"fmt"

	"github.com/golang/glog"
)

// Severity classifies a Diagnostic once it has cleared the warning/error
// criteria.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one reported defect: a (severity, category, where,
// message) record.
type Diagnostic struct {
	Severity Severity
	Category Category
	Where    *Where
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s [%s] %s: %s", d.Severity, d.Category, d.Where, d.Message)
}

// Sink receives filtered diagnostics. Implementations must not mutate the
// Diagnostic they are given.
type Sink interface {
	Emit(Diagnostic)
}

// GlogSink routes diagnostics to glog, matching the ambient logging
// convention the CLI uses everywhere else in this repository.
type GlogSink struct{}

func (GlogSink) Emit(d Diagnostic) {
	if d.Severity == SeverityError {
		glog.Errorf("%s", d)
		return
	}
	glog.Warningf("%s", d)
}

// CollectingSink accumulates diagnostics in memory, for tests and for
// hosts that want to post-process the full diagnostic set (e.g. sort it,
// or render it in a different format) instead of streaming it.
type CollectingSink struct {
	Diagnostics []Diagnostic
}

func (s *CollectingSink) Emit(d Diagnostic) {
	s.Diagnostics = append(s.Diagnostics, d)
}
