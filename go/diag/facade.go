// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package diag

import "fmt"

// Facade is the category-filtered diagnostics router: it decides, per
// diagnostic, whether a category is suppressed, a warning, or promoted
// to an error, and keeps the error count the host's exit code is based
// on.
//
// Not safe for concurrent use; the validator pipeline that drives it is
// single-threaded.
type Facade struct {
	WarningCriteria Criteria
	ErrorCriteria   Criteria
	Sink            Sink

	errorCount int
}

// NewFacade builds a façade with the given criteria. A nil Sink defaults
// to GlogSink{}.
func NewFacade(warning, error Criteria, sink Sink) *Facade {
	if sink == nil {
		sink = GlogSink{}
	}
	return &Facade{WarningCriteria: warning, ErrorCriteria: error, Sink: sink}
}

// Report classifies and, unless suppressed, emits a diagnostic. A
// category matched by both criteria is an error; matched only by the
// warning criteria it's a warning; otherwise it's dropped entirely. A
// category matched only by the error criteria, but not the warning
// criteria, is also dropped: the warning criteria is the gate for whether
// a category is reported at all, and the error criteria only decides
// whether a reported diagnostic gets promoted.
func (f *Facade) Report(cat Category, where *Where, message string) {
	matchedWarning := f.WarningCriteria.Matches(cat)
	matchedError := f.ErrorCriteria.Matches(cat)
	if !matchedWarning {
		return
	}
	sev := SeverityWarning
	if matchedError {
		sev = SeverityError
		f.errorCount++
	}
	f.Sink.Emit(Diagnostic{Severity: sev, Category: cat, Where: where, Message: message})
}

// Errorf reports an unconditional structural error: category CatError is
// ORed in automatically so callers don't have to remember it.
func (f *Facade) Errorf(cat Category, where *Where, format string, args ...any) {
	f.Report(cat|CatError, where, fmt.Sprintf(format, args...))
}

// Warnf reports an accented warning without forcing CatError.
func (f *Facade) Warnf(cat Category, where *Where, format string, args ...any) {
	f.Report(cat, where, fmt.Sprintf(format, args...))
}

// ErrorCount returns the number of diagnostics promoted to error so far.
// The host's exit code is non-zero iff this is > 0.
func (f *Facade) ErrorCount() int { return f.errorCount }
