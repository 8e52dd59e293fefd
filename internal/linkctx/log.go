// Package linkctx holds the diagnostic concerns shared by every pipeline
// stage: a process-wide verbosity switch and a small stderr logger.
//
// The source driver (ld64.lld, the Go linker, etc.) tends to keep a
// global scope-filter list for its logging; spec.md §9 treats that as a
// diagnostic concern outside the linker core and asks that the core keep
// its own state inside the Linker record instead. Logger is that state: it
// is constructed once by cmd/zld and threaded through internal/linker.
package linkctx

import (
	"fmt"
	"log"
	"os"
)

// Logger writes warnings and (optionally) verbose trace output to stderr.
// Warnings never stop the link (spec.md §7); Verbosef output is gated by
// Verbose so a quiet link produces no chatter at all.
type Logger struct {
	Verbose bool
	w       *log.Logger
}

// New returns a Logger that writes to os.Stderr, matching the plain
// fmt.Fprintf(os.Stderr, ...) style the compiler-shaped repos in the
// retrieval pack use for build-tool diagnostics.
func New(verbose bool) *Logger {
	return &Logger{Verbose: verbose, w: log.New(os.Stderr, "zld: ", 0)}
}

// Warnf emits a warning. Per spec.md §7, a missing search directory, a
// framework that could not be found but was never required, and an
// unrecognized input file type are all warnings, not errors.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.w.Printf("warning: "+format, args...)
}

// Verbosef emits a trace message only when Verbose is set.
func (l *Logger) Verbosef(format string, args ...any) {
	if l == nil || !l.Verbose {
		return
	}
	l.w.Printf(format, args...)
}

// Errorf formats an error the way every stage returns its first
// unrecoverable condition (spec.md §7): wrapped, never swallowed.
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
