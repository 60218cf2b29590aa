// Package obdlog provides the structured logging used throughout the
// protocol stack. It wraps charmbracelet/log the way the rest of the
// Go ecosystem wires a leveled logger into a library: an injectable
// *log.Logger field on every component, falling back to a silent
// default so the zero value of a struct never panics on a nil logger.
package obdlog

import (
	"io"

	"github.com/charmbracelet/log"
)

// Default is used by components constructed without an explicit logger.
// It discards output; callers that want visibility call SetDefault or
// pass their own *log.Logger to a component constructor.
var Default = log.NewWithOptions(io.Discard, log.Options{})

// SetDefault replaces the package-level default logger.
func SetDefault(l *log.Logger) {
	if l == nil {
		return
	}
	Default = l
}

// New builds a logger writing to w at the given level, formatted the
// way an interactive session wants it (timestamps, level badges,
// caller-supplied key/value fields).
func New(w io.Writer, level log.Level) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	return l
}

// Or returns l if non-nil, otherwise Default. Components call this once
// in their constructor so every subsequent log call can assume a valid
// logger without a nil check.
func Or(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return Default
}
