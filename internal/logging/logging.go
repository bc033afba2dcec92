package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/nwp-tools/gribfetch/internal/ui"
)

// Logger is a tiny opt-in logger used across internal packages.
// When Writer is nil, logging is disabled.
//
// The output format is:
//
//	<ColoredPrefix> coverage=<coverageID> <formattedMessage>\n
//
// where <coverageID> is trimmed and defaults to "(unknown)".
type Logger struct {
	Writer io.Writer

	PrefixText  string
	PrefixColor string

	// OmitCoverage controls whether the coverage ID field is written.
	// When false (default), output includes: "coverage=<id>".
	OmitCoverage bool
}

func (l *Logger) SetWriter(w io.Writer) { l.Writer = w }

func (l *Logger) Enabled() bool { return l != nil && l.Writer != nil }

func (l *Logger) Logf(coverageID string, format string, args ...any) {
	if l == nil || l.Writer == nil {
		return
	}
	prefix := l.PrefixText
	if prefix == "" {
		prefix = "Log:"
	}
	if l.PrefixColor != "" {
		prefix = ui.Color(prefix, l.PrefixColor)
	}
	msg := fmt.Sprintf(format, args...)
	if l.OmitCoverage {
		fmt.Fprintf(l.Writer, "%s %s\n", prefix, msg)
		return
	}

	c := strings.TrimSpace(coverageID)
	if c == "" {
		c = "(unknown)"
	}
	fmt.Fprintf(l.Writer, "%s coverage=%s %s\n", prefix, c, msg)
}
