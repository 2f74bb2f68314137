package output

import (
	"fmt"
	"io"
)

// Progress prefixes.
const (
	prefixInfo    = "ℹ️  "
	prefixWarn    = "⚠️  "
	prefixSuccess = "✅ "
	prefixStep    = "⏳ "
)

// Info writes an informational line.
func Info(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(w, prefixInfo+fmt.Sprintf(format, args...))
}

// Warn writes a warning line.
func Warn(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(w, prefixWarn+fmt.Sprintf(format, args...))
}

// Success writes a success line.
func Success(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(w, prefixSuccess+fmt.Sprintf(format, args...))
}

// Step writes a line announcing a step that waits on the ledger.
func Step(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(w, prefixStep+fmt.Sprintf(format, args...))
}
