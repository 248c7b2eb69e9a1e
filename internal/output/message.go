package output

import (
	"fmt"
	"io"
)

// Info writes an informational line.
func Info(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(w, "ℹ️  "+fmt.Sprintf(format, args...))
}

// Warn writes a warning line. Callers usually pass stderr.
func Warn(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(w, "⚠️  "+fmt.Sprintf(format, args...))
}

// Success writes a success line.
func Success(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(w, "✅ "+fmt.Sprintf(format, args...))
}
