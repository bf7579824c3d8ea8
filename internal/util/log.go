// Package util provides the shared logger and traffic counters.
package util

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
	// Status messages from the console room own stdout.
	pterm.DefaultLogger.Writer = os.Stderr
}

// SetOutput redirects the log to w and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	prev := pterm.DefaultLogger.Writer
	pterm.DefaultLogger.Writer = w
	return prev
}

// Leveled logging functions backed by the pterm default logger.

func LogDebug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}
