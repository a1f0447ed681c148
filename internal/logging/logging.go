// Package logging wraps the standard logger. Output goes to a file so it
// never interferes with the terminal UI.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
)

var debugEnabled bool

// SetDebug controls whether calls to Debugf emit output.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

// DebugEnabled reports the current debug setting.
func DebugEnabled() bool {
	return debugEnabled
}

// Debugf logs a formatted message when debug is enabled.
func Debugf(format string, v ...any) {
	if debugEnabled {
		log.Printf(format, v...)
	}
}

// Infof logs an informational formatted message.
func Infof(format string, v ...any) {
	log.Printf(format, v...)
}

// Errorf logs an error formatted message.
func Errorf(format string, v ...any) {
	log.Printf("ERROR "+format, v...)
}

// ToFile redirects the standard logger to path, creating its directory.
// The returned closer must be closed on exit.
func ToFile(path string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := tea.LogToFile(path, "")
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	return f, nil
}

// Discard silences the standard logger, for commands that run without a
// log file.
func Discard() {
	log.SetOutput(io.Discard)
}
