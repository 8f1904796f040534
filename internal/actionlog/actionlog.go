// Package actionlog records what the agent did as human-readable,
// timestamped lines. Logging must never crash the simulation: write
// failures are swallowed.
package actionlog

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger appends action summaries to a file and mirrors them to slog.
type Logger struct {
	slog *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New opens (or creates) the action log at path. An empty path
// disables the file sink; entries still reach slog.
func New(path string, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{slog: logger.With("component", "actionlog")}
	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("action log file unavailable, console only", "path", path, "error", err)
		} else {
			l.file = f
		}
	}
	return l
}

// Close releases the file sink.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Record appends one entry. The message is reduced to plain text (the
// model replies in markdown) and long entries are excerpted.
func (l *Logger) Record(message string) {
	text := Excerpt(PlainText(message), 2000)
	if text == "" {
		return
	}

	l.slog.Info("agent action", "summary", Excerpt(text, 200))

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	line := fmt.Sprintf("%s — %s\n", time.Now().Format(time.RFC3339), text)
	if _, err := l.file.WriteString(line); err != nil {
		// Swallowed on purpose; a full disk must not stop the agent.
		l.slog.Warn("action log write failed", "error", err)
	}
}

// Warning appends an entry marked as a warning.
func (l *Logger) Warning(message string) {
	l.Record("WARNING: " + message)
}

// Excerpt shortens s to at most n runes, marking the cut.
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + " […]"
}
