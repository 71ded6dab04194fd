package testutil

import (
	"fmt"
	"sync"
)

// LogEntry is one captured log call.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// Attr returns the value following key in Args, or nil.
func (e LogEntry) Attr(key string) any {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1]
		}
	}
	return nil
}

// String renders the entry for failure messages.
func (e LogEntry) String() string { return fmt.Sprintf("%s %s %v", e.Level, e.Msg, e.Args) }

// CaptureLogger implements logging.Logger and keeps every entry in memory.
type CaptureLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *CaptureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: append([]any(nil), args...)})
}

// Debug captures a debug entry.
func (l *CaptureLogger) Debug(msg string, args ...any) { l.add("DEBUG", msg, args) }

// Info captures an info entry.
func (l *CaptureLogger) Info(msg string, args ...any) { l.add("INFO", msg, args) }

// Warn captures a warn entry.
func (l *CaptureLogger) Warn(msg string, args ...any) { l.add("WARN", msg, args) }

// Error captures an error entry.
func (l *CaptureLogger) Error(msg string, args ...any) { l.add("ERROR", msg, args) }

// Entries returns a copy of the captured entries.
func (l *CaptureLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Find returns the captured entries with the given message.
func (l *CaptureLogger) Find(msg string) []LogEntry {
	var out []LogEntry
	for _, e := range l.Entries() {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}
