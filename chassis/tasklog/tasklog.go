// Package tasklog accumulates the human-readable step log of one task attempt.
package tasklog

import (
	"fmt"
	"html"
	"strings"
	"sync"
	"time"
)

// Entry is one timestamped step record.
type Entry struct {
	At   time.Time
	Text string
}

// HTML renders the entry as a paragraph fragment.
func (e Entry) HTML() string {
	return "<p>" + html.EscapeString(e.Text) + "</p>"
}

// Log is an append-only step log. It is safe for concurrent use: a workflow
// that overran its deadline may still be appending while the owner persists.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// New returns an empty log.
func New() *Log {
	return &Log{now: time.Now}
}

// Add appends a formatted entry.
func (l *Log) Add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{At: l.now(), Text: fmt.Sprintf(format, args...)})
}

// Entries returns a copy of the accumulated entries.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// String renders the log the way it is persisted: HTML fragments joined by a space.
func (l *Log) String() string {
	entries := l.Entries()
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.HTML())
	}
	return strings.Join(parts, " ")
}

// Contains reports whether any entry text contains substr.
func (l *Log) Contains(substr string) bool {
	for _, e := range l.Entries() {
		if strings.Contains(e.Text, substr) {
			return true
		}
	}
	return false
}

// Stamp formats t the way start and completion lines show it.
func Stamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
