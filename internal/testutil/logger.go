// Package testutil provides shared helpers for package tests.
package testutil

import (
	"strings"
	"sync"

	"github.com/fbflow/fbflow/internal/observability"
)

// LogRecord is one captured log call.
type LogRecord struct {
	Level   string
	Message string
	Fields  []observability.Field
}

// RecordingLogger captures log calls for assertions. Safe for concurrent use.
type RecordingLogger struct {
	mu      sync.Mutex
	records []LogRecord
}

// NewRecordingLogger constructs an empty recording logger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{records: nil}
}

func (l *RecordingLogger) append(level, msg string, fields []observability.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, LogRecord{Level: level, Message: msg, Fields: fields})
}

// Debug records a debug-level call.
func (l *RecordingLogger) Debug(msg string, fields ...observability.Field) {
	l.append("debug", msg, fields)
}

// Info records an info-level call.
func (l *RecordingLogger) Info(msg string, fields ...observability.Field) {
	l.append("info", msg, fields)
}

// Warn records a warn-level call.
func (l *RecordingLogger) Warn(msg string, fields ...observability.Field) {
	l.append("warn", msg, fields)
}

// Error records an error-level call.
func (l *RecordingLogger) Error(msg string, fields ...observability.Field) {
	l.append("error", msg, fields)
}

// Records returns a snapshot of captured calls.
func (l *RecordingLogger) Records() []LogRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogRecord, len(l.records))
	copy(out, l.records)
	return out
}

// CountMessage reports how many captured calls at the given level contain
// substr in their message.
func (l *RecordingLogger) CountMessage(level, substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.Level == level && strings.Contains(r.Message, substr) {
			n++
		}
	}
	return n
}
