// Package audit writes the append-only activity log. One line per
// event, `YYYY-MM-DD HH:MM:SS [user] message`, matching the format the
// legacy server produced so existing log tooling keeps working.
package audit

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Logger appends timestamped events to a single file. A mutex
// serializes writers across all sessions.
type Logger struct {
	mu sync.Mutex
	f  *os.File
}

// Open opens (or creates) the audit log at path for appending.
func Open(path string) (*Logger, error) {
	if path == "" {
		return nil, errors.New("audit log path is required")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &Logger{f: f}, nil
}

// Log appends one event line. Write errors are swallowed; auditing
// must never take a session down.
func (l *Logger) Log(user, msg string) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.f, "%s [%s] %s\n", ts, user, msg)
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
