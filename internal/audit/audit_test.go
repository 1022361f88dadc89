// Package audit tests check the on-disk event format.
package audit

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
)

// TestLogFormat writes events and checks the line layout.
func TestLogFormat(t *testing.T) {
	p := filepath.Join(t.TempDir(), "server.log")
	l, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.Log("alice", "Login success")
	l.Log("bob", "UPLOAD a.bin size=10")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	re := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} \[alice\] Login success$`)
	if !re.MatchString(lines[0]) {
		t.Fatalf("unexpected line: %q", lines[0])
	}
}

// TestConcurrentWriters keeps lines whole under contention.
func TestConcurrentWriters(t *testing.T) {
	p := filepath.Join(t.TempDir(), "server.log")
	l, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Log("u", "event")
		}()
	}
	wg.Wait()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, ln := range lines {
		if !strings.HasSuffix(ln, "[u] event") {
			t.Fatalf("torn line: %q", ln)
		}
	}
}
