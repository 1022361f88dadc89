// Package fsutil tests validate path traversal protections.
package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TestResolveWithinRootRejectsTraversal blocks obvious .. escapes.
func TestResolveWithinRootRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	if _, err := ResolveWithinRoot(root, "../etc/passwd"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	if _, err := ResolveWithinRoot(root, "/../etc/passwd"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

// TestResolveWithinRootAcceptsNested resolves ordinary nested paths.
func TestResolveWithinRootAcceptsNested(t *testing.T) {
	root := t.TempDir()
	p, err := ResolveWithinRoot(root, "docs/report.txt")
	if err != nil {
		t.Fatalf("ResolveWithinRoot: %v", err)
	}
	want := filepath.Join(root, "docs", "report.txt")
	if p != want {
		t.Fatalf("got %q want %q", p, want)
	}
}

// TestResolveWithinRootRejectsSymlinkEscape blocks symlink-based escapes.
func TestResolveWithinRootRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		// Symlink creation may require privileges.
		t.Skip("symlink behavior varies on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}
	if _, err := ResolveWithinRoot(root, "link/escape.txt"); err == nil {
		t.Fatalf("expected symlink escape to be rejected")
	}
}

// TestFileExists covers the regular-file stat helper.
func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.bin")
	if FileExists(p) {
		t.Fatalf("missing file reported as existing")
	}
	if err := os.WriteFile(p, []byte("12345"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !FileExists(p) {
		t.Fatalf("file not reported as existing")
	}
	if FileExists(dir) {
		t.Fatalf("directory reported as regular file")
	}
}
