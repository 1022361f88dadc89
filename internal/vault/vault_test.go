// Package vault tests cover jail containment, tmp+rename commits, and
// the trash lifecycle.
package vault

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeVia(t *testing.T, v *Vault, rel, content string) {
	t.Helper()
	f, err := v.CreateTmp(rel)
	if err != nil {
		t.Fatalf("CreateTmp(%s): %v", rel, err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := v.CommitTmp(rel); err != nil {
		t.Fatalf("CommitTmp(%s): %v", rel, err)
	}
}

// TestTmpCommitRoundTrip writes through the tmp path and reads back.
func TestTmpCommitRoundTrip(t *testing.T) {
	v := New(t.TempDir())
	writeVia(t, v, "docs/notes.txt", "hello")

	b, err := v.ReadFile("docs/notes.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("unexpected content: %q", b)
	}
	if v.HasTmp("docs/notes.txt") {
		t.Fatalf("tmp sibling left behind after commit")
	}
	if got := v.Size("docs/notes.txt"); got != 5 {
		t.Fatalf("Size = %d, want 5", got)
	}
}

// TestRejectsEscape refuses traversal out of the jail.
func TestRejectsEscape(t *testing.T) {
	v := New(t.TempDir())
	if _, err := v.CreateTmp("../escape.bin"); err == nil {
		t.Fatalf("expected traversal rejection")
	}
	if _, err := v.Stat("../../etc/passwd"); err == nil {
		t.Fatalf("expected traversal rejection")
	}
}

// TestTrashRoundTrip moves to trash and restores, preserving the
// relative path.
func TestTrashRoundTrip(t *testing.T) {
	v := New(t.TempDir())
	writeVia(t, v, "a/b.txt", "content")

	st, err := v.MoveToTrash("a/b.txt")
	if err != nil {
		t.Fatalf("MoveToTrash: %v", err)
	}
	if st.Size() != 7 {
		t.Fatalf("trashed size = %d, want 7", st.Size())
	}
	if v.Exists("a/b.txt") {
		t.Fatalf("file still present after trash")
	}
	if !v.Exists(".trash/a/b.txt") {
		t.Fatalf("file not parked under .trash")
	}

	if _, err := v.RestoreFromTrash("a/b.txt"); err != nil {
		t.Fatalf("RestoreFromTrash: %v", err)
	}
	b, err := v.ReadFile("a/b.txt")
	if err != nil || string(b) != "content" {
		t.Fatalf("restored content = %q, %v", b, err)
	}
}

// TestRenameRefusesOverwrite keeps the destination intact.
func TestRenameRefusesOverwrite(t *testing.T) {
	v := New(t.TempDir())
	writeVia(t, v, "a.txt", "a")
	writeVia(t, v, "b.txt", "b")

	if err := v.Rename("a.txt", "b.txt"); err != ErrDestinationExists {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}
	if err := v.Rename("a.txt", "c/d.txt"); err != nil {
		t.Fatalf("Rename into new dir: %v", err)
	}
	if !v.Exists("c/d.txt") || v.Exists("a.txt") {
		t.Fatalf("rename did not move the file")
	}
}

// TestOpenResumeAppends picks the tmp sibling when present.
func TestOpenResumeAppends(t *testing.T) {
	v := New(t.TempDir())
	f, err := v.CreateTmp("big.bin")
	if err != nil {
		t.Fatalf("CreateTmp: %v", err)
	}
	if _, err := f.WriteString("1234"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	if got := v.TmpSize("big.bin"); got != 4 {
		t.Fatalf("TmpSize = %d, want 4", got)
	}
	rf, isTmp, err := v.OpenResume("big.bin")
	if err != nil {
		t.Fatalf("OpenResume: %v", err)
	}
	if !isTmp {
		t.Fatalf("expected resume to target the tmp sibling")
	}
	if _, err := rf.WriteString("56"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = rf.Close()
	if err := v.CommitTmp("big.bin"); err != nil {
		t.Fatalf("CommitTmp: %v", err)
	}
	if got := v.Size("big.bin"); got != 6 {
		t.Fatalf("Size = %d, want 6", got)
	}
}

// TestCopyFile duplicates content and reports byte count.
func TestCopyFile(t *testing.T) {
	v := New(t.TempDir())
	writeVia(t, v, "src.bin", "0123456789")
	n, err := v.CopyFile("src.bin", "sub/dst.bin")
	if err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	if n != 10 {
		t.Fatalf("copied %d bytes, want 10", n)
	}
	b, err := v.ReadFile("sub/dst.bin")
	if err != nil || string(b) != "0123456789" {
		t.Fatalf("copy content = %q, %v", b, err)
	}
}

// TestIsSymlink detects links so COPY can refuse them.
func TestIsSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink behavior varies on windows")
	}
	root := t.TempDir()
	v := New(root)
	writeVia(t, v, "real.txt", "x")
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "ln.txt")); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}
	if !v.IsSymlink("ln.txt") {
		t.Fatalf("symlink not detected")
	}
	if v.IsSymlink("real.txt") {
		t.Fatalf("regular file reported as symlink")
	}
}
