// Package wire tests cover line framing and tokenization.
package wire

import (
	"bufio"
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"
)

// TestReadLineStripsTerminators removes LF and an optional CR.
func TestReadLineStripsTerminators(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("AUTH alice pw\r\nSTATS\n"))
	line, err := ReadLine(r)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "AUTH alice pw" {
		t.Fatalf("unexpected line: %q", line)
	}
	line, err = ReadLine(r)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "STATS" {
		t.Fatalf("unexpected line: %q", line)
	}
}

// TestReadLineShortRead fails when the stream ends before the LF.
func TestReadLineShortRead(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("no terminator"))
	if _, err := ReadLine(r); err == nil {
		t.Fatalf("expected error on unterminated line")
	}
}

// TestWriteLineAppendsLF appends LF only when missing.
func TestWriteLineAppendsLF(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLine(&buf, "OK 200"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if err := WriteLine(&buf, "OK 201\n"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if buf.String() != "OK 200\nOK 201\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

// TestReadFullExact reads exactly N bytes and fails on short streams.
func TestReadFullExact(t *testing.T) {
	buf := make([]byte, 5)
	if err := ReadFull(strings.NewReader("hello world"), buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("unexpected body: %q", buf)
	}
	if err := ReadFull(strings.NewReader("hi"), buf); err == nil {
		t.Fatalf("expected short read error")
	} else if err != io.ErrUnexpectedEOF {
		t.Logf("short read error: %v", err)
	}
}

// TestFields splits on runs of spaces and tabs.
func TestFields(t *testing.T) {
	got := Fields("UPLOAD  1000\tbig file.bin")
	want := []string{"UPLOAD", "1000", "big", "file.bin"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if len(Fields("   \t ")) != 0 {
		t.Fatalf("expected no tokens for blank line")
	}
}
