// Package wire implements the line-oriented codec of the transfer
// protocol: LF-terminated text lines and exact-length opaque bodies.
package wire

import (
	"bufio"
	"io"
	"strings"
)

// ReadLine reads one LF-terminated line and strips the terminator and
// an optional preceding CR. A connection that closes before the LF is
// a short read and returns the underlying error.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// WriteLine writes one line, appending the LF terminator when the
// caller did not include it.
func WriteLine(w io.Writer, line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err := io.WriteString(w, line)
	return err
}

// ReadFull fills buf from r or fails. A short read is an error.
func ReadFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

// WriteFull writes all of buf to w or fails.
func WriteFull(w io.Writer, buf []byte) error {
	_, err := w.Write(buf)
	return err
}

// Fields tokenizes a request line on runs of spaces and tabs.
func Fields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t'
	})
}
