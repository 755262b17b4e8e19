// Package sse reads server-sent event streams line by line.
package sse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DoneMarker terminates OpenAI-style event streams.
const DoneMarker = "[DONE]"

// Event is one payload read from the stream.
// Raw is true for non-SSE lines, which some upstreams send as plain text.
type Event struct {
	Data string
	Raw  bool
}

// DefaultMaxLineBytes caps a single line when Scan is used without an explicit limit.
const DefaultMaxLineBytes = 1 << 20

// ErrLineTooLong is returned when a line exceeds the scanner's cap.
// The stream is not read past the cap.
var ErrLineTooLong = bufio.ErrTooLong

// Scan reads r until EOF, the done marker, or fn returning false.
// Comment lines and event/id/retry fields are skipped. Lines are capped at DefaultMaxLineBytes.
func Scan(r io.Reader, fn func(Event) bool) error {
	return ScanLimit(r, DefaultMaxLineBytes, fn)
}

// ScanLimit is Scan with a per-line cap; maxLine <= 0 selects DefaultMaxLineBytes.
func ScanLimit(r io.Reader, maxLine int, fn func(Event) bool) error {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(4096, maxLine)), maxLine)
	for scanner.Scan() {
		if stop := dispatch(scanner.Text(), fn); stop {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("sse: line exceeds %d bytes: %w", maxLine, ErrLineTooLong)
		}
		return err
	}
	return nil
}

func dispatch(line string, fn func(Event) bool) (stop bool) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return false
	case strings.HasPrefix(trimmed, ":"),
		strings.HasPrefix(trimmed, "event:"),
		strings.HasPrefix(trimmed, "id:"),
		strings.HasPrefix(trimmed, "retry:"):
		return false
	case strings.HasPrefix(trimmed, "data:"):
		data := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
		if data == DoneMarker {
			return true
		}
		return !fn(Event{Data: data})
	default:
		return !fn(Event{Data: line, Raw: true})
	}
}
