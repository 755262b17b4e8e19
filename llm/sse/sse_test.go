package sse

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string) []Event {
	t.Helper()
	var got []Event
	require.NoError(t, Scan(strings.NewReader(input), func(e Event) bool {
		got = append(got, e)
		return true
	}))
	return got
}

func TestScan_DataLinesAndDone(t *testing.T) {
	got := collect(t, ": ping\nevent: message\ndata: {\"a\":1}\n\ndata: second\r\ndata: [DONE]\ndata: never\n")
	assert.Equal(t, []Event{{Data: `{"a":1}`}, {Data: "second"}}, got)
}

func TestScan_RawLinesAndMissingTrailingNewline(t *testing.T) {
	got := collect(t, "plain text\ndata: tail")
	assert.Equal(t, []Event{{Data: "plain text", Raw: true}, {Data: "tail"}}, got)
}

func TestScan_StopsWhenCallbackDeclines(t *testing.T) {
	n := 0
	err := Scan(strings.NewReader("data: 1\ndata: 2\ndata: 3\n"), func(Event) bool {
		n++
		return n < 2
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestScan_PropagatesReadError(t *testing.T) {
	err := Scan(failingReader{}, func(Event) bool { return true })
	assert.EqualError(t, err, "connection reset")
}

type repeatReader struct {
	b    byte
	read int
}

func (r *repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
	}
	r.read += len(p)
	return len(p), nil
}

func TestScanLimit_LineWithoutNewline(t *testing.T) {
	src := &repeatReader{b: 'a'}
	calls := 0
	err := ScanLimit(src, 8<<10, func(Event) bool {
		calls++
		return true
	})
	require.ErrorIs(t, err, ErrLineTooLong)
	assert.Zero(t, calls)
	assert.LessOrEqual(t, src.read, 16<<10)
}

func TestScanLimit_LinesUnderCapPass(t *testing.T) {
	line := "data: " + strings.Repeat("z", 100) + "\n"
	var got []Event
	err := ScanLimit(strings.NewReader(line+line), 128, func(e Event) bool {
		got = append(got, e)
		return true
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestScan_DefaultCap(t *testing.T) {
	err := Scan(strings.NewReader(strings.Repeat("q", DefaultMaxLineBytes+1)), func(Event) bool { return true })
	assert.ErrorIs(t, err, ErrLineTooLong)
}
