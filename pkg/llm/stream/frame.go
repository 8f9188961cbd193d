// Package stream reassembles protocol structure from fragmented provider
// output: complete logical lines from arbitrarily split network chunks, and
// whole tool calls from indexed partial deltas.
package stream

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/loomlabs/loom/pkg/logging"
)

// FrameAssembler turns a raw fragmented byte stream into discrete logical
// lines. Fragments may split a line at any byte boundary, including inside
// multi-byte runes; only completed lines are ever surfaced. The zero value
// is ready to use.
type FrameAssembler struct {
	pending []byte
	logger  *logging.Logger
}

// NewFrameAssembler creates an assembler logging through the given logger.
// A nil logger falls back to the package default.
func NewFrameAssembler(logger *logging.Logger) *FrameAssembler {
	return &FrameAssembler{logger: logger}
}

// Feed appends one fragment and returns every logical line it completed, in
// order. Blank lines are filtered out. The trailing partial line, if any,
// stays buffered for the next fragment.
func (a *FrameAssembler) Feed(fragment []byte) []string {
	a.pending = append(a.pending, fragment...)

	var lines []string
	for {
		i := bytes.IndexByte(a.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(a.pending[:i]), "\r")
		a.pending = a.pending[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Close ends the stream. A non-empty pending buffer at this point is an
// unterminated partial line: it is discarded and logged, never surfaced as
// a frame.
func (a *FrameAssembler) Close() {
	if len(a.pending) > 0 {
		a.log().Warnf("discarding %d bytes of unterminated partial line at stream end: %q",
			len(a.pending), truncateForLog(string(a.pending), 120))
		a.pending = nil
	}
}

// Pending returns the current partial-line buffer size, for diagnostics.
func (a *FrameAssembler) Pending() int {
	return len(a.pending)
}

func (a *FrameAssembler) log() *logging.Logger {
	if a.logger != nil {
		return a.logger
	}
	return logging.Default()
}

// Lines reads r to completion, assembling logical lines onto the returned
// channel. The channel is closed when r is exhausted, r fails, or ctx is
// canceled. Read errors terminate the sequence silently; the caller observes
// them through the transport, not here.
func Lines(ctx context.Context, r io.Reader, logger *logging.Logger) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)

		assembler := NewFrameAssembler(logger)
		defer assembler.Close()

		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, line := range assembler.Feed(buf[:n]) {
					select {
					case out <- line:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				if err != io.EOF {
					assembler.log().Warnf("stream read ended with error: %v", err)
				}
				return
			}
		}
	}()
	return out
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
