package wire

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

// Emitter serializes events to a writer as JSON Lines, one object per line,
// flushing after every event so callers observe progress as it happens. Safe
// for concurrent use.
type Emitter struct {
	mu      sync.Mutex
	w       io.Writer
	enc     *json.Encoder
	flusher http.Flusher
}

// NewEmitter creates an emitter on w. When w implements http.Flusher the
// emitter flushes after each event.
func NewEmitter(w io.Writer) *Emitter {
	e := &Emitter{
		w:   w,
		enc: json.NewEncoder(w),
	}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Emit writes one event as a single JSON line. Encoder.Encode appends the
// trailing newline.
func (e *Emitter) Emit(event *Event) error {
	if event == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enc.Encode(event); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
