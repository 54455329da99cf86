package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ifinance/relay/internal/relay"
)

// streamEvent is the provider-agnostic envelope sent to chat clients,
// one per SSE data line.
type streamEvent struct {
	Content string `json:"content"`
}

// doneSentinel terminates the chat event stream, OpenAI style.
const doneSentinel = "data: [DONE]\n\n"

// sseWriter implements relay.FrameWriter with `data: <json>` framing.
// Headers are committed lazily on the first write so pre-stream failures
// can still produce a JSON error response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// newSSEWriter wraps the response writer for SSE streaming.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

// Started reports whether any frame reached the client, i.e. whether
// headers and framing are already committed.
func (s *sseWriter) Started() bool {
	return s.started
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.started = true
}

// WriteFragment emits one content fragment as an SSE event and flushes it
// immediately so the client sees tokens in real time.
func (s *sseWriter) WriteFragment(fragment string) error {
	s.start()

	data, err := json.Marshal(streamEvent{Content: fragment})
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write stream event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WriteDone sends the [DONE] sentinel.
func (s *sseWriter) WriteDone() error {
	s.start()

	if _, err := fmt.Fprint(s.w, doneSentinel); err != nil {
		return fmt.Errorf("write done sentinel: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// rawWriter implements relay.FrameWriter for the financial-analysis
// route: fragments are forwarded as plain text with no envelope, since
// that route's only consumer is a human reader.
type rawWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newRawWriter(w http.ResponseWriter) (*rawWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}
	return &rawWriter{w: w, flusher: flusher}, nil
}

func (r *rawWriter) Started() bool {
	return r.started
}

func (r *rawWriter) start() {
	if r.started {
		return
	}
	r.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	r.w.Header().Set("Cache-Control", "no-cache")
	r.started = true
}

func (r *rawWriter) WriteFragment(fragment string) error {
	r.start()

	if _, err := fmt.Fprint(r.w, fragment); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	r.flusher.Flush()
	return nil
}

// WriteDone is a no-op for raw streams; the close of the response body is
// the terminal signal.
func (r *rawWriter) WriteDone() error {
	r.start()
	return nil
}

// startedWriter lets handlers ask whether streaming already committed the
// response, which decides between a JSON error and an abrupt teardown.
type startedWriter interface {
	relay.FrameWriter
	Started() bool
}
