package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseSink writes chat.EventSink events as server-sent event frames. Headers
// are committed lazily on the first frame so pre-stream failures can still
// fall back to a plain JSON error response.
type sseSink struct {
	w       http.ResponseWriter
	started bool
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w}
}

func (s *sseSink) begin() {
	if s.started {
		return
	}
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.Header().Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

// Started reports whether any frame has been written. Once true, failures
// must be signaled in-band rather than via a status code.
func (s *sseSink) Started() bool {
	return s.started
}

func (s *sseSink) Fragment(content string) error {
	return s.writeJSON(map[string]string{"content": content})
}

func (s *sseSink) Error(message string) error {
	return s.writeJSON(map[string]string{"error": message})
}

func (s *sseSink) Done() error {
	s.begin()
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseSink) writeJSON(frame map[string]string) error {
	s.begin()
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseSink) flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
