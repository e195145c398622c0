package notify

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrStreamingUnsupported = errors.New("streaming unsupported")

// SSEWriter writes server-sent events to an HTTP response.
type SSEWriter struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
}

// NewSSEWriter sets the event-stream headers and flushes them.
func NewSSEWriter(w http.ResponseWriter, writeTimeout time.Duration) (*SSEWriter, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := &SSEWriter{w: w, rc: http.NewResponseController(w), writeTimeout: writeTimeout}
	if err := sw.rc.Flush(); err != nil {
		return nil, err
	}
	return sw, nil
}

func (s *SSEWriter) WriteEvent(event string, data []byte) error {
	if s.writeTimeout > 0 {
		// Not every ResponseWriter supports deadlines (httptest does not).
		if err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return s.rc.Flush()
}
