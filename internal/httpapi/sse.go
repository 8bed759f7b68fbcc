package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rulewise/rulewise/internal/engine"
)

// streamEvents relays engine events as server-sent events, one frame per
// event, flushed immediately so tokens reach the client as they arrive.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan engine.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: "streaming is not supported by this connection",
			Code:  "internal_error",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("Encoding stream event failed", "error", err)
			return
		}
		// The event type rides inside the JSON payload; unnamed frames
		// reach a default onmessage handler.
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client disconnected; the request context cancellation stops
			// the producer.
			return
		}
		flusher.Flush()
	}
}
