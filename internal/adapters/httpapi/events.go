package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/ports"
)

const eventsHeartbeat = 15 * time.Second

// handleEvents relaie les événements du pipeline en SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Sans bus, seul le heartbeat est émis (canal nil jamais prêt).
	var events <-chan ports.Event
	if s.opts.Bus != nil {
		ch, cancel := s.opts.Bus.Subscribe()
		defer cancel()
		events = ch
	}

	ticker := time.NewTicker(eventsHeartbeat)
	defer ticker.Stop()

	fmt.Fprintf(w, "event: hello\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			// Une ligne "data:" par événement.
			data := bytes.ReplaceAll(evt.Payload, []byte("\n"), []byte(" "))
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Topic, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}
