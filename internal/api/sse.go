package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const heartbeatInterval = 25 * time.Second

// events streams file change notifications as Server-Sent Events. Each
// event is a JSON-encoded ChangeEvent; periodic comment lines keep idle
// connections alive through proxies.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		writeError(w, http.StatusServiceUnavailable, "change notifications not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id, ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EventType, data)
			flusher.Flush()
		}
	}
}
