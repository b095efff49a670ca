package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hadcinema-ops/giveaway/pkg/cycle"
)

const ssePingInterval = 25 * time.Second

// handleEvents streams cycle events over server-sent events. Each client
// gets a hello event with the current state, then live events as cycles run.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	hello := map[string]any{"ts": time.Now().UTC()}
	if doc, err := s.cfg.Store.Load(r.Context()); err == nil {
		hello["stats"] = doc
	}
	if s.cfg.Registry != nil {
		hello["keyword"] = s.cfg.Registry.Keyword()
	}
	s.writeEvent(w, cycle.Event{Type: "hello", Data: hello})
	flusher.Flush()

	events, cancel := s.cfg.Controller.Events().Subscribe()
	defer cancel()

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, open := <-events:
			if !open {
				return
			}
			s.writeEvent(w, e)
			flusher.Flush()
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, e cycle.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.log.Error("server: failed to encode event", "type", e.Type, "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		s.log.Debug("server: event write failed, client likely gone", "error", err)
	}
}
