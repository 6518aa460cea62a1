package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/dictation/internal/events"
)

type EventsHandler struct {
	src EventSource
}

func NewEventsHandler(src EventSource) *EventsHandler {
	return &EventsHandler{src: src}
}

func parseFilter(r *http.Request) events.Filter {
	var f events.Filter
	if v, ok := QueryString(r, "types"); ok {
		f.Types = strings.Split(v, ",")
	}
	if v, ok := QueryString(r, "job_id"); ok {
		f.JobID = v
	}
	return f
}

func writeSSE(w io.Writer, e events.Event) {
	data, _ := json.Marshal(e)
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data)
}

// StreamEvents opens an SSE connection and pushes filtered events.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	filter := parseFilter(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	// Streams outlive the server write timeout.
	rc.SetWriteDeadline(time.Time{})

	ch, cancel := h.src.Subscribe(filter)
	defer cancel()

	// Subscribe before replay so nothing published in between is lost.
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		for _, e := range h.src.ReplaySince(lastEventID, filter) {
			writeSSE(w, e)
		}
	}
	if err := rc.Flush(); err != nil {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	log := hlog.FromRequest(r)
	log.Info().Msg("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Info().Msg("SSE client disconnected")
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, e)
			rc.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			rc.Flush()
		}
	}
}

// RecentEvents returns the newest buffered events, oldest first.
func (h *EventsHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	n, err := QueryInt(r, "limit", 50, 1, 1000)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := parseFilter(r)
	out := []events.Event{}
	for _, e := range h.src.Recent(n) {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (h *EventsHandler) Routes(r chi.Router) {
	r.Get("/events/stream", h.StreamEvents)
	r.Get("/events/recent", h.RecentEvents)
}
