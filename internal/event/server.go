package event

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/gantt/internal/eventbus"
)

const subscriberBuffer = 64

// Server streams bus events to HTTP clients as server-sent events. It writes
// the response itself, so it must not sit behind the cerr JSON middleware.
type Server struct {
	eventBus *eventbus.Bus
}

func NewServer(eventBus *eventbus.Bus) *Server {
	return &Server{eventBus: eventBus}
}

func (s *Server) Register(r chi.Router) {
	r.Get("/events", s.SubscribeEvents)
}

// SubscribeEvents accepts the optional query parameters project_id and type
// (comma separated, repeatable) to narrow the stream.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	subID, ch := s.eventBus.Subscribe(subscriberBuffer)
	defer s.eventBus.Unsubscribe(subID)

	typeFilter := make(map[eventbus.Type]struct{})
	for _, v := range r.URL.Query()["type"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				typeFilter[eventbus.Type(t)] = struct{}{}
			}
		}
	}
	projectID := r.URL.Query().Get("project_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if len(typeFilter) > 0 {
				if _, match := typeFilter[event.Type]; !match {
					continue
				}
			}
			if projectID != "" {
				if eventProjectID, ok := event.Metadata["project_id"]; ok && eventProjectID != projectID {
					continue
				}
			}
			if err := writeEvent(w, event); err != nil {
				slog.DebugContext(ctx, "event stream closed", "subscriber", subID, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event *eventbus.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
	return err
}
