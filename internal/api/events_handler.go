package api

import (
	"net/http"
	"strings"

	"imgdash/internal/event"
	"imgdash/internal/logging"
	"imgdash/internal/notification"
)

// EventsHandler streams notifications to a browser over a websocket. The
// optional types query parameter is a comma list of event types.
type EventsHandler struct {
	Bus            *event.Bus[notification.Event]
	Logger         *logging.Logger
	AllowedOrigins []string
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serveWSBusStream(w, r, wsBusStreamConfig[notification.Event]{
		Logger:            h.Logger,
		AllowedOrigins:    h.AllowedOrigins,
		Bus:               h.Bus,
		Route:             "/ws/events",
		EventTypes:        parseEventTypes(r.URL.Query().Get("types")),
		UnavailableReason: "notification stream unavailable",
	})
}

func parseEventTypes(raw string) []string {
	types := []string{}
	for _, part := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(part); value != "" {
			types = append(types, value)
		}
	}
	return types
}
