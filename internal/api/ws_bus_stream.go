package api

import (
	"net/http"
	"strings"

	"imgdash/internal/event"
	"imgdash/internal/logging"

	"go.opentelemetry.io/otel/attribute"
)

type wsBusStreamConfig[T any] struct {
	Logger            *logging.Logger
	AllowedOrigins    []string
	Bus               *event.Bus[T]
	Route             string
	EventTypes        []string
	UnavailableReason string
	BuildPayload      func(T) (any, bool)
}

// serveWSBusStream subscribes to a bus and streams payloads to a websocket
// connection. Only events published after the subscription are delivered.
func serveWSBusStream[T any](w http.ResponseWriter, r *http.Request, config wsBusStreamConfig[T]) {
	bus := config.Bus
	if bus == nil {
		writeWSError(w, r, nil, config.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: unavailableReason(config.UnavailableReason),
		})
		return
	}

	conn, err := upgradeWebSocket(w, r, config.AllowedOrigins)
	if err != nil {
		logWSError(config.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}

	var output <-chan T
	var cancel func()
	if len(config.EventTypes) > 0 {
		output, cancel = bus.SubscribeTypes(config.EventTypes...)
	} else {
		output, cancel = bus.Subscribe()
	}
	defer cancel()

	route := config.Route
	if route == "" {
		route = r.URL.Path
	}
	_, span := startWebSocketSpan(r, route, attribute.Int("imgdash.subscribers", bus.SubscriberCount()))
	defer span.End()

	if err := serveWSStream(wsStreamConfig[T]{
		Conn:         conn,
		Logger:       config.Logger,
		Output:       output,
		BuildPayload: config.BuildPayload,
	}); err != nil {
		span.RecordError(err)
	}
}

func unavailableReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "event stream unavailable"
	}
	return reason
}
