// Package notification delivers image and project list updates to connected
// clients over an event bus. Delivery is best-effort with no replay.
package notification

import (
	"context"
	"strconv"

	"imgdash/internal/event"
	"imgdash/internal/logging"
	"imgdash/internal/metrics"
)

// BusName labels the notification bus in metrics and logs.
const BusName = "notifications"

// ActiveReader reports the currently active project.
type ActiveReader interface {
	Active() (string, bool)
}

// ActiveFunc adapts a function to ActiveReader.
type ActiveFunc func() (string, bool)

func (f ActiveFunc) Active() (string, bool) {
	return f()
}

// Publisher is the sending side of the notification bus.
type Publisher interface {
	Publish(Event)
}

// NewBus returns a bus that keeps the newest events for slow subscribers.
func NewBus(ctx context.Context, registry *metrics.Registry, logger *logging.Logger) *event.Bus[Event] {
	return event.NewBus[Event](ctx, event.BusOptions{
		Name:       BusName,
		KeepLatest: true,
		Registry:   registry,
		Logger:     logger,
	})
}

// Notifier turns settled watch activity into bus events.
type Notifier struct {
	publisher Publisher
	active    ActiveReader
	logger    *logging.Logger
	metrics   *metrics.Registry
}

// NewNotifier returns a Notifier publishing to publisher and gating image
// updates on active.
func NewNotifier(publisher Publisher, active ActiveReader, logger *logging.Logger, registry *metrics.Registry) *Notifier {
	return &Notifier{
		publisher: publisher,
		active:    active,
		logger:    logger.Category("notify"),
		metrics:   registry,
	}
}

// EmitImageUpdate publishes an image_update for project if it is still the
// active project, and reports whether it did.
func (n *Notifier) EmitImageUpdate(project string) bool {
	if n == nil || n.publisher == nil {
		return false
	}
	if n.active != nil {
		current, ok := n.active.Active()
		if !ok || current != project {
			n.metrics.IncImageUpdateSuppressed()
			n.logger.Debug("image update suppressed", map[string]string{
				"project": project,
				"active":  current,
			})
			return false
		}
	}
	n.publisher.Publish(NewImageUpdate(project))
	n.metrics.IncImageUpdateEmitted()
	n.logger.Debug("image update emitted", map[string]string{
		"project": project,
	})
	return true
}

// EmitProjectListUpdate publishes the full sorted project list.
func (n *Notifier) EmitProjectListUpdate(projects []string) {
	if n == nil || n.publisher == nil {
		return
	}
	n.publisher.Publish(NewProjectListUpdate(projects))
	n.logger.Info("project list updated", map[string]string{
		"projects": strconv.Itoa(len(projects)),
	})
}
