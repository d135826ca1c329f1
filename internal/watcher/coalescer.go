package watcher

import (
	"time"

	"imgdash/internal/catalog"
	"imgdash/internal/logging"
	"imgdash/internal/metrics"
)

// DefaultWindow is the quiet period after the last qualifying event before a
// project's update is emitted.
const DefaultWindow = 300 * time.Millisecond

// CoalescerOptions configures a Coalescer. A zero Window means DefaultWindow.
type CoalescerOptions struct {
	Window  time.Duration
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Coalescer collapses bursts of raw events into one emission per project.
// Each project is either idle or pending; a qualifying event moves it to
// pending and restarts the window, firing moves it back to idle.
type Coalescer struct {
	debouncer *Debouncer
	emit      func(project string)
	logger    *logging.Logger
	metrics   *metrics.Registry
}

// NewCoalescer returns a Coalescer that calls emit once per settled project.
func NewCoalescer(emit func(project string), options CoalescerOptions) *Coalescer {
	window := options.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coalescer{
		debouncer: NewDebouncer(window),
		emit:      emit,
		logger:    options.Logger,
		metrics:   options.Metrics,
	}
}

// Qualifies reports whether a raw event can produce an image update.
func Qualifies(event Event) bool {
	if event.IsDir {
		return false
	}
	return catalog.IsImage(event.Path) && !catalog.IsTransient(event.Path)
}

// OnRawEvent filters event and, when it qualifies, restarts the project's
// window. It reports whether the event qualified.
func (coalescer *Coalescer) OnRawEvent(project string, event Event) bool {
	if coalescer == nil {
		return false
	}
	if !Qualifies(event) {
		coalescer.metrics.IncRawEventIgnored()
		return false
	}
	if coalescer.debouncer.Schedule(project, func() { coalescer.fire(project) }) {
		coalescer.metrics.IncRawEventCoalesced()
	}
	if coalescer.logger != nil {
		coalescer.logger.Debug("image change queued", map[string]string{
			"project": project,
			"path":    event.Path,
			"op":      event.Op.String(),
		})
	}
	return true
}

func (coalescer *Coalescer) fire(project string) {
	if coalescer.emit != nil {
		coalescer.emit(project)
	}
}

// Cancel discards the pending emission for project, if any.
func (coalescer *Coalescer) Cancel(project string) bool {
	if coalescer == nil {
		return false
	}
	return coalescer.debouncer.Cancel(project)
}

// Pending reports whether project has an armed timer.
func (coalescer *Coalescer) Pending(project string) bool {
	if coalescer == nil {
		return false
	}
	return coalescer.debouncer.Pending(project)
}

func (coalescer *Coalescer) Close() {
	if coalescer == nil {
		return
	}
	coalescer.debouncer.Stop()
}
