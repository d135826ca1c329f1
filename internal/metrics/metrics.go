package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry holds process counters rendered in Prometheus text format.
type Registry struct {
	imageUpdatesEmitted    atomic.Int64
	imageUpdatesSuppressed atomic.Int64
	rawEventsIgnored       atomic.Int64
	rawEventsCoalesced     atomic.Int64
	projectListUpdates     atomic.Int64
	watchFailures          atomic.Int64
	projectWatches         atomic.Int64
	projectSwitches        atomic.Int64
	events                 sync.Map
	subscribers            sync.Map
}

type eventKey struct {
	bus       string
	eventType string
}

type eventStats struct {
	published atomic.Int64
	dropped   atomic.Int64
}

type subscriberStats struct {
	filtered   atomic.Int64
	unfiltered atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncImageUpdateEmitted() {
	if r == nil {
		return
	}
	r.imageUpdatesEmitted.Add(1)
}

func (r *Registry) IncImageUpdateSuppressed() {
	if r == nil {
		return
	}
	r.imageUpdatesSuppressed.Add(1)
}

func (r *Registry) IncRawEventIgnored() {
	if r == nil {
		return
	}
	r.rawEventsIgnored.Add(1)
}

func (r *Registry) IncRawEventCoalesced() {
	if r == nil {
		return
	}
	r.rawEventsCoalesced.Add(1)
}

func (r *Registry) IncProjectListUpdate() {
	if r == nil {
		return
	}
	r.projectListUpdates.Add(1)
}

func (r *Registry) IncWatchFailure() {
	if r == nil {
		return
	}
	r.watchFailures.Add(1)
}

func (r *Registry) IncProjectSwitch() {
	if r == nil {
		return
	}
	r.projectSwitches.Add(1)
}

func (r *Registry) SetProjectWatches(count int) {
	if r == nil {
		return
	}
	r.projectWatches.Store(int64(count))
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.eventStats(bus, eventType).published.Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.eventStats(bus, eventType).dropped.Add(1)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	value, _ := r.subscribers.LoadOrStore(labelOrUnknown(bus), &subscriberStats{})
	stats := value.(*subscriberStats)
	stats.filtered.Store(int64(filtered))
	stats.unfiltered.Store(int64(unfiltered))
}

// EventCounts reports published and dropped totals for one bus and event type.
func (r *Registry) EventCounts(bus, eventType string) (published, dropped int64) {
	if r == nil {
		return 0, 0
	}
	value, ok := r.events.Load(eventKey{bus: labelOrUnknown(bus), eventType: labelOrUnknown(eventType)})
	if !ok {
		return 0, 0
	}
	stats := value.(*eventStats)
	return stats.published.Load(), stats.dropped.Load()
}

// Snapshot is a point-in-time copy of the scalar counters.
type Snapshot struct {
	ImageUpdatesEmitted    int64
	ImageUpdatesSuppressed int64
	RawEventsIgnored       int64
	RawEventsCoalesced     int64
	ProjectListUpdates     int64
	WatchFailures          int64
	ProjectSwitches        int64
	ProjectWatches         int64
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		ImageUpdatesEmitted:    r.imageUpdatesEmitted.Load(),
		ImageUpdatesSuppressed: r.imageUpdatesSuppressed.Load(),
		RawEventsIgnored:       r.rawEventsIgnored.Load(),
		RawEventsCoalesced:     r.rawEventsCoalesced.Load(),
		ProjectListUpdates:     r.projectListUpdates.Load(),
		WatchFailures:          r.watchFailures.Load(),
		ProjectSwitches:        r.projectSwitches.Load(),
		ProjectWatches:         r.projectWatches.Load(),
	}
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "imgdash_image_updates_emitted_total", "Image updates delivered to the notification bus", r.imageUpdatesEmitted.Load())
	writeCounter(writer, "imgdash_image_updates_suppressed_total", "Image updates dropped because the project was no longer active", r.imageUpdatesSuppressed.Load())
	writeCounter(writer, "imgdash_raw_events_ignored_total", "Filesystem events rejected by the image filter", r.rawEventsIgnored.Load())
	writeCounter(writer, "imgdash_raw_events_coalesced_total", "Filesystem events folded into an already pending notification", r.rawEventsCoalesced.Load())
	writeCounter(writer, "imgdash_project_list_updates_total", "Project list updates published", r.projectListUpdates.Load())
	writeCounter(writer, "imgdash_watch_failures_total", "Project watch installations that failed", r.watchFailures.Load())
	writeCounter(writer, "imgdash_project_switches_total", "Active project transitions", r.projectSwitches.Load())
	writeGauge(writer, "imgdash_project_watches", "Live project watches", r.projectWatches.Load())

	keys := r.eventKeys()
	writeHelp(writer, "imgdash_events_published_total", "Events published per bus")
	fmt.Fprintln(writer, "# TYPE imgdash_events_published_total counter")
	writeHelp(writer, "imgdash_events_dropped_total", "Events dropped for slow subscribers")
	fmt.Fprintln(writer, "# TYPE imgdash_events_dropped_total counter")
	for _, key := range keys {
		value, _ := r.events.Load(key)
		stats := value.(*eventStats)
		labels := fmt.Sprintf("bus=%s,type=%s", formatLabel(key.bus), formatLabel(key.eventType))
		fmt.Fprintf(writer, "imgdash_events_published_total{%s} %d\n", labels, stats.published.Load())
		fmt.Fprintf(writer, "imgdash_events_dropped_total{%s} %d\n", labels, stats.dropped.Load())
	}

	buses := r.subscriberBuses()
	writeHelp(writer, "imgdash_event_subscribers", "Current bus subscribers")
	fmt.Fprintln(writer, "# TYPE imgdash_event_subscribers gauge")
	for _, bus := range buses {
		value, _ := r.subscribers.Load(bus)
		stats := value.(*subscriberStats)
		fmt.Fprintf(writer, "imgdash_event_subscribers{bus=%s,filtered=\"true\"} %d\n", formatLabel(bus), stats.filtered.Load())
		fmt.Fprintf(writer, "imgdash_event_subscribers{bus=%s,filtered=\"false\"} %d\n", formatLabel(bus), stats.unfiltered.Load())
	}

	return nil
}

func (r *Registry) eventStats(bus, eventType string) *eventStats {
	key := eventKey{bus: labelOrUnknown(bus), eventType: labelOrUnknown(eventType)}
	value, _ := r.events.LoadOrStore(key, &eventStats{})
	return value.(*eventStats)
}

func (r *Registry) eventKeys() []eventKey {
	var keys []eventKey
	r.events.Range(func(key, _ any) bool {
		if typed, ok := key.(eventKey); ok {
			keys = append(keys, typed)
		}
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].bus != keys[j].bus {
			return keys[i].bus < keys[j].bus
		}
		return keys[i].eventType < keys[j].eventType
	})
	return keys
}

func (r *Registry) subscriberBuses() []string {
	var names []string
	r.subscribers.Range(func(key, _ any) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names
}

func labelOrUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeGauge(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
