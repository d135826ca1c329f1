package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const eventTimeout = 2 * time.Second

func waitFor[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case value := <-ch:
		return value, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

func expectQuiet[T any](t *testing.T, ch <-chan T, wait time.Duration) {
	t.Helper()
	select {
	case value := <-ch:
		t.Fatalf("unexpected value %v", value)
	case <-time.After(wait):
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func eventCollector() (chan Event, func(Event)) {
	events := make(chan Event, 256)
	return events, func(event Event) {
		select {
		case events <- event:
		default:
		}
	}
}

// waitForPath drains events until one for path arrives.
func waitForPath(t *testing.T, events <-chan Event, path string) Event {
	t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case event := <-events:
			if event.Path == path {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event on %s", path)
			return Event{}
		}
	}
}
