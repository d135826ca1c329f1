package app

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"imgdash/internal/logging"
	"imgdash/internal/metrics"
	"imgdash/internal/notification"
)

const eventTimeout = 2 * time.Second

func buildTestApp(t *testing.T, root string) *BuildResult {
	t.Helper()
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(50), logging.LevelInfo, io.Discard)
	result, err := Build(BuildOptions{
		Root:       root,
		Logger:     logger,
		Metrics:    &metrics.Registry{},
		Debounce:   50 * time.Millisecond,
		SelectRate: 0,
	})
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(func() {
		_ = result.Close()
	})
	return result
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func receive(t *testing.T, events <-chan notification.Event) notification.Event {
	t.Helper()
	select {
	case event, ok := <-events:
		if !ok {
			t.Fatalf("event channel closed")
		}
		return event
	case <-time.After(eventTimeout):
		t.Fatalf("timed out waiting for event")
	}
	return notification.Event{}
}

func TestBuildServesProjects(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "beta"))
	mkdir(t, filepath.Join(root, "alpha"))

	result := buildTestApp(t, root)

	server := httptest.NewServer(result.Handler)
	defer server.Close()

	response, err := http.Get(server.URL + "/api/projects")
	if err != nil {
		t.Fatalf("get projects: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	var payload struct {
		Projects []string `json:"projects"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(payload.Projects, []string{"alpha", "beta"}) {
		t.Fatalf("unexpected projects: %v", payload.Projects)
	}
}

func TestBuildDeliversImageUpdatesForActiveProject(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "alpha"))

	result := buildTestApp(t, root)
	events, cancel := result.Bus.SubscribeTypes(notification.EventTypeImageUpdate)
	defer cancel()

	if err := result.Session.SetActive("alpha"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if !result.Watches.Watching("alpha") {
		t.Fatalf("expected alpha to be watched")
	}
	if err := os.WriteFile(filepath.Join(root, "alpha", "shot.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	event := receive(t, events)
	if event.Project != "alpha" {
		t.Fatalf("expected alpha update, got %+v", event)
	}
}

func TestBuildPublishesProjectListOnNewDirectory(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "alpha"))

	result := buildTestApp(t, root)
	events, cancel := result.Bus.SubscribeTypes(notification.EventTypeProjectListUpdate)
	defer cancel()

	mkdir(t, filepath.Join(root, "gamma"))

	event := receive(t, events)
	if !reflect.DeepEqual(event.Projects, []string{"alpha", "gamma"}) {
		t.Fatalf("unexpected project list: %v", event.Projects)
	}
}

func TestBuildRejectsMissingRoot(t *testing.T) {
	_, err := Build(BuildOptions{Root: filepath.Join(t.TempDir(), "missing")})
	var buildErr BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected BuildError, got %v", err)
	}
	if buildErr.Stage != StageOpenRoot {
		t.Fatalf("expected stage %s, got %s", StageOpenRoot, buildErr.Stage)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist cause, got %v", err)
	}
}

func TestBuildRequiresRoot(t *testing.T) {
	if _, err := Build(BuildOptions{}); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestCloseStopsWatchesAndClosesBus(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "alpha"))

	result := buildTestApp(t, root)
	events, cancel := result.Bus.Subscribe()
	defer cancel()
	if err := result.Session.SetActive("alpha"); err != nil {
		t.Fatalf("set active: %v", err)
	}

	if err := result.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(result.Watches.Projects()) != 0 {
		t.Fatalf("expected no project watches, got %v", result.Watches.Projects())
	}
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(eventTimeout):
		t.Fatalf("subscriber channel was not closed")
	}
}

func TestBuildErrorFormatting(t *testing.T) {
	err := BuildError{Stage: StageWatchRoot, Err: errors.New("boom")}
	if err.Error() != "watch_root: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if (BuildError{Stage: StageOpenRoot}).Error() != StageOpenRoot {
		t.Fatalf("expected bare stage message")
	}
}
