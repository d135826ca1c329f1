package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imgdash/internal/catalog"
	"imgdash/internal/event"
	"imgdash/internal/logging"
	"imgdash/internal/metrics"
	"imgdash/internal/notification"
	"imgdash/internal/sandbox"
	"imgdash/internal/session"
	"imgdash/internal/watcher"

	"github.com/gorilla/websocket"
)

type apiFixture struct {
	root    string
	server  *httptest.Server
	session *session.Session
	bus     *event.Bus[notification.Event]
	metrics *metrics.Registry
	logger  *logging.Logger
}

func newAPIFixture(t *testing.T, selectRate float64) *apiFixture {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"alpha/epoch-1", "beta"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	for _, file := range []string{"alpha/a.png", "alpha/notes.txt"} {
		if err := os.WriteFile(filepath.Join(root, file), []byte("content"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	box, err := sandbox.New(root)
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	listing := catalog.New(box)
	registry := &metrics.Registry{}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(100), logging.LevelDebug, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	bus := notification.NewBus(ctx, registry, logger)

	var current *session.Session
	notifier := notification.NewNotifier(bus, notification.ActiveFunc(func() (string, bool) {
		return current.Active()
	}), logger, registry)
	coalescer := watcher.NewCoalescer(func(project string) { notifier.EmitImageUpdate(project) }, watcher.CoalescerOptions{
		Window:  50 * time.Millisecond,
		Metrics: registry,
	})
	watches := watcher.NewRegistry(box, coalescer, watcher.RegistryOptions{Logger: logger, Metrics: registry})
	current = session.New(listing, watches, session.Options{Logger: logger, Metrics: registry})

	mux := http.NewServeMux()
	RegisterRoutes(mux, Options{
		Session:    current,
		Catalog:    listing,
		Bus:        bus,
		Logger:     logger,
		Metrics:    registry,
		SelectRate: selectRate,
	})
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		_ = current.Close()
		coalescer.Close()
		cancel()
	})
	return &apiFixture{
		root:    box.Root(),
		server:  server,
		session: current,
		bus:     bus,
		metrics: registry,
		logger:  logger,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string) (*http.Response, []byte) {
	t.Helper()
	request, err := http.NewRequest(method, f.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	response, err := f.server.Client().Do(request)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return response, body
}

func (f *apiFixture) getJSON(t *testing.T, method, path string, wantStatus int, target any) {
	t.Helper()
	response, body := f.do(t, method, path)
	if response.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, wantStatus, response.StatusCode, body)
	}
	if target == nil {
		return
	}
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("decode %s: %v (%s)", path, err, body)
	}
}

func (f *apiFixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	before := f.bus.SubscriberCount()
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for f.bus.SubscriberCount() <= before {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for websocket subscription")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload map[string]any
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	return payload
}
