// Package app assembles the imgdash services from resolved configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"imgdash/internal/api"
	"imgdash/internal/catalog"
	"imgdash/internal/event"
	"imgdash/internal/logging"
	"imgdash/internal/metrics"
	"imgdash/internal/notification"
	"imgdash/internal/sandbox"
	"imgdash/internal/session"
	"imgdash/internal/watcher"
)

type BuildOptions struct {
	Root           string
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	Debounce       time.Duration
	MaxWatches     int
	AllowedOrigins []string
	SelectRate     float64
}

type BuildResult struct {
	Sandbox     *sandbox.Sandbox
	Catalog     *catalog.Catalog
	Bus         *event.Bus[notification.Event]
	Notifier    *notification.Notifier
	Coalescer   *watcher.Coalescer
	Watches     *watcher.Registry
	Session     *session.Session
	RootWatcher *watcher.RootWatcher
	Handler     http.Handler

	cancel context.CancelFunc
}

type BuildError struct {
	Stage string
	Err   error
}

func (e BuildError) Error() string {
	if e.Err == nil {
		return e.Stage
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e BuildError) Unwrap() error {
	return e.Err
}

const (
	StageOpenRoot  = "open_root"
	StageWatchRoot = "watch_root"
)

// Build wires the sandbox, session, watchers and HTTP routes. The root
// directory must exist, and a root watch that cannot be installed fails the
// build; a failed project watch only disables live updates for that project.
func Build(options BuildOptions) (*BuildResult, error) {
	if strings.TrimSpace(options.Root) == "" {
		return nil, errors.New("root directory is required")
	}
	registry := options.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	logger := options.Logger

	box, err := sandbox.New(options.Root)
	if err != nil {
		return nil, BuildError{Stage: StageOpenRoot, Err: err}
	}
	files := catalog.New(box)

	busContext, cancel := context.WithCancel(context.Background())
	bus := notification.NewBus(busContext, registry, logger)

	// The notifier reads the active project at emit time; the session is
	// created after the watch registry it drives.
	var current *session.Session
	notifier := notification.NewNotifier(bus, notification.ActiveFunc(func() (string, bool) {
		return current.Active()
	}), logger, registry)

	coalescer := watcher.NewCoalescer(func(project string) {
		notifier.EmitImageUpdate(project)
	}, watcher.CoalescerOptions{
		Window:  options.Debounce,
		Logger:  logger,
		Metrics: registry,
	})
	watches := watcher.NewRegistry(box, coalescer, watcher.RegistryOptions{
		Logger:     logger,
		Metrics:    registry,
		MaxWatches: options.MaxWatches,
	})
	current = session.New(files, watches, session.Options{
		Logger:  logger,
		Metrics: registry,
	})

	rootWatcher, err := watcher.WatchRoot(box.Root(), files.Projects, notifier.EmitProjectListUpdate, watcher.RootOptions{
		Window:  options.Debounce,
		Logger:  logger,
		Metrics: registry,
	})
	if err != nil {
		coalescer.Close()
		cancel()
		return nil, BuildError{Stage: StageWatchRoot, Err: err}
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Options{
		Session:        current,
		Catalog:        files,
		Bus:            bus,
		Logger:         logger,
		Metrics:        registry,
		AllowedOrigins: options.AllowedOrigins,
		SelectRate:     options.SelectRate,
	})

	return &BuildResult{
		Sandbox:     box,
		Catalog:     files,
		Bus:         bus,
		Notifier:    notifier,
		Coalescer:   coalescer,
		Watches:     watches,
		Session:     current,
		RootWatcher: rootWatcher,
		Handler:     mux,
		cancel:      cancel,
	}, nil
}

// CloseSession stops every project watch.
func (r *BuildResult) CloseSession(context.Context) error {
	if r == nil {
		return nil
	}
	return r.Session.Close()
}

// CloseRootWatcher stops the root watch and joins its goroutines.
func (r *BuildResult) CloseRootWatcher(context.Context) error {
	if r == nil {
		return nil
	}
	return r.RootWatcher.Close()
}

// CloseBus discards pending emissions and closes subscriber channels.
func (r *BuildResult) CloseBus(context.Context) error {
	if r == nil {
		return nil
	}
	r.Coalescer.Close()
	r.Bus.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

// Close runs the non-HTTP shutdown phases in order.
func (r *BuildResult) Close() error {
	ctx := context.Background()
	return errors.Join(r.CloseSession(ctx), r.CloseRootWatcher(ctx), r.CloseBus(ctx))
}
