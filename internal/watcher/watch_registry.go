package watcher

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"imgdash/internal/logging"
	"imgdash/internal/metrics"
	"imgdash/internal/sandbox"
)

// RegistryOptions is passed through to every project Watcher.
type RegistryOptions struct {
	Logger          *logging.Logger
	Metrics         *metrics.Registry
	MaxWatches      int
	CleanupInterval time.Duration
}

// Registry owns at most one recursive Watcher per project name and routes
// its events into the Coalescer.
type Registry struct {
	sandbox   *sandbox.Sandbox
	coalescer *Coalescer
	options   RegistryOptions
	logger    *logging.Logger
	metrics   *metrics.Registry

	mutex     sync.Mutex
	watches   map[string]*projectWatch
	nextToken uint64
}

// projectWatch is recorded before its Watcher is installed so installation
// I/O runs outside the registry lock; watcher is nil until then.
type projectWatch struct {
	token   uint64
	dir     string
	watcher *Watcher
}

// NewRegistry returns an empty Registry feeding coalescer.
func NewRegistry(box *sandbox.Sandbox, coalescer *Coalescer, options RegistryOptions) *Registry {
	return &Registry{
		sandbox:   box,
		coalescer: coalescer,
		options:   options,
		logger:    options.Logger,
		metrics:   options.Metrics,
		watches:   make(map[string]*projectWatch),
	}
}

// Start installs a recursive watch for project. It is a no-op when the
// project is already watched or is not a directory. A failed installation
// returns an error wrapping ErrWatchUnavailable.
func (registry *Registry) Start(project string) error {
	if registry == nil {
		return errors.New("registry is nil")
	}
	dir, err := registry.sandbox.Resolve(project)
	if err != nil {
		return err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		registry.logDebug("watch skipped", map[string]string{"project": project, "reason": "not a directory"})
		return nil
	}

	registry.mutex.Lock()
	if _, ok := registry.watches[project]; ok {
		registry.mutex.Unlock()
		return nil
	}
	registry.nextToken++
	token := registry.nextToken
	registry.watches[project] = &projectWatch{token: token, dir: dir}
	registry.mutex.Unlock()

	watcher, err := Watch(dir, func(event Event) {
		registry.route(project, dir, event)
	}, Options{
		Logger:          registry.logger,
		Recursive:       true,
		Project:         project,
		MaxWatches:      registry.options.MaxWatches,
		CleanupInterval: registry.options.CleanupInterval,
		ErrorHandler: func(err error) {
			registry.metrics.IncWatchFailure()
			registry.logWarn("project watch lost", map[string]string{"project": project, "error": err.Error()})
		},
	})
	if err != nil {
		registry.mutex.Lock()
		if entry, ok := registry.watches[project]; ok && entry.token == token {
			delete(registry.watches, project)
		}
		registry.mutex.Unlock()
		registry.metrics.IncWatchFailure()
		registry.logWarn("project watch unavailable", map[string]string{"project": project, "error": err.Error()})
		return fmt.Errorf("%w: %s: %w", ErrWatchUnavailable, project, err)
	}

	registry.mutex.Lock()
	entry, ok := registry.watches[project]
	if !ok || entry.token != token {
		// Stopped while installing.
		registry.mutex.Unlock()
		_ = watcher.Close()
		registry.coalescer.Cancel(project)
		return nil
	}
	entry.watcher = watcher
	count := registry.liveCountLocked()
	registry.mutex.Unlock()

	registry.metrics.SetProjectWatches(count)
	registry.logInfo("project watch started", map[string]string{
		"project":     project,
		"directories": strconv.Itoa(watcher.Metrics().ActiveWatches),
	})
	return nil
}

// Stop disposes the project's watch and cancels its pending emission. It is
// safe to call for projects that are not watched.
func (registry *Registry) Stop(project string) {
	if registry == nil {
		return
	}
	registry.mutex.Lock()
	entry, ok := registry.watches[project]
	if ok {
		delete(registry.watches, project)
	}
	count := registry.liveCountLocked()
	registry.mutex.Unlock()

	registry.dispose(project, entry)
	if ok {
		registry.metrics.SetProjectWatches(count)
	}
}

// StopExcept stops every watch other than keep.
func (registry *Registry) StopExcept(keep string) {
	registry.stopMatching(func(project string) bool { return project != keep })
}

func (registry *Registry) StopAll() {
	registry.stopMatching(func(string) bool { return true })
}

func (registry *Registry) stopMatching(match func(project string) bool) {
	if registry == nil {
		return
	}
	registry.mutex.Lock()
	stale := make(map[string]*projectWatch)
	for project, entry := range registry.watches {
		if match(project) {
			stale[project] = entry
			delete(registry.watches, project)
		}
	}
	count := registry.liveCountLocked()
	registry.mutex.Unlock()

	for project, entry := range stale {
		registry.dispose(project, entry)
	}
	if len(stale) > 0 {
		registry.metrics.SetProjectWatches(count)
	}
}

// Projects returns the sorted names of projects with a recorded watch.
func (registry *Registry) Projects() []string {
	if registry == nil {
		return nil
	}
	registry.mutex.Lock()
	names := make([]string, 0, len(registry.watches))
	for project := range registry.watches {
		names = append(names, project)
	}
	registry.mutex.Unlock()
	sort.Strings(names)
	return names
}

// Watching reports whether project has an installed watch.
func (registry *Registry) Watching(project string) bool {
	if registry == nil {
		return false
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	entry, ok := registry.watches[project]
	return ok && entry.watcher != nil
}

func (registry *Registry) dispose(project string, entry *projectWatch) {
	if entry != nil && entry.watcher != nil {
		if err := entry.watcher.Close(); err != nil {
			registry.logWarn("project watch close failed", map[string]string{"project": project, "error": err.Error()})
		}
		registry.logInfo("project watch stopped", map[string]string{"project": project})
	}
	registry.coalescer.Cancel(project)
}

// route forwards events that stay inside the project directory.
func (registry *Registry) route(project, dir string, event Event) {
	if !isWithinPath(dir, event.Path) {
		registry.logWarn("event outside project dropped", map[string]string{"project": project, "path": event.Path})
		return
	}
	registry.coalescer.OnRawEvent(project, event)
}

func (registry *Registry) liveCountLocked() int {
	count := 0
	for _, entry := range registry.watches {
		if entry.watcher != nil {
			count++
		}
	}
	return count
}

func (registry *Registry) logInfo(message string, fields map[string]string) {
	if registry.logger == nil {
		return
	}
	registry.logger.Info(message, withWatcherFields(fields))
}

func (registry *Registry) logWarn(message string, fields map[string]string) {
	if registry.logger == nil {
		return
	}
	registry.logger.Warn(message, withWatcherFields(fields))
}

func (registry *Registry) logDebug(message string, fields map[string]string) {
	if registry.logger == nil {
		return
	}
	registry.logger.Debug(message, withWatcherFields(fields))
}
