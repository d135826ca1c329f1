package watcher

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"imgdash/internal/logging"
	"imgdash/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

const rootDebounceKey = "root"

type RootOptions struct {
	Window  time.Duration
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// RootWatcher observes the entries directly under the dashboard root and
// publishes the full project list after each burst of changes.
type RootWatcher struct {
	watcher   *Watcher
	debouncer *Debouncer
	list      func() ([]string, error)
	publish   func(projects []string)
	logger    *logging.Logger
	metrics   *metrics.Registry
}

// WatchRoot installs a non-recursive watch on root. list recomputes the
// project names; publish receives them sorted and deduplicated.
func WatchRoot(root string, list func() ([]string, error), publish func([]string), options RootOptions) (*RootWatcher, error) {
	if list == nil || publish == nil {
		return nil, fmt.Errorf("root watcher requires list and publish callbacks")
	}
	window := options.Window
	if window <= 0 {
		window = DefaultWindow
	}
	rootWatcher := &RootWatcher{
		debouncer: NewDebouncer(window),
		list:      list,
		publish:   publish,
		logger:    options.Logger,
		metrics:   options.Metrics,
	}
	watcher, err := Watch(root, rootWatcher.handle, Options{
		Logger: options.Logger,
		ErrorHandler: func(err error) {
			options.Metrics.IncWatchFailure()
			rootWatcher.logWarn("root watch lost", map[string]string{"error": err.Error()})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("watch root %s: %w", root, err)
	}
	rootWatcher.watcher = watcher
	return rootWatcher, nil
}

func (rootWatcher *RootWatcher) handle(event Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	rootWatcher.debouncer.Schedule(rootDebounceKey, rootWatcher.refresh)
}

// Refresh recomputes and publishes the project list immediately.
func (rootWatcher *RootWatcher) Refresh() {
	rootWatcher.refresh()
}

func (rootWatcher *RootWatcher) refresh() {
	projects, err := rootWatcher.list()
	if err != nil {
		rootWatcher.logWarn("project list failed", map[string]string{"error": err.Error()})
		return
	}
	projects = sortedUnique(projects)
	rootWatcher.publish(projects)
	rootWatcher.metrics.IncProjectListUpdate()
	if rootWatcher.logger != nil {
		rootWatcher.logger.Debug("project list published", withWatcherFields(map[string]string{
			"projects": strconv.Itoa(len(projects)),
		}))
	}
}

// Close stops the root watch and discards a pending refresh.
func (rootWatcher *RootWatcher) Close() error {
	if rootWatcher == nil {
		return nil
	}
	err := rootWatcher.watcher.Close()
	rootWatcher.debouncer.Stop()
	return err
}

func (rootWatcher *RootWatcher) logWarn(message string, fields map[string]string) {
	if rootWatcher.logger == nil {
		return
	}
	rootWatcher.logger.Warn(message, withWatcherFields(fields))
}

func sortedUnique(values []string) []string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	unique := make([]string, 0, len(sorted))
	for index, value := range sorted {
		if index > 0 && value == sorted[index-1] {
			continue
		}
		unique = append(unique, value)
	}
	return unique
}
