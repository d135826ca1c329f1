package watcher

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"imgdash/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultMaxWatches      = 4096
	defaultCleanupInterval = time.Minute
	maxRestartAttempts     = 3
	restartBaseDelay       = 200 * time.Millisecond
)

// Watcher is an fsnotify-backed observer of one directory tree. The handler
// runs on the watcher's own goroutine, one event at a time, in the order the
// OS reported them.
type Watcher struct {
	root            string
	handler         func(Event)
	watcher         *fsnotify.Watcher
	mutex           sync.Mutex
	dirs            map[string]struct{}
	recursive       bool
	maxWatches      int
	cleanupInterval time.Duration
	events          chan fsnotify.Event
	errors          chan error
	done            chan struct{}
	closed          bool
	group           sync.WaitGroup
	logger          *logging.Logger
	errorHandler    func(error)
	project         string

	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int

	eventsDelivered uint64
	errorCount      uint64
}

// Watch starts observing root and calls handler for every change below it.
func Watch(root string, handler func(Event), options Options) (*Watcher, error) {
	if root == "" {
		return nil, errors.New("path is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	maxWatches := options.MaxWatches
	if maxWatches <= 0 {
		maxWatches = defaultMaxWatches
	}
	cleanupInterval := options.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}

	instance := &Watcher{
		root:            root,
		handler:         handler,
		watcher:         source,
		dirs:            make(map[string]struct{}),
		recursive:       options.Recursive,
		maxWatches:      maxWatches,
		cleanupInterval: cleanupInterval,
		events:          make(chan fsnotify.Event, 64),
		errors:          make(chan error, 4),
		done:            make(chan struct{}),
		logger:          options.Logger,
		errorHandler:    options.ErrorHandler,
		project:         options.Project,
	}

	dirs := []string{root}
	if instance.recursive {
		dirs, err = collectDirs(root)
		if err != nil {
			_ = source.Close()
			return nil, err
		}
	}
	if _, err := instance.addDirs(dirs); err != nil {
		_ = source.Close()
		return nil, err
	}

	instance.group.Add(3)
	go instance.forward(source)
	go instance.run()
	go instance.cleanupLoop()
	return instance, nil
}

// Root returns the watched directory.
func (watcher *Watcher) Root() string {
	if watcher == nil {
		return ""
	}
	return watcher.root
}

// Close stops event processing and waits for the watcher goroutines to exit.
// It must not be called from the handler.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	source := watcher.watcher
	watcher.mutex.Unlock()

	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartTimer.Stop()
		watcher.restartTimer = nil
	}
	watcher.restartMutex.Unlock()

	close(watcher.done)
	var err error
	if source != nil {
		err = source.Close()
	}
	watcher.group.Wait()
	return err
}

func (watcher *Watcher) run() {
	defer watcher.group.Done()
	for {
		select {
		case event := <-watcher.events:
			watcher.handleEvent(event)
		case err := <-watcher.errors:
			watcher.handleError(err)
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) forward(source *fsnotify.Watcher) {
	defer watcher.group.Done()
	for {
		select {
		case event, ok := <-source.Events:
			if !ok {
				return
			}
			select {
			case watcher.events <- event:
			case <-watcher.done:
				return
			}
		case err, ok := <-source.Errors:
			if !ok {
				return
			}
			select {
			case watcher.errors <- err:
			case <-watcher.done:
				return
			}
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) handleEvent(event fsnotify.Event) {
	isDir := false
	var created []string
	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Lstat(event.Name)
		isDir = err == nil && info.IsDir()
		if isDir && event.Has(fsnotify.Create) && watcher.recursive {
			created = watcher.addTree(event.Name)
		}
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		isDir = watcher.forgetTree(event.Name)
	case event.Has(fsnotify.Chmod):
		info, err := os.Lstat(event.Name)
		isDir = err == nil && info.IsDir()
	}

	now := time.Now().UTC()
	watcher.deliver(Event{Path: event.Name, Op: event.Op, IsDir: isDir, Timestamp: now})
	// Files already present in a new directory raced its watch; report them.
	for _, path := range created {
		watcher.deliver(Event{Path: path, Op: fsnotify.Create, Timestamp: now})
	}
}

func (watcher *Watcher) deliver(event Event) {
	watcher.handler(event)
	atomic.AddUint64(&watcher.eventsDelivered, 1)
}

func (watcher *Watcher) logInfo(message string, fields map[string]string) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Info(message, withWatcherFields(fields))
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Warn(message, withWatcherFields(fields))
}

func (watcher *Watcher) logDebug(message, path string, activeCount int) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Debug(message, withWatcherFields(map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(activeCount),
	}))
}

func withWatcherFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+2)
	merged[logging.FieldCategory] = "watcher"
	merged[logging.FieldSource] = "backend"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}

// Metrics reports current watcher stats.
func (watcher *Watcher) Metrics() Metrics {
	if watcher == nil {
		return Metrics{}
	}
	watcher.mutex.Lock()
	active := len(watcher.dirs)
	watcher.mutex.Unlock()
	watcher.restartMutex.Lock()
	restartAttempts := watcher.restartAttempts
	watcher.restartMutex.Unlock()
	return Metrics{
		ActiveWatches:   active,
		EventsDelivered: atomic.LoadUint64(&watcher.eventsDelivered),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
		RestartAttempts: restartAttempts,
	}
}
