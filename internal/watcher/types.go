package watcher

import (
	"errors"
	"time"

	"imgdash/internal/logging"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrWatchUnavailable reports that a project watch could not be installed.
	// Reads keep working without live updates.
	ErrWatchUnavailable   = errors.New("watch unavailable")
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
)

// Event represents a single filesystem change.
type Event struct {
	Path      string
	Op        fsnotify.Op
	IsDir     bool
	Timestamp time.Time
}

// Options controls watcher behavior.
type Options struct {
	Logger *logging.Logger
	// Recursive adds every directory below the watched root, including
	// directories created later.
	Recursive       bool
	MaxWatches      int
	CleanupInterval time.Duration
	// ErrorHandler is called once restart attempts are exhausted.
	ErrorHandler func(error)
	// Project names the watched project in restart logs and errors. Empty
	// means the dashboard root.
	Project string
}

// Metrics reports current watcher stats.
type Metrics struct {
	ActiveWatches   int
	EventsDelivered uint64
	Errors          uint64
	RestartAttempts int
}
