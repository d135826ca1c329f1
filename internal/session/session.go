// Package session tracks the single active project and keeps the project
// watches in step with it.
package session

import (
	"errors"
	"fmt"
	"sync"

	"imgdash/internal/catalog"
	"imgdash/internal/logging"
	"imgdash/internal/metrics"
	"imgdash/internal/sandbox"
)

// ErrProjectNotFound is returned when a project name does not name a
// directory directly under the root.
var ErrProjectNotFound = errors.New("project not found")

// Watches is the lifecycle surface of the project watch registry.
type Watches interface {
	Start(project string) error
	StopExcept(keep string)
	StopAll()
}

// Options carries the session's logger and metrics; both may be nil.
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Session holds the active project. Reads take only a read lock and never
// wait on watch I/O; transitions serialize watch work on a separate lock.
type Session struct {
	catalog *catalog.Catalog
	watches Watches
	logger  *logging.Logger
	metrics *metrics.Registry

	mutex     sync.RWMutex
	active    string
	hasActive bool

	lifecycle sync.Mutex
	closed    bool
}

// New returns a Session with no active project.
func New(catalog *catalog.Catalog, watches Watches, options Options) *Session {
	return &Session{
		catalog: catalog,
		watches: watches,
		logger:  options.Logger.Category("session"),
		metrics: options.Metrics,
	}
}

// SetActive makes project the active project. The previous project's watch
// is stopped and project's watch is started. A watch that cannot be
// installed is logged and does not fail the call.
func (s *Session) SetActive(project string) error {
	if s == nil {
		return errors.New("session is nil")
	}
	if _, err := s.catalog.ProjectDir(project); err != nil {
		switch {
		case errors.Is(err, sandbox.ErrPathTraversal):
			return err
		case errors.Is(err, catalog.ErrNotDirectory):
			return fmt.Errorf("%w: %s", ErrProjectNotFound, project)
		default:
			return err
		}
	}

	s.mutex.Lock()
	previous, hadPrevious := s.active, s.hasActive
	s.active = project
	s.hasActive = true
	s.mutex.Unlock()

	if !hadPrevious || previous != project {
		s.metrics.IncProjectSwitch()
		s.logger.Info("active project changed", map[string]string{
			"project":  project,
			"previous": previous,
		})
	}

	s.reconcile()
	return nil
}

// Active returns the active project, if any.
func (s *Session) Active() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.active, s.hasActive
}

// reconcile stops every watch except the one for the project that is active
// now, then ensures that one is running. Using the current value rather than
// the caller's argument means the last transition to finish leaves the
// watches matching the final active project.
func (s *Session) reconcile() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	current, ok := s.Active()
	if !ok || s.closed || s.watches == nil {
		return
	}
	s.watches.StopExcept(current)
	if err := s.watches.Start(current); err != nil {
		s.logger.Warn("live updates unavailable", map[string]string{
			"project": current,
			"error":   err.Error(),
		})
	}
}

// Close stops all project watches; later transitions update the active
// value without starting watches.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.closed = true
	if s.watches != nil {
		s.watches.StopAll()
	}
	return nil
}
