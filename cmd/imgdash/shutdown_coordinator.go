package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"imgdash/internal/logging"
)

type shutdownPhase struct {
	name string
	stop func(context.Context) error
}

// shutdownCoordinator runs registered phases once, in registration order.
// A failing phase does not stop later ones; all failures are joined.
type shutdownCoordinator struct {
	logger *logging.Logger
	once   sync.Once
	phases []shutdownPhase
	err    error
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{
		logger: logger,
	}
}

func (coordinator *shutdownCoordinator) Add(name string, stop func(context.Context) error) {
	if coordinator == nil || stop == nil {
		return
	}
	coordinator.phases = append(coordinator.phases, shutdownPhase{
		name: name,
		stop: stop,
	})
}

// Run executes the phases. Later calls return the first call's result.
func (coordinator *shutdownCoordinator) Run(ctx context.Context) error {
	if coordinator == nil {
		return nil
	}
	coordinator.once.Do(func() {
		for _, phase := range coordinator.phases {
			started := time.Now()
			err := phase.stop(ctx)
			fields := map[string]string{
				"phase":       phase.name,
				"duration_ms": strconv.FormatInt(time.Since(started).Milliseconds(), 10),
			}
			if err != nil {
				coordinator.err = errors.Join(coordinator.err, fmt.Errorf("%s: %w", phase.name, err))
				fields["error"] = err.Error()
				coordinator.logger.Warn("shutdown phase failed", fields)
				continue
			}
			coordinator.logger.Debug("shutdown phase complete", fields)
		}
	})
	return coordinator.err
}
