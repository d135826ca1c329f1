package main

import (
	"context"
	"os"
	"sync/atomic"

	"imgdash/internal/logging"
)

// watchShutdownSignals cancels shutdownCancel on the first signal. A second
// signal calls forceExit, when given, to abandon a stuck graceful shutdown.
// The returned function stops watching.
func watchShutdownSignals(logger *logging.Logger, shutdownCancel context.CancelFunc, signalCh <-chan os.Signal, forceExit func()) func() {
	if signalCh == nil {
		return func() {}
	}

	done := make(chan struct{})
	var shutdownStarted atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				fields := map[string]string{}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				if shutdownStarted.CompareAndSwap(false, true) {
					logger.Info("shutdown signal received", fields)
					if shutdownCancel != nil {
						shutdownCancel()
					}
					continue
				}
				if forceExit == nil {
					logger.Info("shutdown already in progress; ignoring signal", fields)
					continue
				}
				logger.Warn("second signal received; exiting immediately", fields)
				forceExit()
				return
			}
		}
	}()

	var stopOnce atomic.Bool
	return func() {
		if stopOnce.CompareAndSwap(false, true) {
			close(done)
		}
	}
}
