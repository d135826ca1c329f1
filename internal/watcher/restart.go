package watcher

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const maxRestartDelay = 5 * time.Second

func (watcher *Watcher) handleError(err error) {
	if err == nil {
		return
	}
	atomic.AddUint64(&watcher.errorCount, 1)
	watcher.logWarn("watcher error", watcher.restartFields(map[string]string{
		"error": err.Error(),
	}))
	watcher.scheduleRestart(err)
}

// restartDelay doubles per attempt, capped at maxRestartDelay.
func restartDelay(attempt int) time.Duration {
	delay := restartBaseDelay
	for i := 0; i < attempt && delay < maxRestartDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRestartDelay)
}

// watchLabel names the tree in logs: the project, or "root" for the
// dashboard root watch.
func (watcher *Watcher) watchLabel() string {
	if watcher.project == "" {
		return "root"
	}
	return watcher.project
}

func (watcher *Watcher) restartFields(fields map[string]string) map[string]string {
	merged := map[string]string{
		"watch": watcher.watchLabel(),
		"dir":   watcher.root,
	}
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}

func (watcher *Watcher) isClosed() bool {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return watcher.closed
}

func (watcher *Watcher) scheduleRestart(cause error) {
	if watcher == nil || watcher.isClosed() {
		return
	}
	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartMutex.Unlock()
		return
	}
	attempt := watcher.restartAttempts
	if attempt >= maxRestartAttempts {
		watcher.restartMutex.Unlock()
		watcher.giveUp(attempt, cause)
		return
	}
	delay := restartDelay(attempt)
	watcher.restartAttempts++
	watcher.restartTimer = time.AfterFunc(delay, watcher.performRestart)
	watcher.restartMutex.Unlock()

	watcher.logInfo("watcher restart scheduled", watcher.restartFields(map[string]string{
		"attempt":  strconv.Itoa(attempt + 1),
		"delay_ms": strconv.FormatInt(delay.Milliseconds(), 10),
	}))
}

func (watcher *Watcher) performRestart() {
	if watcher == nil {
		return
	}
	readded, restartErr := watcher.restart()

	watcher.restartMutex.Lock()
	watcher.restartTimer = nil
	if restartErr == nil {
		watcher.restartAttempts = 0
	}
	watcher.restartMutex.Unlock()

	if restartErr == nil {
		watcher.logInfo("watcher restarted", watcher.restartFields(map[string]string{
			"dirs": strconv.Itoa(readded),
		}))
		return
	}
	watcher.logWarn("watcher restart failed", watcher.restartFields(map[string]string{
		"error": restartErr.Error(),
	}))
	watcher.scheduleRestart(restartErr)
}

// giveUp reports a watch that could not be recovered. The error handler
// receives an ErrWatchUnavailable naming the project.
func (watcher *Watcher) giveUp(attempts int, cause error) {
	if cause == nil {
		return
	}
	err := fmt.Errorf("%w: %s: gave up after %d restarts: %w", ErrWatchUnavailable, watcher.watchLabel(), attempts, cause)
	watcher.logWarn("watcher restarts exhausted", watcher.restartFields(map[string]string{
		"attempts": strconv.Itoa(attempts),
		"error":    cause.Error(),
	}))
	if watcher.errorHandler != nil {
		watcher.errorHandler(err)
	}
}

// restart swaps in a fresh fsnotify instance carrying every tracked
// directory and reports how many were re-added.
func (watcher *Watcher) restart() (int, error) {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return 0, nil
	}
	dirs := make([]string, 0, len(watcher.dirs))
	for dir := range watcher.dirs {
		dirs = append(dirs, dir)
	}
	watcher.mutex.Unlock()

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, err
	}

	readded := 0
	for _, dir := range dirs {
		if err := replacement.Add(dir); err != nil {
			// Directories deleted while the watch was down are dropped by
			// the next cleanup sweep.
			watcher.logWarn("watcher re-add failed", watcher.restartFields(map[string]string{
				"path":  dir,
				"error": err.Error(),
			}))
			continue
		}
		readded++
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		_ = replacement.Close()
		return 0, nil
	}
	previous := watcher.watcher
	watcher.watcher = replacement
	// Registered under the mutex so Close either sees this goroutine or
	// observes closed before it starts.
	watcher.group.Add(1)
	watcher.mutex.Unlock()

	go watcher.forward(replacement)
	if previous != nil {
		_ = previous.Close()
	}
	return readded, nil
}
