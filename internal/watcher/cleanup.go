package watcher

import (
	"os"
	"time"
)

func (watcher *Watcher) cleanupLoop() {
	defer watcher.group.Done()
	ticker := time.NewTicker(watcher.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			watcher.cleanup()
		case <-watcher.done:
			return
		}
	}
}

// cleanup forgets tracked directories that no longer exist, such as those
// whose removal event was lost during a restart.
func (watcher *Watcher) cleanup() {
	if watcher == nil {
		return
	}
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return
	}
	paths := make([]string, 0, len(watcher.dirs))
	for path := range watcher.dirs {
		paths = append(paths, path)
	}
	watcher.mutex.Unlock()

	stale := make([]string, 0)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			stale = append(stale, path)
		}
	}
	if len(stale) == 0 {
		return
	}

	watcher.mutex.Lock()
	for _, path := range stale {
		delete(watcher.dirs, path)
	}
	activeCount := len(watcher.dirs)
	source := watcher.watcher
	watcher.mutex.Unlock()

	for _, path := range stale {
		_ = source.Remove(path)
		watcher.logDebug("watch cleaned", path, activeCount)
	}
}
