package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// collectDirs returns root and every directory below it. Unreadable entries
// are skipped.
func collectDirs(root string) ([]string, error) {
	dirs := []string{}
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if entry.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

// addDirs registers each directory with fsnotify and stops at the first
// failure.
func (watcher *Watcher) addDirs(paths []string) ([]string, error) {
	added := make([]string, 0, len(paths))
	for _, path := range paths {
		watcher.mutex.Lock()
		if watcher.closed {
			watcher.mutex.Unlock()
			return added, nil
		}
		if _, ok := watcher.dirs[path]; ok {
			watcher.mutex.Unlock()
			continue
		}
		if len(watcher.dirs) >= watcher.maxWatches {
			watcher.mutex.Unlock()
			return added, ErrMaxWatchesExceeded
		}
		watcher.dirs[path] = struct{}{}
		activeCount := len(watcher.dirs)
		source := watcher.watcher
		watcher.mutex.Unlock()

		if err := source.Add(path); err != nil {
			watcher.mutex.Lock()
			delete(watcher.dirs, path)
			watcher.mutex.Unlock()
			watcher.logWarn("watch add failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			return added, err
		}
		watcher.logDebug("watch added", path, activeCount)
		added = append(added, path)
	}
	return added, nil
}

// addTree watches a directory that appeared after startup and returns the
// files already inside it.
func (watcher *Watcher) addTree(dir string) []string {
	dirs := []string{}
	files := []string{}
	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			dirs = append(dirs, path)
		} else if entry.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})

	for _, path := range dirs {
		if _, err := watcher.addDirs([]string{path}); err != nil {
			watcher.logWarn("recursive watch incomplete", map[string]string{
				"root":  watcher.root,
				"path":  path,
				"error": err.Error(),
			})
		}
	}
	return files
}

// forgetTree drops tracked directories at or below path and reports whether
// path itself was a tracked directory.
func (watcher *Watcher) forgetTree(path string) bool {
	watcher.mutex.Lock()
	_, wasDir := watcher.dirs[path]
	removed := []string{}
	for dir := range watcher.dirs {
		if isWithinPath(path, dir) {
			delete(watcher.dirs, dir)
			removed = append(removed, dir)
		}
	}
	activeCount := len(watcher.dirs)
	source := watcher.watcher
	watcher.mutex.Unlock()

	for _, dir := range removed {
		// fsnotify already drops watches on deleted directories.
		_ = source.Remove(dir)
		watcher.logDebug("watch removed", dir, activeCount)
	}
	return wasDir
}

func isWithinPath(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
