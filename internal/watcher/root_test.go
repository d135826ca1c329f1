package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"imgdash/internal/metrics"
)

func listDirs(root string) func() ([]string, error) {
	return func() ([]string, error) {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		names := []string{}
		for _, entry := range entries {
			if entry.IsDir() {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		return names, nil
	}
}

func TestRootWatcherPublishesOnNewProject(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "zeta"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	registry := &metrics.Registry{}
	updates := make(chan []string, 8)
	rootWatcher, err := WatchRoot(root, listDirs(root), func(projects []string) { updates <- projects }, RootOptions{
		Window:  40 * time.Millisecond,
		Metrics: registry,
	})
	if err != nil {
		t.Fatalf("watch root: %v", err)
	}
	defer rootWatcher.Close()

	if err := os.Mkdir(filepath.Join(root, "alpha"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	projects, ok := waitFor(updates, eventTimeout)
	if !ok {
		t.Fatal("timed out waiting for project list update")
	}
	if want := []string{"alpha", "zeta"}; !reflect.DeepEqual(projects, want) {
		t.Fatalf("expected %v, got %v", want, projects)
	}
	expectQuiet(t, updates, 200*time.Millisecond)
	if got := registry.Snapshot().ProjectListUpdates; got != 1 {
		t.Fatalf("expected 1 project list update, got %d", got)
	}
}

func TestRootWatcherPublishesOnRemoval(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "alpha"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	updates := make(chan []string, 8)
	rootWatcher, err := WatchRoot(root, listDirs(root), func(projects []string) { updates <- projects }, RootOptions{Window: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("watch root: %v", err)
	}
	defer rootWatcher.Close()

	if err := os.Remove(filepath.Join(root, "alpha")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	projects, ok := waitFor(updates, eventTimeout)
	if !ok {
		t.Fatal("timed out waiting for project list update")
	}
	if len(projects) != 0 {
		t.Fatalf("expected empty list, got %v", projects)
	}
}

func TestRootWatcherCollapsesBursts(t *testing.T) {
	root := t.TempDir()
	updates := make(chan []string, 64)
	rootWatcher, err := WatchRoot(root, listDirs(root), func(projects []string) { updates <- projects }, RootOptions{Window: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("watch root: %v", err)
	}
	defer rootWatcher.Close()

	for i := 0; i < 20; i++ {
		if err := os.Mkdir(filepath.Join(root, "p"+string(rune('a'+i))), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	projects, ok := waitFor(updates, eventTimeout)
	if !ok {
		t.Fatal("timed out waiting for project list update")
	}
	if len(projects) != 20 {
		t.Fatalf("expected 20 projects, got %d", len(projects))
	}
	expectQuiet(t, updates, 300*time.Millisecond)
}

func TestRootWatcherIgnoresFileWrites(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "notes.txt")
	writeFile(t, path)
	updates := make(chan []string, 8)
	rootWatcher, err := WatchRoot(root, listDirs(root), func(projects []string) { updates <- projects }, RootOptions{Window: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("watch root: %v", err)
	}
	defer rootWatcher.Close()

	if err := os.WriteFile(path, []byte("more"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectQuiet(t, updates, 150*time.Millisecond)
}

func TestRootWatcherSkipsPublishWhenListFails(t *testing.T) {
	root := t.TempDir()
	updates := make(chan []string, 1)
	rootWatcher, err := WatchRoot(root, func() ([]string, error) { return nil, errors.New("boom") }, func(projects []string) { updates <- projects }, RootOptions{})
	if err != nil {
		t.Fatalf("watch root: %v", err)
	}
	defer rootWatcher.Close()

	rootWatcher.Refresh()
	expectQuiet(t, updates, 50*time.Millisecond)
}

func TestWatchRootFailsForMissingRoot(t *testing.T) {
	_, err := WatchRoot(filepath.Join(t.TempDir(), "missing"), func() ([]string, error) { return nil, nil }, func([]string) {}, RootOptions{})
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestSortedUnique(t *testing.T) {
	got := sortedUnique([]string{"b", "a", "b", "c", "a"})
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := sortedUnique(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
