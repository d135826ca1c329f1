// Package watcher turns fsnotify events into per-project image updates.
//
// A Watcher observes one directory tree. The Registry owns one Watcher per
// observed project and feeds raw events into a Coalescer, which collapses
// bursts into a single delayed emission. The RootWatcher observes the
// dashboard root and republishes the project list.
//
// Delivery is best-effort: callers should assume events can be coalesced
// and use emissions to trigger refreshes rather than rely on exact ordering.
package watcher
