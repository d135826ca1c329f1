package logging

import (
	"sync"

	"imgdash/internal/buffer"
)

// LogBuffer keeps the most recent entries in a fixed-size ring.
type LogBuffer struct {
	mu   sync.Mutex
	ring *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		ring: buffer.NewRing[LogEntry](size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring.Add(entry)
}

// List returns the buffered entries oldest first.
func (b *LogBuffer) List() []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.List()
}

// Since returns buffered entries at or above minLevel, newest last, capped at limit.
func (b *LogBuffer) Since(minLevel Level, limit int) []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.Tail(limit, func(entry LogEntry) bool {
		return LevelAtLeast(entry.Level, minLevel)
	})
}
