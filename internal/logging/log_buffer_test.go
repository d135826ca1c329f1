package logging

import (
	"sync"
	"testing"
)

func TestLogBufferCircular(t *testing.T) {
	buffer := NewLogBuffer(2)
	buffer.Add(LogEntry{Message: "first"})
	buffer.Add(LogEntry{Message: "second"})
	buffer.Add(LogEntry{Message: "third"})

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "second" || entries[1].Message != "third" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestLogBufferSinceFiltersAndLimits(t *testing.T) {
	buffer := NewLogBuffer(10)
	buffer.Add(LogEntry{Level: LevelDebug, Message: "noise"})
	buffer.Add(LogEntry{Level: LevelWarning, Message: "w1"})
	buffer.Add(LogEntry{Level: LevelError, Message: "e1"})
	buffer.Add(LogEntry{Level: LevelWarning, Message: "w2"})

	entries := buffer.Since(LevelWarning, 2)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "e1" || entries[1].Message != "w2" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestLogBufferConcurrentAdds(t *testing.T) {
	buffer := NewLogBuffer(50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				buffer.Add(LogEntry{Message: "entry"})
			}
		}()
	}
	wg.Wait()

	if got := len(buffer.List()); got != 50 {
		t.Fatalf("expected 50 entries, got %d", got)
	}
}
