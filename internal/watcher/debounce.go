package watcher

import (
	"sync"
	"time"
)

// Debouncer holds at most one pending timer per key. Scheduling a key again
// cancels and replaces its timer; every timer carries a generation so a timer
// that was replaced or cancelled never runs its callback, even if it had
// already fired and was waiting on the lock.
type Debouncer struct {
	mutex      sync.Mutex
	duration   time.Duration
	slots      map[string]debounceSlot
	generation uint64
	stopped    bool
}

type debounceSlot struct {
	timer      *time.Timer
	generation uint64
}

func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		slots:    make(map[string]debounceSlot),
	}
}

// Schedule arms key to call fire after the quiet window. It reports whether
// a pending timer was replaced.
func (debouncer *Debouncer) Schedule(key string, fire func()) bool {
	if debouncer == nil || fire == nil {
		return false
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	if debouncer.stopped {
		return false
	}

	previous, replaced := debouncer.slots[key]
	if replaced {
		previous.timer.Stop()
	}
	debouncer.generation++
	generation := debouncer.generation
	debouncer.slots[key] = debounceSlot{
		generation: generation,
		timer: time.AfterFunc(debouncer.duration, func() {
			debouncer.fire(key, generation, fire)
		}),
	}
	return replaced
}

func (debouncer *Debouncer) fire(key string, generation uint64, fire func()) {
	debouncer.mutex.Lock()
	slot, ok := debouncer.slots[key]
	if !ok || slot.generation != generation {
		debouncer.mutex.Unlock()
		return
	}
	delete(debouncer.slots, key)
	debouncer.mutex.Unlock()

	fire()
}

// Cancel drops the pending timer for key and reports whether one existed.
func (debouncer *Debouncer) Cancel(key string) bool {
	if debouncer == nil {
		return false
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	slot, ok := debouncer.slots[key]
	if !ok {
		return false
	}
	slot.timer.Stop()
	delete(debouncer.slots, key)
	return true
}

func (debouncer *Debouncer) Pending(key string) bool {
	if debouncer == nil {
		return false
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	_, ok := debouncer.slots[key]
	return ok
}

// Stop cancels every pending timer; later Schedule calls are ignored.
func (debouncer *Debouncer) Stop() {
	if debouncer == nil {
		return
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	debouncer.stopped = true
	for _, slot := range debouncer.slots {
		slot.timer.Stop()
	}
	debouncer.slots = make(map[string]debounceSlot)
}
