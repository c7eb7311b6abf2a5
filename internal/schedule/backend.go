package schedule

import (
	"sync"
	"time"
)

// Backend is the minimal one-shot trigger capability the scheduler depends
// on. Implementations fire fn once at (or immediately after) the given time
// unless the id is removed first.
type Backend interface {
	RegisterAt(at time.Time, id string, fn func()) error
	// Remove stops the trigger; reports whether it was still registered.
	Remove(id string) bool
	Jobs() []string
}

// TimerBackend is the default Backend, a table of one-shot timers.
type TimerBackend struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerBackend() *TimerBackend {
	return &TimerBackend{timers: map[string]*time.Timer{}}
}

func (b *TimerBackend) RegisterAt(at time.Time, id string, fn func()) error {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.timers[id]; ok {
		// A replaced timer may already have fired; its callback must not
		// unregister the replacement, so the callback checks identity below.
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		b.mu.Lock()
		if cur, ok := b.timers[id]; ok && cur == t {
			delete(b.timers, id)
		}
		b.mu.Unlock()
		fn()
	})
	b.timers[id] = t
	return nil
}

// Remove reports true only when the trigger was stopped before firing. A timer
// that fired but whose callback has not yet unregistered itself still counts
// as fired: Stop resolves that race authoritatively.
func (b *TimerBackend) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.timers[id]
	if !ok {
		return false
	}
	delete(b.timers, id)
	return t.Stop()
}

func (b *TimerBackend) Jobs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.timers))
	for id := range b.timers {
		ids = append(ids, id)
	}
	return ids
}

// StopAll cancels every registered timer. Used on shutdown.
func (b *TimerBackend) StopAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
}
