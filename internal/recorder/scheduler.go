// File: internal/recorder/scheduler.go
package recorder

import (
	"sync"
	"time"
)

// scheduler runs deadline callbacks keyed by an arbitrary string. A key can
// be cancelled before its deadline, and Flush fires every outstanding
// callback immediately; that is how a page-level network-idle signal
// preempts the individual verification timers.
type scheduler struct {
	mu      sync.Mutex
	entries map[string]*schedEntry
	stopped bool
}

type schedEntry struct {
	timer *time.Timer
	fn    func()
}

func newScheduler() *scheduler {
	return &scheduler{entries: make(map[string]*schedEntry)}
}

// Schedule registers fn to run after d. Scheduling an existing key replaces
// the previous deadline without firing it.
func (s *scheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.entries[key]; ok {
		prev.timer.Stop()
	}
	entry := &schedEntry{fn: fn}
	entry.timer = time.AfterFunc(d, func() {
		// Claim the key before running so a concurrent Flush cannot double-fire.
		if s.claim(key, entry) {
			fn()
		}
	})
	s.entries[key] = entry
}

// claim removes the entry iff it is still the registered one for key.
func (s *scheduler) claim(key string, entry *schedEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[key]
	if !ok || current != entry {
		return false
	}
	delete(s.entries, key)
	return true
}

// Cancel stops the deadline for key without firing it. Returns whether the
// key was pending.
func (s *scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.entries, key)
	return true
}

// Flush fires every outstanding callback now, in no particular order.
func (s *scheduler) Flush() {
	s.mu.Lock()
	pending := make([]func(), 0, len(s.entries))
	for key, entry := range s.entries {
		entry.timer.Stop()
		pending = append(pending, entry.fn)
		delete(s.entries, key)
	}
	s.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Stop cancels everything without firing. The scheduler is unusable after.
func (s *scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, entry := range s.entries {
		entry.timer.Stop()
		delete(s.entries, key)
	}
}
