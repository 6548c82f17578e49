// Package dedup suppresses repeated playback events inside a cooldown window.
package dedup

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store decides whether an event keyed by key and observed at `at` is a fresh
// acceptance or a duplicate inside the cooldown window. Implementations must
// measure the window from the first acceptance in a run: a rejected duplicate
// never extends the window.
type Store interface {
	Accept(ctx context.Context, key string, at time.Time, window time.Duration) (bool, error)
}

// Key normalizes a source path into a cooldown key. Configured suffixes are
// trimmed so device-specific decorations of the same content collapse into
// one key. With no suffixes configured the path is used as-is.
func Key(sourcePath string, trimSuffixes []string) string {
	key := sourcePath
	for _, suffix := range trimSuffixes {
		if suffix == "" {
			continue
		}
		if trimmed := strings.TrimSuffix(key, suffix); trimmed != "" {
			key = trimmed
		}
	}
	return key
}

// Memory is the in-process cooldown store. Stale keys are purged lazily on
// each Accept call to bound the map.
type Memory struct {
	mu       sync.Mutex
	accepted map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{accepted: make(map[string]time.Time)}
}

// Accept implements Store.
func (m *Memory) Accept(_ context.Context, key string, at time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purge(at, window)

	last, ok := m.accepted[key]
	if ok {
		// Acceptance is monotonic: late or in-window observations are
		// duplicates. The prior acceptance must be strictly older than
		// at-window for the event to count as fresh.
		if !at.After(last) || at.Sub(last) <= window {
			return false, nil
		}
	}

	m.accepted[key] = at
	return true, nil
}

// Len reports the number of live keys. Used by tests.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accepted)
}

func (m *Memory) purge(now time.Time, window time.Duration) {
	for key, last := range m.accepted {
		if now.Sub(last) > window {
			delete(m.accepted, key)
		}
	}
}
