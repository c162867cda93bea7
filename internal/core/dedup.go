package core

import (
	"fmt"
	"sync"
	"time"
)

// Deduplicator suppresses repeated alerts describing the same condition
// within a time window. The key is (source, title, src_ip, dst_ip), so the
// same signature firing for the same flow is collapsed while distinct flows
// pass through.
//
// Decisions are based on wall-clock arrival order, not event timestamps.
// Out-of-order delivery can therefore produce different suppression
// outcomes; this is an accepted approximation.
type Deduplicator struct {
	mu         sync.Mutex
	lastSeen   map[string]time.Time
	window     time.Duration
	suppressed int64

	// now is swappable for tests.
	now func() time.Time
}

// NewDeduplicator creates a dedup cache with the given suppression window.
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Deduplicator{
		lastSeen: make(map[string]time.Time),
		window:   window,
		now:      time.Now,
	}
}

// IsDuplicate returns true if an alert with the same dedup key was seen
// within the window. If not a duplicate, the key's last-seen time is
// updated. Entries older than twice the window are purged lazily on each
// call to bound memory.
func (d *Deduplicator) IsDuplicate(alert *UnifiedAlert) bool {
	key := d.key(alert)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	if seenAt, ok := d.lastSeen[key]; ok && now.Sub(seenAt) < d.window {
		d.suppressed++
		return true
	}

	d.lastSeen[key] = now
	d.purgeLocked(now)
	return false
}

func (d *Deduplicator) key(alert *UnifiedAlert) string {
	return fmt.Sprintf("%s:%s:%s:%s",
		alert.Source, alert.Title, alert.MetaString(MetaSrcIP), alert.MetaString(MetaDstIP))
}

// purgeLocked drops entries older than 2×window.
func (d *Deduplicator) purgeLocked(now time.Time) {
	cutoff := now.Add(-2 * d.window)
	for k, t := range d.lastSeen {
		if t.Before(cutoff) {
			delete(d.lastSeen, k)
		}
	}
}

// SetWindow changes the suppression window. Existing entries keep their
// last-seen times and are judged against the new window.
func (d *Deduplicator) SetWindow(window time.Duration) {
	if window <= 0 {
		return
	}
	d.mu.Lock()
	d.window = window
	d.mu.Unlock()
}

// Window returns the current suppression window.
func (d *Deduplicator) Window() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window
}

// Suppressed returns how many alerts have been suppressed as duplicates.
func (d *Deduplicator) Suppressed() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suppressed
}

// Size returns the current number of tracked dedup keys.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lastSeen)
}
