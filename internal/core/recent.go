package core

import "sync"

// AlertRing is a fixed-size ring buffer holding the most recently processed
// alerts. It backs the status API so operators can inspect live output
// without tailing the alert log.
type AlertRing struct {
	mu      sync.RWMutex
	alerts  []*UnifiedAlert
	maxSize int
	pos     int
	full    bool
}

// NewAlertRing creates a ring buffer that holds up to maxSize alerts.
func NewAlertRing(maxSize int) *AlertRing {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &AlertRing{
		alerts:  make([]*UnifiedAlert, maxSize),
		maxSize: maxSize,
	}
}

// Add records a processed alert, overwriting the oldest entry when full.
func (r *AlertRing) Add(alert *UnifiedAlert) {
	r.mu.Lock()
	r.alerts[r.pos] = alert
	r.pos = (r.pos + 1) % r.maxSize
	if r.pos == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Recent returns the most recent n alerts in chronological order.
func (r *AlertRing) Recent(n int) []*UnifiedAlert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := r.pos
	if r.full {
		total = r.maxSize
	}
	if n > total {
		n = total
	}
	if n <= 0 {
		return []*UnifiedAlert{}
	}

	result := make([]*UnifiedAlert, n)
	start := r.pos - n
	if start < 0 {
		start += r.maxSize
	}
	for i := 0; i < n; i++ {
		result[i] = r.alerts[(start+i)%r.maxSize]
	}
	return result
}

// Len returns the number of alerts currently held.
func (r *AlertRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.maxSize
	}
	return r.pos
}
