package webhook

import (
	"sync"
	"time"
)

const sweepEvery = 256

// Dedup remembers recently seen delivery keys so gateway redeliveries are
// accepted once per TTL window.
type Dedup struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
	inserts int
}

func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL. Unseen keys are
// recorded. An empty key or a non-positive TTL never deduplicates.
func (d *Dedup) IsDuplicate(key string) bool {
	if key == "" || d.ttl <= 0 {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}

	d.seen[key] = now
	d.inserts++
	if d.inserts%sweepEvery == 0 {
		d.sweep(now)
	}

	return false
}

// Len reports how many keys are currently tracked.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Dedup) sweep(now time.Time) {
	cutoff := now.Add(-d.ttl)
	for key, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, key)
		}
	}
}
