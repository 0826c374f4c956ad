// Package ratelimit implements a per-initiator sliding-window counter. It
// guards abuse-prone actions (report filing) in process memory; nothing is
// persisted.
package ratelimit

import (
	"sync"
	"time"
)

// Reservation identifies one admitted attempt so a failed downstream action
// can give its slot back.
type Reservation struct {
	key string
	at  time.Time
}

type entry struct {
	mu     sync.Mutex
	stamps []time.Time // oldest first
	gone   bool        // removed from the map; holders must re-fetch
}

// Limiter admits at most max actions per key within a trailing window.
// Admission for different keys does not contend; the map lock is held only
// for lookup and removal.
type Limiter struct {
	max    int
	window time.Duration

	// Now is the clock, replaceable in tests.
	Now func() time.Time

	mu   sync.Mutex
	keys map[string]*entry
}

// New returns a Limiter admitting max actions per window for each key.
func New(max int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		max:    max,
		window: window,
		Now:    time.Now,
		keys:   make(map[string]*entry),
	}
}

// Allow tries to admit one action for key. On admission it returns the
// reservation and ok=true. On rejection it returns the time until the oldest
// entry leaves the window, rounded up to whole seconds (minimum 1s).
func (l *Limiter) Allow(key string) (Reservation, time.Duration, bool) {
	now := l.Now()
	for {
		e := l.entry(key)
		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}

		// Evict stamps that slid out of the window.
		cut := now.Add(-l.window)
		i := 0
		for i < len(e.stamps) && !e.stamps[i].After(cut) {
			i++
		}
		e.stamps = e.stamps[i:]

		if len(e.stamps) >= l.max {
			wait := l.window - now.Sub(e.stamps[0])
			e.mu.Unlock()
			return Reservation{}, ceilSeconds(wait), false
		}
		e.stamps = append(e.stamps, now)
		e.mu.Unlock()
		return Reservation{key: key, at: now}, 0, true
	}
}

// Release rolls back a reservation whose downstream action failed
// irrecoverably, so the failed attempt does not consume a slot. Empty
// sequences are dropped from the map.
func (l *Limiter) Release(r Reservation) {
	if r.key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[r.key]
	if !ok {
		return
	}
	e.mu.Lock()
	for i, s := range e.stamps {
		if s.Equal(r.at) {
			e.stamps = append(e.stamps[:i], e.stamps[i+1:]...)
			break
		}
	}
	if len(e.stamps) == 0 {
		e.gone = true
		delete(l.keys, r.key)
	}
	e.mu.Unlock()
}

// Len reports the tracked key count (test hook for GC behavior).
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

func (l *Limiter) entry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{}
		l.keys[key] = e
	}
	return e
}

func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	s := (d + time.Second - 1) / time.Second
	return s * time.Second
}
