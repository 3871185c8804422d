package realtime

import (
	"sync"
	"time"
)

// frameLimiter caps inbound frames per connection: at most limit frames in
// any sliding window. It keeps the admission times of the last limit frames
// in a fixed ring, so Allow is O(1) and allocation free after construction.
// Rejected frames are not recorded; a client pinned at the ceiling recovers
// as soon as its oldest admitted frame ages out.
//
// The gateway constructs one per connection from GatewayConfig, which has
// already normalized the knobs, so no fallback defaults live here.
type frameLimiter struct {
	mu     sync.Mutex
	ring   []time.Time
	next   int
	window time.Duration
}

func newFrameLimiter(limit int, window time.Duration) *frameLimiter {
	if limit < 1 {
		limit = 1
	}
	return &frameLimiter{
		ring:   make([]time.Time, limit),
		window: window,
	}
}

// Allow reports whether a frame arriving at "now" fits the budget and, if so,
// records it. The slot about to be overwritten holds the admission time of
// the frame limit places back; if that frame is still inside the window,
// admitting another would exceed the cap.
func (l *frameLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	oldest := l.ring[l.next]
	if !oldest.IsZero() && now.Sub(oldest) < l.window {
		return false
	}
	l.ring[l.next] = now
	l.next = (l.next + 1) % len(l.ring)
	return true
}
