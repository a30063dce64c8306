package websocket

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-user inbound frame budget over a fixed
// one-minute window. Over-limit frames are rejected with an error
// notification; the connection stays up.
type RateLimiter struct {
	mu          sync.Mutex
	limit       int
	clients     map[string]*clientWindow
	lastCleanup time.Time
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit frames per user per minute.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:       limit,
		clients:     make(map[string]*clientWindow),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether the user may send another frame.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastCleanup) > 5*time.Minute {
		rl.cleanupLocked(now)
	}

	w, exists := rl.clients[userID]
	if !exists {
		rl.clients[userID] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(w.windowStart) >= time.Minute {
		w.count = 1
		w.windowStart = now
		return true
	}

	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Cleanup removes windows idle for five minutes. Allow runs it opportunistically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cleanupLocked(time.Now())
}

func (rl *RateLimiter) cleanupLocked(now time.Time) {
	for userID, w := range rl.clients {
		if now.Sub(w.windowStart) > 5*time.Minute {
			delete(rl.clients, userID)
		}
	}
	rl.lastCleanup = now
}
