package ratelimit

import (
	"sync"
	"time"
)

// Class names a limit bucket. Each protected surface picks one.
type Class string

const (
	ClassOAuth     Class = "oauth"     // per IP
	ClassActions   Class = "actions"   // per token
	ClassSubscribe Class = "subscribe" // per token
	ClassWebhooks  Class = "webhooks"  // per user
)

// Limit is a sliding-window budget: at most MaxRequests in any rolling Window.
type Limit struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultLimits returns the production limit classes.
func DefaultLimits() map[Class]Limit {
	return map[Class]Limit{
		ClassOAuth:     {Window: 60 * time.Second, MaxRequests: 20},
		ClassActions:   {Window: 60 * time.Second, MaxRequests: 100},
		ClassSubscribe: {Window: 60 * time.Second, MaxRequests: 10},
		ClassWebhooks:  {Window: 300 * time.Second, MaxRequests: 20000},
	}
}

// Result is the outcome of a limit check. RetryAfter is only meaningful when
// Allowed is false: the time until the oldest in-window request expires.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type entryKey struct {
	class      Class
	identifier string
}

// Limiter is an in-memory sliding-window rate limiter. It is process-local;
// running multiple server instances needs a shared backing store instead.
// Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	limits  map[Class]Limit
	entries map[entryKey][]time.Time
	now     func() time.Time
}

// NewLimiter creates a limiter with the default limit classes.
func NewLimiter() *Limiter {
	return NewLimiterWithLimits(DefaultLimits())
}

// NewLimiterWithLimits creates a limiter with custom limit classes.
func NewLimiterWithLimits(limits map[Class]Limit) *Limiter {
	return &Limiter{
		limits:  limits,
		entries: make(map[entryKey][]time.Time),
		now:     time.Now,
	}
}

// Check evicts timestamps older than the window, then either records the
// request (allowed) or reports when the caller may retry (blocked).
func (l *Limiter) Check(class Class, identifier string) Result {
	limit, ok := l.limits[class]
	if !ok {
		// Unknown class means the route forgot to configure one; don't block
		return Result{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-limit.Window)
	key := entryKey{class: class, identifier: identifier}

	// Evict requests that have slid out of the window
	timestamps := l.entries[key]
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit.MaxRequests {
		l.entries[key] = kept
		resetAt := kept[0].Add(limit.Window)
		return Result{
			Allowed:    false,
			Limit:      limit.MaxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	kept = append(kept, now)
	l.entries[key] = kept

	return Result{
		Allowed:   true,
		Limit:     limit.MaxRequests,
		Remaining: limit.MaxRequests - len(kept),
		ResetAt:   kept[0].Add(limit.Window),
	}
}

// Cleanup drops identifier entries whose window has fully elapsed, bounding
// memory. Meant to run on a timer (every few minutes). Returns the number of
// entries removed.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0

	for key, timestamps := range l.entries {
		limit, ok := l.limits[key.class]
		if !ok {
			delete(l.entries, key)
			removed++
			continue
		}

		cutoff := now.Add(-limit.Window)
		stale := true
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(l.entries, key)
			removed++
		}
	}

	return removed
}

// EntryCount reports the number of tracked identifiers, for observability.
func (l *Limiter) EntryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
