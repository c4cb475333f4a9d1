// Package ratelimit provides a per-identifier sliding-window request limiter.
//
// The limiter is in-memory and single-process by design: its state lives and
// dies with the process and is not shared between instances. Running more
// than one instance behind a load balancer multiplies the effective ceiling;
// a deployment that needs exact limits across instances must swap this for a
// shared store. That tradeoff is deliberate, not an oversight.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// sweepInterval bounds how often the full-map cleanup may run.
const sweepInterval = time.Minute

// Limit is the policy for one endpoint class.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Result reports the outcome of a limit check.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetAfter is how long until the window frees a slot. Only meaningful
	// when Allowed is false.
	ResetAfter time.Duration
}

// Limiter tracks request timestamps per identifier inside a trailing window.
type Limiter struct {
	mu        sync.Mutex
	windows   map[string][]time.Time
	lastSweep time.Time
	maxWindow time.Duration
	now       func() time.Time
}

func New() *Limiter {
	return &Limiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Check records a request attempt for identifier under the given limit.
// Timestamps older than the window are discarded first; if the retained count
// has reached the ceiling the request is rejected and ResetAfter is computed
// from the oldest retained timestamp.
func (l *Limiter) Check(identifier string, limit Limit) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if limit.Window > l.maxWindow {
		l.maxWindow = limit.Window
	}
	l.maybeSweep(now)

	cutoff := now.Add(-limit.Window)
	stamps := l.windows[identifier]

	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit.MaxRequests {
		l.windows[identifier] = kept
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAfter: kept[0].Add(limit.Window).Sub(now),
		}
	}

	kept = append(kept, now)
	l.windows[identifier] = kept

	return Result{
		Allowed:   true,
		Remaining: limit.MaxRequests - len(kept),
	}
}

// maybeSweep prunes every identifier's list, dropping empty entries to bound
// memory. Runs at most once per sweepInterval; caller holds the lock.
func (l *Limiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now

	// Entries older than the widest window any Check has used are dead
	// weight. The floor keeps a cold limiter from sweeping too eagerly.
	retain := l.maxWindow
	if retain < time.Hour {
		retain = time.Hour
	}
	cutoff := now.Add(-retain)
	for id, stamps := range l.windows {
		kept := stamps[:0]
		for _, ts := range stamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(l.windows, id)
		} else {
			l.windows[id] = kept
		}
	}
}

// ClientIP extracts the caller identifier from forwarding headers, falling
// back to the connection address and then a sentinel.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return "unknown"
}

// Deny writes the standard 429 response with a retry-after hint in
// milliseconds. Rate limiting is a policy boundary: unlike cache or
// credential failures it is always surfaced to the caller.
func Deny(w http.ResponseWriter, result Result) {
	resetMs := result.ResetAfter.Milliseconds()
	if resetMs < 0 {
		resetMs = 0
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt((resetMs+999)/1000, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message":        "rate limit exceeded",
			"type":           "rate_limit",
			"retry_after_ms": resetMs,
		},
	})
}
