package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheck_Threshold(t *testing.T) {
	l := New()
	limit := Limit{MaxRequests: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		res := l.Check("1.2.3.4", limit)
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	res := l.Check("1.2.3.4", limit)
	if res.Allowed {
		t.Error("request past the ceiling should be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", res.Remaining)
	}
	if res.ResetAfter <= 0 {
		t.Errorf("ResetAfter = %v, want positive", res.ResetAfter)
	}
}

func TestCheck_Remaining(t *testing.T) {
	l := New()
	limit := Limit{MaxRequests: 5, Window: time.Minute}

	for i := 0; i < 5; i++ {
		res := l.Check("id", limit)
		want := 5 - i - 1
		if res.Remaining != want {
			t.Errorf("request %d: remaining = %d, want %d", i+1, res.Remaining, want)
		}
	}
}

func TestCheck_WindowExpiry(t *testing.T) {
	l := New()
	base := time.Now()
	l.now = func() time.Time { return base }

	limit := Limit{MaxRequests: 2, Window: time.Minute}

	l.Check("id", limit)
	l.Check("id", limit)

	if res := l.Check("id", limit); res.Allowed {
		t.Fatal("third request inside the window should be denied")
	}

	// Strictly after the window has elapsed since the first request, a new
	// request is allowed even though earlier ones were rejected.
	l.now = func() time.Time { return base.Add(time.Minute + time.Millisecond) }
	if res := l.Check("id", limit); !res.Allowed {
		t.Error("request after window expiry should be allowed")
	}
}

func TestCheck_SlidingNotFixed(t *testing.T) {
	l := New()
	base := time.Now()
	l.now = func() time.Time { return base }

	limit := Limit{MaxRequests: 2, Window: time.Minute}

	l.Check("id", limit)

	l.now = func() time.Time { return base.Add(40 * time.Second) }
	l.Check("id", limit)

	// 70s after the first request it has aged out, but the second has not:
	// one slot is free.
	l.now = func() time.Time { return base.Add(70 * time.Second) }
	if res := l.Check("id", limit); !res.Allowed {
		t.Error("expected a free slot once the oldest timestamp aged out")
	}
	if res := l.Check("id", limit); res.Allowed {
		t.Error("window should be full again")
	}
}

func TestCheck_IndependentIdentifiers(t *testing.T) {
	l := New()
	limit := Limit{MaxRequests: 1, Window: time.Minute}

	l.Check("a", limit)
	if res := l.Check("a", limit); res.Allowed {
		t.Error("identifier a should be limited")
	}
	if res := l.Check("b", limit); !res.Allowed {
		t.Error("identifier b must not share a's window")
	}
}

func TestCheck_SweepRemovesStaleIdentifiers(t *testing.T) {
	l := New()
	base := time.Now()
	l.now = func() time.Time { return base }

	limit := Limit{MaxRequests: 10, Window: time.Minute}
	l.Check("old", limit)

	// Two hours later a request from another identifier triggers the sweep.
	l.now = func() time.Time { return base.Add(2 * time.Hour) }
	l.Check("new", limit)

	l.mu.Lock()
	_, ok := l.windows["old"]
	l.mu.Unlock()
	if ok {
		t.Error("stale identifier should be swept")
	}
}

func TestCheck_SweepKeepsLongWindows(t *testing.T) {
	l := New()
	base := time.Now()
	l.now = func() time.Time { return base }

	limit := Limit{MaxRequests: 2, Window: 2 * time.Hour}
	l.Check("id", limit)

	// 90 minutes in, the sweep runs again; the first timestamp is past the
	// old one-hour assumption but still inside the configured window.
	l.now = func() time.Time { return base.Add(90 * time.Minute) }
	l.Check("id", limit)

	l.now = func() time.Time { return base.Add(91 * time.Minute) }
	if res := l.Check("id", limit); res.Allowed {
		t.Error("third request inside a two-hour window must be denied")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "10.0.0.1"}, "2.2.2.2:80", "10.0.0.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "2.2.2.2:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.3"}, "2.2.2.2:80", "10.0.0.3"},
		{"remote addr", nil, "2.2.2.2:80", "2.2.2.2"},
		{"nothing", nil, "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeny_Response(t *testing.T) {
	w := httptest.NewRecorder()
	Deny(w, Result{Allowed: false, ResetAfter: 2500 * time.Millisecond})

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "3" {
		t.Errorf("Retry-After = %q, want %q", w.Header().Get("Retry-After"), "3")
	}

	var body struct {
		Error struct {
			RetryAfterMs int64 `json:"retry_after_ms"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.RetryAfterMs != 2500 {
		t.Errorf("retry_after_ms = %d, want 2500", body.Error.RetryAfterMs)
	}
}
