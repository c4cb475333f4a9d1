// Package keypool rotates upstream API credentials round-robin and isolates
// throttled credentials behind an exponential-backoff cooldown. The pool is
// process-local, in-memory state: counters reset on restart and nothing is
// coordinated across instances.
package keypool

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
	"github.com/Atharva0506/farmer-ai-gateway/internal/metrics"
)

const (
	baseCooldown = 30 * time.Second
	maxCooldown  = 5 * time.Minute
)

// Credential is one API key with its rotation bookkeeping. Fields are only
// mutated while the owning pool's lock is held.
type Credential struct {
	key          string
	requests     int64
	errors       int
	lastUsed     time.Time
	cooldownTill time.Time
}

// Key returns the raw credential value. Callers must not log it.
func (c *Credential) Key() string {
	return c.key
}

// CredentialStats is a read-only snapshot of one credential's state. The key
// itself is reduced to a short prefix so stats are safe to expose.
type CredentialStats struct {
	KeyPrefix    string    `json:"key_prefix"`
	Requests     int64     `json:"requests"`
	Errors       int       `json:"errors"`
	LastUsed     time.Time `json:"last_used,omitzero"`
	CooldownTill time.Time `json:"cooldown_till,omitzero"`
	InCooldown   bool      `json:"in_cooldown"`
}

// DegradedFunc is invoked (outside the lock) each time every credential is in
// cooldown and the pool is forced to reuse one anyway.
type DegradedFunc func(keyPrefix string)

// Pool hands out credentials round-robin, skipping those in cooldown.
type Pool struct {
	mu         sync.Mutex
	creds      []*Credential
	next       int
	onDegraded DegradedFunc
	now        func() time.Time
}

// New builds a pool from raw key strings, deduplicating and dropping blanks.
// Returns domain.ErrNoCredentials when nothing usable remains.
func New(keys []string) (*Pool, error) {
	seen := make(map[string]bool)
	var creds []*Credential
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		creds = append(creds, &Credential{key: k})
	}

	if len(creds) == 0 {
		return nil, domain.ErrNoCredentials
	}

	return &Pool{creds: creds, now: time.Now}, nil
}

// FromEnv builds a pool from a comma-separated primary variable plus numbered
// fallback values.
func FromEnv(primary string, fallbacks []string) (*Pool, error) {
	keys := strings.Split(primary, ",")
	keys = append(keys, fallbacks...)
	return New(keys)
}

// OnDegraded registers the callback fired on forced cooldown resets.
func (p *Pool) OnDegraded(fn DegradedFunc) {
	p.mu.Lock()
	p.onDegraded = fn
	p.mu.Unlock()
}

// Size returns the number of configured credentials.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Next returns the next usable credential, scanning round-robin from just
// after the last-issued index and skipping credentials in cooldown. When every
// credential is cooling down, the one with the earliest expiry has its
// cooldown force-cleared and is returned anyway: the pool never blocks a
// request on quota bookkeeping.
func (p *Pool) Next() *Credential {
	p.mu.Lock()

	now := p.now()
	n := len(p.creds)

	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		c := p.creds[idx]
		if c.cooldownTill.After(now) {
			continue
		}
		p.issue(c, idx, now)
		p.mu.Unlock()
		return c
	}

	// All credentials cooling down. Force the earliest expiry back into
	// service; availability wins over strict quota compliance here.
	earliest := 0
	for i, c := range p.creds {
		if c.cooldownTill.Before(p.creds[earliest].cooldownTill) {
			earliest = i
		}
	}
	c := p.creds[earliest]
	c.cooldownTill = time.Time{}
	p.issue(c, earliest, now)
	fn := p.onDegraded
	p.mu.Unlock()

	prefix := keyPrefix(c.key)
	slog.Warn("all credentials in cooldown, forcing reuse", "key_prefix", prefix)
	metrics.KeyPoolDegraded.Inc()
	if fn != nil {
		fn(prefix)
	}
	return c
}

func (p *Pool) issue(c *Credential, idx int, now time.Time) {
	c.requests++
	c.lastUsed = now
	p.next = (idx + 1) % len(p.creds)
}

// MarkError records a throttling/quota failure on the credential and places
// it in cooldown for min(30s * 2^(errors-1), 300s).
func (p *Pool) MarkError(c *Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c.errors++
	cooldown := baseCooldown << (c.errors - 1)
	if cooldown > maxCooldown || cooldown <= 0 {
		cooldown = maxCooldown
	}
	c.cooldownTill = p.now().Add(cooldown)

	metrics.KeyPoolErrors.Inc()
	slog.Warn("credential placed in cooldown",
		"key_prefix", keyPrefix(c.key),
		"errors", c.errors,
		"cooldown", cooldown,
	)
}

// MarkSuccess resets the credential's consecutive-error counter. A cooldown
// already in effect is left untouched.
func (p *Pool) MarkSuccess(c *Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.errors = 0
}

// Stats returns a snapshot of every credential's state.
func (p *Pool) Stats() []CredentialStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	stats := make([]CredentialStats, 0, len(p.creds))
	for _, c := range p.creds {
		stats = append(stats, CredentialStats{
			KeyPrefix:    keyPrefix(c.key),
			Requests:     c.requests,
			Errors:       c.errors,
			LastUsed:     c.lastUsed,
			CooldownTill: c.cooldownTill,
			InCooldown:   c.cooldownTill.After(now),
		})
	}
	return stats
}

func keyPrefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "…"
}
