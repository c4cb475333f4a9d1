// Package circuitbreaker fails fast when an external dependency is down.
// The gateway wraps the weather API with one so a dead upstream costs a
// single timeout, not one per tool call.
//
// States: Closed (normal), Open (failing fast), HalfOpen (probing recovery).
// Single-process, like the rest of the gateway's transient state.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold int           // failures before opening
	SuccessThreshold int           // successes to close from half-open
	Timeout          time.Duration // open duration before probing
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	config      Config
	onOpen      func()
}

func New(cfg Config) *Breaker {
	return &Breaker{state: StateClosed, config: cfg}
}

// OnOpen registers a callback fired each time the breaker trips open. The
// callback runs in its own goroutine.
func (b *Breaker) OnOpen(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onOpen = fn
}

// Allow returns nil when a request may proceed, domain.ErrCircuitOpen when
// the breaker is failing fast.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) > b.config.Timeout {
			b.state = StateHalfOpen
			b.successes = 0
			return nil
		}
		return domain.ErrCircuitOpen
	default:
		return nil
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()

	tripped := false
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.state = StateOpen
			tripped = true
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successes = 0
		tripped = true
	}

	if tripped && b.onOpen != nil {
		go b.onOpen()
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
