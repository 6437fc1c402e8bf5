package prover

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"proof-leaderboard/logger"
)

// ErrBreakerOpen is returned without calling the service while the breaker is open
var ErrBreakerOpen = errors.New("proving service circuit breaker is open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker fast-fails calls after MaxFailures consecutive failures. After
// ResetTimeout one trial call is let through; its outcome closes or reopens
// the breaker.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

func NewBreaker(name string, maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &Breaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Execute runs op unless the breaker is open. Cancellation of ctx by the
// caller is not held against the service.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	trial, err := b.allow()
	if err != nil {
		return err
	}
	err = op(ctx)
	switch {
	case err == nil:
		b.onSuccess()
	case errors.Is(err, context.Canceled):
		b.release(trial)
	default:
		b.onFailure(trial, err)
	}
	return err
}

func (b *Breaker) allow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false, ErrBreakerOpen
		}
		b.state = HalfOpen
		b.trial = true
		logger.Logger.Info("Circuit breaker half-open", zap.String("breaker", b.name))
		return true, nil
	case HalfOpen:
		if b.trial {
			return false, ErrBreakerOpen
		}
		b.trial = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *Breaker) release(trial bool) {
	if !trial {
		return
	}
	b.mu.Lock()
	b.trial = false
	b.mu.Unlock()
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Closed {
		logger.Logger.Info("Circuit breaker closed", zap.String("breaker", b.name), zap.Stringer("from", b.state))
	}
	b.state = Closed
	b.failures = 0
	b.trial = false
}

func (b *Breaker) onFailure(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if trial {
		b.trial = false
	}
	if b.state == HalfOpen || b.failures >= b.maxFailures {
		if b.state != Open {
			logger.Logger.Warn("Circuit breaker opened",
				zap.String("breaker", b.name),
				zap.Int("failures", b.failures),
				zap.Error(err))
		}
		b.state = Open
		b.openedAt = b.now()
	}
}

// State returns the current breaker state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
