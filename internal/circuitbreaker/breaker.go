// Package circuitbreaker protects an upstream call behind a failure-count
// trip: once Threshold consecutive failures are observed the breaker opens
// and fails fast until ResetTimeout has passed, then allows a bounded number
// of half-open probe calls before deciding whether to close again.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of the three circuit states.
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
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	ErrOpen         = errors.New("circuit breaker open")
	ErrHalfOpenBusy = errors.New("circuit breaker half-open call limit reached")
)

// Config tunes the trip/recovery behavior.
type Config struct {
	Threshold        int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
}

func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Breaker is a single-target circuit breaker; one instance guards one
// upstream dependency (e.g. one gateway's chat-completion endpoint).
type Breaker struct {
	cfg    Config
	logger *zap.Logger

	mu                sync.Mutex
	state             State
	failures          int
	lastFailure       time.Time
	halfOpenCallCount int
}

func New(cfg Config, logger *zap.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 3
	}
	return &Breaker{cfg: cfg, logger: logger, state: StateClosed}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once ResetTimeout has elapsed. Call Report with the outcome afterward.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.lastFailure) > b.cfg.ResetTimeout {
			b.state = StateHalfOpen
			b.halfOpenCallCount = 1 // this call is the first half-open probe
			b.logger.Info("circuit breaker half-open", zap.String("target", "llmgateway"))
			return nil
		}
		return ErrOpen
	case StateHalfOpen:
		if b.halfOpenCallCount >= b.cfg.HalfOpenMaxCalls {
			return ErrHalfOpenBusy
		}
		b.halfOpenCallCount++
		return nil
	default:
		return fmt.Errorf("circuit breaker in unknown state %v", b.state)
	}
}

// Report records the outcome of a call admitted by Allow.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		if b.state == StateHalfOpen {
			b.logger.Info("circuit breaker closed")
		}
		b.state = StateClosed
		b.failures = 0
		b.halfOpenCallCount = 0
		return
	}

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.Threshold {
			b.logger.Warn("circuit breaker opened", zap.Int("failures", b.failures))
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.logger.Warn("circuit breaker reopened after half-open failure")
		b.state = StateOpen
		b.halfOpenCallCount = 0
	}
}

// State returns the current state, for health/metrics reporting.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn if the breaker admits the call, recording the outcome
// afterward. ctx is accepted so callers can pass a per-attempt deadline
// through to fn without the breaker imposing its own.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.Report(err == nil)
	return err
}
