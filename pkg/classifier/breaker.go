package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	// CircuitHalfOpen lets a single probe through to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker stops calling a failing classifier after threshold consecutive
// failures and probes it again once resetAfter has passed. While open every
// call fails fast with apperrors.ErrCircuitOpen.
type Breaker struct {
	next       Classifier
	threshold  int
	resetAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger

	mu               sync.Mutex
	consecutiveFails int
	lastFailure      time.Time
	state            CircuitState
}

var _ Classifier = (*Breaker)(nil)

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Classifier, threshold int, resetAfter time.Duration, logger *zap.Logger) *Breaker {
	if threshold < 1 {
		threshold = 5
	}
	if resetAfter <= 0 {
		resetAfter = 30 * time.Second
	}
	return &Breaker{
		next:       next,
		threshold:  threshold,
		resetAfter: resetAfter,
		now:        time.Now,
		logger:     logger.Named("classifier-breaker"),
		state:      CircuitClosed,
	}
}

func (b *Breaker) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	if err := b.allow(); err != nil {
		return models.Sentiment{}, err
	}

	sentiment, err := b.next.Classify(ctx, text)
	switch {
	case err == nil:
		b.recordSuccess()
	case errors.Is(err, context.Canceled):
		// The caller gave up; says nothing about the provider.
		b.release()
	default:
		b.recordFailure()
	}
	return sentiment, err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if b.now().Sub(b.lastFailure) > b.resetAfter {
			b.state = CircuitHalfOpen
			return nil
		}
		return fmt.Errorf("%w: classifier failed %d times, last failure %v ago",
			apperrors.ErrCircuitOpen, b.consecutiveFails, b.now().Sub(b.lastFailure).Round(time.Second))
	case CircuitHalfOpen:
		return fmt.Errorf("%w: probing classifier recovery", apperrors.ErrCircuitOpen)
	default:
		return fmt.Errorf("circuit breaker in unknown state: %v", b.state)
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitClosed {
		b.logger.Info("Classifier recovered, closing circuit")
	}
	b.consecutiveFails = 0
	b.state = CircuitClosed
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails++
	b.lastFailure = b.now()

	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		return
	}
	if b.state == CircuitClosed && b.consecutiveFails >= b.threshold {
		b.state = CircuitOpen
		b.logger.Warn("Classifier circuit opened",
			zap.Int("consecutive_failures", b.consecutiveFails),
			zap.Duration("reset_after", b.resetAfter))
	}
}

// release reopens a half-open probe that ended without a verdict.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
