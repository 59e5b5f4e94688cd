package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/models"
)

type stubClassifier struct {
	calls int
	err   error
}

func (s *stubClassifier) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	s.calls++
	if s.err != nil {
		return models.Sentiment{}, s.err
	}
	return models.Sentiment{Label: models.SentimentPositive, Score: 0.99}, nil
}

func newTestBreaker(next Classifier, threshold int) (*Breaker, *time.Time) {
	clock := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(next, threshold, 30*time.Second, zap.NewNop())
	b.now = func() time.Time { return clock }
	return b, &clock
}

func TestBreaker_PassesThroughWhenClosed(t *testing.T) {
	stub := &stubClassifier{}
	b, _ := newTestBreaker(stub, 3)

	got, err := b.Classify(context.Background(), "good news")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Label != models.SentimentPositive {
		t.Errorf("expected POSITIVE, got %s", got.Label)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed circuit, got %v", b.State())
	}
}

func TestBreaker_OpensAfterThresholdAndFailsFast(t *testing.T) {
	stub := &stubClassifier{err: errors.New("503")}
	b, _ := newTestBreaker(stub, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := b.Classify(ctx, "x"); err == nil {
			t.Fatalf("call %d: expected provider error", i)
		}
	}
	if b.State() != CircuitOpen {
		t.Fatalf("expected open circuit, got %v", b.State())
	}

	_, err := b.Classify(ctx, "x")
	if !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if stub.calls != 3 {
		t.Errorf("expected provider to be skipped while open, got %d calls", stub.calls)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	stub := &stubClassifier{err: errors.New("503")}
	b, clock := newTestBreaker(stub, 1)
	ctx := context.Background()

	_, _ = b.Classify(ctx, "x")
	if b.State() != CircuitOpen {
		t.Fatalf("expected open circuit, got %v", b.State())
	}

	// Probe fails: back to open.
	*clock = clock.Add(31 * time.Second)
	if _, err := b.Classify(ctx, "x"); errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Fatalf("expected the probe to reach the provider, got %v", err)
	}
	if b.State() != CircuitOpen {
		t.Fatalf("expected open circuit after failed probe, got %v", b.State())
	}

	// Probe succeeds: closed again.
	*clock = clock.Add(31 * time.Second)
	stub.err = nil
	if _, err := b.Classify(ctx, "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed circuit after successful probe, got %v", b.State())
	}
}

func TestBreaker_CancellationDoesNotCount(t *testing.T) {
	stub := &stubClassifier{err: context.Canceled}
	b, _ := newTestBreaker(stub, 1)

	_, _ = b.Classify(context.Background(), "x")
	if b.State() != CircuitClosed {
		t.Errorf("expected cancellation to leave the circuit closed, got %v", b.State())
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		CircuitClosed:   "closed",
		CircuitOpen:     "open",
		CircuitHalfOpen: "half-open",
		CircuitState(9): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d: expected %q, got %q", state, want, got)
		}
	}
}
