package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) *Config {
	return &Config{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

type statusErr struct {
	code int
}

func (e statusErr) Error() string     { return "status" }
func (e statusErr) IsRetryable() bool { return e.code == 429 || e.code >= 500 }

func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	attempts := 0
	sentinel := errors.New("still broken")
	err := Do(context.Background(), fastConfig(2), func() error {
		attempts++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		cancel()
		return errors.New("timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDo_NilConfigUsesDefault(t *testing.T) {
	err := Do(context.Background(), nil, func() error { return nil })
	assert.NoError(t, err)
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("no such host")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestDoIfRetryable_StopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		attempts++
		return statusErr{code: 401}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoIfRetryable_RetriesTransientError(t *testing.T) {
	attempts := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return statusErr{code: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoIfRetryableWithResult_Permanent(t *testing.T) {
	attempts := 0
	_, err := DoIfRetryableWithResult(context.Background(), fastConfig(3), func() (int, error) {
		attempts++
		return 0, Permanent(errors.New("rate limit exceeded"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "Permanent overrides message matching")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limit", errors.New("Rate Limit exceeded"), true},
		{"bad request", errors.New("invalid ticker"), false},
		{"explicit retryable", statusErr{code: 502}, true},
		{"explicit permanent", statusErr{code: 404}, false},
		{"permanent wrapper", Permanent(errors.New("timeout")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestConfig_NextCapsAtMaxDelay(t *testing.T) {
	cfg := &Config{Multiplier: 10, MaxDelay: 50 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, cfg.next(10*time.Millisecond))
}
