package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestWithBackoff_SucceedsFirstTry(t *testing.T) {
	calls := 0
	result := WithBackoff(context.Background(), fastConfig(), "op", func() error {
		calls++
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, calls)
}

func TestWithBackoff_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	result := WithBackoff(context.Background(), fastConfig(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("status 503: service unavailable")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, calls)
}

func TestWithBackoff_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	result := WithBackoff(context.Background(), fastConfig(), "op", func() error {
		calls++
		return errors.New("status 401: unauthorized")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
}

func TestWithBackoff_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	result := WithBackoff(context.Background(), fastConfig(), "op", func() error {
		calls++
		return errors.New("timeout")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 4, calls)
	assert.Error(t, result.LastError)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("429 Too Many Requests")))
	assert.True(t, IsRetryable(errors.New("connection refused")))
	assert.False(t, IsRetryable(errors.New("invalid payload")))
	assert.False(t, IsRetryable(nil))
}
