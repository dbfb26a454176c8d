package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func noJitter(c *Config) { c.JitterFactor = 0 }

func fastRetrier(opts ...Option) *Retrier {
	base := []Option{WithInitialDelay(time.Microsecond), WithMaxDelay(time.Millisecond), noJitter}
	return New(append(base, opts...)...)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := fastRetrier(WithMaxAttempts(3)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ReturnsLastErrorAfterFinalAttempt(t *testing.T) {
	attempts := 0
	err := fastRetrier(WithMaxAttempts(2)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errFlaky
	})

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_RetryIfDecides(t *testing.T) {
	errFatal := errors.New("fatal")
	attempts := 0
	r := fastRetrier(WithMaxAttempts(4), WithRetryIf(func(err error) bool {
		return errors.Is(err, errFlaky)
	}))

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return errFlaky
		}
		return errFatal
	})

	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 2, attempts)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := fastRetrier().Do(ctx, func(ctx context.Context) error {
		attempts++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var seen []int
	r := fastRetrier(WithMaxAttempts(3), WithOnRetry(func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
	}))

	_ = r.Do(context.Background(), func(ctx context.Context) error {
		return errFlaky
	})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestCalculateDelay_CapsAtMax(t *testing.T) {
	r := New(WithInitialDelay(10*time.Millisecond), WithMaxDelay(25*time.Millisecond), noJitter)

	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 25*time.Millisecond, r.calculateDelay(3))
}

func TestPersistenceRetrier(t *testing.T) {
	attempts := 0
	r := PersistenceRetrier(3, time.Microsecond, func(err error) bool { return errors.Is(err, errFlaky) })

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, attempts)
}

func TestPersistenceRetrier_ExtraOptions(t *testing.T) {
	var retries int
	r := PersistenceRetrier(2, time.Microsecond, func(error) bool { return true },
		WithOnRetry(func(int, error, time.Duration) { retries++ }),
	)

	_ = r.Do(context.Background(), func(ctx context.Context) error { return errFlaky })
	assert.Equal(t, 1, retries)
}
