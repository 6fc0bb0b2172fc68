package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Microsecond, MaxDelay: 10 * time.Microsecond}
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return MarkTransient(errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	orig := errors.New("still down")
	err := fastPolicy(3).Do(context.Background(), "op", func() error {
		calls++
		return MarkTransient(orig)
	})
	assert.Equal(t, 3, calls)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, orig)
}

func TestDoDoesNotRetryPermanent(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), "op", func() error {
		calls++
		return errors.New("rejected")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, IsTransient(err))
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour}
	err := p.Do(ctx, "op", func() error {
		return MarkTransient(errors.New("flaky"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelayGrowsAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 300*time.Millisecond, p.delay(3))
	assert.Equal(t, 300*time.Millisecond, p.delay(4))
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, RetryableStatus(429))
	assert.True(t, RetryableStatus(500))
	assert.True(t, RetryableStatus(503))
	assert.False(t, RetryableStatus(200))
	assert.False(t, RetryableStatus(401))
	assert.False(t, RetryableStatus(422))
}

func TestIsTransientSeesWrappedMarks(t *testing.T) {
	inner := MarkTransient(errors.New("timeout"))
	wrapped := errors.Join(errors.New("fetch page 2"), inner)
	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))
}
