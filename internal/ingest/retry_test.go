package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchBackoffDelaysDouble(t *testing.T) {
	t.Parallel()

	p := FetchBackoff(5)
	prev := time.Duration(0)
	for attempt := 0; attempt < 5; attempt++ {
		d := p.Delay(attempt)
		require.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
	require.Equal(t, time.Second, p.Delay(0))
	require.Equal(t, 2*time.Second, p.Delay(1))
	require.Equal(t, 4*time.Second, p.Delay(2))
}

func TestVerifyBackoffCapped(t *testing.T) {
	t.Parallel()

	p := VerifyBackoff(4)
	require.Equal(t, time.Minute, p.Delay(0))
	require.Equal(t, 2*time.Minute, p.Delay(1))
	require.Equal(t, 4*time.Minute, p.Delay(2))
	require.Equal(t, 4*time.Minute, p.Delay(3))
	require.Equal(t, 4*time.Minute, p.Delay(10))
}

func TestShouldRetryBounds(t *testing.T) {
	t.Parallel()

	p := FetchBackoff(3)
	transient := Transient(errors.New("connection reset"))

	require.True(t, p.ShouldRetry(transient, 0))
	require.True(t, p.ShouldRetry(transient, 1))
	require.False(t, p.ShouldRetry(transient, 2), "last attempt must not retry")
	require.False(t, p.ShouldRetry(nil, 0))
	require.False(t, p.ShouldRetry(errors.New("malformed feed"), 0))
	require.False(t, p.ShouldRetry(context.Canceled, 0))
}

func TestSleepRespectsContext(t *testing.T) {
	t.Parallel()

	p := BackoffPolicy{MaxAttempts: 3, Base: time.Hour, Max: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, p.Sleep(ctx, 0))
}

func TestIsTransientClassification(t *testing.T) {
	t.Parallel()

	require.True(t, IsTransient(Transient(errors.New("timeout"))))
	require.False(t, IsTransient(nil))
	require.False(t, IsTransient(context.DeadlineExceeded))
	require.False(t, IsTransient(ErrNotFound))
	require.False(t, IsTransient(&ValidationError{Field: "payload", Reason: "empty"}))

	wrapped := Transient(errors.New("503 from upstream"))
	require.True(t, IsTransient(wrapped))
	require.EqualError(t, wrapped, "transient: 503 from upstream")
}
