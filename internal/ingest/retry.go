package ingest

import (
	"context"
	"time"
)

// BackoffPolicy computes delays for bounded exponential retry. Attempt
// numbering starts at 0; delays double from Base and are capped at Max.
type BackoffPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// FetchBackoff returns the policy applied to whole-fetch retries:
// 1s, 2s, 4s, ... within the configured attempt bound.
func FetchBackoff(maxAttempts int) BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: maxAttempts,
		Base:        time.Second,
		Max:         time.Minute,
	}
}

// VerifyBackoff returns the policy applied to transient verification errors:
// 1m, 2m, 4m, capped.
func VerifyBackoff(maxAttempts int) BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: maxAttempts,
		Base:        time.Minute,
		Max:         4 * time.Minute,
	}
}

// ShouldRetry decides whether another attempt is allowed after err.
func (p BackoffPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts-1 {
		return false
	}
	return IsTransient(err)
}

// Delay returns the wait duration before attempt+1. Each delay is at least
// as long as the previous one.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base << uint(attempt)
	if p.Max > 0 && (d > p.Max || d <= 0) {
		d = p.Max
	}
	return d
}

// Sleep blocks for the attempt's delay or until ctx ends. It reports whether
// the full delay elapsed.
func (p BackoffPolicy) Sleep(ctx context.Context, attempt int) bool {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
