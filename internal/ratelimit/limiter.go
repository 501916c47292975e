// Package ratelimit implements the bridge's per-key, two-tier token-bucket
// limiter with adaptive back-off driven by caller success/error feedback.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrTimeout is returned by WaitIfNeeded when max_wait elapses without the
// limiter granting permission.
var ErrTimeout = errors.New("ratelimit: timeout waiting for capacity")

const (
	minMultiplier = 0.5
	maxMultiplier = 1.2

	successThreshold = 100
	errorGraceCount  = 5
	errorThreshold   = 3

	multiplierStep = 0.01
	multiplierDrop = 0.10

	acquirePollInterval = 100 * time.Millisecond
)

// Bucket is a window of requests counted
// since reset_time, reset lazily on the next Acquire once the window elapses.
type Bucket struct {
	Requests     int
	ResetTime    time.Time
	WindowSeconds float64
}

// Limiter is a single named rate limiter holding one bucket map keyed by
// caller-supplied identifier, plus an adaptive multiplier applied to both
// the per-minute and per-second caps.
type Limiter struct {
	Name string

	mu                 sync.Mutex
	requestsPerSecond  float64 // 0 means unconfigured
	requestsPerMinute  float64 // 0 means unconfigured
	buckets            map[string]*Bucket
	adaptiveMultiplier float64
	successCount       int
	errorCount         int

	// warnOnce throttles the "rate limiter exhausted" log line so a caller
	// spinning in WaitIfNeeded doesn't flood the log every 100ms.
	warnOnce rate.Sometimes
	log      *slog.Logger
}

// New builds a Limiter. Either cap may be left at zero to leave it
// unconfigured: a limiter with only requests_per_second still enforces that
// cap and simply never checks a per-minute ceiling.
func New(name string, requestsPerSecond, requestsPerMinute float64, log *slog.Logger) *Limiter {
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{
		Name:               name,
		requestsPerSecond:  requestsPerSecond,
		requestsPerMinute:  requestsPerMinute,
		buckets:            make(map[string]*Bucket),
		adaptiveMultiplier: 1.0,
		warnOnce:           rate.Sometimes{Interval: 5 * time.Second},
		log:                log,
	}
}

// Acquire attempts to consume one unit of capacity for key. It never blocks.
func (l *Limiter) Acquire(key string) bool {
	if key == "" {
		key = "global"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &Bucket{WindowSeconds: 60}
		l.buckets[key] = bucket
	}

	if !now.Before(bucket.ResetTime) {
		bucket.Requests = 0
		bucket.ResetTime = now.Add(time.Duration(bucket.WindowSeconds * float64(time.Second)))
	}

	if l.requestsPerMinute > 0 {
		if float64(bucket.Requests) >= l.requestsPerMinute*l.adaptiveMultiplier {
			return false
		}
	}

	if l.requestsPerSecond > 0 {
		secondKey := fmt.Sprintf("%s_1s_%d", key, now.Unix())
		secondBucket, ok := l.buckets[secondKey]
		if !ok {
			secondBucket = &Bucket{WindowSeconds: 1, ResetTime: now.Add(time.Second)}
			l.buckets[secondKey] = secondBucket
		}
		if float64(secondBucket.Requests) >= l.requestsPerSecond*l.adaptiveMultiplier {
			return false
		}
		secondBucket.Requests++
	}

	bucket.Requests++
	return true
}

// WaitIfNeeded polls Acquire every 100ms until it succeeds or maxWait
// elapses, in which case it returns ErrTimeout.
func (l *Limiter) WaitIfNeeded(ctx context.Context, key string, maxWait time.Duration) error {
	if maxWait <= 0 {
		maxWait = 60 * time.Second
	}

	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(acquirePollInterval)
	defer ticker.Stop()

	for {
		if l.Acquire(key) {
			return nil
		}
		if time.Now().After(deadline) {
			l.warnOnce.Do(func() {
				l.log.Warn("ratelimit_exhausted", "limiter", l.Name, "key", key, "max_wait", maxWait)
			})
			return fmt.Errorf("%w: limiter %q key %q after %s", ErrTimeout, l.Name, key, maxWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitIfNeededSafe is WaitIfNeeded without the error: it returns false on
// timeout or context cancellation instead of propagating the cause, for
// callers that only need a "did we get a slot" answer.
func (l *Limiter) WaitIfNeededSafe(ctx context.Context, key string, maxWait time.Duration) bool {
	return l.WaitIfNeeded(ctx, key, maxWait) == nil
}

// RecordSuccess feeds one success into the adaptive multiplier. After more
// than 100 successes with fewer than 5 errors, the multiplier nudges up by
// 0.01 (capped at 1.2) and both counters reset.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.successCount++
	if l.successCount > successThreshold && l.errorCount < errorGraceCount {
		l.adaptiveMultiplier = min(maxMultiplier, l.adaptiveMultiplier+multiplierStep)
		l.successCount = 0
		l.errorCount = 0
	}
}

// RecordError feeds one error into the adaptive multiplier. After more than
// 3 errors, the multiplier drops by 0.10 (floored at 0.5) and both counters
// reset.
func (l *Limiter) RecordError() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.errorCount++
	if l.errorCount > errorThreshold {
		l.adaptiveMultiplier = max(minMultiplier, l.adaptiveMultiplier-multiplierDrop)
		l.successCount = 0
		l.errorCount = 0
	}
}

// ClearOldBuckets evicts buckets whose window expired more than maxAge ago,
// returning the number removed. Intended to be called from the
// orchestrator's cleanup loop.
func (l *Limiter) ClearOldBuckets(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, bucket := range l.buckets {
		if bucket.ResetTime.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Stats is the read-only snapshot returned by the admin status surface.
type Stats struct {
	Name               string  `json:"name"`
	RequestsPerSecond  float64 `json:"requests_per_second,omitempty"`
	RequestsPerMinute  float64 `json:"requests_per_minute,omitempty"`
	AdaptiveMultiplier float64 `json:"adaptive_multiplier"`
	ActiveBuckets      int     `json:"active_buckets"`
	SuccessCount       int     `json:"success_count"`
	ErrorCount         int     `json:"error_count"`
}

func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Name:               l.Name,
		RequestsPerSecond:  l.requestsPerSecond,
		RequestsPerMinute:  l.requestsPerMinute,
		AdaptiveMultiplier: l.adaptiveMultiplier,
		ActiveBuckets:      len(l.buckets),
		SuccessCount:       l.successCount,
		ErrorCount:         l.errorCount,
	}
}

// ResetStats clears the adaptive multiplier and counters back to baseline.
func (l *Limiter) ResetStats() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.successCount = 0
	l.errorCount = 0
	l.adaptiveMultiplier = 1.0
}
