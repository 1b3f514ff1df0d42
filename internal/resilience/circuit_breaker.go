package resilience

import (
	"sync"
	"time"
)

type breakerState int

const (
	closed breakerState = iota
	open
	halfOpen
)

type bucket struct {
	windowStart time.Time
	successes   int
	failures    int
}

// CircuitBreaker trips open once the failure rate over a sliding window
// of buckets crosses failureRateOpen, and probes half-open after
// halfOpenAfter before fully closing again.
type CircuitBreaker struct {
	mu sync.Mutex

	state    breakerState
	openedAt time.Time

	bucketDur        time.Duration
	buckets          []bucket
	minSamples       int
	failureRateOpen  float64
	halfOpenAfter    time.Duration
	halfOpenProbes   int
	maxHalfOpenProbe int
}

// NewCircuitBreakerAdaptive constructs a breaker with windowSize split
// into buckets fixed-size time buckets.
func NewCircuitBreakerAdaptive(windowSize time.Duration, buckets int, minSamples int, failureRateOpen float64, halfOpenAfter time.Duration, maxHalfOpenProbes int) *CircuitBreaker {
	if buckets < 1 {
		buckets = 1
	}
	return &CircuitBreaker{
		bucketDur:        windowSize / time.Duration(buckets),
		buckets:          make([]bucket, buckets),
		minSamples:       minSamples,
		failureRateOpen:  failureRateOpen,
		halfOpenAfter:    halfOpenAfter,
		maxHalfOpenProbe: maxHalfOpenProbes,
	}
}

// Allow reports whether a call should proceed right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case closed:
		return true
	case open:
		if time.Since(cb.openedAt) >= cb.halfOpenAfter {
			cb.state = halfOpen
			cb.halfOpenProbes = 0
			return true
		}
		return false
	case halfOpen:
		if cb.halfOpenProbes >= cb.maxHalfOpenProbe {
			return false
		}
		cb.halfOpenProbes++
		return true
	default:
		return true
	}
}

// RecordResult reports the outcome of a call previously admitted by Allow.
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == halfOpen {
		if success {
			cb.reset()
		} else {
			cb.transitionToOpen()
		}
		return
	}

	b := cb.currentBucket()
	if success {
		b.successes++
	} else {
		b.failures++
	}

	total, failures := cb.windowTotals()
	if total >= cb.minSamples && float64(failures)/float64(total) >= cb.failureRateOpen {
		cb.transitionToOpen()
	}
}

func (cb *CircuitBreaker) currentBucket() *bucket {
	now := time.Now()
	idx := (now.UnixNano() / int64(cb.bucketDur)) % int64(len(cb.buckets))
	b := &cb.buckets[idx]
	if now.Sub(b.windowStart) > cb.bucketDur*time.Duration(len(cb.buckets)) {
		*b = bucket{windowStart: now}
	}
	return b
}

func (cb *CircuitBreaker) windowTotals() (total, failures int) {
	for _, b := range cb.buckets {
		total += b.successes + b.failures
		failures += b.failures
	}
	return
}

func (cb *CircuitBreaker) transitionToOpen() {
	cb.state = open
	cb.openedAt = time.Now()
}

func (cb *CircuitBreaker) reset() {
	cb.state = closed
	cb.buckets = make([]bucket, len(cb.buckets))
}
