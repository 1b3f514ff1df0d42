// Package resilience provides the retry and circuit-breaker primitives
// shared by any outbound call this module makes (principally the
// AgentInvoker's transport adapters), adapted from agentctl's lineage
// where this logic backs every external HTTP call.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	attemptCounter metric.Int64Counter
	successCounter metric.Int64Counter
	failCounter    metric.Int64Counter
)

func init() {
	meter := otel.Meter("agentctl")
	attemptCounter, _ = meter.Int64Counter("agentctl_resilience_retry_attempts_total")
	successCounter, _ = meter.Int64Counter("agentctl_resilience_retry_success_total")
	failCounter, _ = meter.Int64Counter("agentctl_resilience_retry_failed_total")
}

// Retry calls fn up to attempts times, sleeping a fully-jittered
// exponentially growing delay (capped at 60s) between attempts. It
// returns as soon as fn succeeds, or ctx is cancelled.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	cur := delay

	for i := 0; i < attempts; i++ {
		attemptCounter.Add(ctx, 1)
		v, err := fn()
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err
		failCounter.Add(ctx, 1)

		if i == attempts-1 {
			break
		}
		jittered := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(jittered):
		}
		cur *= 2
		if cur > 60*time.Second {
			cur = 60 * time.Second
		}
	}
	return zero, lastErr
}
