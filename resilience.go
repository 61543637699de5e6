package cachegate

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// forwardOutcome is the value failsafe-go's policies reason about when
// wrapping a Forwarding.Start call: Start only ever reports an error, so
// there is no response payload to inspect, just success/failure.
type forwardOutcome struct{}

// ResilienceConfig configures retry and circuit-breaking around
// Forwarding.Start. Both are disabled unless set.
type ResilienceConfig struct {
	RetryPolicy    retrypolicy.RetryPolicy[forwardOutcome]
	CircuitBreaker circuitbreaker.CircuitBreaker[forwardOutcome]
}

// RetryPolicyBuilder returns a builder preconfigured with sensible
// defaults for retrying a failed forward: up to 3 retries after the first
// attempt, exponential backoff
// from 100ms to 10s.
func RetryPolicyBuilder() retrypolicy.Builder[forwardOutcome] {
	return retrypolicy.NewBuilder[forwardOutcome]().
		HandleIf(func(_ forwardOutcome, err error) bool {
			return err != nil
		}).
		WithMaxRetries(3).
		WithBackoff(100*time.Millisecond, 10*time.Second)
}

// CircuitBreakerBuilder returns a builder preconfigured to open after 5
// consecutive forwarding failures and probe again after 60 seconds.
func CircuitBreakerBuilder() circuitbreaker.Builder[forwardOutcome] {
	return circuitbreaker.NewBuilder[forwardOutcome]().
		HandleIf(func(_ forwardOutcome, err error) bool {
			return err != nil
		}).
		WithFailureThreshold(5).
		WithSuccessThreshold(2).
		WithDelay(60 * time.Second)
}

// WithResilience installs retry/circuit-breaker policies around every
// Forwarding.Start call the engine makes.
func WithResilience(cfg ResilienceConfig) Option {
	return func(e *Engine) error {
		e.resilience = &cfg
		return nil
	}
}

// callForwarding invokes Forwarding.Start, wrapped with whichever
// resilience policies are configured.
func (e *Engine) callForwarding(ctx context.Context, entry Entry, req *Request) error {
	if e.resilience == nil {
		return e.forwarding.Start(ctx, entry, req)
	}

	var policies []failsafe.Policy[forwardOutcome]
	if e.resilience.RetryPolicy != nil {
		policies = append(policies, e.resilience.RetryPolicy)
	}
	if e.resilience.CircuitBreaker != nil {
		policies = append(policies, e.resilience.CircuitBreaker)
	}
	if len(policies) == 0 {
		return e.forwarding.Start(ctx, entry, req)
	}

	_, err := failsafe.With(policies...).Get(func() (forwardOutcome, error) {
		return forwardOutcome{}, e.forwarding.Start(ctx, entry, req)
	})
	return err
}
