// Package retry wraps fallible operations in exponential backoff with
// pluggable eligibility predicates and recovery hooks. Every network
// operation in the runtime goes through it.
package retry

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/config"
)

// Policy parameterizes the backoff schedule. MaxAttempts <= 0 means
// effectively unbounded.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// PolicyFrom converts the loaded retry config into an engine policy.
func PolicyFrom(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		Multiplier:      cfg.Multiplier,
		MaxInterval:     cfg.MaxInterval,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = math.MaxInt
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = config.DefaultRetryInitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = config.DefaultRetryMultiplier
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = config.DefaultRetryMaxInterval
	}
	return p
}

// Spec binds a policy to the predicate deciding which errors are retried and
// an optional recovery hook that runs before the backoff sleep. A non-nil
// error from OnRetry aborts the loop and is returned to the caller.
type Spec struct {
	Policy    Policy
	Retryable func(error) bool
	OnRetry   func(context.Context, error) error
}

// Do runs op, retrying per spec until it succeeds, the error is not
// retryable, attempts are exhausted, or the context ends. The last error is
// returned unwrapped so callers can classify it.
func Do(ctx context.Context, logger *zap.Logger, name string, spec Spec, op func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := spec.Policy.normalized()
	interval := policy.InitialInterval

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if spec.Retryable != nil && !spec.Retryable(err) {
			return err
		}
		if attempt >= policy.MaxAttempts {
			return err
		}
		if spec.OnRetry != nil {
			if recoveryErr := spec.OnRetry(ctx, err); recoveryErr != nil {
				return recoveryErr
			}
		}

		logger.Debug(
			"retrying operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", interval),
			zap.Error(err),
		)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * policy.Multiplier)
		if interval > policy.MaxInterval {
			interval = policy.MaxInterval
		}
	}
}
