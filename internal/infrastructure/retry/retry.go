package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrConnectivity marks a dependency that stayed unreachable for the whole
// retry budget.
var ErrConnectivity = errors.New("dependency unreachable")

// Policy is a bounded, fixed-delay retry budget.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Connect calls dial until it succeeds or MaxAttempts consecutive calls have
// failed. It sleeps Delay between failures but not after the last one. On
// exhaustion the zero T is returned together with the last dial error wrapped
// in ErrConnectivity.
func Connect[T any](ctx context.Context, name string, p Policy, dial func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	log := zap.S().Named("retry")

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		conn, err := dial(ctx)
		if err == nil {
			if attempt > 1 {
				log.Infof("%s connected after %d attempts", name, attempt)
			}
			return conn, nil
		}
		lastErr = err
		log.Warnf("%s connect attempt %d/%d failed: %v", name, attempt, p.MaxAttempts, err)

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%w: %s: %v", ErrConnectivity, name, ctx.Err())
		case <-time.After(p.Delay):
		}
	}

	return zero, fmt.Errorf("%w: %s after %d attempts: %v", ErrConnectivity, name, p.MaxAttempts, lastErr)
}
