package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conn struct{ id int }

func TestConnect_FailsAfterBudget(t *testing.T) {
	calls := 0
	dialErr := errors.New("connection refused")
	start := time.Now()

	c, err := Connect(context.Background(), "broker", Policy{MaxAttempts: 5, Delay: 10 * time.Millisecond},
		func(ctx context.Context) (*conn, error) {
			calls++
			return nil, dialErr
		})

	require.Error(t, err)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 5, calls, "must give up after the 5th attempt, not before")
	// four sleeps between five attempts
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestConnect_SucceedsWithinBudget(t *testing.T) {
	calls := 0
	c, err := Connect(context.Background(), "database", Policy{MaxAttempts: 5, Delay: time.Millisecond},
		func(ctx context.Context) (*conn, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("not yet")
			}
			return &conn{id: calls}, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, c.id)
	assert.Equal(t, 3, calls)
}

func TestConnect_NoSleepAfterLastAttempt(t *testing.T) {
	start := time.Now()
	_, err := Connect(context.Background(), "database", Policy{MaxAttempts: 1, Delay: time.Second},
		func(ctx context.Context) (int, error) {
			return 0, errors.New("down")
		})

	require.ErrorIs(t, err, ErrConnectivity)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestConnect_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Connect(ctx, "broker", Policy{MaxAttempts: 5, Delay: time.Hour},
		func(ctx context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("down")
		})

	require.ErrorIs(t, err, ErrConnectivity)
	assert.Equal(t, 1, calls)
}
