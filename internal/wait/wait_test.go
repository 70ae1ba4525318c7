package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastWaiter(timeout time.Duration) Waiter {
	return Waiter{Timeout: timeout, Interval: 5 * time.Millisecond}
}

func TestUntil_ReturnsFirstTruthyValue(t *testing.T) {
	calls := 0
	v, err := Until(context.Background(), fastWaiter(time.Second), "counter", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, nil
		}
		return calls, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestUntil_RetriesErrors(t *testing.T) {
	calls := 0
	v, err := Until(context.Background(), fastWaiter(time.Second), "flaky", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("not rendered")
		}
		return "body", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "body", v)
	assert.Equal(t, 2, calls)
}

func TestUntil_EmptySliceIsFalsy(t *testing.T) {
	_, err := Until(context.Background(), fastWaiter(40*time.Millisecond), "Never found events", func(ctx context.Context) ([]string, error) {
		return []string{}, nil
	})
	require.Error(t, err)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Never found events", te.Message)
	assert.Contains(t, err.Error(), "Never found events")
	assert.True(t, IsTimeout(err))
}

func TestUntil_TimeoutCarriesLastError(t *testing.T) {
	cause := errors.New("no such element")
	_, err := Until(context.Background(), fastWaiter(30*time.Millisecond), "couldn't find body in DevTools", func(ctx context.Context) (*struct{}, error) {
		return nil, cause
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "couldn't find body in DevTools")
}

func TestUntil_TimeoutForgetsRecoveredError(t *testing.T) {
	cause := errors.New("transient at first poll")
	calls := 0
	_, err := Until(context.Background(), fastWaiter(50*time.Millisecond), "never truthy", func(ctx context.Context) (bool, error) {
		calls++
		if calls == 1 {
			return false, cause
		}
		return false, nil
	})
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Nil(t, te.Last)
	assert.NotErrorIs(t, err, cause)
	assert.NotContains(t, err.Error(), "transient")
	assert.Greater(t, calls, 1)
}

func TestUntil_TimeoutIsBounded(t *testing.T) {
	start := time.Now()
	_, err := Until(context.Background(), fastWaiter(50*time.Millisecond), "never", func(ctx context.Context) (bool, error) {
		return false, nil
	})
	require.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntil_StopAbortsImmediately(t *testing.T) {
	cause := errors.New("ReferenceError: snowplow is not defined")
	calls := 0
	_, err := Until(context.Background(), fastWaiter(time.Second), "script", func(ctx context.Context) (any, error) {
		calls++
		return nil, Stop(cause)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsTimeout(err))
	assert.Equal(t, 1, calls)
}

func TestUntil_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Until(ctx, fastWaiter(time.Second), "cancelled", func(ctx context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTimeout(err))
}

func TestWaiter_Condition(t *testing.T) {
	ready := false
	w := fastWaiter(time.Second)
	err := w.Condition(context.Background(), "ready", func(ctx context.Context) (bool, error) {
		if ready {
			return true, nil
		}
		ready = true
		return false, nil
	})
	require.NoError(t, err)
}

func TestWaiter_ZeroValueUsesDefaults(t *testing.T) {
	w := Waiter{}.normalized()
	assert.Equal(t, DefaultTimeout, w.Timeout)
	assert.Equal(t, DefaultInterval, w.Interval)
	assert.Equal(t, 5*time.Second, New(5*time.Second).Timeout)
}

func TestTruthy(t *testing.T) {
	var nilPtr *int
	one := 1
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"nil", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"zero int", 0, false},
		{"int", 7, true},
		{"empty string", "", false},
		{"string", "x", true},
		{"nil pointer", nilPtr, false},
		{"pointer", &one, true},
		{"empty map", map[string]int{}, false},
		{"nil slice", []int(nil), false},
		{"slice", []int{1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truthy(tt.v))
		})
	}
}
