package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFailed = errors.New("failed")

func call(b *Breaker, success bool) error {
	_, err := Do(b, func() (string, error) {
		if success {
			return "ok", nil
		}
		return "", errFailed
	})
	return err
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{Interval: time.Minute, Timeout: time.Minute},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				Interval: time.Minute,
				Timeout:  time.Minute,
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name: "success resets the failure streak",
			settings: Settings{
				Interval: time.Minute,
				Timeout:  time.Minute,
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 2
				},
			},
			requests:      []bool{false, true, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", tt.settings)
			for _, success := range tt.requests {
				_ = call(breaker, success)
			}
			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestDoReturnsTypedResult(t *testing.T) {
	breaker := New("test", Settings{})

	n, err := Do(breaker, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
}

func TestBreakerOpenFailsFast(t *testing.T) {
	breaker := New("test", Settings{
		Timeout: time.Minute,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	_ = call(breaker, false)
	_ = call(breaker, false)
	require.Equal(t, StateOpen, breaker.State())

	called := false
	_, err := Do(breaker, func() (string, error) {
		called = true
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.ErrorIs(t, breaker.Allow(), ErrCircuitOpen)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	breaker := New("test", Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	_ = call(breaker, false)
	_ = call(breaker, false)
	require.Equal(t, StateOpen, breaker.State())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, call(breaker, true))
	require.NoError(t, call(breaker, true))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker := New("test", Settings{
		Timeout: 20 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})

	_ = call(breaker, false)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = call(breaker, false)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestIsSuccessfulClassifier(t *testing.T) {
	errClient := errors.New("bad request")
	breaker := New("test", Settings{
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errClient)
		},
	})

	_, err := Do(breaker, func() (string, error) { return "", errClient })
	assert.ErrorIs(t, err, errClient)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string

	breaker := New("test", Settings{
		Timeout: 10 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = call(breaker, false)
	_ = call(breaker, false)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, StateHalfOpen, breaker.State())
	assert.Contains(t, transitions, "closed->open")
	assert.Contains(t, transitions, "open->half-open")
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	breaker := New("test", Settings{})

	assert.Panics(t, func() {
		_, _ = Do(breaker, func() (string, error) { panic("boom") })
	})
	assert.Equal(t, uint32(1), breaker.Counts().TotalFailures)
}
