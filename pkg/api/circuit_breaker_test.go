package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var changes []CircuitBreakerState
	cb := NewCircuitBreaker(3, time.Minute, func(s CircuitBreakerState) {
		changes = append(changes, s)
	})
	cb.now = func() time.Time { return now }

	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 2; i++ {
		assert.NoError(t, cb.Allow())
		cb.Failure()
		assert.Equal(t, StateClosed, cb.State())
	}

	// Third consecutive failure opens the circuit
	assert.NoError(t, cb.Allow())
	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), atscheck.ErrCircuitOpen)

	now = now.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Only one probe at a time
	assert.NoError(t, cb.Allow())
	assert.ErrorIs(t, cb.Allow(), atscheck.ErrCircuitOpen)

	cb.Success()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []CircuitBreakerState{StateOpen, StateHalfOpen, StateClosed}, changes)
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Second, nil)
	cb.now = func() time.Time { return now }

	assert.NoError(t, cb.Allow())
	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Second)
	assert.NoError(t, cb.Allow())
	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())

	// The reset timeout restarts from the failed probe
	now = now.Add(500 * time.Millisecond)
	assert.ErrorIs(t, cb.Allow(), atscheck.ErrCircuitOpen)
}

func TestCircuitBreaker_ReleaseFreesProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Second, nil)
	cb.now = func() time.Time { return now }

	cb.Failure()
	now = now.Add(time.Second)

	assert.NoError(t, cb.Allow())
	cb.Release()
	assert.NoError(t, cb.Allow())
}

func TestClient_Backoff(t *testing.T) {
	c := &Client{waitMin: 100 * time.Millisecond, waitMax: 500 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, c.backoff(0))
	assert.Equal(t, 200*time.Millisecond, c.backoff(1))
	assert.Equal(t, 400*time.Millisecond, c.backoff(2))
	assert.Equal(t, 500*time.Millisecond, c.backoff(3))
	assert.Equal(t, 500*time.Millisecond, c.backoff(40))
}
