package safety

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradecore/internal/errors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker() (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("sink", BreakerConfig{FailureThreshold: 2, SuccessThreshold: 2, Cooldown: time.Minute})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	cb, clock := newTestBreaker()
	var transitions []string
	cb.OnStateChange(func(_ string, from, to BreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	boom := stderrors.New("write failed")
	fail := func() error { return boom }
	ok := func() error { return nil }

	assert.ErrorIs(t, cb.Call(fail), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(fail), boom)
	require.Equal(t, StateOpen, cb.State())

	calls := 0
	err := cb.Call(func() error { calls++; return nil })
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrorCategoryNetwork))
	assert.Zero(t, calls)
	assert.Equal(t, 1, cb.Stats().Rejected)

	clock.t = clock.t.Add(time.Minute)
	require.NoError(t, cb.Call(ok))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Call(ok))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, transitions)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker()
	fail := func() error { return stderrors.New("down") }
	_ = cb.Call(fail)
	_ = cb.Call(fail)
	clock.t = clock.t.Add(2 * time.Minute)

	_ = cb.Call(fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, clock.t.Add(time.Minute), cb.Stats().NextAttempt)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Stats().Failures)
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker()
	_ = cb.Call(func() error { return stderrors.New("x") })
	require.NoError(t, cb.Call(func() error { return nil }))
	_ = cb.Call(func() error { return stderrors.New("x") })
	assert.Equal(t, StateClosed, cb.State())
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker("x", BreakerConfig{})
	assert.Equal(t, DefaultBreakerConfig(), cb.config)
}
