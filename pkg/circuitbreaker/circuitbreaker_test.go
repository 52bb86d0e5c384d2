package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test error")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newBreaker(t *testing.T, cfg Config) (*CircuitBreaker, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New(cfg)
	cb.now = c.now
	return cb, c
}

func fail() error { return errTest }
func ok() error   { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newBreaker(t, Config{FailureThreshold: 3, SuccessThreshold: 1, Cooldown: time.Second})

	assert.ErrorIs(t, cb.Execute(fail), errTest)
	assert.ErrorIs(t, cb.Execute(fail), errTest)
	require.NoError(t, cb.Execute(ok), "success resets the count")
	assert.ErrorIs(t, cb.Execute(fail), errTest)
	assert.ErrorIs(t, cb.Execute(fail), errTest)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(fail), errTest)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, c := newBreaker(t, Config{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: time.Second})

	_ = cb.Execute(fail)
	require.Equal(t, StateOpen, cb.State())

	c.advance(999 * time.Millisecond)
	assert.ErrorIs(t, cb.Execute(ok), ErrOpen)

	c.advance(time.Millisecond)
	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, c := newBreaker(t, Config{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Second})

	_ = cb.Execute(fail)
	c.advance(time.Second)

	assert.ErrorIs(t, cb.Execute(fail), errTest)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ok), ErrOpen, "cooldown restarts")
}

func TestCircuitBreaker_LimitsProbes(t *testing.T) {
	cb, c := newBreaker(t, Config{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Second, MaxProbes: 1})

	_ = cb.Execute(fail)
	c.advance(time.Second)

	var inner error
	err := cb.Execute(func() error {
		inner = cb.Execute(ok)
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrOpen)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb, c := newBreaker(t, Config{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Second})

	var transitions []string
	cb.OnStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
		// Reading state from the callback must not deadlock.
		_ = cb.State()
	})

	_ = cb.Execute(fail)
	c.advance(time.Second)
	_ = cb.Execute(ok)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := New(Config{FailureThreshold: 100, SuccessThreshold: 1, Cooldown: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if (i+j)%3 == 0 {
					_ = cb.Execute(fail)
				} else {
					_ = cb.Execute(ok)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "State(7)", State(7).String())
}
