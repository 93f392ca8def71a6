package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errBoom   = errors.New("boom")
	errClient = errors.New("bad request")
)

func fail() error { return errBoom }
func ok() error   { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New("whatsapp", Config{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Minute})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New("surepass", Config{FailureThreshold: 2, OpenTimeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, ok))
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 1, cb.Failures())
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := New("exotel", Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Second})
	clock := time.Now()
	cb.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.GetState())

	clock = clock.Add(2 * time.Second)
	assert.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New("exotel", Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second})
	clock := time.Now()
	cb.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock = clock.Add(2 * time.Second)
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrOpen)
}

func TestCircuitBreaker_SingleProbeWhileHalfOpen(t *testing.T) {
	cb := New("whatsapp", Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Second})
	clock := time.Now()
	cb.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock = clock.Add(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(ctx, func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrOpen)
	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_IsFailureFiltersErrors(t *testing.T) {
	cb := New("surepass", Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, errClient) },
	})

	_ = cb.Execute(context.Background(), func() error { return errClient })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var got []string
	cb := New("gtm", Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
		OnStateChange: func(name string, from, to State) {
			got = append(got, name+":"+from.String()+"->"+to.String())
		},
	})
	clock := time.Now()
	cb.now = func() time.Time { return clock }

	_ = cb.Execute(context.Background(), fail)
	clock = clock.Add(2 * time.Second)
	_ = cb.Execute(context.Background(), ok)

	assert.Equal(t, []string{
		"gtm:closed->open",
		"gtm:open->half-open",
		"gtm:half-open->closed",
	}, got)
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := New("x", DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, cb.Execute(ctx, ok), context.Canceled)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
