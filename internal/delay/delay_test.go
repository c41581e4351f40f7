package delay

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterFunc_Fires(t *testing.T) {
	done := make(chan struct{})
	tm := AfterFunc(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not run")
	}
	assert.False(t, tm.Pending())
	assert.False(t, tm.Cancel(), "cancel after fire reports false")
}

func TestTimer_CancelPreventsCallback(t *testing.T) {
	var ran atomic.Bool
	tm := AfterFunc(20*time.Millisecond, func() { ran.Store(true) })

	require.True(t, tm.Cancel())
	assert.False(t, tm.Cancel(), "second cancel is a no-op")

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestSleep_Completes(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := Sleep(ctx, time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCanceled))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSleep_AlreadyDoneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, 0), ErrCanceled)
}

func TestScope_CloseCancelsPending(t *testing.T) {
	s := NewScope(context.Background())
	var ran atomic.Int32

	for i := 0; i < 3; i++ {
		_, ok := s.AfterFunc(30*time.Millisecond, func() { ran.Add(1) })
		require.True(t, ok)
	}
	assert.Equal(t, 3, s.Pending())

	s.Close()
	assert.Equal(t, 0, s.Pending())
	assert.True(t, s.Closed())
	assert.ErrorIs(t, s.Context().Err(), context.Canceled)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), ran.Load())
}

func TestScope_AfterCloseNeverStarts(t *testing.T) {
	s := NewScope(context.Background())
	s.Close()
	s.Close()

	tm, ok := s.AfterFunc(time.Millisecond, func() { t.Error("must not run") })
	assert.False(t, ok)
	assert.Nil(t, tm)
	time.Sleep(10 * time.Millisecond)
}

func TestScope_FiredTimersAreForgotten(t *testing.T) {
	s := NewScope(context.Background())
	defer s.Close()

	done := make(chan struct{})
	_, ok := s.AfterFunc(time.Millisecond, func() { close(done) })
	require.True(t, ok)

	<-done
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, time.Millisecond)
}
