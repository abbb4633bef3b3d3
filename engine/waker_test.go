package engine

import (
	"testing"
	"time"

	"github.com/najoast/skyrt/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakerWakesSleeper(t *testing.T) {
	gq := core.NewGlobalQueue()
	waker := NewWaker(1, gq)

	parked := make(chan struct{})
	go func() {
		waker.Park()
		close(parked)
	}()

	require.Eventually(t, func() bool { return waker.Sleeping() == 1 }, time.Second, time.Millisecond)

	gq.Push(core.NewMailbox(1, gq))
	waker.Wakeup(0)

	select {
	case <-parked:
	case <-time.After(time.Second):
		t.Fatal("worker was not woken")
	}
	assert.Zero(t, waker.Sleeping())
}

func TestWakerHeadroom(t *testing.T) {
	gq := core.NewGlobalQueue()
	waker := NewWaker(2, gq)

	parked := make(chan struct{})
	go func() {
		waker.Park()
		close(parked)
	}()
	require.Eventually(t, func() bool { return waker.Sleeping() == 1 }, time.Second, time.Millisecond)

	// one of two workers awake: busy 0 does not wake the sleeper
	waker.Wakeup(0)
	select {
	case <-parked:
		t.Fatal("sleeper woken without headroom")
	case <-time.After(20 * time.Millisecond):
	}

	// timer style wakeup, busy = total - 1
	waker.Wakeup(waker.Total() - 1)
	select {
	case <-parked:
	case <-time.After(time.Second):
		t.Fatal("worker was not woken")
	}
}

func TestWakerNoSleepers(t *testing.T) {
	waker := NewWaker(4, core.NewGlobalQueue())
	waker.Wakeup(0)
	waker.Wakeup(3)
	assert.Zero(t, waker.Sleeping())
}

func TestWakerParkSkipsWhenWorkPending(t *testing.T) {
	gq := core.NewGlobalQueue()
	waker := NewWaker(1, gq)
	gq.Push(core.NewMailbox(1, gq))

	waker.Park()
	assert.Zero(t, waker.Sleeping())
}

func TestWakerQuit(t *testing.T) {
	waker := NewWaker(3, core.NewGlobalQueue())

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			waker.Park()
			done <- struct{}{}
		}()
	}
	require.Eventually(t, func() bool { return waker.Sleeping() == 3 }, time.Second, time.Millisecond)

	waker.Quit()
	for i := 0; i < 3; i++ {
		<-done
	}
	assert.True(t, waker.Quitting())

	// parking after quit returns immediately
	waker.Park()
}
