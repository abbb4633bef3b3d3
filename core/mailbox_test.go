package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textEnvelope(source ActorID, session int32) Envelope {
	return NewEnvelope(source, session, MessageTypeText, nil)
}

func TestMailboxFIFO(t *testing.T) {
	gq := NewGlobalQueue()
	mb := NewMailbox(1, gq)

	for i := int32(1); i <= 10; i++ {
		require.NoError(t, mb.Push(textEnvelope(2, i)))
	}

	for i := int32(1); i <= 10; i++ {
		env, ok := mb.Pop()
		require.True(t, ok)
		assert.Equal(t, i, env.Session)
	}

	_, ok := mb.Pop()
	assert.False(t, ok)
}

func TestMailboxConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		perSource = 5000
	)

	gq := NewGlobalQueue()
	mb := NewMailbox(1, gq)

	var wg sync.WaitGroup
	for p := 1; p <= producers; p++ {
		wg.Add(1)
		go func(source ActorID) {
			defer wg.Done()
			for i := int32(1); i <= perSource; i++ {
				if err := mb.Push(textEnvelope(source, i)); err != nil {
					t.Errorf("push failed: %v", err)
					return
				}
			}
		}(ActorID(p))
	}
	wg.Wait()

	last := make(map[ActorID]int32)
	total := 0
	for {
		env, ok := mb.Pop()
		if !ok {
			break
		}
		total++
		require.Equal(t, last[env.Source]+1, env.Session, "source %s out of order", env.Source)
		last[env.Source] = env.Session
	}

	assert.Equal(t, producers*perSource, total)
	for p := 1; p <= producers; p++ {
		assert.Equal(t, int32(perSource), last[ActorID(p)])
	}
}

func TestMailboxGrowth(t *testing.T) {
	tests := []struct {
		name      string
		initial   int
		pushes    int
		doublings int
	}{
		{"2^4+1 from 4", 4, 17, 3},
		{"2^6+1 from 64", 64, 65, 1},
		{"2^10+1 from 64", 64, 1025, 5},
		{"below capacity", 8, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := NewMailbox(1, NewGlobalQueue(), WithCapacity(tt.initial))

			for i := 0; i < tt.pushes; i++ {
				require.NoError(t, mb.Push(NewEnvelope(0, int32(i), MessageTypeText, []byte{byte(i)})))
			}

			assert.Equal(t, tt.initial<<tt.doublings, mb.Cap())
			assert.Equal(t, tt.pushes, mb.Len())

			for i := 0; i < tt.pushes; i++ {
				env, ok := mb.Pop()
				require.True(t, ok)
				require.Equal(t, int32(i), env.Session)
				require.Equal(t, []byte{byte(i)}, env.Data)
			}

			// capacity never shrinks
			assert.Equal(t, tt.initial<<tt.doublings, mb.Cap())
		})
	}
}

func TestMailboxGrowthAfterWrap(t *testing.T) {
	mb := NewMailbox(1, NewGlobalQueue(), WithCapacity(4))

	// move head forward so the ring wraps before it grows
	for i := 0; i < 3; i++ {
		require.NoError(t, mb.Push(textEnvelope(0, int32(i))))
	}
	for i := 0; i < 3; i++ {
		_, ok := mb.Pop()
		require.True(t, ok)
	}

	for i := 10; i < 20; i++ {
		require.NoError(t, mb.Push(textEnvelope(0, int32(i))))
	}
	assert.Equal(t, 16, mb.Cap())

	for i := 10; i < 20; i++ {
		env, ok := mb.Pop()
		require.True(t, ok)
		assert.Equal(t, int32(i), env.Session)
	}
}

func TestMailboxOverload(t *testing.T) {
	mb := NewMailbox(1, NewGlobalQueue(), WithOverloadThreshold(4))

	for i := 0; i < 4; i++ {
		require.NoError(t, mb.Push(textEnvelope(0, 0)))
	}
	assert.Zero(t, mb.Overload())
	assert.Equal(t, 4, mb.OverloadThreshold())

	require.NoError(t, mb.Push(textEnvelope(0, 0)))
	assert.Equal(t, 5, mb.Overload())
	assert.Zero(t, mb.Overload(), "overload counter is cleared on read")
	assert.Equal(t, 8, mb.OverloadThreshold())

	// crossing again without a drain doubles again
	for i := 0; i < 4; i++ {
		require.NoError(t, mb.Push(textEnvelope(0, 0)))
	}
	assert.Equal(t, 9, mb.Overload())
	assert.Equal(t, 16, mb.OverloadThreshold())

	// drain to zero resets the threshold
	for {
		if _, ok := mb.Pop(); !ok {
			break
		}
	}
	assert.Equal(t, 4, mb.OverloadThreshold())
	assert.Zero(t, mb.Overload())
}

func TestMailboxLinksOnce(t *testing.T) {
	gq := NewGlobalQueue()
	notified := 0
	gq.SetNotifier(NotifierFunc(func() { notified++ }))
	mb := NewMailbox(1, gq)

	for i := 0; i < 100; i++ {
		require.NoError(t, mb.Push(textEnvelope(0, 0)))
	}
	assert.Equal(t, 1, gq.Len())
	assert.Equal(t, 1, notified)

	require.Same(t, mb, gq.Pop())
	assert.True(t, gq.Empty())

	// still owned by the drainer: more pushes do not relink
	require.NoError(t, mb.Push(textEnvelope(0, 0)))
	assert.True(t, gq.Empty())

	for {
		if _, ok := mb.Pop(); !ok {
			break
		}
	}

	// idle again: next push relinks and notifies
	require.NoError(t, mb.Push(textEnvelope(0, 0)))
	assert.Equal(t, 1, gq.Len())
	assert.Equal(t, 2, notified)
}

func TestMailboxSettle(t *testing.T) {
	gq := NewGlobalQueue()
	mb := NewMailbox(1, gq)

	require.NoError(t, mb.Push(textEnvelope(0, 1)))
	require.NoError(t, mb.Push(textEnvelope(0, 2)))
	require.Same(t, mb, gq.Pop())

	_, ok := mb.Pop()
	require.True(t, ok)
	assert.True(t, mb.Settle())

	_, ok = mb.Pop()
	require.True(t, ok)
	assert.False(t, mb.Settle())

	require.NoError(t, mb.Push(textEnvelope(0, 3)))
	assert.Equal(t, 1, gq.Len())
}

func TestMailboxRelease(t *testing.T) {
	t.Run("drains into drop callback", func(t *testing.T) {
		gq := NewGlobalQueue()
		mb := NewMailbox(1, gq)
		for i := int32(1); i <= 3; i++ {
			require.NoError(t, mb.Push(textEnvelope(5, i)))
		}
		require.Same(t, mb, gq.Pop())

		mb.MarkRelease()
		assert.True(t, gq.Empty(), "a mailbox being drained is not relinked")

		var dropped []int32
		mb.Release(func(env Envelope) { dropped = append(dropped, env.Session) })

		assert.Equal(t, []int32{1, 2, 3}, dropped)
		assert.True(t, mb.Closed())
		assert.ErrorIs(t, mb.Push(textEnvelope(0, 0)), ErrMailboxClosed)
	})

	t.Run("idle mailbox is linked on mark", func(t *testing.T) {
		gq := NewGlobalQueue()
		mb := NewMailbox(1, gq)

		mb.MarkRelease()
		require.Same(t, mb, gq.Pop())
		mb.Release(nil)
		assert.True(t, mb.Closed())
	})

	t.Run("unmarked mailbox goes back to the queue", func(t *testing.T) {
		gq := NewGlobalQueue()
		mb := NewMailbox(1, gq)
		require.NoError(t, mb.Push(textEnvelope(0, 0)))
		require.Same(t, mb, gq.Pop())

		mb.Release(func(Envelope) { t.Fatal("nothing should be dropped") })
		assert.False(t, mb.Closed())
		assert.Same(t, mb, gq.Pop())
	})

	t.Run("double release panics", func(t *testing.T) {
		mb := NewMailbox(1, NewGlobalQueue())
		mb.MarkRelease()
		assert.Panics(t, mb.MarkRelease)
	})
}
