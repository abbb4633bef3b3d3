package core

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler is a simple message handler for testing.
type echoHandler struct{}

func (h *echoHandler) HandleMessage(ctx context.Context, env *Envelope) error {
	return nil
}

func TestRegistry(t *testing.T) {
	gq := NewGlobalQueue()
	registry := NewRegistry(2, gq)

	first, err := registry.Register(&echoHandler{}, "echo")
	require.NoError(t, err)
	second, err := registry.Register(&echoHandler{}, "")
	require.NoError(t, err)

	assert.Equal(t, uint8(2), first.ID().Harbor())
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 2, registry.Count())
	assert.Equal(t, []ActorID{first.ID(), second.ID()}, registry.List())

	id, ok := registry.FindName("echo")
	require.True(t, ok)
	assert.Equal(t, first.ID(), id)
	assert.Equal(t, "echo", first.Name())

	_, err = registry.Register(&echoHandler{}, "echo")
	assert.ErrorIs(t, err, ErrNameTaken)
	_, err = registry.Register(nil, "")
	assert.ErrorIs(t, err, ErrNilHandler)

	require.NoError(t, registry.Name(second.ID(), ".second"))
	assert.ErrorIs(t, registry.Name(second.ID(), "echo"), ErrNameTaken)
	assert.ErrorIs(t, registry.Name(0xdead, "x"), ErrActorNotFound)
	assert.ErrorIs(t, registry.Name(second.ID(), ""), ErrInvalidName)

	require.NoError(t, registry.Send(first.ID(), NewEnvelope(second.ID(), 1, MessageTypeText, []byte("hi"))))
	require.NoError(t, registry.SendName(".second", NewEnvelope(first.ID(), 0, MessageTypeText, nil)))
	assert.Equal(t, 2, gq.Len())
	assert.ErrorIs(t, registry.SendName("missing", Envelope{}), ErrActorNotFound)

	require.NoError(t, registry.Retire(first.ID()))
	_, ok = registry.Lookup(first.ID())
	assert.False(t, ok)
	_, ok = registry.FindName("echo")
	assert.False(t, ok)
	assert.True(t, first.Mailbox().Released())
	assert.Equal(t, 1, registry.Count())
	assert.Equal(t, uint64(2), registry.Created())

	assert.ErrorIs(t, registry.Retire(first.ID()), ErrActorNotFound)
	assert.ErrorIs(t, registry.Send(first.ID(), Envelope{}), ErrActorNotFound)
}

func TestRetireMarksMailboxBeforeLookupFails(t *testing.T) {
	registry := NewRegistry(1, NewGlobalQueue())
	actors := make([]*Context, 200)
	for i := range actors {
		c, err := registry.Register(&echoHandler{}, "")
		require.NoError(t, err)
		actors[i] = c
	}

	var unmarked int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, c := range actors {
			for {
				if _, ok := registry.Lookup(c.ID()); !ok {
					if !c.Mailbox().Released() {
						unmarked++
					}
					break
				}
				runtime.Gosched()
			}
		}
	}()

	for _, c := range actors {
		require.NoError(t, registry.Retire(c.ID()))
	}
	wg.Wait()
	assert.Zero(t, unmarked, "a retired actor's mailbox was not yet marked for release")
}

func TestRegistryReport(t *testing.T) {
	gq := NewGlobalQueue()
	registry := NewRegistry(1, gq)

	// no logger registered: dropped silently
	registry.Report(0, "lost %d", 1)
	assert.True(t, gq.Empty())

	logger, err := registry.Register(&echoHandler{}, LoggerName)
	require.NoError(t, err)

	registry.Report(0x01000005, "May overload, message queue length = %d", 2048)

	env, ok := logger.Mailbox().Pop()
	require.True(t, ok)
	assert.Equal(t, MessageTypeText, env.Type())
	assert.Equal(t, ActorID(0x01000005), env.Source)
	assert.Equal(t, "May overload, message queue length = 2048", string(env.Data))
	assert.Equal(t, len(env.Data), env.Len())
}

func TestContext(t *testing.T) {
	registry := NewRegistry(1, NewGlobalQueue())

	t.Run("sessions are positive and wrap", func(t *testing.T) {
		c, err := registry.Register(&echoHandler{}, "")
		require.NoError(t, err)

		assert.Equal(t, int32(1), c.NewSession())
		assert.Equal(t, int32(2), c.NewSession())

		c.session.Store(1<<31 - 1)
		assert.Equal(t, int32(1), c.NewSession())
	})

	t.Run("invoke recovers panics", func(t *testing.T) {
		c, err := registry.Register(HandlerFunc(func(context.Context, *Envelope) error {
			panic("boom")
		}), "")
		require.NoError(t, err)

		err = c.Invoke(context.Background(), &Envelope{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.Equal(t, uint64(1), c.Stats().MessagesProcessed)
	})

	t.Run("invoke returns handler errors", func(t *testing.T) {
		errBoom := errors.New("boom")
		c, err := registry.Register(HandlerFunc(func(context.Context, *Envelope) error {
			return errBoom
		}), "")
		require.NoError(t, err)

		assert.ErrorIs(t, c.Invoke(context.Background(), &Envelope{}), errBoom)
	})

	t.Run("endless flag", func(t *testing.T) {
		c, err := registry.Register(&echoHandler{}, "")
		require.NoError(t, err)
		assert.False(t, c.Endless())
		registry.MarkEndless(c.ID())
		assert.True(t, c.Stats().Endless)
	})
}

func TestEnvelope(t *testing.T) {
	env := NewEnvelope(7, 3, MessageTypeSocket, []byte("abcd"))
	assert.Equal(t, MessageTypeSocket, env.Type())
	assert.Equal(t, 4, env.Len())
	assert.Equal(t, "socket", env.Type().String())
	assert.Equal(t, ":00000007", env.Source.String())

	big := PackSize(MessageTypeError, 1<<40)
	assert.Equal(t, MessageTypeError, MessageType(big>>TypeShift))
	assert.Equal(t, uint64(1<<40), big&SizeMask)
}
