package engine

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/najoast/skyrt/bootstrap"
	"github.com/najoast/skyrt/core"
	"github.com/najoast/skyrt/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/atomic"
)

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Threads = 4
	cfg.StallInterval = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg, WithLogger(log.DiscardLogger), WithMeter(noop.NewMeterProvider().Meter("test")))
	require.NoError(t, err)
	return e
}

func stopEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
}

// orderChecker fails if two workers run it at once or if any source's
// sequence numbers arrive out of order.
type orderChecker struct {
	busy       atomic.Bool
	last       map[core.ActorID]uint32
	handled    *atomic.Int64
	violations *atomic.Int64
}

func (o *orderChecker) HandleMessage(_ context.Context, env *core.Envelope) error {
	if !o.busy.CompareAndSwap(false, true) {
		o.violations.Inc()
		return nil
	}
	defer o.busy.Store(false)

	seq := binary.BigEndian.Uint32(env.Data)
	if seq != o.last[env.Source]+1 {
		o.violations.Inc()
	}
	o.last[env.Source] = seq
	o.handled.Inc()
	return nil
}

func TestEngineSingleOwnerStress(t *testing.T) {
	const (
		actors    = 50
		producers = 4
		perActor  = 500
	)

	e := newTestEngine(t, func(c *Config) { c.Threads = 8 })
	var handled, violations atomic.Int64

	ids := make([]core.ActorID, 0, actors)
	for i := 0; i < actors; i++ {
		c, err := e.Registry().Register(&orderChecker{
			last:       make(map[core.ActorID]uint32),
			handled:    &handled,
			violations: &violations,
		}, "")
		require.NoError(t, err)
		ids = append(ids, c.ID())
	}

	require.NoError(t, e.Start(context.Background()))
	defer stopEngine(t, e)

	var wg sync.WaitGroup
	for p := 1; p <= producers; p++ {
		wg.Add(1)
		go func(source core.ActorID) {
			defer wg.Done()
			for seq := uint32(1); seq <= perActor; seq++ {
				for _, id := range ids {
					data := make([]byte, 4)
					binary.BigEndian.PutUint32(data, seq)
					if err := e.Registry().Send(id, core.NewEnvelope(source, 0, core.MessageTypeText, data)); err != nil {
						t.Errorf("send: %v", err)
						return
					}
				}
			}
		}(core.ActorID(0x7f000000 + p))
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return handled.Load() == actors*producers*perActor
	}, 10*time.Second, 5*time.Millisecond)
	assert.Zero(t, violations.Load())
}

func TestEngineWakesSleepingWorkers(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.Threads = 2 })

	got := make(chan int32, 1)
	c, err := e.Registry().Register(core.HandlerFunc(func(_ context.Context, env *core.Envelope) error {
		got <- env.Session
		return nil
	}), "")
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	defer stopEngine(t, e)

	require.Eventually(t, func() bool { return e.Waker().Sleeping() == 2 }, 2*time.Second, time.Millisecond)
	require.NoError(t, e.Registry().Send(c.ID(), core.NewEnvelope(0, 5, core.MessageTypeText, nil)))

	select {
	case session := <-got:
		assert.Equal(t, int32(5), session)
	case <-time.After(2 * time.Second):
		t.Fatal("no worker woke up")
	}
}

func TestEngineDeliversTimeouts(t *testing.T) {
	e := newTestEngine(t, nil)

	got := make(chan core.Envelope, 2)
	c, err := e.Registry().Register(core.HandlerFunc(func(_ context.Context, env *core.Envelope) error {
		got <- *env
		return nil
	}), "")
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	defer stopEngine(t, e)

	e.Timeout(c.ID(), 2, 77)
	e.Timeout(c.ID(), 0, 78)

	for _, want := range []int32{78, 77} {
		select {
		case env := <-got:
			assert.Equal(t, core.MessageTypeResponse, env.Type())
			assert.Equal(t, core.ActorID(0), env.Source)
			assert.Equal(t, want, env.Session)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout %d not delivered", want)
		}
	}
	assert.Zero(t, e.Timer().Pending())
}

func TestEngineExitWhenIdle(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.ExitWhenIdle = true })
	c, err := e.Registry().Register(nopHandler, "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	require.NoError(t, e.Registry().Retire(c.ID()))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not exit")
	}
	<-e.Idle()
	assert.Zero(t, e.Registry().Count())
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)
}

func TestEngineLifecycle(t *testing.T) {
	_, err := New(Config{Threads: 0})
	require.ErrorIs(t, err, ErrInvalidThreads)

	e := newTestEngine(t, nil)
	var order []string
	require.NoError(t, e.Register(bootstrap.ServiceFunc{
		ServiceName: "gate",
		OnStart:     func(context.Context) error { order = append(order, "start"); return nil },
		OnStop:      func(context.Context) error { order = append(order, "stop"); return nil },
	}))

	require.NoError(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyStarted)
	assert.ErrorIs(t, e.Register(bootstrap.ServiceFunc{ServiceName: "late"}), ErrAlreadyStarted)

	stopEngine(t, e)
	assert.Equal(t, []string{"start", "stop"}, order)
}
