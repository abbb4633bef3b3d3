package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/najoast/skyrt/core"
	"github.com/najoast/skyrt/engine"
	"github.com/najoast/skyrt/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func text(source core.ActorID, s string) *core.Envelope {
	env := core.NewEnvelope(source, 0, core.MessageTypeText, []byte(s))
	return &env
}

func TestServiceFormatsLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf)

	require.NoError(t, s.HandleMessage(context.Background(), text(0x0100000a, "May overload, message queue length = 2048")))
	require.NoError(t, s.HandleMessage(context.Background(), text(0, "boot")))

	assert.Equal(t,
		"[:0100000a] May overload, message queue length = 2048\n[:00000000] boot\n",
		buf.String())
}

func TestServiceReceivesReports(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf)
	registry := core.NewRegistry(1, core.NewGlobalQueue())
	c, err := s.Register(registry)
	require.NoError(t, err)

	id, ok := registry.FindName(core.LoggerName)
	require.True(t, ok)
	assert.Equal(t, c.ID(), id)

	registry.Report(0x01000002, "handler %s failed", "echo")
	env, ok := c.Mailbox().Pop()
	require.True(t, ok)
	require.NoError(t, c.Invoke(context.Background(), &env))

	assert.Equal(t, "[:01000002] handler echo failed\n", buf.String())
}

func TestServiceReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.log")

	s, err := New(path, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	require.NoError(t, s.HandleMessage(context.Background(), text(1, "before")))
	require.NoError(t, os.Rename(path, path+".1"))

	system := core.NewEnvelope(0, 0, core.MessageTypeSystem, nil)
	require.NoError(t, s.HandleMessage(context.Background(), &system))
	require.NoError(t, s.HandleMessage(context.Background(), text(1, "after")))

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "[:00000001] before\n", string(rotated))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[:00000001] after\n", string(current))
}

func TestServiceDetectsRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.log")

	s, err := New(path, nil)
	require.NoError(t, err)
	registry := core.NewRegistry(1, core.NewGlobalQueue())
	c, err := s.Register(registry)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	require.NoError(t, os.Rename(path, path+".1"))

	require.Eventually(t, func() bool {
		env, ok := c.Mailbox().Pop()
		return ok && env.Type() == core.MessageTypeSystem
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRequestReopenWithoutRegistry(t *testing.T) {
	s := NewWriter(&bytes.Buffer{})
	assert.ErrorIs(t, s.RequestReopen(), core.ErrActorNotFound)
	assert.Equal(t, core.LoggerName, s.Name())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestServiceIgnoresReopenAfterStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.log")
	s, err := New(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, os.Remove(path))

	system := core.NewEnvelope(0, 0, core.MessageTypeSystem, nil)
	require.NoError(t, s.HandleMessage(context.Background(), &system))
	require.NoError(t, s.HandleMessage(context.Background(), text(1, "late")))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no file reopened after stop")
}

func TestServiceStopsWhileWorkersWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.log")
	s, err := New(path, nil)
	require.NoError(t, err)

	cfg := engine.DefaultConfig()
	cfg.Threads = 4
	e, err := engine.New(cfg, engine.WithLogger(log.DiscardLogger))
	require.NoError(t, err)
	_, err = s.Register(e.Registry())
	require.NoError(t, err)
	require.NoError(t, e.Register(s))
	require.NoError(t, e.Start(context.Background()))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = s.RequestReopen()
			e.Registry().Report(1, "report while stopping")
			time.Sleep(50 * time.Microsecond)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	close(stop)
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "report while stopping")
}
