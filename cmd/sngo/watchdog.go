package main

import (
	"context"

	"github.com/najoast/skyrt/core"
	"github.com/najoast/skyrt/gate"
	"github.com/najoast/skyrt/log"
)

const welcome = "Welcome to sngo echo server!"

// echoWatchdog answers every packet with "Echo: " plus the packet body.
type echoWatchdog struct {
	gate   *gate.Gate
	logger log.Logger
}

func newEchoWatchdog(g *gate.Gate, logger log.Logger) *echoWatchdog {
	return &echoWatchdog{gate: g, logger: logger.With("service", "watchdog")}
}

func (w *echoWatchdog) HandleMessage(_ context.Context, env *core.Envelope) error {
	if env.Type() != core.MessageTypeSocket {
		return nil
	}
	ev, err := gate.ParseEvent(env.Data)
	if err != nil {
		return err
	}

	switch ev.Type {
	case gate.EventAccept:
		w.logger.Debugf("connection %d from %s", ev.ConnID, ev.Data)
		return w.gate.Write(ev.ConnID, []byte(welcome))
	case gate.EventData:
		return w.gate.Write(ev.ConnID, append([]byte("Echo: "), ev.Data...))
	case gate.EventError:
		w.logger.Warnf("connection %d error: %s", ev.ConnID, ev.Data)
	case gate.EventClose:
		w.logger.Debugf("connection %d closed", ev.ConnID)
	}
	return nil
}
