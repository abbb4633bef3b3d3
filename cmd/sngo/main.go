// Command sngo runs the actor runtime with the logger service and, when
// enabled, a TCP gate whose watchdog echoes every packet back.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/najoast/skyrt/config"
	"github.com/najoast/skyrt/engine"
	"github.com/najoast/skyrt/gate"
	"github.com/najoast/skyrt/log"
	logsvc "github.com/najoast/skyrt/service/logger"
	"go.opentelemetry.io/otel"
)

func main() {
	configFile := flag.String("config", "", "configuration file (yaml or json)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "sngo: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	loader := config.NewLoader()
	cfg, err := load(loader, configFile)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(cfg.Log.Output)
	if err != nil {
		return err
	}
	defer closeOut()
	zl := log.NewZap(cfg.Log.Level.Level(), out)
	defer func() { _ = zl.Sync() }()
	logger := zl.With("app", cfg.App.Name)

	if configFile != "" {
		watcher, err := config.NewWatcher(configFile, loader, logger)
		if err != nil {
			return err
		}
		watcher.OnLevelChange(func(_, level config.LogLevel) {
			zl.SetLevel(level.Level())
		})
		if err := watcher.Start(); err != nil {
			return err
		}
		defer func() { _ = watcher.Stop() }()
	}

	e, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	sink, err := newLoggerService(cfg.Log.Logfile, logger)
	if err != nil {
		return err
	}
	if _, err := sink.Register(e.Registry()); err != nil {
		return err
	}
	if err := e.Register(sink); err != nil {
		return err
	}

	if cfg.Gate.Enabled {
		g := gate.New(gate.Config{
			Address:        cfg.Gate.Addr(),
			Watchdog:       cfg.Gate.Watchdog,
			MaxConnections: cfg.Gate.MaxConnections,
			ReadTimeout:    cfg.Gate.ReadTimeout,
		}, e.Registry(), e.Waker(), logger.With("service", "gate"))
		if _, err := e.Registry().Register(newEchoWatchdog(g, logger), cfg.Gate.Watchdog); err != nil {
			return err
		}
		if err := e.Register(g); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reopenOnHangup(ctx, sink, logger)

	logger.Infof("starting %s (%s), %d workers", cfg.App.Name, cfg.App.Environment, cfg.Engine.Threads)
	return e.Run(ctx)
}

func load(loader *config.Loader, configFile string) (*config.Config, error) {
	if configFile != "" {
		return loader.LoadFromFile(configFile)
	}
	return loader.AutoLoad()
}

func newEngine(cfg *config.Config, logger log.Logger) (*engine.Engine, error) {
	ecfg := engine.DefaultConfig()
	ecfg.Threads = cfg.Engine.Threads
	if len(cfg.Engine.Weights) > 0 {
		ecfg.Weights = cfg.Engine.Weights
	}
	ecfg.StallInterval = cfg.Engine.StallInterval
	ecfg.OverloadThreshold = cfg.Engine.OverloadThreshold
	ecfg.MailboxCapacity = cfg.Engine.MailboxCapacity
	ecfg.WakeBusy = cfg.Engine.WakeBusy
	ecfg.Harbor = uint8(cfg.Engine.Harbor)
	ecfg.ExitWhenIdle = cfg.Engine.ExitWhenIdle

	opts := []engine.Option{engine.WithLogger(logger.With("service", "engine"))}
	if cfg.Monitor.Metrics {
		opts = append(opts, engine.WithMeter(otel.GetMeterProvider().Meter(cfg.Monitor.MeterName)))
	}
	return engine.New(ecfg, opts...)
}

func newLoggerService(path string, logger log.Logger) (*logsvc.Service, error) {
	return logsvc.New(path, logger.With("service", "logger"))
}

func openOutput(output string) (io.Writer, func(), error) {
	switch output {
	case "", "stdout":
		return os.Stdout, func() {}, nil
	case "stderr":
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// reopenOnHangup forwards SIGHUP to the logger actor until ctx is done.
func reopenOnHangup(ctx context.Context, sink *logsvc.Service, logger log.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := sink.RequestReopen(); err != nil {
				logger.Warnf("failed to reopen log file: %v", err)
			}
		}
	}
}
