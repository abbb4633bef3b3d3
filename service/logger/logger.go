// Package logger implements the diagnostic sink actor. It is registered
// under the well-known name "logger" and writes every text envelope it
// receives as one line tagged with the sender's handle.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/najoast/skyrt/core"
	"github.com/najoast/skyrt/log"
)

// Service is the logger actor. A System envelope makes it reopen its file,
// which is how log rotation is picked up.
type Service struct {
	path   string
	logger log.Logger

	// mu guards out, file and closed. Handlers run on workers while Stop
	// runs on the lifecycle goroutine.
	mu     sync.Mutex
	out    io.Writer
	file   *os.File
	closed bool

	registry *core.Registry
	id       core.ActorID

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
}

var _ core.MessageHandler = (*Service)(nil)

// New creates the logger service writing to path, or to stdout when path
// is empty.
func New(path string, logger log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.DiscardLogger
	}
	s := &Service{path: path, logger: logger, out: os.Stdout}
	if path != "" {
		if err := s.open(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewWriter creates a logger service writing to w. It never reopens.
func NewWriter(w io.Writer) *Service {
	return &Service{out: w, logger: log.DiscardLogger}
}

// Register adds the service to registry under core.LoggerName.
func (s *Service) Register(registry *core.Registry) (*core.Context, error) {
	c, err := registry.Register(s, core.LoggerName)
	if err != nil {
		return nil, err
	}
	s.registry = registry
	s.id = c.ID()
	return c, nil
}

// HandleMessage writes text envelopes and reopens the file on System ones.
// After Stop, lines go to stderr and reopen requests are ignored.
func (s *Service) HandleMessage(_ context.Context, env *core.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if env.Type() == core.MessageTypeSystem {
		if s.closed {
			return nil
		}
		return s.reopen()
	}
	out := s.out
	if s.closed {
		out = os.Stderr
	}
	_, err := fmt.Fprintf(out, "[%s] %s\n", env.Source, env.Data)
	return err
}

// RequestReopen asks the actor to reopen its file. It is safe to call from
// any goroutine, for example a SIGHUP handler.
func (s *Service) RequestReopen() error {
	if s.registry == nil {
		return core.ErrActorNotFound
	}
	return s.registry.Send(s.id, core.NewEnvelope(0, 0, core.MessageTypeSystem, nil))
}

// Name returns the lifecycle name of the service.
func (s *Service) Name() string {
	return core.LoggerName
}

// Start watches the log file's directory and requests a reopen when the
// file is renamed or removed by a rotation tool.
func (s *Service) Start(context.Context) error {
	if s.path == "" {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("logger: create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(s.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("logger: watch %s: %w", s.path, err)
	}

	s.fsw = fsw
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.watch()
	return nil
}

// Stop stops the rotation watch and closes the file.
func (s *Service) Stop(context.Context) error {
	var err error
	if s.fsw != nil {
		close(s.done)
		err = s.fsw.Close()
		s.wg.Wait()
		s.fsw = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
		s.out = os.Stderr
	}
	return err
}

func (s *Service) watch() {
	defer s.wg.Done()
	target := filepath.Clean(s.path)

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				if err := s.RequestReopen(); err != nil {
					s.logger.Warnf("logger: reopen request failed: %v", err)
				}
			}
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.logger.Warnf("logger: watcher error: %v", err)
		}
	}
}

func (s *Service) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logger: open %s: %w", s.path, err)
	}
	s.file = f
	s.out = f
	return nil
}

// reopen requires s.mu.
func (s *Service) reopen() error {
	if s.path == "" {
		return nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	return s.open()
}
