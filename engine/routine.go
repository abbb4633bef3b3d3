package engine

import (
	"context"
	"fmt"
)

// routine runs one long-lived goroutine as a bootstrap.Service.
type routine struct {
	name   string
	run    func(ctx context.Context) error
	onStop func()

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (r *routine) Name() string {
	return r.name
}

// Start launches run on a context detached from the startup deadline.
func (r *routine) Start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		r.err = r.run(ctx)
	}()
	return nil
}

func (r *routine) Stop(ctx context.Context) error {
	if r.onStop != nil {
		r.onStop()
	}
	r.cancel()
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", r.name, ctx.Err())
	}
}
