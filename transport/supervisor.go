package transport

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Supervisor runs the loops serving an endpoint (the acceptor, the async timeout sweeper)
// and stops all of them as soon as any fails.
type Supervisor struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSupervisor(parent context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	group, ctx := errgroup.WithContext(ctx)

	return &Supervisor{
		group:  group,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go starts the loop. The context passed into it is done once the supervisor is stopped or
// any of the loops returned an error.
func (s *Supervisor) Go(loop func(ctx context.Context) error) {
	s.group.Go(func() error {
		return loop(s.ctx)
	})
}

// Context is done whenever the loops must exit.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

func (s *Supervisor) Stop() {
	s.cancel()
}

// Wait blocks until every loop returns and reports the first error, if any. Cancellation
// isn't considered an error.
func (s *Supervisor) Wait() error {
	err := s.group.Wait()
	s.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
