package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/vocdoni/maci-coordinator/coordinator"
	"github.com/vocdoni/maci-coordinator/log"
	"github.com/vocdoni/maci-coordinator/maci"
)

// CoordinatorService runs a single round in the background.
type CoordinatorService struct {
	Coordinator *coordinator.Coordinator
	req         *coordinator.Request

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	result *maci.MACI
	err    error
}

// NewCoordinator creates a service that runs req with c.
func NewCoordinator(c *coordinator.Coordinator, req *coordinator.Request) *CoordinatorService {
	return &CoordinatorService{Coordinator: c, req: req}
}

// Start runs the round in a new goroutine. It returns an error if the
// service was already started.
func (cs *CoordinatorService) Start(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.done != nil {
		return fmt.Errorf("service already started")
	}
	var runCtx context.Context
	runCtx, cs.cancel = context.WithCancel(ctx)
	cs.done = make(chan struct{})
	go func() {
		defer close(cs.done)
		m, err := cs.Coordinator.Run(runCtx, cs.req)
		if err != nil {
			log.Warnw("round stopped", "round", cs.req.ID.String(), "error", err.Error())
		}
		cs.mu.Lock()
		cs.result, cs.err = m, err
		cs.mu.Unlock()
	}()
	return nil
}

// Wait blocks until the round finishes or ctx is done, and returns the
// final state of the round.
func (cs *CoordinatorService) Wait(ctx context.Context) (*maci.MACI, error) {
	cs.mu.Lock()
	done := cs.done
	cs.mu.Unlock()
	if done == nil {
		return nil, fmt.Errorf("service not started")
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.result, cs.err
}

// Stop cancels the round and waits for it to persist its progress.
func (cs *CoordinatorService) Stop() {
	cs.mu.Lock()
	cancel, done := cs.cancel, cs.done
	cs.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
