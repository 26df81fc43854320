package trader

import (
	"context"
	"sync"
)

// Supervisor keeps at most one loop running. Launching a new loop stops
// the previous one and waits for it to reach Stopped first.
type Supervisor struct {
	mu     sync.Mutex
	active *Loop
}

func NewSupervisor() *Supervisor { return &Supervisor{} }

func (s *Supervisor) Launch(ctx context.Context, l *Loop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.active; prev != nil {
		prev.Stop()
		prev.Wait()
	}
	s.active = l
	return l.Start(ctx)
}

// Stop stops the active loop, if any, and waits for it.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
		prev.Wait()
	}
}

// Active returns the most recently launched loop, or nil.
func (s *Supervisor) Active() *Loop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
