package ws

import "sync"

// stopper coordinates shutdown of the two piping goroutines. It is a
// protected boolean with functionality to set, check, and wait.
type stopper struct {
	cond    sync.Cond
	stopped bool
}

func newStopper() *stopper {
	return &stopper{
		cond: sync.Cond{L: &sync.Mutex{}},
	}
}

// stop sets this stopper. It can be called multiple times; only the first
// call has any effect.
func (s *stopper) stop() {
	s.cond.L.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.cond.L.Unlock()
}

// isStopped checks this stopper without blocking.
func (s *stopper) isStopped() bool {
	s.cond.L.Lock()
	stopped := s.stopped
	s.cond.L.Unlock()
	return stopped
}

// wait blocks until the stopper is stopped.
func (s *stopper) wait() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	for !s.stopped {
		s.cond.Wait()
	}
}
