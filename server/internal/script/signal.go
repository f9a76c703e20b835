package script

import "sync"

// Signal is a one-shot broadcast. Once triggered it stays triggered.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Shutdown is the process-wide stop signal every resource observes unless
// Options name another one.
var Shutdown = NewSignal()

// Trigger fires the signal. Extra calls are no-ops.
func (s *Signal) Trigger() {
	s.once.Do(func() { close(s.ch) })
}

// Done is closed once the signal has been triggered.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

func (s *Signal) Triggered() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
