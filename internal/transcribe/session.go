package transcribe

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is one run of the transcription engine, from launch until the
// streaming loop exits.
type Session struct {
	ID        string
	StartedAt time.Time

	// streaming is the cooperative cancellation signal. The read loop checks it
	// between lines; clearing it alone does not unblock a pending read.
	streaming atomic.Bool

	// procMu guards proc only. The slot is emptied by whichever of Stop or the
	// supervisor's cleanup gets there first. A failed termination puts the
	// process back so the other path retries.
	procMu sync.Mutex
	proc   Process

	// termMu serializes termination attempts.
	termMu sync.Mutex

	// engine is never cleared; the streaming loop reads from and closes it.
	engine Process

	done chan struct{}
	err  error
}

func newSession(proc Process) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		proc:      proc,
		engine:    proc,
		done:      make(chan struct{}),
	}
	s.streaming.Store(true)
	return s
}

// Streaming reports whether the session has not been asked to stop.
func (s *Session) Streaming() bool { return s.streaming.Load() }

// Cancel clears the streaming flag.
func (s *Session) Cancel() { s.streaming.Store(false) }

// Done is closed when the streaming loop has exited and cleanup has run.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the streaming loop's terminal error. Only valid after Done.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// takeProcess empties the process slot and returns what was in it.
func (s *Session) takeProcess() Process {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	p := s.proc
	s.proc = nil
	return p
}

// putProcess refills an empty slot.
func (s *Session) putProcess(p Process) {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	if s.proc == nil {
		s.proc = p
	}
}

// HasProcess reports whether the process slot is still occupied.
func (s *Session) HasProcess() bool {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	return s.proc != nil
}

// Terminate takes the engine out of the session and terminates it. It returns
// false if another path already took it. If termination fails the engine is
// left in the slot for the next attempt.
func (s *Session) Terminate(timeout time.Duration) (bool, error) {
	s.termMu.Lock()
	defer s.termMu.Unlock()

	p := s.takeProcess()
	if p == nil {
		return false, nil
	}
	if err := p.Terminate(timeout); err != nil {
		s.putProcess(p)
		return true, err
	}
	return true, nil
}

func (s *Session) finish(err error) {
	s.err = err
	close(s.done)
}
