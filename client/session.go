package client

import (
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/tabletstore/client-go/util/log"
)

type FlushMode int32

const (
	// AutoFlushSync flushes synchronously after every Apply.
	AutoFlushSync FlushMode = iota + 1
	// ManualFlush buffers until the caller flushes explicitly.
	ManualFlush
)

func (m FlushMode) Valid() bool {
	return m == AutoFlushSync || m == ManualFlush
}

// Session orchestrates a sequence of batcher generations. There is
// always exactly one current (open) batcher; flushing swaps it for a
// fresh one and tracks the detached batcher until its network call
// completes.
type Session struct {
	client    *Client
	collector *errorCollector

	lock     sync.Mutex
	cur      *batcher
	inFlight map[*batcher]struct{}
	mode     FlushMode
	timeout  time.Duration
	closed   bool
}

func newSession(c *Client) *Session {
	collector := newErrorCollector(c.config.ErrorCollectorCap)
	return &Session{
		client:    c,
		collector: collector,
		cur:       newBatcher(c, collector, 0),
		inFlight:  make(map[*batcher]struct{}),
		mode:      AutoFlushSync,
	}
}

// SetFlushMode switches the buffering policy. Refused while writes are
// buffered so already-applied mutations keep unambiguous semantics.
func (s *Session) SetFlushMode(mode FlushMode) error {
	if !mode.Valid() {
		return errors.BadRequestf("unknown flush mode %d", mode)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cur.HasPendingOperations() {
		return errors.NotValidf("cannot change flush mode with buffered writes")
	}
	s.mode = mode
	return nil
}

// SetTimeout overrides the session write timeout. Zero inherits the
// client default.
func (s *Session) SetTimeout(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.timeout = d
}

// Apply queues a mutation into the current batcher. Under
// AutoFlushSync the batch is flushed immediately and the aggregate
// status returned.
func (s *Session) Apply(m *Mutation) error {
	if m == nil || !m.typ.Valid() {
		return errors.BadRequestf("invalid mutation")
	}
	if m.batched {
		return errors.NotValidf("mutation was already applied")
	}
	if !m.keySet() {
		return errors.NotValidf("primary key of %s on table %s is not fully set", m.typ, m.table.Name())
	}

	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return errors.NotValidf("session is closed")
	}
	if err := s.cur.Add(m); err != nil {
		s.lock.Unlock()
		return err
	}
	auto := s.mode == AutoFlushSync
	s.lock.Unlock()

	if auto {
		return s.Flush()
	}
	return nil
}

// Flush sends the buffered mutations and blocks until the batch
// completes.
func (s *Session) Flush() error {
	done := make(chan error, 1)
	s.FlushAsync(func(err error) {
		done <- err
	})
	return <-done
}

// FlushAsync atomically swaps in a fresh batcher, registers the old
// one as in-flight and flushes it outside the session lock. cb fires
// once with the aggregate status.
func (s *Session) FlushAsync(cb func(error)) {
	s.lock.Lock()
	old := s.cur
	s.cur = newBatcher(s.client, s.collector, s.timeout)
	s.inFlight[old] = struct{}{}
	s.lock.Unlock()

	old.FlushAsync(func(err error) {
		s.lock.Lock()
		delete(s.inFlight, old)
		s.lock.Unlock()
		if cb != nil {
			cb(err)
		}
	})
}

// HasPendingOperations reports buffered writes or in-flight flushes.
func (s *Session) HasPendingOperations() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cur.HasPendingOperations() || len(s.inFlight) > 0
}

func (s *Session) CountBufferedOperations() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cur.CountBufferedOperations()
}

func (s *Session) CountPendingErrors() int {
	return s.collector.Count()
}

// GetPendingErrors drains the collected per-row errors, also returning
// whether the collector overflowed since the last drain.
func (s *Session) GetPendingErrors() ([]*RowError, bool) {
	return s.collector.Drain()
}

// Close abandons the session. Buffered, unflushed writes are aborted
// with a warning rather than sent.
func (s *Session) Close() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	cur := s.cur
	s.lock.Unlock()

	if cur.HasPendingOperations() {
		log.Warn("closing session with %d buffered operations, aborting them", cur.CountBufferedOperations())
		cur.Abort()
	}
}
