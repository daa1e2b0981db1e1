package client

import (
	"sync"
)

const defaultErrorCollectorCap = 100

// RowError pairs a failed mutation with the error its destination
// reported for it.
type RowError struct {
	Mutation *Mutation
	Err      error
}

// errorCollector is a bounded sink of per-row errors. Add never blocks
// and never fails; once the capacity is reached further errors are
// dropped and the overflow flag sticks until the next Drain.
type errorCollector struct {
	lock     sync.Mutex
	capacity int
	errs     []*RowError
	overflow bool
}

func newErrorCollector(capacity int) *errorCollector {
	if capacity <= 0 {
		capacity = defaultErrorCollectorCap
	}
	return &errorCollector{capacity: capacity}
}

func (c *errorCollector) Add(m *Mutation, err error) {
	metricRowErrors.Inc()
	c.lock.Lock()
	defer c.lock.Unlock()
	if len(c.errs) >= c.capacity {
		c.overflow = true
		return
	}
	c.errs = append(c.errs, &RowError{Mutation: m, Err: err})
}

func (c *errorCollector) Count() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.errs)
}

// Drain returns the collected errors plus the overflow flag and resets
// both.
func (c *errorCollector) Drain() ([]*RowError, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	errs := c.errs
	overflow := c.overflow
	c.errs = nil
	c.overflow = false
	return errs, overflow
}
