package client

import (
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/tabletstore/client-go/model/pkg/kvrpcpb"
	"github.com/tabletstore/client-go/model/pkg/metapb"
	"github.com/tabletstore/client-go/util/log"
)

type batcherState int32

const (
	batcherOpen batcherState = iota
	batcherFlushing
	batcherDone
)

// batcher buffers one generation of mutations and executes exactly one
// flush. It is never reused; every flush detaches the batcher from its
// session and the session creates a fresh one.
//
// Aggregate status policy: per-row errors reported by a destination go
// to the error collector and do NOT fail the flush. The flush fails
// only when it was aborted, or when no destination accepted its
// sub-batch at all (resolution or transport failure for every group).
type batcher struct {
	client    *Client
	collector *errorCollector
	// timeout overrides the client write timeout when positive
	timeout time.Duration

	lock    sync.Mutex
	state   batcherState
	pending []*Mutation
	cb      func(error)
	aborted bool
}

func newBatcher(client *Client, collector *errorCollector, timeout time.Duration) *batcher {
	return &batcher{client: client, collector: collector, timeout: timeout}
}

func (b *batcher) writeTimeout() time.Duration {
	if b.timeout > 0 {
		return b.timeout
	}
	return b.client.config.WriteTimeout
}

// Add appends a mutation. Valid only while the batcher is open.
func (b *batcher) Add(m *Mutation) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.state != batcherOpen {
		return errors.NotValidf("batcher is already flushing")
	}
	m.batched = true
	b.pending = append(b.pending, m)
	return nil
}

func (b *batcher) HasPendingOperations() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.state != batcherDone && len(b.pending) > 0
}

func (b *batcher) CountBufferedOperations() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.state == batcherDone {
		return 0
	}
	return len(b.pending)
}

// FlushAsync moves the batcher to FLUSHING and dispatches the buffered
// mutations in the background. cb fires exactly once with the
// aggregate status. The batcher lock is never held across a send.
func (b *batcher) FlushAsync(cb func(error)) {
	b.lock.Lock()
	if b.state != batcherOpen {
		b.lock.Unlock()
		if cb != nil {
			cb(errors.NotValidf("batcher was already flushed"))
		}
		return
	}
	b.state = batcherFlushing
	b.cb = cb
	muts := b.pending
	b.lock.Unlock()

	go b.flush(muts)
}

// Abort cancels the flush best-effort. Results of calls already on the
// wire are discarded when they complete. Idempotent.
func (b *batcher) Abort() {
	b.lock.Lock()
	if b.state == batcherDone {
		b.lock.Unlock()
		return
	}
	b.aborted = true
	cb := b.cb
	b.cb = nil
	b.state = batcherDone
	b.lock.Unlock()
	if cb != nil {
		cb(ErrFlushAborted)
	}
}

type tabletGroup struct {
	tablet *RemoteTablet
	muts   []*Mutation
	ops    []*kvrpcpb.BatchOp
}

func (b *batcher) flush(muts []*Mutation) {
	if len(muts) == 0 {
		b.finish(nil)
		return
	}

	// Resolve every mutation's destination before anything is sent: a
	// batch is never partially sent while resolution is outstanding.
	groups := make(map[uint64]*tabletGroup)
	var order []uint64
	var lastResolveErr error
	resolved := 0
	for _, m := range muts {
		op, err := m.encode()
		if err != nil {
			b.collector.Add(m, err)
			lastResolveErr = err
			continue
		}
		rt, err := b.client.metaCache.LookupTabletByKey(m.table.Name(), metapb.OrdinaryKey(op.GetKv().GetKey()))
		if err != nil {
			b.collector.Add(m, err)
			lastResolveErr = err
			continue
		}
		g, ok := groups[rt.ID()]
		if !ok {
			g = &tabletGroup{tablet: rt}
			groups[rt.ID()] = g
			order = append(order, rt.ID())
		}
		g.muts = append(g.muts, m)
		g.ops = append(g.ops, op)
		resolved++
	}
	if resolved == 0 {
		b.finish(errors.Annotate(lastResolveErr, "no mutation could be resolved"))
		return
	}

	if b.isAborted() {
		b.finish(ErrFlushAborted)
		return
	}

	// one write task per destination, fan the results back in
	type sent struct {
		group *tabletGroup
		task  *writeTask
		err   error
	}
	var sends []*sent
	for _, id := range order {
		g := groups[id]
		addr, err := b.resolveServer(g.tablet)
		if err != nil {
			sends = append(sends, &sent{group: g, err: err})
			continue
		}
		req := &kvrpcpb.BatchRequest{
			Header: &kvrpcpb.RequestHeader{TabletId: g.tablet.ID()},
			Ops:    g.ops,
		}
		task := getWriteTask().init(b.client, addr, req, b.writeTimeout())
		if err = b.client.Submit(task); err != nil {
			putWriteTask(task)
			sends = append(sends, &sent{group: g, err: err})
			continue
		}
		sends = append(sends, &sent{group: g, task: task})
	}

	failedDests := 0
	var lastDestErr error
	for _, s := range sends {
		if s.task != nil {
			s.err = s.task.Wait()
		}
		if s.err != nil {
			failedDests++
			lastDestErr = s.err
			for _, m := range s.group.muts {
				b.collector.Add(m, s.err)
			}
			if s.task != nil {
				putWriteTask(s.task)
			}
			continue
		}
		b.handleResponse(s.group, s.task.resp)
		putWriteTask(s.task)
	}

	metricFlushes.Inc()
	metricFlushedMutations.Add(float64(resolved))

	if b.isAborted() {
		b.finish(ErrFlushAborted)
		return
	}
	if failedDests == len(sends) {
		b.finish(errors.Annotate(lastDestErr, "flush reached no destination"))
		return
	}
	b.finish(nil)
}

func (b *batcher) handleResponse(g *tabletGroup, resp *kvrpcpb.BatchResponse) {
	if e := resp.GetHeader().GetError(); e != nil {
		if e.GetTabletNotFound() {
			// stale location, refetch on next lookup
			b.client.metaCache.EvictTablet(g.tablet.ID())
		}
		err := errors.Errorf("tablet %d: %s", g.tablet.ID(), e.GetMessage())
		for _, m := range g.muts {
			b.collector.Add(m, err)
		}
		return
	}
	for _, opErr := range resp.GetPerOpErrors() {
		idx := int(opErr.GetIndex())
		if idx < 0 || idx >= len(g.muts) {
			log.Warn("tablet %d reported error for unknown op index %d", g.tablet.ID(), idx)
			continue
		}
		b.collector.Add(g.muts[idx], errors.New(opErr.GetError().GetMessage()))
	}
}

// resolveServer picks the leader replica and makes sure a connection
// handle for it exists.
func (b *batcher) resolveServer(rt *RemoteTablet) (string, error) {
	leader, err := rt.Leader()
	if err != nil {
		return "", err
	}
	srv := b.client.metaCache.TabletServer(leader)
	s := NewSynchronizer()
	srv.RefreshProxy(b.client.kvCli, s.Callback(), false)
	if err = s.Wait(); err != nil {
		return "", err
	}
	return srv.Addr(), nil
}

func (b *batcher) isAborted() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.aborted
}

// finish fires the callback exactly once. Completions racing with an
// abort are discarded.
func (b *batcher) finish(err error) {
	b.lock.Lock()
	if b.state == batcherDone {
		b.lock.Unlock()
		return
	}
	b.state = batcherDone
	cb := b.cb
	b.cb = nil
	b.lock.Unlock()
	if cb != nil {
		cb(err)
	}
}
