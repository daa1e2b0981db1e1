package client

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/juju/errors"
	"golang.org/x/sync/singleflight"

	"github.com/tabletstore/client-go/model/pkg/metapb"
	"github.com/tabletstore/client-go/model/pkg/mspb"
	"github.com/tabletstore/client-go/rpc"
	"github.com/tabletstore/client-go/util/log"
)

const defaultMaxReturnedLocations = 10

// MetaCache maps table regions to tablets and tablet replicas to
// server connection handles. Locations are cached indefinitely once
// learned; server connections are refreshed independently and lazily.
type MetaCache struct {
	msCli   rpc.MsClient
	timeout time.Duration

	lock        sync.RWMutex
	tables      map[string]*btree.BTree
	tabletsByID map[uint64]*RemoteTablet
	servers     map[uint64]*RemoteTabletServer

	// collapses concurrent lookups for the same missing range into a
	// single master call
	group singleflight.Group
}

func NewMetaCache(msCli rpc.MsClient, timeout time.Duration) *MetaCache {
	return &MetaCache{
		msCli:       msCli,
		timeout:     timeout,
		tables:      make(map[string]*btree.BTree),
		tabletsByID: make(map[uint64]*RemoteTablet),
		servers:     make(map[uint64]*RemoteTabletServer),
	}
}

// LookupTabletByKey resolves the tablet of table whose key range
// contains key, going to the master only on a cache miss.
func (c *MetaCache) LookupTabletByKey(table string, key *metapb.Key) (*RemoteTablet, error) {
	metricLocationLookups.Inc()
	if rt := c.findByKey(table, key); rt != nil {
		return rt, nil
	}

	metricLocationMisses.Inc()
	// one refresh flight per table at a time; concurrent misses for the
	// same uncached region join it instead of issuing duplicate calls
	_, err, _ := c.group.Do(table, func() (interface{}, error) {
		// reprobe: the miss may have been filled while queueing
		if rt := c.findByKey(table, key); rt != nil {
			return nil, nil
		}
		return nil, c.refreshLocations(table, key.GetKey())
	})
	if err != nil {
		return nil, err
	}
	if rt := c.findByKey(table, key); rt != nil {
		return rt, nil
	}
	// the shared flight refreshed a different region of the table
	if err := c.refreshLocations(table, key.GetKey()); err != nil {
		return nil, err
	}
	if rt := c.findByKey(table, key); rt != nil {
		return rt, nil
	}
	return nil, ErrNoRoute
}

// LookupTabletByID resolves an already-learned tablet by identity.
func (c *MetaCache) LookupTabletByID(id uint64) (*RemoteTablet, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	rt, ok := c.tabletsByID[id]
	if !ok {
		return nil, errors.NotFoundf("tablet %d", id)
	}
	return rt, nil
}

// TabletServer returns the connection handle registry entry for a
// replica, creating it when first seen.
func (c *MetaCache) TabletServer(replica *metapb.Replica) *RemoteTabletServer {
	c.lock.RLock()
	srv, ok := c.servers[replica.GetNodeId()]
	c.lock.RUnlock()
	if ok {
		return srv
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if srv, ok = c.servers[replica.GetNodeId()]; ok {
		return srv
	}
	srv = &RemoteTabletServer{nodeID: replica.GetNodeId(), addr: replica.GetAddr()}
	c.servers[replica.GetNodeId()] = srv
	return srv
}

// EvictTablet drops one tablet's location so the next lookup refetches
// it. Called when a server reports the tablet is no longer there.
func (c *MetaCache) EvictTablet(id uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	rt, ok := c.tabletsByID[id]
	if !ok {
		return
	}
	delete(c.tabletsByID, id)
	if tree, ok := c.tables[rt.table]; ok {
		tree.Delete(rt.Meta())
	}
}

// EvictTable drops every cached location of one table.
func (c *MetaCache) EvictTable(table string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	tree, ok := c.tables[table]
	if !ok {
		return
	}
	tree.Ascend(func(item btree.Item) bool {
		delete(c.tabletsByID, item.(*metapb.Tablet).GetId())
		return true
	})
	delete(c.tables, table)
}

func (c *MetaCache) findByKey(table string, key *metapb.Key) *RemoteTablet {
	c.lock.RLock()
	defer c.lock.RUnlock()
	tree, ok := c.tables[table]
	if !ok {
		return nil
	}
	item := tree.Get(key)
	if item == nil {
		return nil
	}
	return c.tabletsByID[item.(*metapb.Tablet).GetId()]
}

func (c *MetaCache) refreshLocations(table string, startKey []byte) error {
	resp, err := c.msCli.GetTableLocations(&mspb.GetTableLocationsRequest{
		Name:                 table,
		StartKey:             startKey,
		MaxReturnedLocations: defaultMaxReturnedLocations,
	}, c.timeout)
	if err != nil {
		return errors.Annotatef(err, "locate table %s", table)
	}
	if err = masterErr(resp.GetHeader()); err != nil {
		return err
	}
	c.insertLocations(table, resp.GetLocations())
	return nil
}

func (c *MetaCache) insertLocations(table string, tablets []*metapb.Tablet) {
	c.lock.Lock()
	defer c.lock.Unlock()
	tree, ok := c.tables[table]
	if !ok {
		tree = btree.New(32)
		c.tables[table] = tree
	}
	for _, tb := range tablets {
		if old, ok := c.tabletsByID[tb.GetId()]; ok {
			// a moved start key leaves the old range entry behind;
			// drop it, but only if the slot still belongs to this tablet
			oldMeta := old.Meta()
			if metapb.Compare(oldMeta.GetStartKey(), tb.GetStartKey()) != 0 {
				if item := tree.Get(oldMeta); item != nil && item.(*metapb.Tablet).GetId() == tb.GetId() {
					tree.Delete(item)
				}
			}
			old.update(tb)
			tree.ReplaceOrInsert(tb)
			continue
		}
		rt := &RemoteTablet{cache: c, table: table, meta: tb}
		c.tabletsByID[tb.GetId()] = rt
		tree.ReplaceOrInsert(tb)
	}
}

// RemoteTablet is the cached identity of one tablet plus its current
// replica list.
type RemoteTablet struct {
	cache *MetaCache
	table string

	lock sync.RWMutex
	meta *metapb.Tablet
}

func (t *RemoteTablet) ID() uint64 {
	return t.Meta().GetId()
}

func (t *RemoteTablet) Table() string {
	return t.table
}

func (t *RemoteTablet) Meta() *metapb.Tablet {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.meta
}

func (t *RemoteTablet) update(meta *metapb.Tablet) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.meta = meta
}

// Leader returns the leader replica, falling back to the first replica
// when no leader is marked. NotFound when the tablet has no replicas.
func (t *RemoteTablet) Leader() (*metapb.Replica, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	replicas := t.meta.GetReplicas()
	if len(replicas) == 0 {
		return nil, errors.NotFoundf("tablet %d has no reachable replica", t.meta.GetId())
	}
	for _, r := range replicas {
		if r.GetRole() == metapb.RoleLeader {
			return r, nil
		}
	}
	return replicas[0], nil
}

// Refresh asynchronously re-fetches the tablet's replica list from the
// master. When the list is already known and force is false the
// callback runs synchronously on the calling goroutine.
func (t *RemoteTablet) Refresh(cb func(error), force bool) {
	if !force {
		t.lock.RLock()
		known := len(t.meta.GetReplicas()) > 0
		t.lock.RUnlock()
		if known {
			cb(nil)
			return
		}
	}
	go func() {
		err := t.cache.refreshLocations(t.table, t.Meta().GetStartKey().GetKey())
		if err != nil {
			log.Warn("refresh tablet %d locations failed: %v", t.ID(), err)
		}
		cb(err)
	}()
}

// RemoteTabletServer is the lazily-connected handle of one tablet
// server.
type RemoteTabletServer struct {
	nodeID uint64
	addr   string

	lock  sync.Mutex
	ready bool
}

func (s *RemoteTabletServer) Addr() string {
	return s.addr
}

// RefreshProxy asynchronously ensures a connection to the server
// exists. The mutex guards only the check-and-set of the ready flag;
// the dial itself happens outside it, so concurrent refreshes never
// hold the lock across the network. A ready handle completes the
// callback synchronously unless force is set.
func (s *RemoteTabletServer) RefreshProxy(kvCli rpc.KvClient, cb func(error), force bool) {
	s.lock.Lock()
	if s.ready && !force {
		s.lock.Unlock()
		cb(nil)
		return
	}
	s.lock.Unlock()

	go func() {
		err := kvCli.Dial(s.addr)
		if err == nil {
			s.lock.Lock()
			s.ready = true
			s.lock.Unlock()
		} else {
			log.Warn("dial tablet server[%s] failed: %v", s.addr, err)
		}
		cb(err)
	}()
}

// Synchronizer adapts the async refresh callbacks to a blocking wait.
type Synchronizer struct {
	ch chan error
}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{ch: make(chan error, 1)}
}

func (s *Synchronizer) Callback() func(error) {
	return func(err error) {
		s.ch <- err
	}
}

func (s *Synchronizer) Wait() error {
	return <-s.ch
}
