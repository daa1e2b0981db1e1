package client

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tabletstore/client-go/mock"
	"github.com/tabletstore/client-go/model/pkg/metapb"
	"github.com/tabletstore/client-go/model/pkg/mspb"
)

func TestHundredTabletTable(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()

	// 99 split keys yield 100 tablets
	var splits [][]byte
	for i := 0; i < 99; i++ {
		splits = append(splits, []byte(fmt.Sprintf("k%02d", i)))
	}
	opts := &CreateTableOptions{SplitKeys: splits}
	if err := c.CreateTable("big", testColumns(), opts); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	ids := make(map[uint64]bool)
	probe := func(key *metapb.Key) {
		rt, err := c.metaCache.LookupTabletByKey("big", key)
		if err != nil {
			t.Fatalf("lookup %q failed: %v", key.GetKey(), err)
		}
		ids[rt.ID()] = true
	}
	probe(metapb.OrdinaryKey([]byte("a"))) // before the first split
	for _, k := range splits {
		probe(metapb.OrdinaryKey(k))
	}
	if len(ids) != 100 {
		t.Fatalf("expected 100 distinct tablets, got %d", len(ids))
	}

	// max_returned_locations = 1 from the midpoint key returns exactly
	// the tablet starting there
	mid := []byte("k49")
	resp, err := cluster.Master.GetTableLocations(&mspb.GetTableLocationsRequest{
		Name:                 "big",
		StartKey:             mid,
		MaxReturnedLocations: 1,
	}, time.Second)
	if err != nil {
		t.Fatalf("get locations failed: %v", err)
	}
	locs := resp.GetLocations()
	if len(locs) != 1 {
		t.Fatalf("expected exactly 1 location, got %d", len(locs))
	}
	if string(locs[0].GetStartKey().GetKey()) != string(mid) {
		t.Errorf("expected start key %q, got %q", mid, locs[0].GetStartKey().GetKey())
	}
}

func TestLookupCachesLocations(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()
	if err := c.CreateTable("t1", testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	key := metapb.OrdinaryKey([]byte("a"))
	if _, err := c.metaCache.LookupTabletByKey("t1", key); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	calls := cluster.Master.LocationCalls()
	for i := 0; i < 10; i++ {
		if _, err := c.metaCache.LookupTabletByKey("t1", key); err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
	}
	if got := cluster.Master.LocationCalls(); got != calls {
		t.Errorf("cached lookups must not call the master, saw %d extra calls", got-calls)
	}

	rt, err := c.metaCache.LookupTabletByKey("t1", key)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if _, err := c.metaCache.LookupTabletByID(rt.ID()); err != nil {
		t.Errorf("lookup by id failed: %v", err)
	}
	if _, err := c.metaCache.LookupTabletByID(9999); err == nil {
		t.Error("expected unknown tablet id to be not-found")
	}
}

func TestConcurrentLookupsShareOneRefresh(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()
	if err := c.CreateTable("t1", testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	base := cluster.Master.LocationCalls()
	key := metapb.OrdinaryKey([]byte("x"))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.metaCache.LookupTabletByKey("t1", key); err != nil {
				t.Errorf("lookup failed: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := cluster.Master.LocationCalls() - base; got != 1 {
		t.Errorf("expected a single in-flight refresh, master saw %d calls", got)
	}
}

func TestConcurrentDistinctKeyLookupsShareOneRefresh(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()
	// a single tablet covers the whole key space, so one refresh
	// answers every key
	if err := c.CreateTable("t1", testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	base := cluster.Master.LocationCalls()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := metapb.OrdinaryKey([]byte{byte('a' + i)})
			if _, err := c.metaCache.LookupTabletByKey("t1", key); err != nil {
				t.Errorf("lookup failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if got := cluster.Master.LocationCalls() - base; got != 1 {
		t.Errorf("misses for distinct keys in one region must share a refresh, master saw %d calls", got)
	}
}

func TestInsertLocationsDropsMovedRangeEntry(t *testing.T) {
	c, _ := newTestCluster()
	defer c.Close()
	mc := c.metaCache

	replicas := []*metapb.Replica{{NodeId: 1, Addr: mock.DsAddr, Role: metapb.RoleLeader}}
	mc.insertLocations("t1", []*metapb.Tablet{{
		Id:       7,
		StartKey: metapb.OrdinaryKey([]byte("a")),
		EndKey:   metapb.OrdinaryKey([]byte("m")),
		Replicas: replicas,
	}})

	// the tablet's start key moved forward; the old range entry must go
	mc.insertLocations("t1", []*metapb.Tablet{{
		Id:       7,
		StartKey: metapb.OrdinaryKey([]byte("f")),
		EndKey:   metapb.OrdinaryKey([]byte("m")),
		Replicas: replicas,
	}})
	if rt := mc.findByKey("t1", metapb.OrdinaryKey([]byte("b"))); rt != nil {
		t.Errorf("stale range entry still resolves: tablet %d", rt.ID())
	}
	rt := mc.findByKey("t1", metapb.OrdinaryKey([]byte("g")))
	if rt == nil || rt.ID() != 7 {
		t.Fatalf("expected tablet 7 for a key in the new range, got %v", rt)
	}

	// a split: a new tablet takes over the vacated prefix and must
	// survive the moved tablet's cleanup
	mc.insertLocations("t1", []*metapb.Tablet{
		{
			Id:       8,
			StartKey: metapb.OrdinaryKey([]byte("a")),
			EndKey:   metapb.OrdinaryKey([]byte("f")),
			Replicas: replicas,
		},
		{
			Id:       7,
			StartKey: metapb.OrdinaryKey([]byte("f")),
			EndKey:   metapb.OrdinaryKey([]byte("m")),
			Replicas: replicas,
		},
	})
	if rt := mc.findByKey("t1", metapb.OrdinaryKey([]byte("b"))); rt == nil || rt.ID() != 8 {
		t.Errorf("expected tablet 8 for the split-off prefix, got %v", rt)
	}
}

func TestRefreshProxyDialsOnce(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()
	if err := c.CreateTable("t1", testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	rt, err := c.metaCache.LookupTabletByKey("t1", metapb.OrdinaryKey([]byte("a")))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	leader, err := rt.Leader()
	if err != nil {
		t.Fatalf("leader: %v", err)
	}
	srv := c.metaCache.TabletServer(leader)

	s := NewSynchronizer()
	srv.RefreshProxy(c.kvCli, s.Callback(), false)
	if err = s.Wait(); err != nil {
		t.Fatalf("refresh proxy failed: %v", err)
	}
	dials := cluster.DataServer.DialCalls()

	// an established handle completes synchronously without redialing
	s = NewSynchronizer()
	srv.RefreshProxy(c.kvCli, s.Callback(), false)
	if err = s.Wait(); err != nil {
		t.Fatalf("refresh proxy failed: %v", err)
	}
	if got := cluster.DataServer.DialCalls(); got != dials {
		t.Errorf("ready handle must not redial, saw %d extra dials", got-dials)
	}

	// force re-establishes
	s = NewSynchronizer()
	srv.RefreshProxy(c.kvCli, s.Callback(), true)
	if err = s.Wait(); err != nil {
		t.Fatalf("forced refresh failed: %v", err)
	}
	if got := cluster.DataServer.DialCalls(); got != dials+1 {
		t.Errorf("expected the forced refresh to dial, got %d dials", got-dials)
	}
}
