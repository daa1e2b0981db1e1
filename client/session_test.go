package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/juju/errors"

	"github.com/tabletstore/client-go/mock"
)

// openTestTable creates a single-tablet table and opens a handle on it.
// The mock assigns the first tablet id 1.
func openTestTable(t *testing.T, c *Client, name string) *Table {
	t.Helper()
	if err := c.CreateTable(name, testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	table, err := c.OpenTable(name)
	if err != nil {
		t.Fatalf("open table failed: %v", err)
	}
	return table
}

func testInsert(t *testing.T, table *Table, id, val string) *Mutation {
	t.Helper()
	m := table.NewInsert()
	if err := m.SetString("id", id); err != nil {
		t.Fatalf("set id: %v", err)
	}
	if err := m.SetString("val", val); err != nil {
		t.Fatalf("set val: %v", err)
	}
	return m
}

func TestManualFlushBuffersAndFlushes(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()
	table := openTestTable(t, c, "t1")

	s := c.NewSession()
	defer s.Close()
	if err := s.SetFlushMode(ManualFlush); err != nil {
		t.Fatalf("set flush mode: %v", err)
	}

	const n = 5
	for i := 0; i < n; i++ {
		if err := s.Apply(testInsert(t, table, fmt.Sprintf("row-%d", i), "v")); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if got := s.CountBufferedOperations(); got != n {
		t.Fatalf("expected %d buffered operations, got %d", n, got)
	}
	if !s.HasPendingOperations() {
		t.Fatal("expected pending operations")
	}
	if cluster.DataServer.BatchCalls() != 0 {
		t.Fatal("nothing should be sent before the flush")
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if got := cluster.DataServer.RowCount(1); got != n {
		t.Errorf("expected %d stored rows, got %d", n, got)
	}
	if got := s.CountPendingErrors(); got != 0 {
		t.Errorf("expected no row errors, got %d", got)
	}
	if s.HasPendingOperations() {
		t.Error("expected no pending operations after flush")
	}
}

func TestPerRowErrorsDoNotFailFlush(t *testing.T) {
	c, _ := newTestCluster()
	defer c.Close()
	table := openTestTable(t, c, "t1")

	s := c.NewSession()
	defer s.Close()
	if err := s.SetFlushMode(ManualFlush); err != nil {
		t.Fatalf("set flush mode: %v", err)
	}

	if err := s.Apply(testInsert(t, table, "dup", "v1")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("first flush failed: %v", err)
	}

	// same key again plus a fresh one: one row error, flush still OK
	if err := s.Apply(testInsert(t, table, "dup", "v2")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(testInsert(t, table, "fresh", "v")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush with a duplicate row must not fail: %v", err)
	}
	rowErrs, overflow := s.GetPendingErrors()
	if len(rowErrs) != 1 || overflow {
		t.Fatalf("expected exactly one row error, got %d (overflow=%v)", len(rowErrs), overflow)
	}
	if rowErrs[0].Mutation == nil || rowErrs[0].Err == nil {
		t.Error("row error must carry the mutation and the cause")
	}
}

func TestAutoFlushSyncSendsImmediately(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()
	table := openTestTable(t, c, "t1")

	s := c.NewSession()
	defer s.Close()
	// AutoFlushSync is the default
	if err := s.Apply(testInsert(t, table, "a", "v")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := cluster.DataServer.RowCount(1); got != 1 {
		t.Errorf("expected the row to be stored by Apply, got %d rows", got)
	}
	if s.HasPendingOperations() {
		t.Error("expected nothing pending after a synchronous apply")
	}
}

func TestSetFlushModeWithBufferedWrites(t *testing.T) {
	c, _ := newTestCluster()
	defer c.Close()
	table := openTestTable(t, c, "t1")

	s := c.NewSession()
	defer s.Close()
	if err := s.SetFlushMode(ManualFlush); err != nil {
		t.Fatalf("set flush mode on empty session: %v", err)
	}
	if err := s.Apply(testInsert(t, table, "a", "v")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.SetFlushMode(AutoFlushSync); !errors.IsNotValid(err) {
		t.Fatalf("expected illegal-state with buffered writes, got %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s.SetFlushMode(AutoFlushSync); err != nil {
		t.Fatalf("set flush mode after flush: %v", err)
	}
	if err := s.SetFlushMode(FlushMode(42)); !errors.IsBadRequest(err) {
		t.Errorf("expected bad request for unknown mode, got %v", err)
	}
}

func TestApplyRequiresFullPrimaryKey(t *testing.T) {
	c, _ := newTestCluster()
	defer c.Close()
	table := openTestTable(t, c, "t1")

	s := c.NewSession()
	defer s.Close()
	m := table.NewInsert()
	if err := m.SetString("val", "v"); err != nil {
		t.Fatalf("set val: %v", err)
	}
	if err := s.Apply(m); !errors.IsNotValid(err) {
		t.Fatalf("expected illegal-state for unset key, got %v", err)
	}
}

func TestMutationBelongsToOneBatcher(t *testing.T) {
	c, _ := newTestCluster()
	defer c.Close()
	table := openTestTable(t, c, "t1")

	s := c.NewSession()
	defer s.Close()
	m := testInsert(t, table, "a", "v")
	if err := s.Apply(m); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(m); !errors.IsNotValid(err) {
		t.Fatalf("expected re-apply to be rejected, got %v", err)
	}
}

func TestGenerationIsolation(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()
	table := openTestTable(t, c, "t1")

	s := c.NewSession()
	defer s.Close()
	if err := s.SetFlushMode(ManualFlush); err != nil {
		t.Fatalf("set flush mode: %v", err)
	}

	if err := s.Apply(testInsert(t, table, "gen1", "v")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	done := make(chan error, 1)
	s.FlushAsync(func(err error) { done <- err })

	// applied after FlushAsync: must land in the next generation
	if err := s.Apply(testInsert(t, table, "gen2", "v")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("async flush failed: %v", err)
	}
	if got := cluster.DataServer.RowCount(1); got != 1 {
		t.Fatalf("first flush must carry exactly its own generation, got %d rows", got)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("second flush failed: %v", err)
	}
	if got := cluster.DataServer.RowCount(1); got != 2 {
		t.Errorf("expected 2 rows after both flushes, got %d", got)
	}
}

func TestFlushFailsWhenNoDestinationReachable(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()
	table := openTestTable(t, c, "t1")
	cluster.DataServer.SetUnavailable(mock.DsAddr, true)

	s := c.NewSession()
	defer s.Close()
	if err := s.SetFlushMode(ManualFlush); err != nil {
		t.Fatalf("set flush mode: %v", err)
	}
	if err := s.Apply(testInsert(t, table, "a", "v")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(testInsert(t, table, "b", "v")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Flush(); err == nil {
		t.Fatal("expected the flush to fail when no destination is reachable")
	}
	rowErrs, _ := s.GetPendingErrors()
	if len(rowErrs) != 2 {
		t.Errorf("expected both mutations in the error collector, got %d", len(rowErrs))
	}
}

func TestSessionCloseAbortsBufferedWrites(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()
	table := openTestTable(t, c, "t1")

	s := c.NewSession()
	if err := s.SetFlushMode(ManualFlush); err != nil {
		t.Fatalf("set flush mode: %v", err)
	}
	if err := s.Apply(testInsert(t, table, "a", "v")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	s.Close()
	if s.HasPendingOperations() {
		t.Error("expected no pending operations after close")
	}
	if err := s.Apply(testInsert(t, table, "b", "v")); !errors.IsNotValid(err) {
		t.Errorf("expected apply on closed session to fail, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := cluster.DataServer.RowCount(1); got != 0 {
		t.Errorf("aborted writes must not be sent, got %d rows", got)
	}
}
