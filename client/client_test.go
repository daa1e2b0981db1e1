package client

import (
	"testing"

	"github.com/juju/errors"

	"github.com/tabletstore/client-go/mock"
	"github.com/tabletstore/client-go/model/pkg/metapb"
	"github.com/tabletstore/client-go/model/pkg/mspb"
)

func newTestCluster() (*Client, *mock.Cluster) {
	cluster := mock.NewCluster()
	c := NewClientWith(cluster.Master, cluster.DataServer, &Config{})
	return c, cluster
}

func testColumns() []*metapb.Column {
	return []*metapb.Column{
		{Name: "id", DataType: metapb.TypeVarchar, PrimaryKey: 1},
		{Name: "val", DataType: metapb.TypeVarchar},
	}
}

func TestCreateTableAndGetSchema(t *testing.T) {
	c, _ := newTestCluster()
	defer c.Close()

	cols := testColumns()
	if err := c.CreateTable("t1", cols, nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	schema, err := c.GetTableSchema("t1")
	if err != nil {
		t.Fatalf("get schema failed: %v", err)
	}
	got := schema.GetColumns()
	if len(got) != len(cols) {
		t.Fatalf("expected %d columns, got %d", len(cols), len(got))
	}
	for i, col := range got {
		if col.GetId() != 0 {
			t.Errorf("column %s: server id %d not stripped", col.GetName(), col.GetId())
		}
		if col.GetName() != cols[i].GetName() ||
			col.GetDataType() != cols[i].GetDataType() ||
			col.GetPrimaryKey() != cols[i].GetPrimaryKey() {
			t.Errorf("column %d differs from the submitted schema", i)
		}
	}
}

func TestCreateTableValidation(t *testing.T) {
	c, _ := newTestCluster()
	defer c.Close()

	if err := c.CreateTable("", testColumns(), nil); !errors.IsBadRequest(err) {
		t.Errorf("empty name: expected bad request, got %v", err)
	}
	if err := c.CreateTable("t1", nil, nil); !errors.IsBadRequest(err) {
		t.Errorf("no columns: expected bad request, got %v", err)
	}
	noPK := []*metapb.Column{{Name: "a", DataType: metapb.TypeInt}}
	if err := c.CreateTable("t1", noPK, nil); !errors.IsBadRequest(err) {
		t.Errorf("no primary key: expected bad request, got %v", err)
	}
	opts := &CreateTableOptions{SplitKeys: [][]byte{[]byte("a"), []byte("a")}}
	if err := c.CreateTable("t1", testColumns(), opts); !errors.IsBadRequest(err) {
		t.Errorf("duplicate split keys: expected bad request, got %v", err)
	}
	opts = &CreateTableOptions{SplitKeys: [][]byte{nil}}
	if err := c.CreateTable("t1", testColumns(), opts); !errors.IsBadRequest(err) {
		t.Errorf("empty split key: expected bad request, got %v", err)
	}
}

func TestCreateTableAlreadyExists(t *testing.T) {
	c, _ := newTestCluster()
	defer c.Close()

	if err := c.CreateTable("t1", testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if err := c.CreateTable("t1", testColumns(), nil); !errors.IsAlreadyExists(err) {
		t.Errorf("expected already-exists, got %v", err)
	}
}

func TestCreateTableWaitsForAssignment(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()

	cluster.Master.CreatePolls = 2
	if err := c.CreateTable("t1", testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	// the wait loop must have consumed every not-done answer
	resp, err := cluster.Master.IsCreateTableDone(&mspb.IsCreateTableDoneRequest{Name: "t1"}, 0)
	if err != nil || !resp.GetDone() {
		t.Errorf("expected table to be fully created, done=%v err=%v", resp.GetDone(), err)
	}
}

func TestDeleteTableWaitsForTabletDrop(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()

	if err := c.CreateTable("t1", testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	cluster.Master.DropPolls = 2
	if err := c.DeleteTable("t1"); err != nil {
		t.Fatalf("delete table failed: %v", err)
	}
	if _, err := c.GetTableSchema("t1"); !errors.IsNotFound(err) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}

func TestAlterTable(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()

	if err := c.CreateTable("t1", testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	cluster.Master.AlterPolls = 1

	b := NewAlterTableBuilder().
		AddNullableColumn("extra", metapb.TypeInt).
		RenameColumn("val", "payload").
		RenameTable("t2")
	if err := c.AlterTable("t1", b); err != nil {
		t.Fatalf("alter table failed: %v", err)
	}

	if _, err := c.GetTableSchema("t1"); !errors.IsNotFound(err) {
		t.Errorf("expected old name gone, got %v", err)
	}
	schema, err := c.GetTableSchema("t2")
	if err != nil {
		t.Fatalf("get schema of renamed table failed: %v", err)
	}
	names := make(map[string]bool)
	for _, col := range schema.GetColumns() {
		names[col.GetName()] = true
	}
	if !names["extra"] || !names["payload"] || names["val"] {
		t.Errorf("unexpected columns after alter: %v", names)
	}
}

func TestAlterTableValidation(t *testing.T) {
	c, _ := newTestCluster()
	defer c.Close()

	if err := c.CreateTable("t1", testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if err := c.AlterTable("t1", NewAlterTableBuilder()); !errors.IsBadRequest(err) {
		t.Errorf("no changes: expected bad request, got %v", err)
	}
	b := NewAlterTableBuilder().AddColumn("req", metapb.TypeInt, nil)
	if err := c.AlterTable("t1", b); !errors.IsBadRequest(err) {
		t.Errorf("required column without default: expected bad request, got %v", err)
	}
}

func TestOpenTableRefCountAndMissCache(t *testing.T) {
	c, _ := newTestCluster()
	defer c.Close()

	if _, err := c.OpenTable("nope"); !errors.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	// second miss is answered by the negative cache
	if _, err := c.OpenTable("nope"); !errors.IsNotFound(err) {
		t.Fatalf("expected cached not-found, got %v", err)
	}

	if err := c.CreateTable("t1", testColumns(), nil); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	t1, err := c.OpenTable("t1")
	if err != nil {
		t.Fatalf("open table failed: %v", err)
	}
	t2, err := c.OpenTable("t1")
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	if t1 != t2 {
		t.Error("expected both opens to share one handle")
	}
	t1.Close()
	if _, ok := c.tables["t1"]; !ok {
		t.Error("handle dropped while still referenced")
	}
	t2.Close()
	if _, ok := c.tables["t1"]; ok {
		t.Error("handle kept after last reference was released")
	}
}
