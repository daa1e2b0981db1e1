package mock

import (
	"testing"

	"github.com/tabletstore/client-go/model/pkg/kvrpcpb"
)

func insertOp(key string) *kvrpcpb.BatchOp {
	return &kvrpcpb.BatchOp{
		Type: kvrpcpb.OpInsert,
		Kv:   &kvrpcpb.KeyValue{Key: []byte(key), Value: []byte("v")},
	}
}

func TestBatchRoutesByHeaderTabletId(t *testing.T) {
	ds := NewDataServer()
	resp, err := ds.Batch(DsAddr, &kvrpcpb.BatchRequest{
		Header: &kvrpcpb.RequestHeader{TabletId: 3},
		Ops:    []*kvrpcpb.BatchOp{insertOp("a")},
	}, 0, 0)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(resp.GetPerOpErrors()) != 0 {
		t.Fatalf("unexpected op errors: %v", resp.GetPerOpErrors())
	}
	if got := ds.RowCount(3); got != 1 {
		t.Errorf("expected the row on tablet 3, got %d rows", got)
	}

	// a request without a header must not crash; it lands on tablet 0
	resp, err = ds.Batch(DsAddr, &kvrpcpb.BatchRequest{
		Ops: []*kvrpcpb.BatchOp{insertOp("b")},
	}, 0, 0)
	if err != nil {
		t.Fatalf("headerless batch failed: %v", err)
	}
	if len(resp.GetPerOpErrors()) != 0 {
		t.Fatalf("unexpected op errors: %v", resp.GetPerOpErrors())
	}
	if got := ds.RowCount(0); got != 1 {
		t.Errorf("expected the headerless row on tablet 0, got %d rows", got)
	}
}
