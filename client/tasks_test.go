package client

import (
	"testing"
	"time"

	"github.com/juju/errors"

	"github.com/tabletstore/client-go/mock"
	"github.com/tabletstore/client-go/model/pkg/kvrpcpb"
)

func TestAbandonedWriteTaskIsNotRecycled(t *testing.T) {
	c, cluster := newTestCluster()
	defer c.Close()
	cluster.DataServer.BatchDelay = 200 * time.Millisecond

	req := &kvrpcpb.BatchRequest{
		Header: &kvrpcpb.RequestHeader{TabletId: 1},
		Ops: []*kvrpcpb.BatchOp{
			{Type: kvrpcpb.OpInsert, Kv: &kvrpcpb.KeyValue{Key: []byte("k"), Value: []byte("v")}},
		},
	}
	task := getWriteTask().init(c, mock.DsAddr, req, time.Second)
	if err := c.Submit(task); err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the worker start the send

	c.cancel()
	err := task.Wait()
	if errors.Cause(err) != ErrClientClosed {
		t.Fatalf("expected client-closed error, got %v", err)
	}

	// the worker is still inside Do; returning the task now must leave
	// it out of the pool instead of resetting it under the worker
	putWriteTask(task)
	time.Sleep(250 * time.Millisecond) // let the in-flight send finish

	fresh := getWriteTask()
	defer putWriteTask(fresh)
	if fresh == task {
		t.Fatal("abandoned task was returned to the pool")
	}
	select {
	case err := <-fresh.done:
		t.Fatalf("fresh task carries a stale completion: %v", err)
	default:
	}
}
