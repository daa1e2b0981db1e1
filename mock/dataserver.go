package mock

import (
	"bytes"
	"math/rand"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/tabletstore/client-go/model/pkg/kvrpcpb"
	"github.com/tabletstore/client-go/rpc"
	"github.com/tabletstore/client-go/util"
)

const defaultPageRows = 2

type rowItem struct {
	key   []byte
	value []byte
}

func (r *rowItem) Less(item btree.Item) bool {
	return bytes.Compare(r.key, item.(*rowItem).key) < 0
}

type scanCursor struct {
	tabletID uint64
	rows     []*kvrpcpb.Row
	pos      int
}

// DataServer is an in-memory tablet server implementing rpc.KvClient.
// Rows live in one btree per tablet id.
type DataServer struct {
	lock           sync.Mutex
	tablets        map[uint64]*btree.BTree
	scanners       map[string]*scanCursor
	unavailable    map[string]bool
	tabletNotFound map[uint64]bool
	rnd            *rand.Rand

	batchCalls int
	scanCalls  int
	dialCalls  int

	// PageRows is the page size of scan responses.
	PageRows int
	// BatchDelay stalls every Batch call, for abort tests.
	BatchDelay time.Duration
}

func NewDataServer() *DataServer {
	return &DataServer{
		tablets:        make(map[uint64]*btree.BTree),
		scanners:       make(map[string]*scanCursor),
		unavailable:    make(map[string]bool),
		tabletNotFound: make(map[uint64]bool),
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
		PageRows:       defaultPageRows,
	}
}

func (d *DataServer) Close() error {
	return nil
}

func (d *DataServer) Dial(addr string) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.dialCalls++
	if d.unavailable[addr] {
		return rpc.ErrConnUnavailable
	}
	return nil
}

// SetUnavailable makes every call to addr fail at the transport level.
func (d *DataServer) SetUnavailable(addr string, v bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.unavailable[addr] = v
}

// SetTabletNotFound makes the server deny owning the tablet.
func (d *DataServer) SetTabletNotFound(id uint64, v bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.tabletNotFound[id] = v
}

func (d *DataServer) BatchCalls() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.batchCalls
}

func (d *DataServer) ScanCalls() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.scanCalls
}

func (d *DataServer) DialCalls() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.dialCalls
}

// RowCount returns the number of stored rows of one tablet.
func (d *DataServer) RowCount(tabletID uint64) int {
	d.lock.Lock()
	defer d.lock.Unlock()
	tree, ok := d.tablets[tabletID]
	if !ok {
		return 0
	}
	return tree.Len()
}

func (d *DataServer) Batch(addr string, req *kvrpcpb.BatchRequest, _, _ time.Duration) (*kvrpcpb.BatchResponse, error) {
	if delay := d.batchDelay(); delay > 0 {
		time.Sleep(delay)
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.batchCalls++
	if d.unavailable[addr] {
		return nil, rpc.ErrConnUnavailable
	}
	tabletID := req.GetHeader().GetTabletId()
	if d.tabletNotFound[tabletID] {
		return &kvrpcpb.BatchResponse{
			Header: &kvrpcpb.ResponseHeader{
				Error: &kvrpcpb.Error{Message: "tablet not hosted here", TabletNotFound: true},
			},
		}, nil
	}
	tree, ok := d.tablets[tabletID]
	if !ok {
		tree = btree.New(16)
		d.tablets[tabletID] = tree
	}
	resp := &kvrpcpb.BatchResponse{}
	for i, op := range req.Ops {
		if err := applyOp(tree, op); err != "" {
			resp.PerOpErrors = append(resp.PerOpErrors, &kvrpcpb.OpError{
				Index: int32(i),
				Error: &kvrpcpb.Error{Message: err},
			})
		}
	}
	return resp, nil
}

func applyOp(tree *btree.BTree, op *kvrpcpb.BatchOp) string {
	item := &rowItem{key: op.GetKv().GetKey(), value: op.GetKv().GetValue()}
	exists := tree.Has(item)
	switch op.GetType() {
	case kvrpcpb.OpInsert:
		if exists {
			return "duplicate key"
		}
		tree.ReplaceOrInsert(item)
	case kvrpcpb.OpUpdate:
		if !exists {
			return "key not found"
		}
		tree.ReplaceOrInsert(item)
	case kvrpcpb.OpDelete:
		if !exists {
			return "key not found"
		}
		tree.Delete(item)
	default:
		return "invalid op"
	}
	return ""
}

func (d *DataServer) Scan(addr string, req *kvrpcpb.ScanRequest, _, _ time.Duration) (*kvrpcpb.ScanResponse, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.scanCalls++
	if d.unavailable[addr] {
		return nil, rpc.ErrConnUnavailable
	}

	if req.GetCloseScanner() {
		delete(d.scanners, req.GetScannerId())
		return &kvrpcpb.ScanResponse{}, nil
	}

	if req.GetNewScan() != nil {
		return d.openScanner(req), nil
	}

	cur, ok := d.scanners[req.GetScannerId()]
	if !ok {
		return &kvrpcpb.ScanResponse{
			Header: &kvrpcpb.ResponseHeader{Error: &kvrpcpb.Error{Message: "unknown scanner " + req.GetScannerId()}},
		}, nil
	}
	return d.nextPage(req.GetScannerId(), cur), nil
}

func (d *DataServer) openScanner(req *kvrpcpb.ScanRequest) *kvrpcpb.ScanResponse {
	tabletID := req.GetNewScan().GetTabletId()
	if d.tabletNotFound[tabletID] {
		return &kvrpcpb.ScanResponse{
			Header: &kvrpcpb.ResponseHeader{
				Error: &kvrpcpb.Error{Message: "tablet not hosted here", TabletNotFound: true},
			},
		}
	}
	var rows []*kvrpcpb.Row
	if tree, ok := d.tablets[tabletID]; ok {
		tree.Ascend(func(item btree.Item) bool {
			r := item.(*rowItem)
			rows = append(rows, &kvrpcpb.Row{
				Key:     r.key,
				Columns: [][]byte{r.value},
			})
			return true
		})
	}
	if len(rows) == 0 {
		// zero rows matched: no server-side cursor is created
		return &kvrpcpb.ScanResponse{HasMoreResults: false}
	}

	idBuf := make([]byte, 12)
	util.RandomBytes(d.rnd, idBuf)
	id := string(idBuf)
	cur := &scanCursor{tabletID: tabletID, rows: rows}
	d.scanners[id] = cur
	resp := d.nextPage(id, cur)
	resp.ScannerId = id
	return resp
}

func (d *DataServer) nextPage(id string, cur *scanCursor) *kvrpcpb.ScanResponse {
	page := d.PageRows
	if page <= 0 {
		page = defaultPageRows
	}
	end := util.MinInt(cur.pos+page, len(cur.rows))
	rows := cur.rows[cur.pos:end]
	cur.pos = end
	return &kvrpcpb.ScanResponse{
		Rows:           rows,
		HasMoreResults: cur.pos < len(cur.rows),
	}
}

func (d *DataServer) batchDelay() time.Duration {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.BatchDelay
}
