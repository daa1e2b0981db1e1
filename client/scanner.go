package client

import (
	"sync"

	"github.com/juju/errors"

	"github.com/tabletstore/client-go/model/pkg/kvrpcpb"
	"github.com/tabletstore/client-go/model/pkg/metapb"
	"github.com/tabletstore/client-go/util/log"
)

type scannerState int32

const (
	scannerNotOpened scannerState = iota
	scannerOpened
	scannerClosed
)

// Scanner drives the cursor protocol against the tablet containing its
// start key: open, fetch batches, close. Not safe for concurrent use
// except Close, which may race an in-flight fire-and-forget close.
type Scanner struct {
	client *Client
	table  *Table

	startKey       *metapb.Key
	projection     []*metapb.Column
	predicates     []*kvrpcpb.Predicate
	batchSizeBytes uint32

	lock  sync.Mutex
	state scannerState

	tablet *RemoteTablet
	addr   string
	// server-assigned cursor identity; empty when the scan matched
	// zero rows, in which case no server-side cursor exists
	scannerID string
	// whether the open response already carried a data page
	dataInOpen bool
	firstRows  []*kvrpcpb.Row
	lastMore   bool
}

// NewScanner builds an unopened scanner over the table.
func (t *Table) NewScanner() *Scanner {
	return &Scanner{
		client:   t.client,
		table:    t,
		startKey: metapb.NegativeInfinityKey,
	}
}

// SetStartKey targets the tablet whose range contains key. Pre-open
// only.
func (s *Scanner) SetStartKey(key []byte) error {
	if err := s.checkNotOpened(); err != nil {
		return err
	}
	s.startKey = metapb.OrdinaryKey(key)
	return nil
}

// SetProjection restricts the returned columns. Pre-open only.
func (s *Scanner) SetProjection(columns ...string) error {
	if err := s.checkNotOpened(); err != nil {
		return err
	}
	var projection []*metapb.Column
	for _, name := range columns {
		col := s.table.column(name)
		if col == nil {
			return errors.NotFoundf("column %s in table %s", name, s.table.Name())
		}
		projection = append(projection, col)
	}
	s.projection = projection
	return nil
}

// AddPredicate keeps rows whose encoded column value lies in
// [lower, upper); nil bounds are unbounded. Pre-open only.
func (s *Scanner) AddPredicate(column string, lower, upper []byte) error {
	if err := s.checkNotOpened(); err != nil {
		return err
	}
	if s.table.column(column) == nil {
		return errors.NotFoundf("column %s in table %s", column, s.table.Name())
	}
	s.predicates = append(s.predicates, &kvrpcpb.Predicate{
		Column:     column,
		LowerBound: lower,
		UpperBound: upper,
	})
	return nil
}

// SetBatchSizeBytes hints the server page size. Pre-open only.
func (s *Scanner) SetBatchSizeBytes(n uint32) error {
	if err := s.checkNotOpened(); err != nil {
		return err
	}
	s.batchSizeBytes = n
	return nil
}

// Open resolves the target tablet and sends the initial scan request
// synchronously.
func (s *Scanner) Open() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state != scannerNotOpened {
		return errors.NotValidf("scanner was already opened")
	}

	rt, err := s.client.metaCache.LookupTabletByKey(s.table.Name(), s.startKey)
	if err != nil {
		return err
	}
	refreshed := NewSynchronizer()
	rt.Refresh(refreshed.Callback(), false)
	if err = refreshed.Wait(); err != nil {
		return err
	}
	leader, err := rt.Leader()
	if err != nil {
		return err
	}
	srv := s.client.metaCache.TabletServer(leader)
	dialed := NewSynchronizer()
	srv.RefreshProxy(s.client.kvCli, dialed.Callback(), false)
	if err = dialed.Wait(); err != nil {
		return err
	}

	req := &kvrpcpb.ScanRequest{
		Header: &kvrpcpb.RequestHeader{TabletId: rt.ID()},
		NewScan: &kvrpcpb.NewScanRequest{
			TabletId:         rt.ID(),
			ProjectedColumns: s.projection,
			Predicates:       s.predicates,
		},
		BatchSizeBytes: s.batchSizeBytes,
	}
	resp, err := s.client.kvCli.Scan(srv.Addr(), req, s.client.config.WriteTimeout, s.client.config.ReadTimeout)
	if err != nil {
		return errors.Annotatef(err, "open scanner on tablet %d", rt.ID())
	}
	if e := resp.GetHeader().GetError(); e != nil {
		return errors.Errorf("open scanner on tablet %d: %s", rt.ID(), e.GetMessage())
	}

	s.tablet = rt
	s.addr = srv.Addr()
	s.scannerID = resp.GetScannerId()
	s.firstRows = resp.GetRows()
	s.dataInOpen = len(s.firstRows) > 0
	s.lastMore = resp.GetHasMoreResults()
	s.state = scannerOpened
	return nil
}

// HasMoreRows reports whether NextBatch can still produce rows.
func (s *Scanner) HasMoreRows() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state == scannerOpened && (s.dataInOpen || s.lastMore)
}

// NextBatch returns the next page of rows. The page delivered with the
// open response is consumed first, without a network round trip.
func (s *Scanner) NextBatch() ([]*kvrpcpb.Row, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state != scannerOpened {
		return nil, errors.NotValidf("scanner is not open")
	}
	if s.dataInOpen {
		s.dataInOpen = false
		rows := s.firstRows
		s.firstRows = nil
		metricScanBatches.Inc()
		return rows, nil
	}
	if !s.lastMore {
		return nil, nil
	}

	req := &kvrpcpb.ScanRequest{
		Header:         &kvrpcpb.RequestHeader{TabletId: s.tablet.ID()},
		ScannerId:      s.scannerID,
		BatchSizeBytes: s.batchSizeBytes,
	}
	resp, err := s.client.kvCli.Scan(s.addr, req, s.client.config.WriteTimeout, s.client.config.ReadTimeout)
	if err != nil {
		return nil, errors.Annotatef(err, "scan tablet %d", s.tablet.ID())
	}
	if e := resp.GetHeader().GetError(); e != nil {
		return nil, errors.Errorf("scan tablet %d: %s", s.tablet.ID(), e.GetMessage())
	}
	s.lastMore = resp.GetHasMoreResults()
	metricScanBatches.Inc()
	return resp.GetRows(), nil
}

// Close releases the server-side cursor, if one was ever assigned,
// with a fire-and-forget request: the goroutine owns its own request
// and response, so the scanner may be gone before the close lands.
// Close failures are logged, never surfaced.
func (s *Scanner) Close() {
	s.lock.Lock()
	if s.state == scannerClosed {
		s.lock.Unlock()
		return
	}
	opened := s.state == scannerOpened
	s.state = scannerClosed
	scannerID := s.scannerID
	tabletID := uint64(0)
	if s.tablet != nil {
		tabletID = s.tablet.ID()
	}
	addr := s.addr
	s.firstRows = nil
	s.lock.Unlock()

	if !opened || scannerID == "" {
		// no server-side cursor exists
		return
	}
	cli := s.client.kvCli
	wt, rt := s.client.config.WriteTimeout, s.client.config.ReadTimeout
	go func() {
		req := &kvrpcpb.ScanRequest{
			Header:       &kvrpcpb.RequestHeader{TabletId: tabletID},
			ScannerId:    scannerID,
			CloseScanner: true,
		}
		if _, err := cli.Scan(addr, req, wt, rt); err != nil {
			log.Warn("close scanner %s on tablet %d failed: %v", scannerID, tabletID, err)
		}
	}()
}

func (s *Scanner) checkNotOpened() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state != scannerNotOpened {
		return errors.NotValidf("scanner was already opened")
	}
	return nil
}
