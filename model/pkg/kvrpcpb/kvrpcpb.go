// Package kvrpcpb holds the request/response shapes of the tablet
// server service: batched writes and the scan cursor protocol.
package kvrpcpb

import (
	"github.com/tabletstore/client-go/model/pkg/metapb"
)

type OpType int32

const (
	OpInvalid OpType = iota
	OpInsert
	OpUpdate
	OpDelete
)

func (t OpType) Valid() bool {
	return t > OpInvalid && t <= OpDelete
}

func (t OpType) String() string {
	switch t {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "invalid"
}

type RequestHeader struct {
	TabletId uint64 `json:"tablet_id"`
}

func (h *RequestHeader) GetTabletId() uint64 {
	if h == nil {
		return 0
	}
	return h.TabletId
}

// Error is an application-level error reported by a tablet server,
// either for a whole request or for one row inside a batch.
type Error struct {
	Message string `json:"message"`
	// TabletNotFound is set when the addressed tablet does not live on
	// the contacted server anymore; the location cache entry is stale.
	TabletNotFound bool `json:"tablet_not_found,omitempty"`
}

func (e *Error) GetMessage() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) GetTabletNotFound() bool {
	if e == nil {
		return false
	}
	return e.TabletNotFound
}

type ResponseHeader struct {
	Error *Error `json:"error,omitempty"`
}

func (h *ResponseHeader) GetError() *Error {
	if h == nil {
		return nil
	}
	return h.Error
}

type KeyValue struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value,omitempty"`
}

func (kv *KeyValue) GetKey() []byte {
	if kv == nil {
		return nil
	}
	return kv.Key
}

func (kv *KeyValue) GetValue() []byte {
	if kv == nil {
		return nil
	}
	return kv.Value
}

type BatchOp struct {
	Type OpType    `json:"type"`
	Kv   *KeyValue `json:"kv"`
}

func (o *BatchOp) GetType() OpType {
	if o == nil {
		return OpInvalid
	}
	return o.Type
}

func (o *BatchOp) GetKv() *KeyValue {
	if o == nil {
		return nil
	}
	return o.Kv
}

// BatchRequest carries every buffered operation destined for one
// tablet. The server applies the ops in order and reports per-op
// outcomes; an op failure never aborts the rest of the batch.
type BatchRequest struct {
	Header *RequestHeader `json:"header"`
	Ops    []*BatchOp     `json:"ops"`
}

func (r *BatchRequest) GetHeader() *RequestHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

func (r *BatchRequest) GetOps() []*BatchOp {
	if r == nil {
		return nil
	}
	return r.Ops
}

// OpError reports the failure of a single op, identified by its index
// in the request. Ops without an entry succeeded.
type OpError struct {
	Index int32  `json:"index"`
	Error *Error `json:"error"`
}

func (e *OpError) GetIndex() int32 {
	if e == nil {
		return 0
	}
	return e.Index
}

func (e *OpError) GetError() *Error {
	if e == nil {
		return nil
	}
	return e.Error
}

type BatchResponse struct {
	Header      *ResponseHeader `json:"header,omitempty"`
	PerOpErrors []*OpError      `json:"per_op_errors,omitempty"`
}

func (r *BatchResponse) GetHeader() *ResponseHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

func (r *BatchResponse) GetPerOpErrors() []*OpError {
	if r == nil {
		return nil
	}
	return r.PerOpErrors
}

// Predicate restricts a scan to rows whose encoded column value lies
// in [LowerBound, UpperBound); a nil bound is unbounded.
type Predicate struct {
	Column     string `json:"column"`
	LowerBound []byte `json:"lower_bound,omitempty"`
	UpperBound []byte `json:"upper_bound,omitempty"`
}

type NewScanRequest struct {
	TabletId         uint64           `json:"tablet_id"`
	ProjectedColumns []*metapb.Column `json:"projected_columns,omitempty"`
	Predicates       []*Predicate     `json:"predicates,omitempty"`
}

func (r *NewScanRequest) GetTabletId() uint64 {
	if r == nil {
		return 0
	}
	return r.TabletId
}

// ScanRequest drives the cursor protocol: exactly one of NewScan (open)
// or ScannerId (continue/close) is set.
type ScanRequest struct {
	Header         *RequestHeader  `json:"header"`
	NewScan        *NewScanRequest `json:"new_scan,omitempty"`
	ScannerId      string          `json:"scanner_id,omitempty"`
	BatchSizeBytes uint32          `json:"batch_size_bytes,omitempty"`
	CloseScanner   bool            `json:"close_scanner,omitempty"`
}

func (r *ScanRequest) GetNewScan() *NewScanRequest {
	if r == nil {
		return nil
	}
	return r.NewScan
}

func (r *ScanRequest) GetScannerId() string {
	if r == nil {
		return ""
	}
	return r.ScannerId
}

func (r *ScanRequest) GetCloseScanner() bool {
	if r == nil {
		return false
	}
	return r.CloseScanner
}

type Row struct {
	Key     []byte   `json:"key"`
	Columns [][]byte `json:"columns,omitempty"`
}

func (r *Row) GetKey() []byte {
	if r == nil {
		return nil
	}
	return r.Key
}

type ScanResponse struct {
	Header *ResponseHeader `json:"header,omitempty"`
	// ScannerId is assigned on open only when the scan matched at least
	// one row; otherwise no server-side cursor exists at all.
	ScannerId      string `json:"scanner_id,omitempty"`
	HasMoreResults bool   `json:"has_more_results,omitempty"`
	Rows           []*Row `json:"rows,omitempty"`
}

func (r *ScanResponse) GetHeader() *ResponseHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

func (r *ScanResponse) GetScannerId() string {
	if r == nil {
		return ""
	}
	return r.ScannerId
}

func (r *ScanResponse) GetHasMoreResults() bool {
	if r == nil {
		return false
	}
	return r.HasMoreResults
}

func (r *ScanResponse) GetRows() []*Row {
	if r == nil {
		return nil
	}
	return r.Rows
}
