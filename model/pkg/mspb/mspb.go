// Package mspb holds the request/response shapes of the master
// (catalog) service. The structs are thin builders; all non-trivial
// behavior lives in the client package.
package mspb

import (
	"github.com/tabletstore/client-go/model/pkg/metapb"
)

type ErrorCode int32

const (
	CodeOk ErrorCode = iota
	CodeInvalidArgument
	CodeTableNotFound
	CodeTableExists
	CodeTabletNotFound
	CodeServerBusy
)

// Valid reports whether c is inside the known code range. Codes decoded
// from the wire must be checked before being interpreted.
func (c ErrorCode) Valid() bool {
	return c >= CodeOk && c <= CodeServerBusy
}

// Error is an application-level error embedded in a response.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

func (e *Error) GetCode() ErrorCode {
	if e == nil {
		return CodeOk
	}
	return e.Code
}

func (e *Error) GetMessage() string {
	if e == nil {
		return ""
	}
	return e.Message
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

type CreateTableRequest struct {
	Name      string           `json:"name"`
	Columns   []*metapb.Column `json:"columns"`
	SplitKeys [][]byte         `json:"split_keys,omitempty"`
}

type CreateTableResponse struct {
	Header  *ResponseHeader `json:"header,omitempty"`
	TableId uint64          `json:"table_id,omitempty"`
}

func (r *CreateTableResponse) GetHeader() *ResponseHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

type IsCreateTableDoneRequest struct {
	Name string `json:"name"`
}

type IsCreateTableDoneResponse struct {
	Header *ResponseHeader `json:"header,omitempty"`
	Done   bool            `json:"done"`
}

func (r *IsCreateTableDoneResponse) GetHeader() *ResponseHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

func (r *IsCreateTableDoneResponse) GetDone() bool {
	if r == nil {
		return false
	}
	return r.Done
}

type DeleteTableRequest struct {
	Name string `json:"name"`
}

type DeleteTableResponse struct {
	Header *ResponseHeader `json:"header,omitempty"`
}

func (r *DeleteTableResponse) GetHeader() *ResponseHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

type IsDeleteTableDoneRequest struct {
	Name string `json:"name"`
}

type IsDeleteTableDoneResponse struct {
	Header *ResponseHeader `json:"header,omitempty"`
	// Done is set once every tablet of the table has been dropped.
	Done bool `json:"done"`
}

func (r *IsDeleteTableDoneResponse) GetHeader() *ResponseHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

func (r *IsDeleteTableDoneResponse) GetDone() bool {
	if r == nil {
		return false
	}
	return r.Done
}

type AlterStepType int32

const (
	AlterInvalid AlterStepType = iota
	AlterAddColumn
	AlterDropColumn
	AlterRenameColumn
)

func (t AlterStepType) Valid() bool {
	return t > AlterInvalid && t <= AlterRenameColumn
}

type AlterStep struct {
	Type      AlterStepType  `json:"type"`
	AddColumn *metapb.Column `json:"add_column,omitempty"`
	DropName  string         `json:"drop_name,omitempty"`
	OldName   string         `json:"old_name,omitempty"`
	NewName   string         `json:"new_name,omitempty"`
}

type AlterTableRequest struct {
	Name    string       `json:"name"`
	NewName string       `json:"new_name,omitempty"`
	Steps   []*AlterStep `json:"steps,omitempty"`
}

type AlterTableResponse struct {
	Header *ResponseHeader `json:"header,omitempty"`
}

func (r *AlterTableResponse) GetHeader() *ResponseHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

type IsAlterTableDoneRequest struct {
	Name string `json:"name"`
}

type IsAlterTableDoneResponse struct {
	Header *ResponseHeader `json:"header,omitempty"`
	Done   bool            `json:"done"`
}

func (r *IsAlterTableDoneResponse) GetHeader() *ResponseHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

func (r *IsAlterTableDoneResponse) GetDone() bool {
	if r == nil {
		return false
	}
	return r.Done
}

type GetTableSchemaRequest struct {
	Name string `json:"name"`
}

type GetTableSchemaResponse struct {
	Header *ResponseHeader `json:"header,omitempty"`
	Table  *metapb.Table   `json:"table,omitempty"`
}

func (r *GetTableSchemaResponse) GetHeader() *ResponseHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

func (r *GetTableSchemaResponse) GetTable() *metapb.Table {
	if r == nil {
		return nil
	}
	return r.Table
}

type GetTableLocationsRequest struct {
	Name string `json:"name"`
	// StartKey bounds the returned locations: only tablets whose range
	// ends after StartKey are returned, in start-key order.
	StartKey []byte `json:"start_key,omitempty"`
	// MaxReturnedLocations caps the result size; 0 means server default.
	MaxReturnedLocations uint32 `json:"max_returned_locations,omitempty"`
}

type GetTableLocationsResponse struct {
	Header    *ResponseHeader  `json:"header,omitempty"`
	Locations []*metapb.Tablet `json:"locations,omitempty"`
}

func (r *GetTableLocationsResponse) GetHeader() *ResponseHeader {
	if r == nil {
		return nil
	}
	return r.Header
}

func (r *GetTableLocationsResponse) GetLocations() []*metapb.Tablet {
	if r == nil {
		return nil
	}
	return r.Locations
}
