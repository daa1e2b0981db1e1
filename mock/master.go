// Package mock provides in-memory master and tablet server
// implementations of the rpc client interfaces, used by tests.
package mock

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/tabletstore/client-go/model/pkg/metapb"
	"github.com/tabletstore/client-go/model/pkg/mspb"
)

// DsAddr is the address every mock replica advertises; the mock data
// server answers for it.
const DsAddr = "mock-ds-1:6180"

type tableState struct {
	meta    *metapb.Table
	tablets []*metapb.Tablet

	nextColID uint64

	// remaining not-done poll answers
	createPolls int
	alterPolls  int
}

// Master is an in-memory catalog implementing rpc.MsClient.
type Master struct {
	lock         sync.Mutex
	nextTableID  uint64
	nextTabletID uint64
	tables       map[string]*tableState
	dropping     map[string]int
	dsAddr       string

	locationCalls int

	// CreatePolls / AlterPolls / DropPolls make the respective
	// is-done probes answer not-done that many times first.
	CreatePolls int
	AlterPolls  int
	DropPolls   int
}

// LocationCalls returns how many GetTableLocations requests were
// served.
func (m *Master) LocationCalls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.locationCalls
}

func NewMaster(dsAddr string) *Master {
	return &Master{
		tables:   make(map[string]*tableState),
		dropping: make(map[string]int),
		dsAddr:   dsAddr,
	}
}

func (m *Master) Close() error {
	return nil
}

func errHeader(code mspb.ErrorCode, msg string) *mspb.ResponseHeader {
	return &mspb.ResponseHeader{Error: &mspb.Error{Code: code, Message: msg}}
}

func (m *Master) CreateTable(req *mspb.CreateTableRequest, _ time.Duration) (*mspb.CreateTableResponse, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.tables[req.Name]; ok {
		return &mspb.CreateTableResponse{Header: errHeader(mspb.CodeTableExists, "table "+req.Name+" already exists")}, nil
	}
	m.nextTableID++
	ts := &tableState{
		meta: &metapb.Table{
			Id:   m.nextTableID,
			Name: req.Name,
		},
		createPolls: m.CreatePolls,
	}
	for _, col := range req.Columns {
		c := col.Clone()
		ts.nextColID++
		c.Id = ts.nextColID
		ts.meta.Columns = append(ts.meta.Columns, c)
	}

	splits := make([][]byte, 0, len(req.SplitKeys))
	for _, k := range req.SplitKeys {
		splits = append(splits, append([]byte(nil), k...))
	}
	sort.Slice(splits, func(i, j int) bool { return bytes.Compare(splits[i], splits[j]) < 0 })
	start := metapb.NegativeInfinityKey
	for _, k := range splits {
		end := metapb.OrdinaryKey(k)
		ts.tablets = append(ts.tablets, m.newTablet(ts.meta.GetId(), start, end))
		start = end
	}
	ts.tablets = append(ts.tablets, m.newTablet(ts.meta.GetId(), start, metapb.PositiveInfinityKey))

	m.tables[req.Name] = ts
	return &mspb.CreateTableResponse{TableId: ts.meta.GetId()}, nil
}

func (m *Master) newTablet(tableID uint64, start, end *metapb.Key) *metapb.Tablet {
	m.nextTabletID++
	return &metapb.Tablet{
		Id:       m.nextTabletID,
		TableId:  tableID,
		StartKey: start.Clone(),
		EndKey:   end.Clone(),
		Replicas: []*metapb.Replica{
			{NodeId: 1, Addr: m.dsAddr, Role: metapb.RoleLeader},
		},
	}
}

func (m *Master) IsCreateTableDone(req *mspb.IsCreateTableDoneRequest, _ time.Duration) (*mspb.IsCreateTableDoneResponse, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	ts, ok := m.tables[req.Name]
	if !ok {
		return &mspb.IsCreateTableDoneResponse{Header: errHeader(mspb.CodeTableNotFound, "table "+req.Name)}, nil
	}
	if ts.createPolls > 0 {
		ts.createPolls--
		return &mspb.IsCreateTableDoneResponse{Done: false}, nil
	}
	return &mspb.IsCreateTableDoneResponse{Done: true}, nil
}

func (m *Master) DeleteTable(req *mspb.DeleteTableRequest, _ time.Duration) (*mspb.DeleteTableResponse, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.tables[req.Name]; !ok {
		return &mspb.DeleteTableResponse{Header: errHeader(mspb.CodeTableNotFound, "table "+req.Name)}, nil
	}
	delete(m.tables, req.Name)
	m.dropping[req.Name] = m.DropPolls
	return &mspb.DeleteTableResponse{}, nil
}

func (m *Master) IsDeleteTableDone(req *mspb.IsDeleteTableDoneRequest, _ time.Duration) (*mspb.IsDeleteTableDoneResponse, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	left, ok := m.dropping[req.Name]
	if !ok {
		return &mspb.IsDeleteTableDoneResponse{Done: true}, nil
	}
	if left > 0 {
		m.dropping[req.Name] = left - 1
		return &mspb.IsDeleteTableDoneResponse{Done: false}, nil
	}
	delete(m.dropping, req.Name)
	return &mspb.IsDeleteTableDoneResponse{Done: true}, nil
}

func (m *Master) AlterTable(req *mspb.AlterTableRequest, _ time.Duration) (*mspb.AlterTableResponse, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	ts, ok := m.tables[req.Name]
	if !ok {
		return &mspb.AlterTableResponse{Header: errHeader(mspb.CodeTableNotFound, "table "+req.Name)}, nil
	}
	if req.NewName != "" {
		if _, exists := m.tables[req.NewName]; exists {
			return &mspb.AlterTableResponse{Header: errHeader(mspb.CodeTableExists, "table "+req.NewName+" already exists")}, nil
		}
	}
	for _, step := range req.Steps {
		if h := ts.applyStep(step); h != nil {
			return &mspb.AlterTableResponse{Header: h}, nil
		}
	}
	if req.NewName != "" {
		delete(m.tables, req.Name)
		ts.meta.Name = req.NewName
		m.tables[req.NewName] = ts
	}
	ts.alterPolls = m.AlterPolls
	return &mspb.AlterTableResponse{}, nil
}

func (ts *tableState) applyStep(step *mspb.AlterStep) *mspb.ResponseHeader {
	find := func(name string) int {
		for i, col := range ts.meta.Columns {
			if col.GetName() == name {
				return i
			}
		}
		return -1
	}
	switch step.Type {
	case mspb.AlterAddColumn:
		col := step.AddColumn
		if col == nil || col.GetName() == "" || !col.GetDataType().Valid() {
			return errHeader(mspb.CodeInvalidArgument, "bad add-column step")
		}
		if find(col.GetName()) >= 0 {
			return errHeader(mspb.CodeInvalidArgument, "column "+col.GetName()+" already exists")
		}
		if !col.GetNullable() && col.GetDefaultValue() == nil {
			return errHeader(mspb.CodeInvalidArgument, "required column "+col.GetName()+" needs a default value")
		}
		c := col.Clone()
		ts.nextColID++
		c.Id = ts.nextColID
		ts.meta.Columns = append(ts.meta.Columns, c)
	case mspb.AlterDropColumn:
		i := find(step.DropName)
		if i < 0 {
			return errHeader(mspb.CodeInvalidArgument, "no column "+step.DropName)
		}
		if ts.meta.Columns[i].GetPrimaryKey() > 0 {
			return errHeader(mspb.CodeInvalidArgument, "cannot drop key column "+step.DropName)
		}
		ts.meta.Columns = append(ts.meta.Columns[:i], ts.meta.Columns[i+1:]...)
	case mspb.AlterRenameColumn:
		i := find(step.OldName)
		if i < 0 {
			return errHeader(mspb.CodeInvalidArgument, "no column "+step.OldName)
		}
		if find(step.NewName) >= 0 {
			return errHeader(mspb.CodeInvalidArgument, "column "+step.NewName+" already exists")
		}
		ts.meta.Columns[i].Name = step.NewName
	default:
		return errHeader(mspb.CodeInvalidArgument, "unknown alter step")
	}
	return nil
}

func (m *Master) IsAlterTableDone(req *mspb.IsAlterTableDoneRequest, _ time.Duration) (*mspb.IsAlterTableDoneResponse, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	ts, ok := m.tables[req.Name]
	if !ok {
		return &mspb.IsAlterTableDoneResponse{Header: errHeader(mspb.CodeTableNotFound, "table "+req.Name)}, nil
	}
	if ts.alterPolls > 0 {
		ts.alterPolls--
		return &mspb.IsAlterTableDoneResponse{Done: false}, nil
	}
	return &mspb.IsAlterTableDoneResponse{Done: true}, nil
}

func (m *Master) GetTableSchema(req *mspb.GetTableSchemaRequest, _ time.Duration) (*mspb.GetTableSchemaResponse, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	ts, ok := m.tables[req.Name]
	if !ok {
		return &mspb.GetTableSchemaResponse{Header: errHeader(mspb.CodeTableNotFound, "table "+req.Name)}, nil
	}
	return &mspb.GetTableSchemaResponse{Table: ts.meta.Clone()}, nil
}

func (m *Master) GetTableLocations(req *mspb.GetTableLocationsRequest, _ time.Duration) (*mspb.GetTableLocationsResponse, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.locationCalls++
	ts, ok := m.tables[req.Name]
	if !ok {
		return &mspb.GetTableLocationsResponse{Header: errHeader(mspb.CodeTableNotFound, "table "+req.Name)}, nil
	}
	start := metapb.OrdinaryKey(req.StartKey)
	if len(req.StartKey) == 0 {
		start = metapb.NegativeInfinityKey
	}
	sort.Sort(metapb.TabletsByStartKeySlice(ts.tablets))
	var out []*metapb.Tablet
	for _, tb := range ts.tablets {
		// only tablets whose range ends after the start key
		if metapb.Compare(tb.GetEndKey(), start) <= 0 {
			continue
		}
		out = append(out, tb)
		if req.MaxReturnedLocations > 0 && uint32(len(out)) >= req.MaxReturnedLocations {
			break
		}
	}
	return &mspb.GetTableLocationsResponse{Locations: out}, nil
}
