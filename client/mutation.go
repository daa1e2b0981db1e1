package client

import (
	"encoding/binary"

	"github.com/juju/errors"

	"github.com/tabletstore/client-go/model/pkg/kvrpcpb"
	"github.com/tabletstore/client-go/model/pkg/metapb"
	"github.com/tabletstore/client-go/util"
)

type MutationType int32

const (
	MutationInvalid MutationType = iota
	MutationInsert
	MutationUpdate
	MutationDelete
)

func (t MutationType) Valid() bool {
	return t > MutationInvalid && t <= MutationDelete
}

func (t MutationType) String() string {
	switch t {
	case MutationInsert:
		return "insert"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	}
	return "invalid"
}

// Mutation is one row image against a table's schema. A mutation
// belongs to at most one batcher for its whole lifetime; applying it
// hands ownership over and it cannot be applied again.
type Mutation struct {
	table  *Table
	typ    MutationType
	values map[string]interface{}

	// set once absorbed into a batcher
	batched bool
}

func newMutation(table *Table, typ MutationType) *Mutation {
	return &Mutation{
		table:  table,
		typ:    typ,
		values: make(map[string]interface{}),
	}
}

func (m *Mutation) Type() MutationType {
	return m.typ
}

func (m *Mutation) Table() *Table {
	return m.table
}

// Set assigns a column value. The column must exist in the table's
// schema and the value's type must match the column's declared type:
// int/int32/int64 for integer columns, float32/float64 for float
// columns, string or []byte for varchar, date and timestamp columns.
func (m *Mutation) Set(column string, value interface{}) error {
	col := m.table.column(column)
	if col == nil {
		return errors.NotFoundf("column %s in table %s", column, m.table.Name())
	}
	if _, err := coerce(col, value); err != nil {
		return err
	}
	m.values[column] = value
	return nil
}

// SetString assigns a string-typed column value.
func (m *Mutation) SetString(column, value string) error {
	return m.Set(column, value)
}

// keySet reports whether every primary key column has a value.
func (m *Mutation) keySet() bool {
	for _, col := range m.table.pkColumns {
		if _, ok := m.values[col.GetName()]; !ok {
			return false
		}
	}
	return len(m.table.pkColumns) > 0
}

// encodeKey builds the order-preserving primary key of the row, pk
// columns in declared key order.
func (m *Mutation) encodeKey() ([]byte, error) {
	var buf []byte
	for _, col := range m.table.pkColumns {
		v, ok := m.values[col.GetName()]
		if !ok {
			return nil, errors.NotValidf("primary key column %s is not set", col.GetName())
		}
		var err error
		buf, err = encodeTypedValue(buf, col, v)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// encode turns the mutation into a wire op. Deletes carry only the
// key; inserts and updates carry every set non-key column.
func (m *Mutation) encode() (*kvrpcpb.BatchOp, error) {
	key, err := m.encodeKey()
	if err != nil {
		return nil, err
	}
	op := &kvrpcpb.BatchOp{
		Type: kvrpcpb.OpType(m.typ),
		Kv:   &kvrpcpb.KeyValue{Key: key},
	}
	if m.typ == MutationDelete {
		return op, nil
	}
	var value []byte
	for _, col := range m.table.columns {
		if col.GetPrimaryKey() > 0 {
			continue
		}
		v, ok := m.values[col.GetName()]
		if !ok {
			continue
		}
		var idBuf [4]byte
		binary.BigEndian.PutUint32(idBuf[:], uint32(col.GetId()))
		value = append(value, idBuf[:]...)
		value, err = encodeTypedValue(value, col, v)
		if err != nil {
			return nil, err
		}
	}
	op.Kv.Value = value
	return op, nil
}

func encodeTypedValue(buf []byte, col *metapb.Column, v interface{}) ([]byte, error) {
	cv, err := coerce(col, v)
	if err != nil {
		return nil, err
	}
	switch x := cv.(type) {
	case int64:
		return util.EncodeInt64Ascending(buf, x), nil
	case float64:
		return util.EncodeFloat64Ascending(buf, x), nil
	case []byte:
		return util.EncodeBytesAscending(buf, x), nil
	}
	return nil, errors.BadRequestf("unsupported value for column %s", col.GetName())
}

// coerce normalizes v to the canonical Go type of the column (int64,
// float64 or []byte), rejecting type mismatches.
func coerce(col *metapb.Column, v interface{}) (interface{}, error) {
	switch col.GetDataType() {
	case metapb.TypeInt, metapb.TypeBigInt:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		}
	case metapb.TypeFloat:
		switch x := v.(type) {
		case float32:
			return float64(x), nil
		case float64:
			return x, nil
		}
	case metapb.TypeVarchar, metapb.TypeDate, metapb.TypeTimestamp:
		switch x := v.(type) {
		case string:
			return []byte(x), nil
		case []byte:
			return x, nil
		}
	default:
		return nil, errors.BadRequestf("column %s has invalid type %s", col.GetName(), col.GetDataType())
	}
	return nil, errors.BadRequestf("value %T does not match type %s of column %s", v, col.GetDataType(), col.GetName())
}
