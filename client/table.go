package client

import (
	"sort"

	"github.com/juju/errors"

	"github.com/tabletstore/client-go/model/pkg/metapb"
	"github.com/tabletstore/client-go/model/pkg/mspb"
)

// Table is an open, reference-counted handle on one table. All
// sessions, mutations and scanners derived from it share the same
// schema snapshot. Close releases the reference; the client drops the
// handle when the last holder releases it.
type Table struct {
	client *Client
	name   string
	meta   *metapb.Table

	columns   []*metapb.Column
	byName    map[string]*metapb.Column
	pkColumns []*metapb.Column
}

func newTable(client *Client, meta *metapb.Table) *Table {
	t := &Table{
		client: client,
		name:   meta.GetName(),
		meta:   meta,
		byName: make(map[string]*metapb.Column),
	}
	t.columns = meta.GetColumns()
	for _, col := range t.columns {
		t.byName[col.GetName()] = col
		if col.GetPrimaryKey() > 0 {
			t.pkColumns = append(t.pkColumns, col)
		}
	}
	sort.Slice(t.pkColumns, func(i, j int) bool {
		return t.pkColumns[i].GetPrimaryKey() < t.pkColumns[j].GetPrimaryKey()
	})
	return t
}

func (t *Table) Name() string {
	return t.name
}

// Schema returns the table schema with server-assigned column ids
// stripped.
func (t *Table) Schema() *metapb.Table {
	return stripColumnIds(t.meta)
}

func (t *Table) column(name string) *metapb.Column {
	return t.byName[name]
}

// Close releases this handle's reference on the table.
func (t *Table) Close() {
	t.client.releaseTable(t.name)
}

func (t *Table) NewInsert() *Mutation {
	return newMutation(t, MutationInsert)
}

func (t *Table) NewUpdate() *Mutation {
	return newMutation(t, MutationUpdate)
}

func (t *Table) NewDelete() *Mutation {
	return newMutation(t, MutationDelete)
}

func stripColumnIds(meta *metapb.Table) *metapb.Table {
	clone := meta.Clone()
	for _, col := range clone.GetColumns() {
		col.Id = 0
	}
	return clone
}

// CreateTableOptions tunes CreateTable. The zero value pre-splits
// nothing and waits until every tablet is assigned.
type CreateTableOptions struct {
	// SplitKeys pre-splits the table: N keys yield N+1 tablets.
	SplitKeys [][]byte
	// SkipWaitAssignment returns as soon as the master accepts the
	// request instead of waiting for tablet assignment.
	SkipWaitAssignment bool
}

// AlterTableBuilder accumulates schema change steps for AlterTable.
type AlterTableBuilder struct {
	newName string
	steps   []*mspb.AlterStep
	err     error
}

func NewAlterTableBuilder() *AlterTableBuilder {
	return &AlterTableBuilder{}
}

func (b *AlterTableBuilder) RenameTable(newName string) *AlterTableBuilder {
	if newName == "" {
		b.fail(errors.BadRequestf("new table name is empty"))
		return b
	}
	b.newName = newName
	return b
}

// AddColumn adds a required column; defaultValue fills it for existing
// rows and must not be nil.
func (b *AlterTableBuilder) AddColumn(name string, dataType metapb.DataType, defaultValue []byte) *AlterTableBuilder {
	if defaultValue == nil {
		b.fail(errors.BadRequestf("required column %s needs a default value", name))
		return b
	}
	b.addColumn(name, dataType, false, defaultValue)
	return b
}

func (b *AlterTableBuilder) AddNullableColumn(name string, dataType metapb.DataType) *AlterTableBuilder {
	b.addColumn(name, dataType, true, nil)
	return b
}

func (b *AlterTableBuilder) addColumn(name string, dataType metapb.DataType, nullable bool, defaultValue []byte) {
	if name == "" {
		b.fail(errors.BadRequestf("column name is empty"))
		return
	}
	if !dataType.Valid() {
		b.fail(errors.BadRequestf("invalid type for column %s", name))
		return
	}
	b.steps = append(b.steps, &mspb.AlterStep{
		Type: mspb.AlterAddColumn,
		AddColumn: &metapb.Column{
			Name:         name,
			DataType:     dataType,
			Nullable:     nullable,
			DefaultValue: defaultValue,
		},
	})
}

func (b *AlterTableBuilder) DropColumn(name string) *AlterTableBuilder {
	if name == "" {
		b.fail(errors.BadRequestf("column name is empty"))
		return b
	}
	b.steps = append(b.steps, &mspb.AlterStep{Type: mspb.AlterDropColumn, DropName: name})
	return b
}

func (b *AlterTableBuilder) RenameColumn(oldName, newName string) *AlterTableBuilder {
	if oldName == "" || newName == "" {
		b.fail(errors.BadRequestf("column name is empty"))
		return b
	}
	b.steps = append(b.steps, &mspb.AlterStep{Type: mspb.AlterRenameColumn, OldName: oldName, NewName: newName})
	return b
}

func (b *AlterTableBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *AlterTableBuilder) hasChanges() bool {
	return b.newName != "" || len(b.steps) > 0
}
