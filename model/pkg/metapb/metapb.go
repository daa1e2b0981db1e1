package metapb

// Metadata types shared by the master (catalog) service and the tablet
// servers. These are maintained by hand; the wire representation is the
// JSON encoding installed by the rpc package.

type DataType int32

const (
	TypeInvalid DataType = iota
	TypeInt
	TypeBigInt
	TypeFloat
	TypeVarchar
	TypeDate
	TypeTimestamp
)

func (d DataType) String() string {
	switch d {
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeVarchar:
		return "varchar"
	case TypeDate:
		return "date"
	case TypeTimestamp:
		return "timestamp"
	}
	return "invalid"
}

// Valid reports whether d is a known data type. Values decoded from the
// wire must be checked before use.
func (d DataType) Valid() bool {
	return d > TypeInvalid && d <= TypeTimestamp
}

type Column struct {
	Id   uint64 `json:"id,omitempty"`
	Name string `json:"name"`
	// DataType of the column value.
	DataType DataType `json:"data_type"`
	// PrimaryKey is the 1-based position of the column inside the
	// primary key, 0 if the column is not part of the key.
	PrimaryKey   uint64 `json:"primary_key,omitempty"`
	Nullable     bool   `json:"nullable,omitempty"`
	DefaultValue []byte `json:"default_value,omitempty"`
}

func (c *Column) GetId() uint64 {
	if c == nil {
		return 0
	}
	return c.Id
}

func (c *Column) GetName() string {
	if c == nil {
		return ""
	}
	return c.Name
}

func (c *Column) GetDataType() DataType {
	if c == nil {
		return TypeInvalid
	}
	return c.DataType
}

func (c *Column) GetPrimaryKey() uint64 {
	if c == nil {
		return 0
	}
	return c.PrimaryKey
}

func (c *Column) GetNullable() bool {
	if c == nil {
		return false
	}
	return c.Nullable
}

func (c *Column) GetDefaultValue() []byte {
	if c == nil {
		return nil
	}
	return c.DefaultValue
}

func (c *Column) Clone() *Column {
	if c == nil {
		return nil
	}
	nc := *c
	if c.DefaultValue != nil {
		nc.DefaultValue = append([]byte(nil), c.DefaultValue...)
	}
	return &nc
}

type Table struct {
	Id      uint64    `json:"id,omitempty"`
	Name    string    `json:"name"`
	Columns []*Column `json:"columns"`
}

func (t *Table) GetId() uint64 {
	if t == nil {
		return 0
	}
	return t.Id
}

func (t *Table) GetName() string {
	if t == nil {
		return ""
	}
	return t.Name
}

func (t *Table) GetColumns() []*Column {
	if t == nil {
		return nil
	}
	return t.Columns
}

func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	nt := &Table{Id: t.Id, Name: t.Name}
	for _, c := range t.Columns {
		nt.Columns = append(nt.Columns, c.Clone())
	}
	return nt
}

type ReplicaRole int32

const (
	RoleInvalid ReplicaRole = iota
	RoleLeader
	RoleFollower
	RoleLearner
)

func (r ReplicaRole) Valid() bool {
	return r > RoleInvalid && r <= RoleLearner
}

// Replica describes one copy of a tablet on a tablet server.
type Replica struct {
	NodeId uint64      `json:"node_id"`
	Addr   string      `json:"addr"`
	Role   ReplicaRole `json:"role"`
}

func (r *Replica) GetNodeId() uint64 {
	if r == nil {
		return 0
	}
	return r.NodeId
}

func (r *Replica) GetAddr() string {
	if r == nil {
		return ""
	}
	return r.Addr
}

func (r *Replica) GetRole() ReplicaRole {
	if r == nil {
		return RoleInvalid
	}
	return r.Role
}

// Tablet identifies one shard of a table: the key range [StartKey,
// EndKey) it owns plus the replicas currently serving it.
type Tablet struct {
	Id       uint64     `json:"id"`
	TableId  uint64     `json:"table_id"`
	StartKey *Key       `json:"start_key"`
	EndKey   *Key       `json:"end_key"`
	Replicas []*Replica `json:"replicas"`
}

func (t *Tablet) GetId() uint64 {
	if t == nil {
		return 0
	}
	return t.Id
}

func (t *Tablet) GetTableId() uint64 {
	if t == nil {
		return 0
	}
	return t.TableId
}

func (t *Tablet) GetStartKey() *Key {
	if t == nil {
		return nil
	}
	return t.StartKey
}

func (t *Tablet) GetEndKey() *Key {
	if t == nil {
		return nil
	}
	return t.EndKey
}

func (t *Tablet) GetReplicas() []*Replica {
	if t == nil {
		return nil
	}
	return t.Replicas
}
