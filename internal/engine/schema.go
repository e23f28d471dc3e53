package engine

import "github.com/zagortenay333/dabbase/internal/storage/pager"

// ColumnDef describes one column of a table as recorded in the catalog:
// its name, storage type, whether NULL is rejected on write, and
// whether it is the table's primary key.
type ColumnDef struct {
	Name       string
	Type       pager.ColType
	NotNull    bool
	PrimaryKey bool
}

// TableSchema is a table's catalog entry resolved into memory: its
// column list plus the root page of the B-tree that stores its rows.
// A row's B-tree key is its primary-key column's own value, not a
// synthetic row id (original_source/src/runner.c's PLAN_INSERT builds
// its ukey straight from the row's declared primary-key column).
type TableSchema struct {
	Name      string
	Columns   []ColumnDef
	EngineTag pager.PageID
	PKIndex   int
}

// PKColumn returns the table's primary-key column definition.
func (t *TableSchema) PKColumn() ColumnDef { return t.Columns[t.PKIndex] }

// KeyType returns the pager.KeyType a cursor over this table's tree
// must use, derived from the primary-key column's declared type.
func (t *TableSchema) KeyType() pager.KeyType {
	return keyTypeForColType(t.PKColumn().Type)
}

func keyTypeForColType(t pager.ColType) pager.KeyType {
	switch t {
	case pager.ColInt:
		return pager.IntKeyType
	case pager.ColBool:
		return pager.BoolKeyType
	default:
		return pager.TextKeyType
	}
}

// keyFromValue builds the B-tree key a row's primary-key value maps
// to. The value must not be null: spec's PRIMARY KEY columns are
// implicitly NOT NULL, matching original_source/src/parser.c rejecting
// a NULL constraint on the primary-key column.
func keyFromValue(v pager.Value) pager.Key {
	switch v.Kind {
	case pager.ColInt:
		return pager.IntKey(v.I)
	case pager.ColBool:
		return pager.BoolKey(v.B)
	default:
		return pager.TextKey(v.S)
	}
}

func (t *TableSchema) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ColumnInfo is one entry of an operator's output schema: the table
// name it originated from (empty for computed/aliased columns) and its
// display name.
type ColumnInfo struct {
	Table string
	Name  string
	Type  pager.ColType
}

// Row is one tuple flowing through the operator tree.
type Row []pager.Value
