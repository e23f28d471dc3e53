package engine

import (
	"fmt"
	"strings"

	"github.com/zagortenay333/dabbase/internal/storage/pager"
)

// catalogTableName is the one system table every database carries, per
// spec §6: CATALOG(name TEXT PRIMARY KEY, sql TEXT, engine_tag INT).
const catalogTableName = "CATALOG"

// catalogRoot is CATALOG's own B-tree root page id. A catalog entry would
// normally record a table's engine tag, but CATALOG cannot record its own
// root without already knowing it — so, per SPEC_FULL's bootstrap note, its
// root is a reserved, well-known constant instead of a looked-up value.
// On a brand-new file the first page Pager.AllocPage ever hands out is
// page 1 (page 0 is the file header), so NewBTree's very first call
// naturally lands here; LoadBTree on reopen reuses the same constant.
const catalogRoot pager.PageID = 1

// catalogValueTypes is CATALOG's value layout: name is the tree's key, so
// only the remaining two columns are present in the stored row.
var catalogValueTypes = []pager.ColType{pager.ColText, pager.ColInt}

// isCatalogName reports whether name refers to the system catalog table,
// case sensitively: identifiers in this dialect are not folded, only
// keywords are (spec §9's CATALOG admin bypass is about the table name
// "CATALOG" specifically, matched exactly as the bootstrap writes it).
func isCatalogName(name string) bool { return name == catalogTableName }

// bootstrapCatalog opens (or creates) the CATALOG tree itself. It never
// touches the in-memory table map; that is populated by replayCatalog.
func bootstrapCatalog(p *pager.Pager) (*pager.BTree, error) {
	if p.FileIsEmpty() {
		tree, err := pager.NewBTree(p, pager.TextKeyType)
		if err != nil {
			return nil, fmt.Errorf("engine: bootstrap catalog: %w", err)
		}
		if tree.Root() != catalogRoot {
			return nil, fmt.Errorf("engine: catalog root drifted from the reserved page id (got %d, want %d)", tree.Root(), catalogRoot)
		}
		return tree, nil
	}
	return pager.LoadBTree(p, pager.TextKeyType, catalogRoot), nil
}

// replayCatalog walks every row of the catalog tree and rebuilds the
// in-memory table map, per SPEC_FULL's "bootstrap-and-replay" note
// (grounded on original_source/src/db.c's db_init).
func replayCatalog(tree *pager.BTree) (map[string]*TableSchema, error) {
	tables := make(map[string]*TableSchema)
	cur := tree.NewCursor()
	defer cur.Close()

	ok, err := cur.GotoFirst()
	if err != nil {
		return nil, err
	}
	for ok {
		name := pager.DecodeTextKey(cur.RawKey())
		vals, err := pager.UnmarshalRow(cur.Read(), catalogValueTypes)
		if err != nil {
			return nil, fmt.Errorf("engine: corrupt catalog row for %q: %w", name, err)
		}
		createSQL := vals[0].S
		engineTag := pager.PageID(vals[1].I)

		if !isCatalogName(name) {
			cols, err := parseCreateTableColumns(createSQL)
			if err != nil {
				return nil, fmt.Errorf("engine: replaying catalog entry %q: %w", name, err)
			}
			pkIndex := 0
			for i, c := range cols {
				if c.PrimaryKey {
					pkIndex = i
					break
				}
			}
			tables[name] = &TableSchema{Name: name, Columns: cols, EngineTag: engineTag, PKIndex: pkIndex}
		}

		ok, err = cur.GotoNext()
		if err != nil {
			return nil, err
		}
	}
	return tables, nil
}

// catalogPut inserts or overwrites a catalog row. Unexported: the CREATE
// TABLE operator is its only caller, and SQL text cannot name CATALOG
// itself, which keeps the CATALOG admin bypass internal-only.
func catalogPut(tree *pager.BTree, name, createSQL string, engineTag pager.PageID) error {
	cur := tree.NewCursor()
	defer cur.Close()

	key := pager.TextKey(name)
	val := pager.MarshalRow([]pager.Value{pager.TextValue(createSQL), pager.IntValue(int64(engineTag))})

	found, err := cur.GotoKey(key)
	if err != nil {
		return err
	}
	if found {
		return cur.Update(val)
	}
	return cur.Insert(key, val)
}

// catalogDelete removes a table's catalog row. It is a no-op (returns nil)
// if the row does not exist.
func catalogDelete(tree *pager.BTree, name string) error {
	cur := tree.NewCursor()
	defer cur.Close()

	found, err := cur.GotoKey(pager.TextKey(name))
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return cur.Remove()
}

// formatCreateTable renders the canonical CREATE TABLE text CATALOG's
// "sql" column stores for a schema. CreateTable execution always writes
// this exact render rather than the user's original statement text, so
// parseCreateTableColumns only ever has to round-trip output this
// function produced, never arbitrary user SQL.
func formatCreateTable(name string, cols []ColumnDef) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(name)
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteByte(' ')
		b.WriteString(colTypeName(c.Type))
		if c.NotNull && !c.PrimaryKey {
			b.WriteString(" NOT NULL")
		}
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
	}
	b.WriteByte(')')
	return b.String()
}

func colTypeName(t pager.ColType) string {
	switch t {
	case pager.ColInt:
		return "INT"
	case pager.ColBool:
		return "BOOL"
	case pager.ColText:
		return "TEXT"
	default:
		return "TEXT"
	}
}

// parseCreateTableColumns recovers a column list from a string
// formatCreateTable produced. It is a narrow reader of our own canonical
// form, not a general SQL parser; the full dialect grammar lives in
// internal/engine/sql.
func parseCreateTableColumns(sql string) ([]ColumnDef, error) {
	open := strings.IndexByte(sql, '(')
	shut := strings.LastIndexByte(sql, ')')
	if open < 0 || shut < 0 || shut < open {
		return nil, fmt.Errorf("malformed stored schema %q", sql)
	}
	body := sql[open+1 : shut]
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("stored schema %q has no columns", sql)
	}

	parts := strings.Split(body, ",")
	cols := make([]ColumnDef, 0, len(parts))
	for _, part := range parts {
		fields := strings.Fields(part)
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed column definition %q in %q", part, sql)
		}
		col := ColumnDef{Name: fields[0]}
		switch strings.ToUpper(fields[1]) {
		case "INT":
			col.Type = pager.ColInt
		case "BOOL":
			col.Type = pager.ColBool
		case "TEXT":
			col.Type = pager.ColText
		default:
			return nil, fmt.Errorf("unknown column type %q in %q", fields[1], sql)
		}
		rest := strings.Join(fields[2:], " ")
		if strings.Contains(strings.ToUpper(rest), "NOT NULL") {
			col.NotNull = true
		}
		if strings.Contains(strings.ToUpper(rest), "PRIMARY KEY") {
			col.PrimaryKey = true
			col.NotNull = true
		}
		cols = append(cols, col)
	}
	return cols, nil
}
