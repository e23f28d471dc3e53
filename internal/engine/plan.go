package engine

import "strings"

// Plan is one node of the query plan tree. As with Expr, each shape is
// its own Go type rather than a single struct carrying a kind tag;
// buildOperator (operators.go) turns a Plan tree into a live operator tree via
// a type switch, the idiomatic Go stand-in for the C original's
// switch-on-tag dispatch.
type Plan interface {
	OutputSchema() []ColumnInfo
	String() string
}

// JoinKind distinguishes a plain cross join from one with an ON
// predicate.
type JoinKind int

const (
	JoinCross JoinKind = iota
	JoinInner
)

// Scan reads every row of a table in primary-key order.
type Scan struct {
	Table *TableSchema
}

func (s *Scan) OutputSchema() []ColumnInfo {
	out := make([]ColumnInfo, len(s.Table.Columns))
	for i, c := range s.Table.Columns {
		out[i] = ColumnInfo{Table: s.Table.Name, Name: c.Name, Type: c.Type}
	}
	return out
}
func (s *Scan) String() string { return "Scan(" + s.Table.Name + ")" }

// ScanDummy produces exactly one zero-column row, giving SELECT
// statements with no FROM clause something to project against.
type ScanDummy struct{}

func (ScanDummy) OutputSchema() []ColumnInfo { return nil }
func (ScanDummy) String() string             { return "ScanDummy()" }

// Filter passes through only the rows of Input for which Pred
// evaluates true (null and false both reject a row).
type Filter struct {
	Input Plan
	Pred  Expr
}

func (f *Filter) OutputSchema() []ColumnInfo { return f.Input.OutputSchema() }
func (f *Filter) String() string             { return "Filter(" + f.Pred.String() + ", " + f.Input.String() + ")" }

// Join combines every row of Left with every row of Right. A cross join
// keeps them all; an inner join additionally requires On to hold.
type Join struct {
	Kind  JoinKind
	Left  Plan
	Right Plan
	On    Expr
}

func (j *Join) OutputSchema() []ColumnInfo {
	return append(append([]ColumnInfo{}, j.Left.OutputSchema()...), j.Right.OutputSchema()...)
}
func (j *Join) String() string {
	if j.Kind == JoinCross {
		return "Join(cross, " + j.Left.String() + ", " + j.Right.String() + ")"
	}
	return "Join(inner " + j.On.String() + ", " + j.Left.String() + ", " + j.Right.String() + ")"
}

// Projection computes Exprs against each row of Input, naming the
// results Names.
type Projection struct {
	Input Plan
	Exprs []Expr
	Names []string
}

func (p *Projection) OutputSchema() []ColumnInfo {
	out := make([]ColumnInfo, len(p.Exprs))
	for i := range p.Exprs {
		out[i] = ColumnInfo{Name: p.Names[i]}
	}
	return out
}
func (p *Projection) String() string {
	parts := make([]string, len(p.Exprs))
	for i, e := range p.Exprs {
		parts[i] = e.String()
	}
	return "Projection([" + strings.Join(parts, ", ") + "], " + p.Input.String() + ")"
}

// Group partitions Input's rows by GroupExprs (sorted ascending on them),
// computing Aggregates once per partition. With no GroupExprs the
// entire input is a single implicit group, matching plain aggregate
// queries with no GROUP BY clause.
type Group struct {
	Input      Plan
	GroupExprs []Expr
	GroupNames []string
	Aggregates []*AggregateCall
	AggNames   []string
}

func (g *Group) OutputSchema() []ColumnInfo {
	out := make([]ColumnInfo, 0, len(g.GroupExprs)+len(g.Aggregates))
	for _, n := range g.GroupNames {
		out = append(out, ColumnInfo{Name: n})
	}
	for _, n := range g.AggNames {
		out = append(out, ColumnInfo{Name: n})
	}
	return out
}
func (g *Group) String() string { return "Group(" + g.Input.String() + ")" }

// OrderKey is one ORDER BY term.
type OrderKey struct {
	Expr Expr
	Desc bool
}

// Order sorts Input fully in memory before yielding its first row,
// using the in-memory Sorter (sorter.go).
type Order struct {
	Input Plan
	Keys  []OrderKey
}

func (o *Order) OutputSchema() []ColumnInfo { return o.Input.OutputSchema() }
func (o *Order) String() string             { return "Order(" + o.Input.String() + ")" }

// Limit yields at most Limit rows of Input after skipping Offset of
// them. Limit is -1 when there is no LIMIT clause; Offset is 0 when
// there is no OFFSET clause.
type Limit struct {
	Input  Plan
	Limit  int64
	Offset int64
}

func (l *Limit) OutputSchema() []ColumnInfo { return l.Input.OutputSchema() }
func (l *Limit) String() string             { return "Limit(" + l.Input.String() + ")" }

// CreateTable registers a new table in the catalog and allocates its
// (initially empty) storage tree.
type CreateTable struct {
	Name    string
	Columns []ColumnDef
	PKIndex int
}

func (c *CreateTable) OutputSchema() []ColumnInfo { return nil }
func (c *CreateTable) String() string             { return "CreateTable(" + c.Name + ")" }

// DropTable frees a table's entire storage tree and removes its
// catalog entry.
type DropTable struct {
	Name string
}

func (d *DropTable) OutputSchema() []ColumnInfo { return nil }
func (d *DropTable) String() string             { return "DropTable(" + d.Name + ")" }

// Insert evaluates each row of Rows (once, against the empty row, since
// INSERT ... VALUES expressions may not reference other rows) and
// writes the result into Table.
type Insert struct {
	Table *TableSchema
	Rows  [][]Expr
}

func (i *Insert) OutputSchema() []ColumnInfo { return nil }
func (i *Insert) String() string             { return "Insert(" + i.Table.Name + ")" }

// Delete removes every row of Table for which Pred holds (nil Pred
// deletes every row).
type Delete struct {
	Table *TableSchema
	Pred  Expr
}

func (d *Delete) OutputSchema() []ColumnInfo { return nil }
func (d *Delete) String() string             { return "Delete(" + d.Table.Name + ")" }

// Update overwrites, for every row of Table matching Pred, the columns
// named in Assignments (column index -> new-value expression).
type Update struct {
	Table       *TableSchema
	Assignments map[int]Expr
	Pred        Expr
}

func (u *Update) OutputSchema() []ColumnInfo { return nil }
func (u *Update) String() string             { return "Update(" + u.Table.Name + ")" }

// Explain reports Inner's plan tree as text instead of running it.
type Explain struct {
	Inner Plan
}

func (e *Explain) OutputSchema() []ColumnInfo {
	return []ColumnInfo{{Name: "plan", Type: 2}}
}
func (e *Explain) String() string { return "Explain(" + e.Inner.String() + ")" }

// ExplainRun runs Inner to completion, discarding its rows, and reports
// Inner's plan text together with the total number of rows Inner
// produced instead of Inner's own output. It gives no per-operator
// counts and no timings.
type ExplainRun struct {
	Inner Plan
}

func (e *ExplainRun) OutputSchema() []ColumnInfo {
	return []ColumnInfo{{Name: "plan", Type: 2}}
}
func (e *ExplainRun) String() string { return "ExplainRun(" + e.Inner.String() + ")" }
