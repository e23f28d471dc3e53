package engine

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zagortenay333/dabbase/internal/engine/sql"
	"github.com/zagortenay333/dabbase/internal/storage/pager"
)

// keywordCaser folds dialect keywords (column type names, function
// names) to upper case for comparison. Unicode-correct case folding
// matters here because identifiers and keywords share one token class
// in the lexer (spec's dialect is case-insensitive only for keywords),
// so a naive strings.ToUpper would mishandle non-ASCII identifiers
// that happen to collide with a keyword spelling under simple folding.
var keywordCaser = cases.Upper(language.Und)

// Catalog is the lookup surface BuildPlan needs from a live database: the
// set of tables the statement's identifiers may refer to. *DB implements
// it; tests can supply a bare map-backed stand-in instead.
type Catalog interface {
	LookupTable(name string) (*TableSchema, bool)
}

// scopeCol is one column a bound expression may reference: its
// qualifying table name (or alias) and its position in the row the
// owning operator produces.
type scopeCol struct {
	table string
	name  string
	typ   pager.ColType
}

// scope binds identifiers appearing in a clause to a position in the
// row that clause's operator will see, the same role a symbol table
// plays in a conventional compiler front end.
type scope struct {
	cols []scopeCol
}

func (s *scope) index(table, name string) (int, error) {
	found := -1
	for i, c := range s.cols {
		if c.name != name {
			continue
		}
		if table != "" && c.table != table {
			continue
		}
		if found >= 0 {
			return -1, fmt.Errorf("ambiguous column reference %q", name)
		}
		found = i
	}
	if found < 0 {
		if table != "" {
			return -1, fmt.Errorf("no such column: %s.%s", table, name)
		}
		return -1, fmt.Errorf("no such column: %s", name)
	}
	return found, nil
}

func schemaCols(schema *TableSchema, qualifier string) []scopeCol {
	out := make([]scopeCol, len(schema.Columns))
	for i, c := range schema.Columns {
		out[i] = scopeCol{table: qualifier, name: c.Name, typ: c.Type}
	}
	return out
}

// aggCtx threads aggregate-discovery state through the SELECT list,
// HAVING and ORDER BY of an aggregating query: expressions are bound
// against the pre-group row via the plain builder, except where they
// exactly match a GROUP BY expression or contain an aggregate call,
// which instead resolve to a column position in the Group operator's
// output row (GroupExprs results, then each distinct Aggregates result,
// in first-seen order).
type aggCtx struct {
	groupLen   int
	groupTexts []string
	aggTexts   []string
	aggCalls   []*AggregateCall
	aggNames   []string
}

func (a *aggCtx) matchGroup(e *sql.Expr) (int, bool) {
	text := sql.Render(e)
	for i, g := range a.groupTexts {
		if g == text {
			return i, true
		}
	}
	return -1, false
}

func (a *aggCtx) resolveAgg(call *sql.AggCall, sc *scope) (int, error) {
	text := sql.RenderAgg(call)
	for i, t := range a.aggTexts {
		if t == text {
			return a.groupLen + i, nil
		}
	}
	built, err := buildAggCall(call, sc)
	if err != nil {
		return 0, err
	}
	a.aggTexts = append(a.aggTexts, text)
	a.aggCalls = append(a.aggCalls, built)
	a.aggNames = append(a.aggNames, text)
	return a.groupLen + len(a.aggCalls) - 1, nil
}

// BuildPlan lowers a parsed statement into a Plan tree against cat.
func BuildPlan(stmt *sql.Statement, cat Catalog) (Plan, error) {
	inner, err := buildStatementBody(stmt, cat)
	if err != nil {
		return nil, err
	}
	if !stmt.Explain {
		return inner, nil
	}
	if stmt.Run {
		return &ExplainRun{Inner: inner}, nil
	}
	return &Explain{Inner: inner}, nil
}

func buildStatementBody(stmt *sql.Statement, cat Catalog) (Plan, error) {
	switch {
	case stmt.Create != nil:
		return buildCreate(stmt.Create)
	case stmt.Drop != nil:
		return buildDrop(stmt.Drop)
	case stmt.Insert != nil:
		return buildInsert(stmt.Insert, cat)
	case stmt.Update != nil:
		return buildUpdate(stmt.Update, cat)
	case stmt.Delete != nil:
		return buildDelete(stmt.Delete, cat)
	case stmt.Select != nil:
		return buildSelect(stmt.Select, cat)
	default:
		return nil, fmt.Errorf("engine: empty statement")
	}
}

// --- DDL ---------------------------------------------------------------

func buildCreate(stmt *sql.CreateStmt) (Plan, error) {
	if isCatalogName(stmt.Name) {
		return nil, fmt.Errorf("%s is a reserved table name", stmt.Name)
	}
	cols := make([]ColumnDef, len(stmt.Columns))
	pkIndex := -1
	for i, c := range stmt.Columns {
		typ, err := colTypeFromKeyword(c.Type)
		if err != nil {
			return nil, err
		}
		if c.PrimaryKey {
			if pkIndex >= 0 {
				return nil, fmt.Errorf("table %s cannot have two primary keys", stmt.Name)
			}
			pkIndex = i
		}
		cols[i] = ColumnDef{Name: c.Name, Type: typ, NotNull: c.NotNull || c.PrimaryKey, PrimaryKey: c.PrimaryKey}
	}
	if pkIndex < 0 {
		return nil, fmt.Errorf("table %s does not have a primary key", stmt.Name)
	}
	return &CreateTable{Name: stmt.Name, Columns: cols, PKIndex: pkIndex}, nil
}

func colTypeFromKeyword(kw string) (pager.ColType, error) {
	switch keywordCaser.String(kw) {
	case "INT":
		return pager.ColInt, nil
	case "BOOL":
		return pager.ColBool, nil
	case "TEXT":
		return pager.ColText, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", kw)
	}
}

func buildDrop(stmt *sql.DropStmt) (Plan, error) {
	if isCatalogName(stmt.Name) {
		return nil, fmt.Errorf("%s is a reserved table name", stmt.Name)
	}
	return &DropTable{Name: stmt.Name}, nil
}

// --- DML -----------------------------------------------------------------

func lookupTable(cat Catalog, name string) (*TableSchema, error) {
	if isCatalogName(name) {
		return nil, fmt.Errorf("%s is a reserved table name", name)
	}
	schema, ok := cat.LookupTable(name)
	if !ok {
		return nil, fmt.Errorf("no such table: %s", name)
	}
	return schema, nil
}

func buildInsert(stmt *sql.InsertStmt, cat Catalog) (Plan, error) {
	schema, err := lookupTable(cat, stmt.Table)
	if err != nil {
		return nil, err
	}

	positions := make([]int, len(schema.Columns))
	if len(stmt.Columns) == 0 {
		for i := range schema.Columns {
			positions[i] = i
		}
	} else {
		for i := range positions {
			positions[i] = -1
		}
		for srcIdx, name := range stmt.Columns {
			dst := schema.ColumnIndex(name)
			if dst < 0 {
				return nil, fmt.Errorf("no such column: %s", name)
			}
			positions[dst] = srcIdx
		}
	}

	sc := &scope{} // INSERT ... VALUES expressions may not reference any column
	rows := make([][]Expr, len(stmt.Rows))
	for r, row := range stmt.Rows {
		width := len(schema.Columns)
		if len(stmt.Columns) > 0 {
			width = len(stmt.Columns)
		}
		if len(row.Exprs) != width {
			return nil, fmt.Errorf("insert row %d: expected %d values, got %d", r+1, width, len(row.Exprs))
		}
		out := make([]Expr, len(schema.Columns))
		for dst, srcIdx := range positions {
			if srcIdx < 0 {
				out[dst] = &Literal{Val: pager.NullValue(schema.Columns[dst].Type)}
				continue
			}
			e, err := buildTopExpr(row.Exprs[srcIdx], sc, nil)
			if err != nil {
				return nil, err
			}
			out[dst] = e
		}
		rows[r] = out
	}
	return &Insert{Table: schema, Rows: rows}, nil
}

func buildUpdate(stmt *sql.UpdateStmt, cat Catalog) (Plan, error) {
	schema, err := lookupTable(cat, stmt.Table)
	if err != nil {
		return nil, err
	}
	sc := &scope{cols: schemaCols(schema, schema.Name)}

	assigns := make(map[int]Expr, len(stmt.Assignments))
	for _, a := range stmt.Assignments {
		idx := schema.ColumnIndex(a.Column)
		if idx < 0 {
			return nil, fmt.Errorf("no such column: %s", a.Column)
		}
		e, err := buildTopExpr(a.Value, sc, nil)
		if err != nil {
			return nil, err
		}
		assigns[idx] = e
	}

	var pred Expr
	if stmt.Where != nil {
		pred, err = buildTopExpr(stmt.Where, sc, nil)
		if err != nil {
			return nil, err
		}
	}
	return &Update{Table: schema, Assignments: assigns, Pred: pred}, nil
}

func buildDelete(stmt *sql.DeleteStmt, cat Catalog) (Plan, error) {
	schema, err := lookupTable(cat, stmt.Table)
	if err != nil {
		return nil, err
	}
	sc := &scope{cols: schemaCols(schema, schema.Name)}
	var pred Expr
	if stmt.Where != nil {
		pred, err = buildTopExpr(stmt.Where, sc, nil)
		if err != nil {
			return nil, err
		}
	}
	return &Delete{Table: schema, Pred: pred}, nil
}

// --- SELECT ----------------------------------------------------------------

func buildFromClause(cat Catalog, from *sql.TableRef, joins []*sql.JoinClause) (Plan, *scope, error) {
	if from == nil {
		return ScanDummy{}, &scope{}, nil
	}
	schema, err := lookupTable(cat, from.Name)
	if err != nil {
		return nil, nil, err
	}
	qualifier := from.Name
	if from.Alias != "" {
		qualifier = from.Alias
	}
	var plan Plan = &Scan{Table: schema}
	sc := &scope{cols: schemaCols(schema, qualifier)}

	for _, j := range joins {
		rSchema, err := lookupTable(cat, j.Table.Name)
		if err != nil {
			return nil, nil, err
		}
		rQualifier := j.Table.Name
		if j.Table.Alias != "" {
			rQualifier = j.Table.Alias
		}
		combined := &scope{cols: append(append([]scopeCol{}, sc.cols...), schemaCols(rSchema, rQualifier)...)}

		kind := JoinCross
		if strings.EqualFold(j.Kind, "INNER") || j.On != nil {
			kind = JoinInner
		}
		var on Expr
		if j.On != nil {
			on, err = buildTopExpr(j.On, combined, nil)
			if err != nil {
				return nil, nil, err
			}
		} else if kind == JoinInner {
			return nil, nil, fmt.Errorf("INNER JOIN requires an ON clause")
		}

		plan = &Join{Kind: kind, Left: plan, Right: &Scan{Table: rSchema}, On: on}
		sc = combined
	}
	return plan, sc, nil
}

func buildSelect(stmt *sql.SelectStmt, cat Catalog) (Plan, error) {
	plan, sc, err := buildFromClause(cat, stmt.From, stmt.Joins)
	if err != nil {
		return nil, err
	}

	if stmt.Where != nil {
		pred, err := buildTopExpr(stmt.Where, sc, nil)
		if err != nil {
			return nil, err
		}
		plan = &Filter{Input: plan, Pred: pred}
	}

	hasAgg := len(stmt.GroupBy) > 0 || stmt.Having != nil || selectListHasAgg(stmt.Items)
	if !hasAgg {
		return buildPlainSelect(stmt, plan, sc)
	}
	return buildAggregateSelect(stmt, plan, sc)
}

func selectListHasAgg(items []*sql.SelectItem) bool {
	for _, it := range items {
		if it.Value != nil && sql.HasAgg(it.Value) {
			return true
		}
	}
	return false
}

func buildPlainSelect(stmt *sql.SelectStmt, plan Plan, sc *scope) (Plan, error) {
	var keys []OrderKey
	for _, o := range stmt.OrderBy {
		e, err := buildTopExpr(o.Value, sc, nil)
		if err != nil {
			return nil, err
		}
		keys = append(keys, OrderKey{Expr: e, Desc: o.Desc})
	}
	if len(keys) > 0 {
		plan = &Order{Input: plan, Keys: keys}
	}

	exprs, names, err := buildSelectItems(stmt.Items, sc, nil)
	if err != nil {
		return nil, err
	}
	plan = &Projection{Input: plan, Exprs: exprs, Names: names}
	return applyLimit(plan, stmt.Limit, stmt.Offset), nil
}

func buildAggregateSelect(stmt *sql.SelectStmt, plan Plan, sc *scope) (Plan, error) {
	ac := &aggCtx{groupLen: len(stmt.GroupBy)}
	groupExprs := make([]Expr, len(stmt.GroupBy))
	groupNames := make([]string, len(stmt.GroupBy))
	for i, g := range stmt.GroupBy {
		e, err := buildTopExpr(g, sc, nil)
		if err != nil {
			return nil, err
		}
		groupExprs[i] = e
		groupNames[i] = sql.Render(g)
		ac.groupTexts = append(ac.groupTexts, sql.Render(g))
	}

	for _, it := range stmt.Items {
		if it.Star {
			return nil, fmt.Errorf("SELECT * may not be combined with GROUP BY or an aggregate function")
		}
	}
	itemExprs, itemNames, err := buildSelectItems(stmt.Items, sc, ac)
	if err != nil {
		return nil, err
	}

	var havingPred Expr
	if stmt.Having != nil {
		havingPred, err = buildTopExpr(stmt.Having, sc, ac)
		if err != nil {
			return nil, err
		}
	}

	var keys []OrderKey
	for _, o := range stmt.OrderBy {
		e, err := buildTopExpr(o.Value, sc, ac)
		if err != nil {
			return nil, err
		}
		keys = append(keys, OrderKey{Expr: e, Desc: o.Desc})
	}

	plan = &Group{Input: plan, GroupExprs: groupExprs, GroupNames: groupNames, Aggregates: ac.aggCalls, AggNames: ac.aggNames}
	if havingPred != nil {
		plan = &Filter{Input: plan, Pred: havingPred}
	}
	if len(keys) > 0 {
		plan = &Order{Input: plan, Keys: keys}
	}
	plan = &Projection{Input: plan, Exprs: itemExprs, Names: itemNames}
	return applyLimit(plan, stmt.Limit, stmt.Offset), nil
}

func buildSelectItems(items []*sql.SelectItem, sc *scope, ac *aggCtx) ([]Expr, []string, error) {
	var exprs []Expr
	var names []string
	for _, it := range items {
		if it.Star {
			// * expands to one ColumnRef per scope column, indexed by its
			// position in sc — the scope of the row Projection's Input
			// operator (Filter/Order/the raw FROM/JOIN row) produces,
			// which a plain (non-aggregating) SELECT always projects
			// straight off.
			for i, c := range sc.cols {
				exprs = append(exprs, &ColumnRef{Table: c.table, Name: c.name, Idx: i})
				names = append(names, c.name)
			}
			continue
		}
		e, err := buildTopExpr(it.Value, sc, ac)
		if err != nil {
			return nil, nil, err
		}
		name := it.Alias
		if name == "" {
			name = sql.Render(it.Value)
		}
		exprs = append(exprs, e)
		names = append(names, name)
	}
	return exprs, names, nil
}

func applyLimit(plan Plan, limit, offset *int64) Plan {
	if limit == nil && offset == nil {
		return plan
	}
	l := &Limit{Limit: -1, Offset: 0}
	if limit != nil {
		l.Limit = *limit
	}
	if offset != nil {
		l.Offset = *offset
	}
	l.Input = plan
	return l
}

// --- expression building -------------------------------------------------

// buildTopExpr builds a clause-level expression: a SELECT item, an
// ORDER BY key, a HAVING predicate, a WHERE/ON predicate. When ac is
// non-nil (an aggregating query) the whole expression is first checked
// against the GROUP BY list so "SELECT a, COUNT(*) ... GROUP BY a" binds
// a to the group's output column rather than re-evaluating it against
// the pre-group row, which Group's output no longer carries.
func buildTopExpr(e *sql.Expr, sc *scope, ac *aggCtx) (Expr, error) {
	if ac != nil {
		if idx, ok := ac.matchGroup(e); ok {
			return &ColumnRef{Name: sql.Render(e), Idx: idx}, nil
		}
	}
	return buildOrExpr(e, sc, ac)
}

func buildOrExpr(e *sql.Expr, sc *scope, ac *aggCtx) (Expr, error) {
	left, err := buildAndExpr(e.Left, sc, ac)
	if err != nil {
		return nil, err
	}
	for _, r := range e.Rest {
		right, err := buildAndExpr(r.Right, sc, ac)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "OR", L: left, R: right}
	}
	return left, nil
}

func buildAndExpr(e *sql.AndExpr, sc *scope, ac *aggCtx) (Expr, error) {
	left, err := buildNotExpr(e.Left, sc, ac)
	if err != nil {
		return nil, err
	}
	for _, r := range e.Rest {
		right, err := buildNotExpr(r.Right, sc, ac)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "AND", L: left, R: right}
	}
	return left, nil
}

func buildNotExpr(e *sql.NotExpr, sc *scope, ac *aggCtx) (Expr, error) {
	inner, err := buildIsNullExpr(e.Right, sc, ac)
	if err != nil {
		return nil, err
	}
	if e.Not {
		return &Unary{Op: "NOT", X: inner}, nil
	}
	return inner, nil
}

func buildIsNullExpr(e *sql.IsNullExpr, sc *scope, ac *aggCtx) (Expr, error) {
	inner, err := buildComparison(e.Left, sc, ac)
	if err != nil {
		return nil, err
	}
	if e.Suffix != nil {
		op := "ISNULL"
		if e.Suffix.Not {
			op = "ISNOTNULL"
		}
		return &Unary{Op: op, X: inner}, nil
	}
	return inner, nil
}

func buildComparison(c *sql.Comparison, sc *scope, ac *aggCtx) (Expr, error) {
	left, err := buildAdditive(c.Left, sc, ac)
	if err != nil {
		return nil, err
	}
	if c.Right == nil {
		return left, nil
	}
	right, err := buildAdditive(c.Right, sc, ac)
	if err != nil {
		return nil, err
	}
	return &Binary{Op: c.Op, L: left, R: right}, nil
}

func buildAdditive(a *sql.Additive, sc *scope, ac *aggCtx) (Expr, error) {
	left, err := buildMultiplicative(a.Left, sc, ac)
	if err != nil {
		return nil, err
	}
	for _, r := range a.Rest {
		right, err := buildMultiplicative(r.Right, sc, ac)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: r.Op, L: left, R: right}
	}
	return left, nil
}

func buildMultiplicative(m *sql.Multiplicative, sc *scope, ac *aggCtx) (Expr, error) {
	left, err := buildUnary(m.Left, sc, ac)
	if err != nil {
		return nil, err
	}
	for _, r := range m.Rest {
		right, err := buildUnary(r.Right, sc, ac)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: r.Op, L: left, R: right}
	}
	return left, nil
}

func buildUnary(u *sql.Unary, sc *scope, ac *aggCtx) (Expr, error) {
	inner, err := buildPrimary(u.Primary, sc, ac)
	if err != nil {
		return nil, err
	}
	if u.Neg {
		return &Unary{Op: "-", X: inner}, nil
	}
	return inner, nil
}

func buildPrimary(p *sql.Primary, sc *scope, ac *aggCtx) (Expr, error) {
	switch {
	case p.Null:
		return &Literal{Val: pager.NullValue(pager.ColInt)}, nil
	case p.True:
		return &Literal{Val: pager.BoolValue(true)}, nil
	case p.False:
		return &Literal{Val: pager.BoolValue(false)}, nil
	case p.Int != nil:
		return &Literal{Val: pager.IntValue(*p.Int)}, nil
	case p.Str != nil:
		return &Literal{Val: pager.TextValue(*p.Str)}, nil
	case p.Agg != nil:
		if ac == nil {
			return nil, fmt.Errorf("aggregate function %s not allowed here", p.Agg.Func)
		}
		idx, err := ac.resolveAgg(p.Agg, sc)
		if err != nil {
			return nil, err
		}
		return &ColumnRef{Name: sql.RenderAgg(p.Agg), Idx: idx}, nil
	case p.Column != nil:
		table, name := "", p.Column.First
		if p.Column.Second != "" {
			table, name = p.Column.First, p.Column.Second
		}
		idx, err := sc.index(table, name)
		if err != nil {
			return nil, err
		}
		return &ColumnRef{Table: sc.cols[idx].table, Name: name, Idx: idx}, nil
	case p.Sub != nil:
		return buildTopExpr(p.Sub, sc, ac)
	}
	return nil, fmt.Errorf("engine: empty expression")
}

func buildAggCall(call *sql.AggCall, sc *scope) (*AggregateCall, error) {
	fn := keywordCaser.String(call.Func)
	if call.Star {
		if fn != "COUNT" {
			return nil, fmt.Errorf("%s(*) is not valid; only COUNT(*) takes a star argument", fn)
		}
		return &AggregateCall{Func: fn, Star: true}, nil
	}
	arg, err := buildTopExpr(call.Arg, sc, nil)
	if err != nil {
		return nil, err
	}
	return &AggregateCall{Func: fn, Arg: arg}, nil
}
