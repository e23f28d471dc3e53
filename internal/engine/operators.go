package engine

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/zagortenay333/dabbase/internal/storage/pager"
)

// Operator is a Volcano-style pull iterator: Next yields one row at a
// time, a nil row with a nil error signals exhaustion, Reset rewinds
// back to the first row, and Close releases whatever cursors or
// buffers the operator holds. Every concrete operator below composes
// these calls onto its Input(s) rather than pulling whole result sets.
type Operator interface {
	Next() (Row, error)
	Reset() error
	Close() error
}

// buildOperator turns a Plan tree into a live Operator tree, the
// execution-side counterpart to Plan's type-switch-based dispatch.
func buildOperator(plan Plan, db *DB) (Operator, error) {
	switch p := plan.(type) {
	case *Scan:
		return newScanOp(db, p.Table)
	case ScanDummy:
		return &dummyOp{}, nil
	case *ScanDummy:
		return &dummyOp{}, nil
	case *Filter:
		in, err := buildOperator(p.Input, db)
		if err != nil {
			return nil, err
		}
		return &filterOp{input: in, pred: p.Pred}, nil
	case *Join:
		left, err := buildOperator(p.Left, db)
		if err != nil {
			return nil, err
		}
		right, err := buildOperator(p.Right, db)
		if err != nil {
			return nil, err
		}
		return &joinOp{left: left, right: right, kind: p.Kind, on: p.On}, nil
	case *Projection:
		in, err := buildOperator(p.Input, db)
		if err != nil {
			return nil, err
		}
		return &projectionOp{input: in, exprs: p.Exprs}, nil
	case *Group:
		in, err := buildOperator(p.Input, db)
		if err != nil {
			return nil, err
		}
		return &groupOp{input: in, groupExprs: p.GroupExprs, aggs: p.Aggregates}, nil
	case *Order:
		in, err := buildOperator(p.Input, db)
		if err != nil {
			return nil, err
		}
		return &orderOp{input: in, keys: p.Keys}, nil
	case *Limit:
		in, err := buildOperator(p.Input, db)
		if err != nil {
			return nil, err
		}
		return &limitOp{input: in, limit: p.Limit, offset: p.Offset}, nil
	case *Explain:
		return &explainOp{text: p.Inner.String()}, nil
	case *ExplainRun:
		return newExplainRunOp(p.Inner, db)
	case *CreateTable:
		return &createTableOp{db: db, plan: p}, nil
	case *DropTable:
		return &dropTableOp{db: db, plan: p}, nil
	case *Insert:
		return &insertOp{db: db, plan: p}, nil
	case *Delete:
		return newDeleteOp(db, p)
	case *Update:
		return newUpdateOp(db, p)
	default:
		return nil, fmt.Errorf("engine: plan node %T has no operator form", plan)
	}
}

// --- Scan ----------------------------------------------------------------

type scanOp struct {
	table  *TableSchema
	tree   *pager.BTree
	cursor *pager.Cursor
	types  []pager.ColType
	open   bool
}

func newScanOp(db *DB, table *TableSchema) (*scanOp, error) {
	types := lo.Map(table.Columns, func(c ColumnDef, _ int) pager.ColType { return c.Type })
	tree := pager.LoadBTree(db.pager, table.KeyType(), table.EngineTag)
	return &scanOp{table: table, tree: tree, types: types}, nil
}

func (s *scanOp) start() (bool, error) {
	s.cursor = s.tree.NewCursor()
	s.open = true
	return s.cursor.GotoFirst()
}

func (s *scanOp) Next() (Row, error) {
	var ok bool
	var err error
	if !s.open {
		ok, err = s.start()
	} else {
		ok, err = s.cursor.GotoNext()
	}
	if err != nil || !ok {
		return nil, err
	}
	data := s.cursor.Read()
	values, err := pager.UnmarshalRow(data, s.types)
	if err != nil {
		return nil, err
	}
	return Row(values), nil
}

func (s *scanOp) Reset() error {
	if s.cursor != nil {
		if err := s.cursor.Close(); err != nil {
			return err
		}
	}
	s.open = false
	s.cursor = nil
	return nil
}

func (s *scanOp) Close() error { return s.Reset() }

// --- ScanDummy -------------------------------------------------------------

type dummyOp struct{ done bool }

func (d *dummyOp) Next() (Row, error) {
	if d.done {
		return nil, nil
	}
	d.done = true
	return Row{}, nil
}
func (d *dummyOp) Reset() error { d.done = false; return nil }
func (d *dummyOp) Close() error { return nil }

// --- Filter ----------------------------------------------------------------

type filterOp struct {
	input Operator
	pred  Expr
}

func (f *filterOp) Next() (Row, error) {
	for {
		row, err := f.input.Next()
		if err != nil || row == nil {
			return nil, err
		}
		v, err := f.pred.Eval(row)
		if err != nil {
			return nil, err
		}
		if !v.Null && v.Kind == pager.ColBool && v.B {
			return row, nil
		}
	}
}
func (f *filterOp) Reset() error { return f.input.Reset() }
func (f *filterOp) Close() error { return f.input.Close() }

// --- Join ------------------------------------------------------------------

// joinOp implements both the cross and inner-on join by scanning Right
// once per Left row, re-evaluating On (or no predicate at all) per
// combined row. This nested-loop shape is the same one engine.c uses:
// there is no hash or merge join in this dialect.
type joinOp struct {
	left, right Operator
	kind        JoinKind
	on          Expr

	leftRow Row
	started bool
}

func (j *joinOp) Next() (Row, error) {
	for {
		if !j.started {
			row, err := j.left.Next()
			if err != nil || row == nil {
				return nil, err
			}
			j.leftRow = row
			j.started = true
			if err := j.right.Reset(); err != nil {
				return nil, err
			}
		}
		for {
			rightRow, err := j.right.Next()
			if err != nil {
				return nil, err
			}
			if rightRow == nil {
				j.started = false
				break
			}
			combined := make(Row, 0, len(j.leftRow)+len(rightRow))
			combined = append(combined, j.leftRow...)
			combined = append(combined, rightRow...)
			if j.kind == JoinCross {
				return combined, nil
			}
			v, err := j.on.Eval(combined)
			if err != nil {
				return nil, err
			}
			if !v.Null && v.Kind == pager.ColBool && v.B {
				return combined, nil
			}
		}
	}
}

func (j *joinOp) Reset() error {
	j.started = false
	if err := j.left.Reset(); err != nil {
		return err
	}
	return j.right.Reset()
}
func (j *joinOp) Close() error {
	if err := j.left.Close(); err != nil {
		return err
	}
	return j.right.Close()
}

// --- Projection --------------------------------------------------------

type projectionOp struct {
	input Operator
	exprs []Expr
}

func (p *projectionOp) Next() (Row, error) {
	row, err := p.input.Next()
	if err != nil || row == nil {
		return nil, err
	}
	out := make(Row, len(p.exprs))
	for i, e := range p.exprs {
		v, err := e.Eval(row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
func (p *projectionOp) Reset() error { return p.input.Reset() }
func (p *projectionOp) Close() error { return p.input.Close() }

// --- Group -----------------------------------------------------------------

type aggState struct {
	count int64
	sum   int64
	min   pager.Value
	max   pager.Value
	any   pager.Value
	seen  bool
}

// groupOp fully drains its input on the first Next call. With no
// grouping keys every row folds into a single implicit group. Otherwise
// the input is driven through a Sorter keyed on GroupExprs (ascending),
// matching spec §4.4's "drive the child through a Sorter keyed on the
// group keys" and §5's guarantee that Group preserves the Sorter's sort
// order among group-defining keys; each maximal run of equal keys in
// that sorted order folds into one output group.
type groupOp struct {
	input      Operator
	groupExprs []Expr
	aggs       []*AggregateCall

	groups  [][]pager.Value
	states  [][]*aggState
	pos     int
	drained bool
}

func (g *groupOp) drain() error {
	if len(g.groupExprs) == 0 {
		return g.drainUngrouped()
	}

	keys := make([]OrderKey, len(g.groupExprs))
	for i, e := range g.groupExprs {
		keys[i] = OrderKey{Expr: e}
	}
	sorter := NewSorter(keys)
	for {
		row, err := g.input.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		if err := sorter.Add(row); err != nil {
			return err
		}
	}

	var curKey []pager.Value
	for _, row := range sorter.Rows() {
		key := make([]pager.Value, len(g.groupExprs))
		for i, e := range g.groupExprs {
			v, err := e.Eval(row)
			if err != nil {
				return err
			}
			key[i] = v
		}
		if curKey == nil || !groupKeyEqual(curKey, key) {
			curKey = key
			g.groups = append(g.groups, key)
			g.states = append(g.states, newAggStates(len(g.aggs)))
		}
		idx := len(g.groups) - 1
		for i, a := range g.aggs {
			if err := foldAggregate(g.states[idx][i], a, row); err != nil {
				return err
			}
		}
	}
	g.drained = true
	return nil
}

// drainUngrouped implements the no-GROUP-BY case: every row folds into
// a single implicit group, reported even if the input produced no rows
// at all (e.g. COUNT(*) over an empty table is 0, not no rows).
func (g *groupOp) drainUngrouped() error {
	g.groups = append(g.groups, nil)
	g.states = append(g.states, newAggStates(len(g.aggs)))
	for {
		row, err := g.input.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		for i, a := range g.aggs {
			if err := foldAggregate(g.states[0][i], a, row); err != nil {
				return err
			}
		}
	}
	g.drained = true
	return nil
}

func newAggStates(n int) []*aggState {
	return lo.Map(make([]struct{}, n), func(_ struct{}, _ int) *aggState { return &aggState{} })
}

func groupKeyEqual(a, b []pager.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Null != b[i].Null {
			return false
		}
		if a[i].Null {
			continue
		}
		c, err := compareValues(a[i], b[i])
		if err != nil || c != 0 {
			return false
		}
	}
	return true
}

func foldAggregate(st *aggState, a *AggregateCall, row Row) error {
	if a.Func == "COUNT" && a.Star {
		st.count++
		return nil
	}
	v, err := a.Arg.Eval(row)
	if err != nil {
		return err
	}
	if v.Null {
		return nil
	}
	st.count++
	switch a.Func {
	case "SUM", "AVG":
		st.sum += v.I
	case "MIN":
		if !st.seen {
			st.min = v
		} else if c, _ := compareValues(v, st.min); c < 0 {
			st.min = v
		}
	case "MAX":
		// The first non-null value seeds the running max; later values
		// replace it only when strictly greater. The C original applied
		// MIN's less-than comparison here as well (a fixed bug, see
		// DESIGN.md).
		if !st.seen || func() bool { c, _ := compareValues(v, st.max); return c > 0 }() {
			st.max = v
		}
	}
	st.seen = true
	return nil
}

func aggResult(a *AggregateCall, st *aggState) pager.Value {
	switch a.Func {
	case "COUNT":
		return pager.IntValue(st.count)
	case "SUM":
		if !st.seen {
			return pager.NullValue(pager.ColInt)
		}
		return pager.IntValue(st.sum)
	case "AVG":
		if !st.seen || st.count == 0 {
			return pager.NullValue(pager.ColInt)
		}
		return pager.IntValue(st.sum / st.count)
	case "MIN":
		if !st.seen {
			return pager.NullValue(pager.ColInt)
		}
		return st.min
	case "MAX":
		if !st.seen {
			return pager.NullValue(pager.ColInt)
		}
		return st.max
	}
	return pager.NullValue(pager.ColInt)
}

func (g *groupOp) Next() (Row, error) {
	if !g.drained {
		if err := g.drain(); err != nil {
			return nil, err
		}
	}
	if g.pos >= len(g.groups) {
		return nil, nil
	}
	key := g.groups[g.pos]
	states := g.states[g.pos]
	g.pos++
	out := make(Row, 0, len(key)+len(g.aggs))
	out = append(out, key...)
	for i, a := range g.aggs {
		out = append(out, aggResult(a, states[i]))
	}
	return out, nil
}

func (g *groupOp) Reset() error {
	g.pos = 0
	g.drained = false
	g.groups = nil
	g.states = nil
	return g.input.Reset()
}
func (g *groupOp) Close() error { return g.input.Close() }

// --- Order -----------------------------------------------------------------

type orderOp struct {
	input  Operator
	keys   []OrderKey
	sorted []Row
	pos    int
	ready  bool
}

func (o *orderOp) fill() error {
	sorter := NewSorter(o.keys)
	for {
		row, err := o.input.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		if err := sorter.Add(row); err != nil {
			return err
		}
	}
	o.sorted = sorter.Rows()
	o.ready = true
	return nil
}

func (o *orderOp) Next() (Row, error) {
	if !o.ready {
		if err := o.fill(); err != nil {
			return nil, err
		}
	}
	if o.pos >= len(o.sorted) {
		return nil, nil
	}
	row := o.sorted[o.pos]
	o.pos++
	return row, nil
}

func (o *orderOp) Reset() error {
	o.pos = 0
	o.ready = false
	o.sorted = nil
	return o.input.Reset()
}
func (o *orderOp) Close() error { return o.input.Close() }

// --- Limit -------------------------------------------------------------

type limitOp struct {
	input        Operator
	limit        int64
	offset       int64
	yielded      int64
	skipped      int64
	skippedAll   bool
}

func (l *limitOp) Next() (Row, error) {
	if l.limit >= 0 && l.yielded >= l.limit {
		return nil, nil
	}
	if !l.skippedAll {
		for l.skipped < l.offset {
			row, err := l.input.Next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				l.skippedAll = true
				return nil, nil
			}
			l.skipped++
		}
		l.skippedAll = true
	}
	row, err := l.input.Next()
	if err != nil || row == nil {
		return nil, err
	}
	l.yielded++
	return row, nil
}

func (l *limitOp) Reset() error {
	l.yielded = 0
	l.skipped = 0
	l.skippedAll = false
	return l.input.Reset()
}
func (l *limitOp) Close() error { return l.input.Close() }

// --- Explain -----------------------------------------------------------

type explainOp struct {
	text string
	done bool
}

func (e *explainOp) Next() (Row, error) {
	if e.done {
		return nil, nil
	}
	e.done = true
	return Row{pager.TextValue(e.text)}, nil
}
func (e *explainOp) Reset() error { e.done = false; return nil }
func (e *explainOp) Close() error { return nil }

type explainRunOp struct {
	text string
	done bool
}

func newExplainRunOp(inner Plan, db *DB) (*explainRunOp, error) {
	op, err := buildOperator(inner, db)
	if err != nil {
		return nil, err
	}
	defer op.Close()
	var count int64
	for {
		row, err := op.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		count++
	}
	return &explainRunOp{text: fmt.Sprintf("%s -> %d row(s)", inner.String(), count)}, nil
}

func (e *explainRunOp) Next() (Row, error) {
	if e.done {
		return nil, nil
	}
	e.done = true
	return Row{pager.TextValue(e.text)}, nil
}
func (e *explainRunOp) Reset() error { e.done = false; return nil }
func (e *explainRunOp) Close() error { return nil }
