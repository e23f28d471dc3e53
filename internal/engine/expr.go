package engine

import (
	"fmt"

	"github.com/zagortenay333/dabbase/internal/storage/pager"
)

// Expr is a scalar expression. Rather than the C original's single
// tagged-union Expr struct switched on a kind enum, each shape gets its
// own Go type implementing this interface — the redesign spec §9 calls
// for in place of a base-struct-plus-tag.
type Expr interface {
	// Eval computes the expression's value against a row produced by
	// some operator. ColumnRef indices are already resolved when the
	// plan is built, so no schema is consulted here.
	Eval(row Row) (pager.Value, error)
	String() string
}

// Literal is a constant value baked in at parse time.
type Literal struct {
	Val pager.Value
}

func (l *Literal) Eval(Row) (pager.Value, error) { return l.Val, nil }
func (l *Literal) String() string {
	if l.Val.Null {
		return "NULL"
	}
	switch l.Val.Kind {
	case pager.ColText:
		return fmt.Sprintf("%q", l.Val.S)
	case pager.ColBool:
		return fmt.Sprintf("%t", l.Val.B)
	default:
		return fmt.Sprintf("%d", l.Val.I)
	}
}

// ColumnRef names a column by its (optional) table qualifier and name.
// Idx is resolved once, at plan-build time, to the column's position in
// the row the owning operator will see; Eval never re-resolves by name.
type ColumnRef struct {
	Table string
	Name  string
	Idx   int
}

func (c *ColumnRef) Eval(row Row) (pager.Value, error) {
	if c.Idx < 0 || c.Idx >= len(row) {
		return pager.Value{}, fmt.Errorf("column reference %s not bound", c.String())
	}
	return row[c.Idx], nil
}

func (c *ColumnRef) String() string {
	if c.Table != "" {
		return c.Table + "." + c.Name
	}
	return c.Name
}

// Unary covers NOT, unary minus, IS NULL and IS NOT NULL.
type Unary struct {
	Op string // "NOT" | "-" | "ISNULL" | "ISNOTNULL"
	X  Expr
}

func (u *Unary) String() string { return u.Op + "(" + u.X.String() + ")" }

func (u *Unary) Eval(row Row) (pager.Value, error) {
	v, err := u.X.Eval(row)
	if err != nil {
		return pager.Value{}, err
	}
	switch u.Op {
	case "ISNULL":
		return pager.BoolValue(v.Null), nil
	case "ISNOTNULL":
		return pager.BoolValue(!v.Null), nil
	}
	if v.Null {
		return pager.NullValue(v.Kind), nil
	}
	switch u.Op {
	case "NOT":
		if v.Kind != pager.ColBool {
			return pager.Value{}, fmt.Errorf("NOT applied to non-bool value")
		}
		return pager.BoolValue(!v.B), nil
	case "-":
		if v.Kind != pager.ColInt {
			return pager.Value{}, fmt.Errorf("unary minus applied to non-int value")
		}
		return pager.IntValue(-v.I), nil
	}
	return pager.Value{}, fmt.Errorf("unknown unary operator %q", u.Op)
}

// Binary covers arithmetic, comparison and logical operators.
type Binary struct {
	Op   string
	L, R Expr
}

func (b *Binary) String() string { return "(" + b.L.String() + " " + b.Op + " " + b.R.String() + ")" }

func (b *Binary) Eval(row Row) (pager.Value, error) {
	// AND/OR null-propagation exceptions (spec §4.4): a false/true left
	// operand short-circuits before the right side is even evaluated;
	// otherwise, after evaluating both sides, a false/true right operand
	// is just as controlling (NULL AND FALSE = false, NULL OR TRUE =
	// true) and is checked before falling through to null-propagation.
	if b.Op == "AND" || b.Op == "OR" {
		l, err := b.L.Eval(row)
		if err != nil {
			return pager.Value{}, err
		}
		if !l.Null && l.Kind == pager.ColBool {
			if b.Op == "AND" && !l.B {
				return pager.BoolValue(false), nil
			}
			if b.Op == "OR" && l.B {
				return pager.BoolValue(true), nil
			}
		}
		r, err := b.R.Eval(row)
		if err != nil {
			return pager.Value{}, err
		}
		if !r.Null && r.Kind == pager.ColBool {
			if b.Op == "AND" && !r.B {
				return pager.BoolValue(false), nil
			}
			if b.Op == "OR" && r.B {
				return pager.BoolValue(true), nil
			}
		}
		if l.Null || r.Null {
			return pager.NullValue(pager.ColBool), nil
		}
		if b.Op == "AND" {
			return pager.BoolValue(l.B && r.B), nil
		}
		return pager.BoolValue(l.B || r.B), nil
	}

	l, err := b.L.Eval(row)
	if err != nil {
		return pager.Value{}, err
	}
	r, err := b.R.Eval(row)
	if err != nil {
		return pager.Value{}, err
	}
	if l.Null || r.Null {
		if isComparison(b.Op) {
			return pager.NullValue(pager.ColBool), nil
		}
		return pager.NullValue(l.Kind), nil
	}

	switch b.Op {
	case "+", "-", "*", "/":
		if l.Kind != pager.ColInt || r.Kind != pager.ColInt {
			return pager.Value{}, fmt.Errorf("arithmetic operator %q applied to non-int operand", b.Op)
		}
		switch b.Op {
		case "+":
			return pager.IntValue(l.I + r.I), nil
		case "-":
			return pager.IntValue(l.I - r.I), nil
		case "*":
			return pager.IntValue(l.I * r.I), nil
		case "/":
			if r.I == 0 {
				return pager.Value{}, fmt.Errorf("division by zero")
			}
			return pager.IntValue(l.I / r.I), nil
		}
	case "=", "!=", "<", "<=", ">", ">=":
		cmp, err := compareValues(l, r)
		if err != nil {
			return pager.Value{}, err
		}
		switch b.Op {
		case "=":
			return pager.BoolValue(cmp == 0), nil
		case "!=":
			return pager.BoolValue(cmp != 0), nil
		case "<":
			return pager.BoolValue(cmp < 0), nil
		case "<=":
			return pager.BoolValue(cmp <= 0), nil
		case ">":
			return pager.BoolValue(cmp > 0), nil
		case ">=":
			return pager.BoolValue(cmp >= 0), nil
		}
	}
	return pager.Value{}, fmt.Errorf("unknown binary operator %q", b.Op)
}

func isComparison(op string) bool {
	switch op {
	case "=", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

// compareValues compares two non-null values of the same kind. Text
// comparison breaks ties by length rather than truncating to the
// shorter operand, matching this module's KeyType.Compare (documented
// in DESIGN.md as a deliberate fix of the C original's comparator).
func compareValues(l, r pager.Value) (int, error) {
	if l.Kind != r.Kind {
		return 0, fmt.Errorf("comparison between mismatched types")
	}
	switch l.Kind {
	case pager.ColInt:
		switch {
		case l.I < r.I:
			return -1, nil
		case l.I > r.I:
			return 1, nil
		default:
			return 0, nil
		}
	case pager.ColBool:
		switch {
		case l.B == r.B:
			return 0, nil
		case !l.B && r.B:
			return -1, nil
		default:
			return 1, nil
		}
	case pager.ColText:
		n := len(l.S)
		if len(r.S) < n {
			n = len(r.S)
		}
		for i := 0; i < n; i++ {
			if l.S[i] != r.S[i] {
				if l.S[i] < r.S[i] {
					return -1, nil
				}
				return 1, nil
			}
		}
		switch {
		case len(l.S) < len(r.S):
			return -1, nil
		case len(l.S) > len(r.S):
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("comparison of unsupported type")
	}
}

// AggregateCall names an aggregate function and its single argument
// expression, evaluated specially by the group operator rather than
// through Expr.Eval (an aggregate has no meaning against a single row).
type AggregateCall struct {
	Func string // COUNT | SUM | AVG | MIN | MAX
	Star bool   // COUNT(*)
	Arg  Expr
}

func (a *AggregateCall) String() string {
	if a.Star {
		return a.Func + "(*)"
	}
	return a.Func + "(" + a.Arg.String() + ")"
}

// Eval is never called in the normal evaluation path; the group
// operator reads Func/Arg directly. It exists only so AggregateCall can
// sit inside a projection list's Expr slice.
func (a *AggregateCall) Eval(Row) (pager.Value, error) {
	return pager.Value{}, fmt.Errorf("aggregate %s evaluated outside of GROUP", a.Func)
}
