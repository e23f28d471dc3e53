package sql

import "strconv"

// Render prints an expression's parse tree back out as canonical text.
// engine's builder uses it two ways: to name an unaliased SELECT item or
// ORDER BY key, and to recognize when a SELECT/HAVING/ORDER BY
// expression is exactly one of the GROUP BY expressions (matched by
// comparing rendered text rather than by walking the trees in lock
// step).
func Render(e *Expr) string {
	s := renderAnd(e.Left)
	for _, r := range e.Rest {
		s += " OR " + renderAnd(r.Right)
	}
	return s
}

func renderAnd(e *AndExpr) string {
	s := renderNot(e.Left)
	for _, r := range e.Rest {
		s += " AND " + renderNot(r.Right)
	}
	return s
}

func renderNot(e *NotExpr) string {
	s := renderIsNull(e.Right)
	if e.Not {
		return "NOT " + s
	}
	return s
}

func renderIsNull(e *IsNullExpr) string {
	s := renderComparison(e.Left)
	if e.Suffix != nil {
		if e.Suffix.Not {
			return s + " IS NOT NULL"
		}
		return s + " IS NULL"
	}
	return s
}

func renderComparison(c *Comparison) string {
	s := renderAdditive(c.Left)
	if c.Right != nil {
		s += " " + c.Op + " " + renderAdditive(c.Right)
	}
	return s
}

func renderAdditive(a *Additive) string {
	s := renderMultiplicative(a.Left)
	for _, r := range a.Rest {
		s += " " + r.Op + " " + renderMultiplicative(r.Right)
	}
	return s
}

func renderMultiplicative(m *Multiplicative) string {
	s := renderUnary(m.Left)
	for _, r := range m.Rest {
		s += " " + r.Op + " " + renderUnary(r.Right)
	}
	return s
}

func renderUnary(u *Unary) string {
	s := renderPrimary(u.Primary)
	if u.Neg {
		return "-" + s
	}
	return s
}

func renderPrimary(p *Primary) string {
	switch {
	case p.Null:
		return "NULL"
	case p.True:
		return "TRUE"
	case p.False:
		return "FALSE"
	case p.Int != nil:
		return strconv.FormatInt(*p.Int, 10)
	case p.Str != nil:
		return strconv.Quote(*p.Str)
	case p.Agg != nil:
		return RenderAgg(p.Agg)
	case p.Column != nil:
		if p.Column.Second != "" {
			return p.Column.First + "." + p.Column.Second
		}
		return p.Column.First
	case p.Sub != nil:
		return "(" + Render(p.Sub) + ")"
	}
	return ""
}

// RenderAgg prints an aggregate call, used the same way Render is: to
// name an unaliased SELECT item and to recognize repeated identical
// aggregate calls across the SELECT list, HAVING and ORDER BY.
func RenderAgg(a *AggCall) string {
	if a.Star {
		return a.Func + "(*)"
	}
	return a.Func + "(" + Render(a.Arg) + ")"
}

// HasAgg reports whether e contains an aggregate function call anywhere
// in its tree. engine's builder uses this to decide whether a SELECT
// with no GROUP BY clause is still an implicit whole-table aggregate
// (e.g. "SELECT COUNT(*) FROM t").
func HasAgg(e *Expr) bool {
	if hasAggAnd(e.Left) {
		return true
	}
	for _, r := range e.Rest {
		if hasAggAnd(r.Right) {
			return true
		}
	}
	return false
}

func hasAggAnd(e *AndExpr) bool {
	if hasAggNot(e.Left) {
		return true
	}
	for _, r := range e.Rest {
		if hasAggNot(r.Right) {
			return true
		}
	}
	return false
}

func hasAggNot(e *NotExpr) bool { return hasAggIsNull(e.Right) }

func hasAggIsNull(e *IsNullExpr) bool { return hasAggComparison(e.Left) }

func hasAggComparison(c *Comparison) bool {
	if hasAggAdditive(c.Left) {
		return true
	}
	return c.Right != nil && hasAggAdditive(c.Right)
}

func hasAggAdditive(a *Additive) bool {
	if hasAggMultiplicative(a.Left) {
		return true
	}
	for _, r := range a.Rest {
		if hasAggMultiplicative(r.Right) {
			return true
		}
	}
	return false
}

func hasAggMultiplicative(m *Multiplicative) bool {
	if hasAggUnary(m.Left) {
		return true
	}
	for _, r := range m.Rest {
		if hasAggUnary(r.Right) {
			return true
		}
	}
	return false
}

func hasAggUnary(u *Unary) bool { return hasAggPrimary(u.Primary) }

func hasAggPrimary(p *Primary) bool {
	switch {
	case p.Agg != nil:
		return true
	case p.Sub != nil:
		return HasAgg(p.Sub)
	}
	return false
}
