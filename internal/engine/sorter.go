package engine

import "github.com/zagortenay333/dabbase/internal/storage/pager"

// sortedRow pairs a row with its already-evaluated sort key tuple, so
// Sort never re-runs key expressions while comparing.
type sortedRow struct {
	row  Row
	keys []pager.Value
}

// Sorter accumulates every row of an ORDER BY's input in memory, then
// sorts them by insertion sort. Insertion sort over a hash-chained
// pager cache might be wasteful on disk-backed data, but ORDER BY's
// input here is already materialized in memory by the time Order
// drains it, and the plan data sets this engine targets are small
// enough that insertion sort's simplicity wins over a comparison tree.
type Sorter struct {
	keys []OrderKey
	rows []sortedRow
}

func NewSorter(keys []OrderKey) *Sorter {
	return &Sorter{keys: keys}
}

// Add evaluates the sort keys against row and inserts it into the
// already-sorted prefix, keeping the whole slice sorted at all times.
func (s *Sorter) Add(row Row) error {
	keyVals := make([]pager.Value, len(s.keys))
	for i, k := range s.keys {
		v, err := k.Expr.Eval(row)
		if err != nil {
			return err
		}
		keyVals[i] = v
	}
	sr := sortedRow{row: row, keys: keyVals}

	s.rows = append(s.rows, sr)
	j := len(s.rows) - 1
	for j > 0 && s.less(s.rows[j], s.rows[j-1]) {
		s.rows[j], s.rows[j-1] = s.rows[j-1], s.rows[j]
		j--
	}
	return nil
}

func (s *Sorter) less(a, b sortedRow) bool {
	for i := range s.keys {
		c := compareKeyValues(a.keys[i], b.keys[i], s.keys[i].Desc)
		if c != 0 {
			return c < 0
		}
	}
	return false
}

// compareKeyValues compares two sort-key values: nulls sort first for an
// ascending key and last for a descending one (spec §5's "by symmetry").
// The descending case swaps the operands before either the null check or
// the value comparison, rather than only negating a non-null result, so
// the null placement flips along with everything else.
func compareKeyValues(a, b pager.Value, desc bool) int {
	if desc {
		a, b = b, a
	}
	switch {
	case a.Null && b.Null:
		return 0
	case a.Null:
		return -1
	case b.Null:
		return 1
	}
	c, err := compareValues(a, b)
	if err != nil {
		return 0
	}
	return c
}

// Rows returns every row added so far, in sorted order.
func (s *Sorter) Rows() []Row {
	out := make([]Row, len(s.rows))
	for i, sr := range s.rows {
		out[i] = sr.row
	}
	return out
}
