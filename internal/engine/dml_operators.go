package engine

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/zagortenay333/dabbase/internal/storage/pager"
)

// DDL and DML operators all run their entire effect on the first Next
// call and then report a single summary row, rather than streaming rows
// the way the query operators above do — there is nothing to pull one
// row at a time from a CREATE TABLE or an UPDATE.

// --- CreateTable -------------------------------------------------------

type createTableOp struct {
	db   *DB
	plan *CreateTable
	done bool
}

func (c *createTableOp) Next() (Row, error) {
	if c.done {
		return nil, nil
	}
	c.done = true

	if _, exists := c.db.tables[c.plan.Name]; exists {
		return nil, fmt.Errorf("table %s already exists", c.plan.Name)
	}
	keyType := keyTypeForColType(c.plan.Columns[c.plan.PKIndex].Type)
	tree, err := pager.NewBTree(c.db.pager, keyType)
	if err != nil {
		return nil, err
	}
	createSQL := formatCreateTable(c.plan.Name, c.plan.Columns)
	if err := catalogPut(c.db.catalogTree, c.plan.Name, createSQL, tree.Root()); err != nil {
		return nil, err
	}
	c.db.tables[c.plan.Name] = &TableSchema{Name: c.plan.Name, Columns: c.plan.Columns, EngineTag: tree.Root(), PKIndex: c.plan.PKIndex}
	return Row{pager.TextValue("table " + c.plan.Name + " created")}, nil
}
func (c *createTableOp) Reset() error { c.done = false; return nil }
func (c *createTableOp) Close() error { return nil }

// --- DropTable ---------------------------------------------------------

type dropTableOp struct {
	db   *DB
	plan *DropTable
	done bool
}

func (d *dropTableOp) Next() (Row, error) {
	if d.done {
		return nil, nil
	}
	d.done = true

	schema, ok := d.db.tables[d.plan.Name]
	if !ok {
		return nil, fmt.Errorf("no such table: %s", d.plan.Name)
	}
	tree := pager.LoadBTree(d.db.pager, schema.KeyType(), schema.EngineTag)
	if err := tree.Delete(); err != nil {
		return nil, err
	}
	if err := catalogDelete(d.db.catalogTree, d.plan.Name); err != nil {
		return nil, err
	}
	delete(d.db.tables, d.plan.Name)
	return Row{pager.TextValue("table " + d.plan.Name + " dropped")}, nil
}
func (d *dropTableOp) Reset() error { d.done = false; return nil }
func (d *dropTableOp) Close() error { return nil }

// --- Insert --------------------------------------------------------------

type insertOp struct {
	db   *DB
	plan *Insert
	done bool
}

func (ins *insertOp) Next() (Row, error) {
	if ins.done {
		return nil, nil
	}
	ins.done = true

	table := ins.plan.Table
	tree := pager.LoadBTree(ins.db.pager, table.KeyType(), table.EngineTag)

	cur := tree.NewCursor()
	defer cur.Close()
	for _, rowExprs := range ins.plan.Rows {
		values := make([]pager.Value, len(rowExprs))
		for i, e := range rowExprs {
			v, err := e.Eval(nil)
			if err != nil {
				return nil, err
			}
			if v.Null && table.Columns[i].NotNull {
				return nil, fmt.Errorf("NULL value in column %s violates NOT NULL constraint", table.Columns[i].Name)
			}
			values[i] = v
		}

		key := keyFromValue(values[table.PKIndex])
		found, err := cur.GotoKey(key)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, fmt.Errorf("duplicate value for primary key %s", table.PKColumn().Name)
		}
		if err := cur.Insert(key, pager.MarshalRow(values)); err != nil {
			return nil, err
		}
	}
	return Row{pager.IntValue(int64(len(ins.plan.Rows)))}, nil
}
func (ins *insertOp) Reset() error { ins.done = false; return nil }
func (ins *insertOp) Close() error { return nil }

// --- Delete --------------------------------------------------------------

type deleteOp struct {
	db   *DB
	plan *Delete
	done bool
}

func newDeleteOp(db *DB, plan *Delete) (*deleteOp, error) {
	return &deleteOp{db: db, plan: plan}, nil
}

func (d *deleteOp) Next() (Row, error) {
	if d.done {
		return nil, nil
	}
	d.done = true

	table := d.plan.Table
	types := columnTypes(table)
	tree := pager.LoadBTree(d.db.pager, table.KeyType(), table.EngineTag)

	var toDelete []pager.Key
	cur := tree.NewCursor()
	ok, err := cur.GotoFirst()
	for ; ok && err == nil; ok, err = cur.GotoNext() {
		values, uerr := pager.UnmarshalRow(cur.Read(), types)
		if uerr != nil {
			cur.Close()
			return nil, uerr
		}
		match := true
		if d.plan.Pred != nil {
			v, eerr := d.plan.Pred.Eval(Row(values))
			if eerr != nil {
				cur.Close()
				return nil, eerr
			}
			match = !v.Null && v.Kind == pager.ColBool && v.B
		}
		if match {
			toDelete = append(toDelete, keyFromValue(values[table.PKIndex]))
		}
	}
	cur.Close()
	if err != nil {
		return nil, err
	}

	for _, key := range toDelete {
		c := tree.NewCursor()
		found, err := c.GotoKey(key)
		if err != nil {
			c.Close()
			return nil, err
		}
		if found {
			if err := c.Remove(); err != nil {
				c.Close()
				return nil, err
			}
		}
		c.Close()
	}
	return Row{pager.IntValue(int64(len(toDelete)))}, nil
}
func (d *deleteOp) Reset() error { d.done = false; return nil }
func (d *deleteOp) Close() error { return nil }

// --- Update --------------------------------------------------------------

type updateOp struct {
	db   *DB
	plan *Update
	done bool
}

func newUpdateOp(db *DB, plan *Update) (*updateOp, error) {
	return &updateOp{db: db, plan: plan}, nil
}

func (u *updateOp) Next() (Row, error) {
	if u.done {
		return nil, nil
	}
	u.done = true

	table := u.plan.Table
	types := columnTypes(table)
	tree := pager.LoadBTree(u.db.pager, table.KeyType(), table.EngineTag)

	var toUpdate []pager.Key
	cur := tree.NewCursor()
	ok, err := cur.GotoFirst()
	for ; ok && err == nil; ok, err = cur.GotoNext() {
		values, uerr := pager.UnmarshalRow(cur.Read(), types)
		if uerr != nil {
			cur.Close()
			return nil, uerr
		}
		match := true
		if u.plan.Pred != nil {
			v, eerr := u.plan.Pred.Eval(Row(values))
			if eerr != nil {
				cur.Close()
				return nil, eerr
			}
			match = !v.Null && v.Kind == pager.ColBool && v.B
		}
		if match {
			toUpdate = append(toUpdate, keyFromValue(values[table.PKIndex]))
		}
	}
	cur.Close()
	if err != nil {
		return nil, err
	}

	for _, key := range toUpdate {
		c := tree.NewCursor()
		found, err := c.GotoKey(key)
		if err != nil {
			c.Close()
			return nil, err
		}
		if !found {
			c.Close()
			continue
		}
		values, err := pager.UnmarshalRow(c.Read(), types)
		if err != nil {
			c.Close()
			return nil, err
		}
		for idx, e := range u.plan.Assignments {
			v, err := e.Eval(Row(values))
			if err != nil {
				c.Close()
				return nil, err
			}
			if v.Null && table.Columns[idx].NotNull {
				c.Close()
				return nil, fmt.Errorf("NULL value in column %s violates NOT NULL constraint", table.Columns[idx].Name)
			}
			values[idx] = v
		}

		newKey := keyFromValue(values[table.PKIndex])
		if newKey != key {
			// The update moved the row to a different slot in key order:
			// Update can only rewrite the value at the cursor's current
			// key, so a changed primary key needs a remove-then-reinsert.
			if err := c.Remove(); err != nil {
				c.Close()
				return nil, err
			}
			c.Close()
			ins := tree.NewCursor()
			found, err := ins.GotoKey(newKey)
			if err != nil {
				ins.Close()
				return nil, err
			}
			if found {
				ins.Close()
				return nil, fmt.Errorf("duplicate value for primary key %s", table.PKColumn().Name)
			}
			err = ins.Insert(newKey, pager.MarshalRow(values))
			ins.Close()
			if err != nil {
				return nil, err
			}
			continue
		}
		if err := c.Update(pager.MarshalRow(values)); err != nil {
			c.Close()
			return nil, err
		}
		c.Close()
	}
	return Row{pager.IntValue(int64(len(toUpdate)))}, nil
}
func (u *updateOp) Reset() error { u.done = false; return nil }
func (u *updateOp) Close() error { return nil }

func columnTypes(schema *TableSchema) []pager.ColType {
	return lo.Map(schema.Columns, func(c ColumnDef, _ int) pager.ColType { return c.Type })
}
