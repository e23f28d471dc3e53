package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zagortenay333/dabbase/internal/storage/pager"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(pager.NewMemFile(), Config{PageSize: 512, CacheCapacity: 16})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func collect(t *testing.T, db *DB, sql string) []Row {
	t.Helper()
	cur, err := db.Query(sql)
	require.NoError(t, err)
	defer cur.Close()
	var rows []Row
	for {
		row, err := cur.Next()
		require.NoError(t, err)
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	return rows
}

// TestScenarioCreateInsertScan covers spec §8 scenario 1: rows inserted
// in ascending primary-key order come back in that order under ORDER BY.
func TestScenarioCreateInsertScan(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`CREATE TABLE t (id INT PRIMARY KEY, name TEXT);
		INSERT INTO t (id, name) VALUES (1, 'a');
		INSERT INTO t (id, name) VALUES (2, 'b');
		INSERT INTO t (id, name) VALUES (3, 'c');`)
	require.NoError(t, err)
	require.False(t, rep.HasErrors(), rep.String())

	rows := collect(t, db, `SELECT id, name FROM t ORDER BY id;`)
	require.Len(t, rows, 3)
	require.Equal(t, pager.IntValue(1), rows[0][0])
	require.Equal(t, pager.TextValue("a"), rows[0][1])
	require.Equal(t, pager.IntValue(2), rows[1][0])
	require.Equal(t, pager.IntValue(3), rows[2][0])
}

// TestScenarioDeleteMiddle covers spec §8 scenario 2.
func TestScenarioDeleteMiddle(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`CREATE TABLE t (id INT PRIMARY KEY, name TEXT);
		INSERT INTO t (id, name) VALUES (1, 'a');
		INSERT INTO t (id, name) VALUES (2, 'b');
		INSERT INTO t (id, name) VALUES (3, 'c');
		DELETE FROM t WHERE id = 2;`)
	require.NoError(t, err)
	require.False(t, rep.HasErrors(), rep.String())

	rows := collect(t, db, `SELECT id FROM t ORDER BY id;`)
	require.Len(t, rows, 2)
	require.Equal(t, pager.IntValue(1), rows[0][0])
	require.Equal(t, pager.IntValue(3), rows[1][0])
}

// TestScenarioUpdateChangingLength covers spec §8 scenario 3: updating a
// text column to a longer value must still be found afterward.
func TestScenarioUpdateChangingLength(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`CREATE TABLE t (id INT PRIMARY KEY, name TEXT);
		INSERT INTO t (id, name) VALUES (1, 'a');
		INSERT INTO t (id, name) VALUES (2, 'b');
		UPDATE t SET name = 'longer-than-before' WHERE id = 2;`)
	require.NoError(t, err)
	require.False(t, rep.HasErrors(), rep.String())

	rows := collect(t, db, `SELECT name FROM t WHERE id = 2;`)
	require.Len(t, rows, 1)
	require.Equal(t, pager.TextValue("longer-than-before"), rows[0][0])
}

// TestScenarioGroupByAggregates covers spec §8 scenario 4.
func TestScenarioGroupByAggregates(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`CREATE TABLE g (id INT PRIMARY KEY, k INT);
		INSERT INTO g (id, k) VALUES (1, 10);
		INSERT INTO g (id, k) VALUES (2, 20);
		INSERT INTO g (id, k) VALUES (3, 10);`)
	require.NoError(t, err)
	require.False(t, rep.HasErrors(), rep.String())

	rows := collect(t, db, `SELECT k, count(id), sum(id) FROM g GROUP BY k ORDER BY k;`)
	require.Len(t, rows, 2)
	require.Equal(t, pager.IntValue(10), rows[0][0])
	require.Equal(t, pager.IntValue(2), rows[0][1])
	require.Equal(t, pager.IntValue(4), rows[0][2])
	require.Equal(t, pager.IntValue(20), rows[1][0])
	require.Equal(t, pager.IntValue(1), rows[1][1])
	require.Equal(t, pager.IntValue(2), rows[1][2])
}

// TestGroupByWithoutOrderByIsSorted covers spec §5's guarantee that
// Group preserves the sort order of its Sorter among group-defining
// keys even without an explicit ORDER BY: inserting keys out of order
// must still yield ascending group output.
func TestGroupByWithoutOrderByIsSorted(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`CREATE TABLE g (id INT PRIMARY KEY, k INT);
		INSERT INTO g (id, k) VALUES (1, 30);
		INSERT INTO g (id, k) VALUES (2, 10);
		INSERT INTO g (id, k) VALUES (3, 20);
		INSERT INTO g (id, k) VALUES (4, 10);`)
	require.NoError(t, err)
	require.False(t, rep.HasErrors(), rep.String())

	rows := collect(t, db, `SELECT k, count(id) FROM g GROUP BY k;`)
	require.Len(t, rows, 3)
	require.Equal(t, pager.IntValue(10), rows[0][0])
	require.Equal(t, pager.IntValue(2), rows[0][1])
	require.Equal(t, pager.IntValue(20), rows[1][0])
	require.Equal(t, pager.IntValue(1), rows[1][1])
	require.Equal(t, pager.IntValue(30), rows[2][0])
	require.Equal(t, pager.IntValue(1), rows[2][1])
}

// TestScenarioNullPropagation covers spec §8 scenario 5.
func TestScenarioNullPropagation(t *testing.T) {
	db := openTestDB(t)

	rows := collect(t, db, `SELECT 1 + NULL IS NULL;`)
	require.Len(t, rows, 1)
	require.Equal(t, pager.BoolValue(true), rows[0][0])

	rows = collect(t, db, `SELECT NULL OR TRUE;`)
	require.Len(t, rows, 1)
	require.Equal(t, pager.BoolValue(true), rows[0][0])

	rows = collect(t, db, `SELECT NULL AND FALSE;`)
	require.Len(t, rows, 1)
	require.Equal(t, pager.BoolValue(false), rows[0][0])
}

// TestAndOrNullDominance covers spec §4.4's full AND/OR truth table
// around NULL, both the left-operand short-circuit (TRUE OR NULL, FALSE
// AND NULL) and the symmetric right-operand case (NULL OR TRUE, NULL
// AND FALSE) that TestScenarioNullPropagation already exercises above.
func TestAndOrNullDominance(t *testing.T) {
	db := openTestDB(t)

	cases := []struct {
		sql  string
		want pager.Value
	}{
		{`SELECT TRUE OR NULL;`, pager.BoolValue(true)},
		{`SELECT NULL OR TRUE;`, pager.BoolValue(true)},
		{`SELECT FALSE AND NULL;`, pager.BoolValue(false)},
		{`SELECT NULL AND FALSE;`, pager.BoolValue(false)},
		{`SELECT FALSE OR NULL IS NULL;`, pager.BoolValue(true)},
		{`SELECT TRUE AND NULL IS NULL;`, pager.BoolValue(true)},
	}
	for _, c := range cases {
		rows := collect(t, db, c.sql)
		require.Len(t, rows, 1, c.sql)
		require.Equal(t, c.want, rows[0][0], c.sql)
	}
}

// TestScenarioPersistence covers spec §8 scenario 6: closing and
// reopening the same backing file preserves every row via the replayed
// CATALOG and the stable engine-tag root page id.
func TestScenarioPersistence(t *testing.T) {
	f := pager.NewMemFile()

	db, err := Open(f, Config{PageSize: 512, CacheCapacity: 16})
	require.NoError(t, err)
	rep, err := db.Run(`CREATE TABLE t (id INT PRIMARY KEY, name TEXT);
		INSERT INTO t (id, name) VALUES (1, 'a');
		INSERT INTO t (id, name) VALUES (2, 'b');
		INSERT INTO t (id, name) VALUES (3, 'c');`)
	require.NoError(t, err)
	require.False(t, rep.HasErrors(), rep.String())
	require.NoError(t, db.Close())

	reopened, err := Open(f, Config{PageSize: 512, CacheCapacity: 16})
	require.NoError(t, err)
	defer reopened.Close()

	rows := collect(t, reopened, `SELECT id FROM t ORDER BY id;`)
	require.Len(t, rows, 3)
	require.Equal(t, pager.IntValue(1), rows[0][0])
	require.Equal(t, pager.IntValue(2), rows[1][0])
	require.Equal(t, pager.IntValue(3), rows[2][0])
}

// TestDropTableRemovesFromCatalog covers the supplemented DROP TABLE
// feature: the table vanishes from the catalog and querying it again fails.
func TestDropTableRemovesFromCatalog(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`CREATE TABLE t (id INT PRIMARY KEY);
		INSERT INTO t (id) VALUES (1);
		DROP TABLE t;`)
	require.NoError(t, err)
	require.False(t, rep.HasErrors(), rep.String())

	_, ok := db.LookupTable("t")
	require.False(t, ok)

	_, err = db.Query(`SELECT * FROM t;`)
	require.Error(t, err)
}

// TestDuplicatePrimaryKeyIsRecoverable exercises the primary-key-as-
// B-tree-key decision in DESIGN.md: a duplicate insert is a recoverable
// per-statement error, not a fatal one, and does not corrupt the table.
func TestDuplicatePrimaryKeyIsRecoverable(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`CREATE TABLE t (id INT PRIMARY KEY);
		INSERT INTO t (id) VALUES (1);
		INSERT INTO t (id) VALUES (1);`)
	require.NoError(t, err)
	require.True(t, rep.HasErrors())

	rows := collect(t, db, `SELECT id FROM t;`)
	require.Len(t, rows, 1)
}

// TestCatalogNotMutableFromSQL covers the admin-bypass decision: no SQL
// text can write CATALOG directly.
func TestCatalogNotMutableFromSQL(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`INSERT INTO CATALOG (name, sql, engine_tag) VALUES ('x', 'y', 0);`)
	require.NoError(t, err)
	require.True(t, rep.HasErrors())
}

// TestJoinAndLimitOffset exercises the nested-loop join and the
// offsetting/emitting/done limit state machine (spec §4.5) together.
func TestJoinAndLimitOffset(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`CREATE TABLE l (id INT PRIMARY KEY);
		CREATE TABLE r (id INT PRIMARY KEY);
		INSERT INTO l (id) VALUES (1);
		INSERT INTO l (id) VALUES (2);
		INSERT INTO r (id) VALUES (10);
		INSERT INTO r (id) VALUES (20);`)
	require.NoError(t, err)
	require.False(t, rep.HasErrors(), rep.String())

	rows := collect(t, db, `SELECT l.id, r.id FROM l CROSS JOIN r ORDER BY l.id, r.id;`)
	require.Len(t, rows, 4)
	require.Equal(t, pager.IntValue(1), rows[0][0])
	require.Equal(t, pager.IntValue(10), rows[0][1])
	require.Equal(t, pager.IntValue(2), rows[3][0])
	require.Equal(t, pager.IntValue(20), rows[3][1])

	limited := collect(t, db, `SELECT l.id, r.id FROM l CROSS JOIN r ORDER BY l.id, r.id LIMIT 2 OFFSET 1;`)
	require.Len(t, limited, 2)
	require.Equal(t, pager.IntValue(1), limited[0][0])
	require.Equal(t, pager.IntValue(20), limited[0][1])
	require.Equal(t, pager.IntValue(2), limited[1][0])
	require.Equal(t, pager.IntValue(10), limited[1][1])
}

// TestOrderByDescNullsLast covers spec §5's ordering guarantee: nulls
// sort first ascending, last descending ("by symmetry").
func TestOrderByDescNullsLast(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`CREATE TABLE t (id INT PRIMARY KEY, v INT);
		INSERT INTO t (id, v) VALUES (1, 5);
		INSERT INTO t (id, v) VALUES (2, NULL);
		INSERT INTO t (id, v) VALUES (3, 1);`)
	require.NoError(t, err)
	require.False(t, rep.HasErrors(), rep.String())

	asc := collect(t, db, `SELECT id FROM t ORDER BY v;`)
	require.Equal(t, []pager.Value{pager.IntValue(2), pager.IntValue(3), pager.IntValue(1)},
		[]pager.Value{asc[0][0], asc[1][0], asc[2][0]})

	desc := collect(t, db, `SELECT id FROM t ORDER BY v DESC;`)
	require.Equal(t, []pager.Value{pager.IntValue(1), pager.IntValue(3), pager.IntValue(2)},
		[]pager.Value{desc[0][0], desc[1][0], desc[2][0]})
}

// TestExplainDoesNotExecute covers the supplemented EXPLAIN feature: it
// reports the plan tree without touching table state.
func TestExplainDoesNotExecute(t *testing.T) {
	db := openTestDB(t)
	rep, err := db.Run(`CREATE TABLE t (id INT PRIMARY KEY);`)
	require.NoError(t, err)
	require.False(t, rep.HasErrors(), rep.String())

	rows := collect(t, db, `EXPLAIN SELECT * FROM t;`)
	require.Len(t, rows, 1)

	count := collect(t, db, `SELECT id FROM t;`)
	require.Empty(t, count)
}
