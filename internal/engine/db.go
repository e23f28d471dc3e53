package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zagortenay333/dabbase/internal/engine/sql"
	"github.com/zagortenay333/dabbase/internal/report"
	"github.com/zagortenay333/dabbase/internal/storage/pager"
)

// Config controls how Open initializes the pager underneath a database,
// mirroring pager.Config one level up.
type Config struct {
	PageSize      int
	CacheCapacity int
	Logger        *slog.Logger
}

// DB is one open database: a pager, the bootstrapped CATALOG tree, and
// the in-memory table map CATALOG was replayed into. It is the Catalog
// every BuildPlan call binds statements against, and the handle
// buildOperator's scan/DML operators read and write pages through.
type DB struct {
	pager       *pager.Pager
	catalogTree *pager.BTree
	tables      map[string]*TableSchema
	log         *slog.Logger
}

// Open wraps an already-open pager.File into a DB, bootstrapping (or
// replaying) its catalog. Grounded on original_source/src/db.c's
// db_init: open the backing store, then read every CATALOG row back
// into memory before the first statement runs.
func Open(f pager.File, cfg Config) (*DB, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	p, err := pager.Open(f, pager.Config{
		PageSize:      cfg.PageSize,
		CacheCapacity: cfg.CacheCapacity,
		Logger:        log,
	})
	if err != nil {
		return nil, errors.Wrap(err, "engine: open pager")
	}

	tree, err := bootstrapCatalog(p)
	if err != nil {
		return nil, errors.Wrap(err, "engine: bootstrap catalog")
	}
	tables, err := replayCatalog(tree)
	if err != nil {
		return nil, errors.Wrap(err, "engine: replay catalog")
	}

	log.Info("database opened", "tables", len(tables))
	return &DB{pager: p, catalogTree: tree, tables: tables, log: log}, nil
}

// OpenFile is the common case: a database file on the local filesystem,
// created if it does not already exist.
func OpenFile(path string, cfg Config) (*DB, error) {
	f, err := pager.OpenOSFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "engine: open file")
	}
	db, err := Open(f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the pager and everything beneath it. The DB must not
// be used again afterward.
func (db *DB) Close() error { return db.pager.Close() }

// Stats reports the underlying pager's current cache pressure, for the
// CLI's ".stats" meta-command.
func (db *DB) Stats() pager.Stats { return db.pager.Stats() }

// LookupTable implements Catalog.
func (db *DB) LookupTable(name string) (*TableSchema, bool) {
	t, ok := db.tables[name]
	return t, ok
}

// Run parses and executes every statement in batch, in order, reporting
// each statement's outcome into the returned Report rather than
// stopping at the first recoverable error — a syntax or binding mistake
// in statement 3 of 5 should not hide the results of statements 1 and 2
// (spec §7's fatal/recoverable error split: only a pager-level FatalError
// aborts the whole batch early).
func (db *DB) Run(batch string) (*report.Report, error) {
	rep := report.New()
	for _, stmtText := range sql.Split(batch) {
		if err := db.runOne(stmtText, rep); err != nil {
			if pager.IsFatal(err) {
				return rep, err
			}
			rep.Errorf(report.Span{}, "%s: %v", stmtText, err)
		}
	}
	return rep, nil
}

func (db *DB) runOne(stmtText string, rep *report.Report) error {
	stmt, err := sql.Parse(stmtText)
	if err != nil {
		rep.Errorf(report.Span{}, "syntax error: %v", err)
		return nil
	}
	plan, err := BuildPlan(stmt, db)
	if err != nil {
		rep.Errorf(report.Span{}, "%v", err)
		return nil
	}
	op, err := buildOperator(plan, db)
	if err != nil {
		return err
	}
	defer op.Close()

	for {
		row, err := op.Next()
		if err != nil {
			if pager.IsFatal(err) {
				return err
			}
			rep.Errorf(report.Span{}, "%v", err)
			return nil
		}
		if row == nil {
			break
		}
		rep.Notef(report.Span{}, "%s", formatRow(row))
	}
	return nil
}

func formatRow(row Row) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = formatValue(v)
	}
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += " | "
		}
		s += p
	}
	return s
}

func formatValue(v pager.Value) string {
	if v.Null {
		return "NULL"
	}
	switch v.Kind {
	case pager.ColBool:
		if v.B {
			return "true"
		}
		return "false"
	case pager.ColText:
		return v.S
	default:
		return itoa(v.I)
	}
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// QueryCursor streams the result rows of a single SELECT-shaped
// statement, for embedders that want rows one at a time instead of
// Run's accumulated Report (e.g. the CLI's table/CSV/YAML printers).
type QueryCursor struct {
	op      Operator
	columns []ColumnInfo

	id       uuid.UUID
	log      *slog.Logger
	started  time.Time
	rowCount int64
}

// Query parses and plans a single statement and returns a cursor over
// its rows; the caller drives Next. Rows are produced as Next pulls
// them, except for EXPLAIN RUN, whose inner statement runs to completion
// while the cursor is being built. Each cursor
// gets a UUID correlation id so a slow or failing query can be traced
// through the log across its open-to-close lifetime, the same role
// request/session ids play in the teacher's driver layer.
func (db *DB) Query(stmtText string) (*QueryCursor, error) {
	id := uuid.New()
	log := db.log.With("query_id", id.String())

	stmt, err := sql.Parse(stmtText)
	if err != nil {
		log.Warn("query rejected: syntax error", "err", err)
		return nil, err
	}
	plan, err := BuildPlan(stmt, db)
	if err != nil {
		log.Warn("query rejected: planning error", "err", err)
		return nil, err
	}
	op, err := buildOperator(plan, db)
	if err != nil {
		return nil, err
	}
	log.Debug("query opened", "plan", plan.String())
	return &QueryCursor{op: op, columns: plan.OutputSchema(), id: id, log: log, started: time.Now()}, nil
}

// ID returns the cursor's correlation id, for embedders that want to
// tie their own logging back to this query.
func (c *QueryCursor) ID() uuid.UUID { return c.id }

// Columns describes the result set's shape.
func (c *QueryCursor) Columns() []ColumnInfo { return c.columns }

// Next returns the next result row, or a nil row with a nil error once
// exhausted.
func (c *QueryCursor) Next() (Row, error) {
	row, err := c.op.Next()
	if err != nil {
		c.log.Warn("query failed", "err", err, "after_rows", c.rowCount)
		return nil, err
	}
	if row != nil {
		c.rowCount++
	}
	return row, nil
}

// Close releases the cursor's underlying operator tree and logs the
// query's total row count and wall-clock duration.
func (c *QueryCursor) Close() error {
	c.log.Debug("query closed", "rows", c.rowCount, "duration", time.Since(c.started))
	return c.op.Close()
}
