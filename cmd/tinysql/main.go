// Command tinysql is an interactive shell and batch runner for the
// embedded database implemented under internal/engine and
// internal/storage/pager.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/rivo/uniseg"
	"gopkg.in/yaml.v3"

	"github.com/zagortenay333/dabbase/internal/engine"
	"github.com/zagortenay333/dabbase/internal/storage/pager"
)

var cli struct {
	File    string `arg:"" optional:"" help:"Database file to open (defaults to an in-memory file)." type:"path"`
	Init    string `short:"i" help:"Run a .sql file before dropping into the shell, or before exiting with -e." type:"path"`
	Exec    string `short:"e" help:"Execute a single statement batch and exit instead of starting the shell."`
	Format  string `short:"f" default:"table" enum:"table,csv,yaml" help:"Output format for SELECT results."`
	Verbose bool   `short:"v" help:"Log at debug level instead of info."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("tinysql"),
		kong.Description("An interactive shell for the paged-storage/B-tree database."),
		kong.UsageOnError(),
	)

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	db, err := openDatabase(cli.File, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tinysql:", err)
		os.Exit(1)
	}
	defer db.Close()

	sh := &shell{db: db, format: cli.Format, out: os.Stdout}

	if cli.Init != "" {
		if err := sh.runFile(cli.Init); err != nil {
			fmt.Fprintln(os.Stderr, "tinysql:", err)
			os.Exit(1)
		}
	}

	if cli.Exec != "" {
		if err := sh.runBatch(cli.Exec); err != nil {
			fmt.Fprintln(os.Stderr, "tinysql:", err)
			os.Exit(1)
		}
		return
	}

	sh.interactive = isatty.IsTerminal(os.Stdin.Fd())
	sh.loop()
}

// openDatabase opens path, or an anonymous in-memory-backed file when path
// is empty, matching the interactive-exploration use case spec §6 calls
// out for the CLI ("a scratch database with no durability guarantee").
func openDatabase(path string, logger *slog.Logger) (*engine.DB, error) {
	cfg := engine.Config{Logger: logger}
	if path == "" {
		return engine.Open(pager.NewMemFile(), cfg)
	}
	return engine.OpenFile(path, cfg)
}

// shell accumulates statement text across lines until a terminating ';',
// the way the teacher's bufio-scanner REPL does, then runs each completed
// batch statement by statement through db.Query.
type shell struct {
	db          *engine.DB
	format      string
	out         *os.File
	interactive bool
}

func (s *shell) loop() {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 1024), 4*1024*1024)

	var buf strings.Builder
	if s.interactive {
		fmt.Fprintln(s.out, "tinysql. End statements with ';'. .help for commands.")
	}

	for {
		if s.interactive {
			if buf.Len() == 0 {
				fmt.Fprint(s.out, "sql> ")
			} else {
				fmt.Fprint(s.out, " ... ")
			}
		}
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if s.handleMeta(line) {
				continue
			}
		}
		if line == "" {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte(' ')
		if strings.HasSuffix(line, ";") {
			stmt := strings.TrimSpace(buf.String())
			buf.Reset()
			if err := s.runOne(stmt); err != nil {
				fmt.Fprintln(s.out, "error:", err)
			}
		}
	}
}

func (s *shell) handleMeta(line string) bool {
	switch {
	case line == ".help":
		fmt.Fprintln(s.out, ".help           show this text\n.quit           exit the shell\n.format <name>  set output format: table, csv, yaml\n.stats          print pager cache statistics")
		return true
	case line == ".quit" || line == ".exit":
		os.Exit(0)
	case strings.HasPrefix(line, ".format "):
		s.format = strings.TrimSpace(strings.TrimPrefix(line, ".format "))
		return true
	case line == ".stats":
		fmt.Fprintln(s.out, s.db.Stats())
		return true
	}
	return false
}

func (s *shell) runFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return s.runBatch(string(data))
}

// runBatch executes every statement in text via runOne, stopping only on a
// fatal (pager-level) error, matching (*engine.DB).Run's own "keep going
// past recoverable errors" behavior.
func (s *shell) runBatch(text string) error {
	for _, stmt := range splitOnSemicolon(text) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := s.runOne(stmt); err != nil {
			if pager.IsFatal(err) {
				return err
			}
			fmt.Fprintln(s.out, "error:", err)
		}
	}
	return nil
}

func splitOnSemicolon(text string) []string {
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		out = append(out, cur.String())
	}
	return out
}

// runOne plans stmt once via Query so DDL/DML acknowledgements and SELECT
// rows both stream through the same cursor and printer.
func (s *shell) runOne(stmt string) error {
	cur, err := s.db.Query(stmt)
	if err != nil {
		return err
	}
	defer cur.Close()

	cols := cur.Columns()
	var rows [][]string
	for {
		row, err := cur.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cellText(v)
		}
		rows = append(rows, cells)
	}

	switch strings.ToLower(s.format) {
	case "csv":
		s.printCSV(cols, rows)
	case "yaml":
		s.printYAML(cols, rows)
	default:
		s.printTable(cols, rows)
	}
	return nil
}

func cellText(v pager.Value) string {
	if v.Null {
		return "NULL"
	}
	switch v.Kind {
	case pager.ColBool:
		return strconv.FormatBool(v.B)
	case pager.ColText:
		return v.S
	default:
		return strconv.FormatInt(v.I, 10)
	}
}

// printTable aligns columns by display width rather than byte length, so
// multi-byte text values line up the same way a terminal renders them.
func (s *shell) printTable(cols []engine.ColumnInfo, rows [][]string) {
	if len(cols) == 0 {
		return
	}
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = uniseg.StringWidth(c.Name)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := uniseg.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	printTableRow(s.out, widths, headerCells(cols))
	sep := make([]string, len(cols))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	printTableRow(s.out, widths, sep)
	for _, row := range rows {
		printTableRow(s.out, widths, row)
	}
	fmt.Fprintln(s.out, humanize.Comma(int64(len(rows))), "row(s)")
}

func headerCells(cols []engine.ColumnInfo) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func printTableRow(out *os.File, widths []int, cells []string) {
	for i, cell := range cells {
		fmt.Fprint(out, cell, strings.Repeat(" ", widths[i]-uniseg.StringWidth(cell)))
		if i < len(cells)-1 {
			fmt.Fprint(out, "  ")
		}
	}
	fmt.Fprintln(out)
}

func (s *shell) printCSV(cols []engine.ColumnInfo, rows [][]string) {
	fmt.Fprintln(s.out, strings.Join(headerCells(cols), ","))
	for _, row := range rows {
		quoted := make([]string, len(row))
		for i, c := range row {
			quoted[i] = csvQuote(c)
		}
		fmt.Fprintln(s.out, strings.Join(quoted, ","))
	}
}

func csvQuote(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (s *shell) printYAML(cols []engine.ColumnInfo, rows [][]string) {
	names := headerCells(cols)
	out := make([]map[string]string, len(rows))
	for i, row := range rows {
		m := make(map[string]string, len(row))
		for j, c := range row {
			m[names[j]] = c
		}
		out[i] = m
	}
	enc := yaml.NewEncoder(s.out)
	defer enc.Close()
	enc.Encode(out)
}
