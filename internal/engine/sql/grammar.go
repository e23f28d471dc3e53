package sql

// Statement is the top-level parse result: an optional EXPLAIN/EXPLAIN
// RUN prefix wrapping exactly one of the six statement forms this
// dialect supports (spec §4).
//
//nolint:govet // participle grammar tags are not standard struct tags
type Statement struct {
	Explain bool `( @"EXPLAIN"`
	Run     bool `  @"RUN"? )?`

	Create *CreateStmt `( @@`
	Drop   *DropStmt   `| @@`
	Insert *InsertStmt `| @@`
	Update *UpdateStmt `| @@`
	Delete *DeleteStmt `| @@`
	Select *SelectStmt `| @@ )`
}

//nolint:govet
type ColumnDef struct {
	Name       string `@Ident`
	Type       string `@("INT" | "BOOL" | "TEXT")`
	NotNull    bool   `@("NOT" "NULL")?`
	PrimaryKey bool   `@("PRIMARY" "KEY")?`
}

//nolint:govet
type CreateStmt struct {
	Name    string       `"CREATE" "TABLE" @Ident "("`
	Columns []*ColumnDef `@@ ("," @@)* ")"`
}

//nolint:govet
type DropStmt struct {
	Name string `"DROP" "TABLE" @Ident`
}

//nolint:govet
type ValueRow struct {
	Exprs []*Expr `"(" @@ ("," @@)* ")"`
}

//nolint:govet
type InsertStmt struct {
	Table   string      `"INSERT" "INTO" @Ident`
	Columns []string    `( "(" @Ident ("," @Ident)* ")" )?`
	Rows    []*ValueRow `"VALUES" @@ ("," @@)*`
}

//nolint:govet
type Assignment struct {
	Column string `@Ident "="`
	Value  *Expr  `@@`
}

//nolint:govet
type UpdateStmt struct {
	Table       string        `"UPDATE" @Ident "SET"`
	Assignments []*Assignment `@@ ("," @@)*`
	Where       *Expr         `( "WHERE" @@ )?`
}

//nolint:govet
type DeleteStmt struct {
	Table string `"DELETE" "FROM" @Ident`
	Where *Expr  `( "WHERE" @@ )?`
}

//nolint:govet
type TableRef struct {
	Name  string `@Ident`
	Alias string `( "AS"? @Ident )?`
}

//nolint:govet
type JoinClause struct {
	Kind  string    `( @("CROSS" | "INNER") )? "JOIN"`
	Table *TableRef `@@`
	On    *Expr     `( "ON" @@ )?`
}

//nolint:govet
type SelectItem struct {
	Star  bool   `( @"*"`
	Value *Expr  `| @@ )`
	Alias string `( "AS"? @Ident )?`
}

//nolint:govet
type OrderItem struct {
	Value *Expr `@@`
	Desc  bool  `( "ASC" | @"DESC" )?`
}

//nolint:govet
type SelectStmt struct {
	Items   []*SelectItem `"SELECT" @@ ("," @@)*`
	From    *TableRef     `( "FROM" @@`
	Joins   []*JoinClause `  @@* )?`
	Where   *Expr         `( "WHERE" @@ )?`
	GroupBy []*Expr       `( "GROUP" "BY" @@ ("," @@)* )?`
	Having  *Expr         `( "HAVING" @@ )?`
	OrderBy []*OrderItem  `( "ORDER" "BY" @@ ("," @@)* )?`
	Limit   *int64        `( "LIMIT" @Int )?`
	Offset  *int64        `( "OFFSET" @Int )?`
}

// --- expressions, precedence-climbing: Or -> And -> Not -> IsNull ->
// Comparison -> Additive -> Multiplicative -> Unary -> Primary ---------

//nolint:govet
type Expr struct {
	Left *AndExpr `@@`
	Rest []*OrRHS `@@*`
}

//nolint:govet
type OrRHS struct {
	Op    string   `@"OR"`
	Right *AndExpr `@@`
}

//nolint:govet
type AndExpr struct {
	Left *NotExpr `@@`
	Rest []*AndRHS `@@*`
}

//nolint:govet
type AndRHS struct {
	Op    string   `@"AND"`
	Right *NotExpr `@@`
}

//nolint:govet
type NotExpr struct {
	Not   bool        `( @"NOT" )?`
	Right *IsNullExpr `@@`
}

//nolint:govet
type IsNullExpr struct {
	Left   *Comparison   `@@`
	Suffix *IsNullSuffix `@@?`
}

//nolint:govet
type IsNullSuffix struct {
	Not bool `"IS" ( @"NOT" )? "NULL"`
}

//nolint:govet
type Comparison struct {
	Left  *Additive `@@`
	Op    string    `( @("=" | NotEqual | LessEqual | GreaterEqual | "<" | ">")`
	Right *Additive `  @@ )?`
}

//nolint:govet
type Additive struct {
	Left *Multiplicative `@@`
	Rest []*AddRHS       `@@*`
}

//nolint:govet
type AddRHS struct {
	Op    string          `@("+" | "-")`
	Right *Multiplicative `@@`
}

//nolint:govet
type Multiplicative struct {
	Left *Unary    `@@`
	Rest []*MulRHS `@@*`
}

//nolint:govet
type MulRHS struct {
	Op    string `@("*" | "/" | "%")`
	Right *Unary `@@`
}

//nolint:govet
type Unary struct {
	Neg     bool     `( @"-" )?`
	Primary *Primary `@@`
}

//nolint:govet
type AggCall struct {
	Func string `@("COUNT" | "SUM" | "AVG" | "MIN" | "MAX") "("`
	Star bool   `( @"*"`
	Arg  *Expr  `| @@ ) ")"`
}

//nolint:govet
type ColumnRef struct {
	First  string `@Ident`
	Second string `( "." @Ident )?`
}

//nolint:govet
type Primary struct {
	Null    bool       `( @"NULL"`
	True    bool       `| @"TRUE"`
	False   bool       `| @"FALSE"`
	Int     *int64     `| @Int`
	Str     *string    `| @String`
	Agg     *AggCall   `| @@`
	Column  *ColumnRef `| @@`
	Sub     *Expr      `| "(" @@ ")" )`
}
