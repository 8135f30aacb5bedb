package diol

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// SelectStmt represents a SELECT statement
type SelectStmt struct {
	*Statement
	Columns    []string
	Table      string
	Conditions []WhereCondition
	LimitTo    int64
	queryer    sqlx.ExtContext
}

// Select creates a new SelectStmt object, selecting
// the provided columns. You can use any SQL syntax
// supported by your database system, e.g. Select("*"),
// Select("one", "two t", "MAX(three) maxThree")
func (db *DB) Select(cols ...string) *SelectStmt {
	return &SelectStmt{
		Statement: db.statement(),
		Columns:   append([]string{}, cols...),
		queryer:   db.DB,
	}
}

// From sets the table to select from
func (stmt *SelectStmt) From(table string) *SelectStmt {
	stmt.Table = table
	return stmt
}

// Where creates one or more WHERE conditions for the SELECT statement.
// If multiple conditions are passed, they are considered AND conditions.
func (stmt *SelectStmt) Where(conditions ...WhereCondition) *SelectStmt {
	stmt.Conditions = append(stmt.Conditions, conditions...)
	return stmt
}

// Limit limits the amount of results returned to the provided value
// (this is a LIMIT clause).
func (stmt *SelectStmt) Limit(limit int64) *SelectStmt {
	stmt.LimitTo = limit
	return stmt
}

// ToSQL generates the SELECT statement's SQL and returns its named
// bindings. It is used internally by Query, GetRow and GetCount, but is
// exported if you wish to use it directly.
func (stmt *SelectStmt) ToSQL() (asSQL string, binds Bindings) {
	binds = make(Bindings)
	var clauses = []string{"SELECT"}

	if len(stmt.Columns) == 0 {
		clauses = append(clauses, "*")
	} else {
		clauses = append(clauses, strings.Join(stmt.Columns, ", "))
	}

	clauses = append(clauses, "FROM "+stmt.Table)

	if len(stmt.Conditions) > 0 {
		clauses = append(clauses, "WHERE "+parseConditions(stmt.Conditions, binds))
	}

	if stmt.LimitTo > 0 {
		clauses = append(clauses, fmt.Sprintf("LIMIT %d", stmt.LimitTo))
	}

	return strings.Join(clauses, " "), binds
}

// Query executes the SELECT statement and returns the resulting rows.
// The caller must close them.
func (stmt *SelectStmt) Query(ctx context.Context) (*sqlx.Rows, error) {
	return queryRows(ctx, stmt.queryer, stmt.Statement, stmt)
}

// GetRow executes the SELECT statement and loads the first
// result into the provided variable (which may be a simple
// variable if only one column was selected, or a struct if
// multiple columns were selected).
func (stmt *SelectStmt) GetRow(ctx context.Context, into interface{}) error {
	return getRow(ctx, stmt.queryer, stmt.Statement, stmt, into)
}

// GetCount executes the SELECT statement disregarding limits
// and selected columns, and returns the total number of
// matching results.
func (stmt *SelectStmt) GetCount(ctx context.Context) (count int64, err error) {
	countStmt := *stmt
	countStmt.Columns = []string{"COUNT(*)"}
	countStmt.LimitTo = 0

	err = countStmt.GetRow(ctx, &count)
	return count, err
}
