package diol

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
)

// InsertStmt represents an INSERT statement
type InsertStmt struct {
	*Statement
	InsCols []string
	InsVals []interface{}
	Table   string
	Return  []string
	execer  sqlx.ExtContext
}

// InsertInto creates a new InsertStmt object for the
// provided table
func (db *DB) InsertInto(table string) *InsertStmt {
	return &InsertStmt{
		Statement: db.statement(),
		Table:     table,
		execer:    db.DB,
	}
}

// Columns defines the columns to insert. It can be safely
// used alongside ValueMap in the same query, provided Values
// is used immediately after Columns
func (stmt *InsertStmt) Columns(cols ...string) *InsertStmt {
	stmt.InsCols = append(stmt.InsCols, cols...)
	return stmt
}

// Values sets the values to insert to the table (based on the
// columns provided via Columns)
func (stmt *InsertStmt) Values(vals ...interface{}) *InsertStmt {
	stmt.InsVals = append(stmt.InsVals, vals...)
	return stmt
}

// ValueMap receives a map of columns and values to insert. Columns
// are added in sorted order.
func (stmt *InsertStmt) ValueMap(vals Values) *InsertStmt {
	for _, col := range vals.columns() {
		stmt.InsCols = append(stmt.InsCols, col)
		stmt.InsVals = append(stmt.InsVals, vals[col])
	}
	return stmt
}

// Returning sets a RETURNING clause to receive values back from the
// database once executing the INSERT statement. Note that GetRow
// must be used to execute the query rather than Exec to get back
// the values.
func (stmt *InsertStmt) Returning(cols ...string) *InsertStmt {
	stmt.Return = append(stmt.Return, cols...)
	return stmt
}

// ToSQL generates the INSERT statement's SQL and returns its named
// bindings. It is used internally by Exec and GetRow, but is
// exported if you wish to use it directly.
func (stmt *InsertStmt) ToSQL() (asSQL string, binds Bindings) {
	binds = make(Bindings)

	placeholders := make([]string, 0, len(stmt.InsCols))
	for i, col := range stmt.InsCols {
		var val interface{}
		if i < len(stmt.InsVals) {
			val = stmt.InsVals[i]
		}
		placeholders = append(placeholders, binds.bind(col, val))
	}

	asSQL = "INSERT INTO " + stmt.Table +
		"(" + strings.Join(stmt.InsCols, ", ") + ")" +
		" VALUES (" + strings.Join(placeholders, ", ") + ")"

	if len(stmt.Return) > 0 {
		asSQL += " RETURNING " + strings.Join(stmt.Return, ", ")
	}

	return asSQL, binds
}

// Exec executes the INSERT statement, returning the standard
// sql.Result struct and an error if the query failed.
func (stmt *InsertStmt) Exec(ctx context.Context) (res sql.Result, err error) {
	asSQL, args, err := bindNamed(stmt.execer, stmt)
	if err != nil {
		return nil, stmt.done(asSQL, err)
	}
	res, err = stmt.execer.ExecContext(ctx, asSQL, args...)
	return res, stmt.done(asSQL, err)
}

// GetRow executes an INSERT statement with a RETURNING clause
// expected to return one row, and loads the result into
// the provided variable (which may be a simple variable if
// only one column is returned, or a struct if multiple columns
// are returned)
func (stmt *InsertStmt) GetRow(ctx context.Context, into interface{}) error {
	return getRow(ctx, stmt.execer, stmt.Statement, stmt, into)
}
