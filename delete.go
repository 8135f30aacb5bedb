package diol

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
)

// DeleteStmt represents a DELETE statement
type DeleteStmt struct {
	*Statement
	Table      string
	Conditions []WhereCondition
	execer     sqlx.ExtContext
}

// DeleteFrom creates a new DeleteStmt object for the
// provided table
func (db *DB) DeleteFrom(table string) *DeleteStmt {
	return &DeleteStmt{
		Statement: db.statement(),
		Table:     table,
		execer:    db.DB,
	}
}

// Where creates one or more WHERE conditions for the DELETE statement.
// If multiple conditions are passed, they are considered AND conditions.
func (stmt *DeleteStmt) Where(conds ...WhereCondition) *DeleteStmt {
	stmt.Conditions = append(stmt.Conditions, conds...)
	return stmt
}

// ToSQL generates the DELETE statement's SQL and returns its named
// bindings. It is used internally by Exec, but is exported if you
// wish to use it directly.
func (stmt *DeleteStmt) ToSQL() (asSQL string, binds Bindings) {
	binds = make(Bindings)
	var clauses = []string{"DELETE FROM " + stmt.Table}

	if len(stmt.Conditions) > 0 {
		clauses = append(clauses, "WHERE "+parseConditions(stmt.Conditions, binds))
	}

	return strings.Join(clauses, " "), binds
}

// Exec executes the DELETE statement, returning the standard
// sql.Result struct and an error if the query failed.
func (stmt *DeleteStmt) Exec(ctx context.Context) (res sql.Result, err error) {
	asSQL, args, err := bindNamed(stmt.execer, stmt)
	if err != nil {
		return nil, stmt.done(asSQL, err)
	}
	res, err = stmt.execer.ExecContext(ctx, asSQL, args...)
	return res, stmt.done(asSQL, err)
}
