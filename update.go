package diol

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
)

// UpdateStmt represents an UPDATE statement
type UpdateStmt struct {
	*Statement
	Table      string
	SetCols    []string
	SetVals    []interface{}
	Conditions []WhereCondition
	execer     sqlx.ExtContext
}

// Update creates a new UpdateStmt object for
// the specified table
func (db *DB) Update(table string) *UpdateStmt {
	return &UpdateStmt{
		Statement: db.statement(),
		Table:     table,
		execer:    db.DB,
	}
}

// Set receives the name of a column and a new value. Multiple calls to Set
// can be chained together to modify multiple columns. Set can also be chained
// with calls to SetMap
func (stmt *UpdateStmt) Set(col string, value interface{}) *UpdateStmt {
	for i, existing := range stmt.SetCols {
		if existing == col {
			stmt.SetVals[i] = value
			return stmt
		}
	}
	stmt.SetCols = append(stmt.SetCols, col)
	stmt.SetVals = append(stmt.SetVals, value)
	return stmt
}

// SetMap receives a map of columns and values. Multiple calls to both Set and
// SetMap can be chained to modify multiple columns.
func (stmt *UpdateStmt) SetMap(updates Values) *UpdateStmt {
	for _, col := range updates.columns() {
		stmt.Set(col, updates[col])
	}
	return stmt
}

// Where creates one or more WHERE conditions for the UPDATE statement.
// If multiple conditions are passed, they are considered AND conditions.
func (stmt *UpdateStmt) Where(conditions ...WhereCondition) *UpdateStmt {
	stmt.Conditions = append(stmt.Conditions, conditions...)
	return stmt
}

// ToSQL generates the UPDATE statement's SQL and returns its named
// bindings. It is used internally by Exec, but is exported if you
// wish to use it directly.
func (stmt *UpdateStmt) ToSQL() (asSQL string, binds Bindings) {
	binds = make(Bindings)
	var clauses = []string{"UPDATE " + stmt.Table}

	updates := make([]string, 0, len(stmt.SetCols))
	for i, col := range stmt.SetCols {
		updates = append(updates, col+"="+binds.bind(col, stmt.SetVals[i]))
	}

	clauses = append(clauses, "SET "+strings.Join(updates, ", "))

	if len(stmt.Conditions) > 0 {
		clauses = append(clauses, "WHERE "+parseConditions(stmt.Conditions, binds))
	}

	return strings.Join(clauses, " "), binds
}

// Exec executes the UPDATE statement, returning the standard
// sql.Result struct and an error if the query failed.
func (stmt *UpdateStmt) Exec(ctx context.Context) (res sql.Result, err error) {
	asSQL, args, err := bindNamed(stmt.execer, stmt)
	if err != nil {
		return nil, stmt.done(asSQL, err)
	}
	res, err = stmt.execer.ExecContext(ctx, asSQL, args...)
	return res, stmt.done(asSQL, err)
}
