package diol

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// SQLStmt is an interface representing a general SQL statement. All
// specific statement types (e.g. SelectStmt, InsertStmt, etc.)
// implement this interface
type SQLStmt interface {
	ToSQL() (asSQL string, binds Bindings)
}

// Statement is a base struct for all statement types in the library.
type Statement struct {
	// ErrHandlers is a list of error handler functions
	ErrHandlers []func(err error)
	// Logger receives a trace of every executed statement
	Logger zerolog.Logger
}

// HandleError receives an error value, and executes all of the statements
// error handlers with it.
func (stmt *Statement) HandleError(err error) {
	if stmt.ErrHandlers != nil {
		for _, handler := range stmt.ErrHandlers {
			handler(err)
		}
	}
}

// done traces an executed statement and reports its error, if any, to
// the error handlers. The error is returned untouched.
func (stmt *Statement) done(asSQL string, err error) error {
	if err != nil {
		stmt.Logger.Error().Err(err).Str("sql", asSQL).Msg("statement failed")
		stmt.HandleError(err)
		return err
	}
	stmt.Logger.Debug().Str("sql", asSQL).Msg("statement executed")
	return nil
}

// bindNamed renders a statement and converts its named placeholders to
// the bindvar type of the driver behind ext
func bindNamed(ext sqlx.ExtContext, s SQLStmt) (string, []interface{}, error) {
	asSQL, binds := s.ToSQL()
	return ext.BindNamed(asSQL, map[string]interface{}(binds))
}

// queryRows runs a statement returning rows
func queryRows(ctx context.Context, ext sqlx.ExtContext, base *Statement, s SQLStmt) (*sqlx.Rows, error) {
	asSQL, args, err := bindNamed(ext, s)
	if err != nil {
		return nil, base.done(asSQL, err)
	}
	rows, err := ext.QueryxContext(ctx, asSQL, args...)
	if err != nil {
		return nil, base.done(asSQL, err)
	}
	base.done(asSQL, nil)
	return rows, nil
}

// getRow runs a statement expected to return one row and loads it into
// the provided variable
func getRow(ctx context.Context, ext sqlx.ExtContext, base *Statement, s SQLStmt, into interface{}) error {
	asSQL, args, err := bindNamed(ext, s)
	if err != nil {
		return base.done(asSQL, err)
	}
	return base.done(asSQL, sqlx.GetContext(ctx, ext, into, asSQL, args...))
}
