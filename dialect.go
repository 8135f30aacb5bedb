package diol

import (
	"context"
)

// Dialect captures what differs between database servers when the
// repository needs the key generated by an INSERT.
type Dialect interface {
	// Name returns the name of the dialect
	Name() string
	// InsertID executes the insert statement and returns the value
	// generated for the primary key column pk. When pk is empty the
	// statement is only executed.
	InsertID(ctx context.Context, stmt *InsertStmt, pk string) (interface{}, error)
	// LastInsertIDQuery returns a query selecting the last generated
	// key of the current session as a column named "id"
	LastInsertIDQuery() string
}

// MySQL reads generated keys from the result of the INSERT
type MySQL struct{}

// Postgres reads generated keys with a RETURNING clause, since pgx
// does not implement sql.Result.LastInsertId
type Postgres struct{}

// DialectFor returns the dialect matching a database/sql driver name.
// Unknown drivers are treated as MySQL.
func DialectFor(driverName string) Dialect {
	switch driverName {
	case "pgx", "pgx/v5", "postgres", "postgresql":
		return Postgres{}
	default:
		return MySQL{}
	}
}

func (MySQL) Name() string {
	return "mysql"
}

func (MySQL) InsertID(ctx context.Context, stmt *InsertStmt, pk string) (interface{}, error) {
	res, err := stmt.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if pk == "" {
		return nil, nil
	}
	return res.LastInsertId()
}

func (MySQL) LastInsertIDQuery() string {
	return "SELECT LAST_INSERT_ID() AS id"
}

func (Postgres) Name() string {
	return "postgres"
}

func (Postgres) InsertID(ctx context.Context, stmt *InsertStmt, pk string) (interface{}, error) {
	if pk == "" {
		_, err := stmt.Exec(ctx)
		return nil, err
	}

	var id interface{}
	err := stmt.Returning(pk).GetRow(ctx, &id)
	return id, err
}

func (Postgres) LastInsertIDQuery() string {
	return "SELECT LASTVAL() AS id"
}
