package diol

import (
	"errors"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// DefaultConnection is the name of the connection repositories use unless
// configured otherwise
const DefaultConnection = "default"

var connections = struct {
	sync.Mutex
	dbs map[string]*DB
}{dbs: make(map[string]*DB)}

// Connection returns the named database handle, opening it from the
// environment (see LoadConfig) the first time it is requested. A handle
// is opened at most once per name.
func Connection(name string) (*DB, error) {
	connections.Lock()
	defer connections.Unlock()

	if db, ok := connections.dbs[name]; ok {
		return db, nil
	}

	conf, err := LoadConfig(name)
	if err != nil {
		return nil, err
	}

	db, err := Connect(name, conf)
	if err != nil {
		return nil, err
	}

	connections.dbs[name] = db
	return db, nil
}

// Register installs an existing handle under the provided name, replacing
// any handle previously registered under it
func Register(name string, db *DB) {
	connections.Lock()
	connections.dbs[name] = db
	connections.Unlock()
}

// CloseAll closes and forgets every named handle
func CloseAll() error {
	connections.Lock()
	defer connections.Unlock()

	var errs []error
	for name, db := range connections.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(connections.dbs, name)
	}

	return errors.Join(errs...)
}
