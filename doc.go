// Package diol is a minimal database IO layer for Go structs, based on
// github.com/jmoiron/sqlx.
//
// Registering a struct type as a model attaches a Repository to it. The
// repository translates basic CRUD calls into simple INSERT, SELECT, UPDATE
// and DELETE statements with named parameters, executed through sqlx, and
// loads the resulting rows back into instances of the struct. diol does not
// plan queries, manage transactions or migrate schemas; it only saves you
// from writing the same handful of statements for every table.
//
// Columns are mapped with `db` struct tags, just like with sqlx. The
// primary key is the "id" column, or the field tagged with the "pk" option
// (e.g. `db:"uid,pk"`). The table name is derived from the type name
// ("BlogEntry" becomes "blog_entry") unless the type implements TableNamer
// or the repository is created with WithTableName.
//
// Fields holding other registered models are stored as foreign keys: when
// saving, the related instance is looked up (and saved if missing) and its
// primary key is written to the "<column>_id" column. Criteria given to
// Filter, Get, Count and Delete never save anything: a related model
// without a primary key is looked up by its fields, and if it has no row
// nothing matches.
//
//		import (
//			"context"
//			"fmt"
//			"github.com/ido50/diol"
//		)
//
//		type Author struct {
//			ID   int64  `db:"id"`
//			Name string `db:"name"`
//		}
//
//		type BlogEntry struct {
//			ID     int64   `db:"id"`
//			Title  string  `db:"title"`
//			Author *Author `db:"author"`
//		}
//
//		func main() {
//			ctx := context.Background()
//
//			// uses the "default" connection, configured by the
//			// DATABASE_URL and DATABASE_DRIVER environment variables
//			if _, err := diol.Model[Author](); err != nil {
//				panic(err)
//			}
//			entries, err := diol.Model[BlogEntry]()
//			if err != nil {
//				panic(err)
//			}
//
//			entry := &BlogEntry{Title: "Hello", Author: &Author{Name: "Ido"}}
//			if err := entries.Save(ctx, entry); err != nil {
//				panic(err)
//			}
//
//			found, err := entries.Get(ctx, diol.Values{"id": entry.ID})
//			if err != nil {
//				panic(err)
//			}
//
//			fmt.Printf("%+v\n", found)
//		}
package diol
