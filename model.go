package diol

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
)

var (
	// ErrInvalidModel is returned when a model type is not a struct
	ErrInvalidModel = errors.New("diol: model must be a struct type")
	// ErrNoPrimaryKey is returned when an operation needs the primary
	// key of a model that has none, or whose key is zero
	ErrNoPrimaryKey = errors.New("diol: missing primary key")
)

// fkSuffix is appended to the column of a model-typed field to name
// the foreign key column that stores the related primary key
const fkSuffix = "_id"

var mapper = reflectx.NewMapperFunc("db", sqlx.NameMapper)

var metaCache, _ = lru.New[reflect.Type, *modelMeta](256)

// column describes one top-level column of a model
type column struct {
	name  string
	index []int
	typ   reflect.Type
}

// modelMeta describes how a struct type maps to table columns
type modelMeta struct {
	typ      reflect.Type
	columns  []*column
	byColumn map[string]*column
	pk       *column
}

// metaOf returns the (cached) metadata of a struct type
func metaOf(t reflect.Type) (*modelMeta, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidModel, t)
	}

	if meta, ok := metaCache.Get(t); ok {
		return meta, nil
	}

	meta := &modelMeta{
		typ:      t,
		byColumn: make(map[string]*column),
	}
	meta.collect(mapper.TypeMap(t).Tree.Children)

	if meta.pk == nil {
		meta.pk = meta.byColumn["id"]
	}

	metaCache.Add(t, meta)
	return meta, nil
}

// collect walks the top-level fields of a struct, flattening embedded
// structs. Nested non-embedded structs are single columns.
func (meta *modelMeta) collect(fields []*reflectx.FieldInfo) {
	for _, fi := range fields {
		if fi == nil || fi.Name == "" || fi.Name == "-" {
			continue
		}
		if fi.Embedded && fi.Field.Tag.Get("db") == "" {
			meta.collect(fi.Children)
			continue
		}
		if _, dup := meta.byColumn[fi.Name]; dup {
			continue
		}

		col := &column{
			name:  fi.Name,
			index: fi.Index,
			typ:   fi.Field.Type,
		}
		meta.columns = append(meta.columns, col)
		meta.byColumn[col.name] = col

		if _, ok := fi.Options["pk"]; ok && meta.pk == nil {
			meta.pk = col
		}
	}
}

// fieldAt returns the field of the struct value v holding the column,
// allocating nil embedded pointers on the way
func fieldAt(v reflect.Value, col *column) reflect.Value {
	return reflectx.FieldByIndexes(v, col.index)
}

// fieldByIndex walks to a field without allocating nil pointers on the
// way. It reports false when a nil pointer blocks the path.
func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 {
			if v.Kind() == reflect.Ptr {
				if v.IsNil() {
					return reflect.Value{}, false
				}
				v = v.Elem()
			}
		}
		v = v.Field(x)
	}
	return v, true
}

// isNil reports whether a field holds no value at all, the equivalent
// of None for nilable kinds
func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// structType returns the struct type held by a field of type t (either
// a struct or a pointer to a struct)
func structType(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t, t.Kind() == reflect.Struct
}

// assign stores value into the settable field dst, converting between
// compatible types the way a row value would be converted on scan.
func assign(dst reflect.Value, value interface{}) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	if src.Kind() == reflect.Ptr && !src.IsNil() && src.Elem().Type().AssignableTo(dst.Type()) {
		dst.Set(src.Elem())
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	if scanner, ok := dst.Addr().Interface().(sql.Scanner); ok {
		return scanner.Scan(value)
	}

	switch {
	case isNumeric(src.Kind()) && isNumeric(dst.Kind()):
		dst.Set(src.Convert(dst.Type()))
		return nil
	case src.Kind() == reflect.String && dst.Kind() == reflect.String:
		dst.SetString(src.String())
		return nil
	case src.Kind() == reflect.Slice && src.Type().Elem().Kind() == reflect.Uint8 && dst.Kind() == reflect.String:
		dst.SetString(string(src.Bytes()))
		return nil
	}

	return fmt.Errorf("diol: cannot assign %T to field of type %s", value, dst.Type())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// foreignKey returns the model column behind a "<column>_id" foreign key
// column, and the repository of the related model
func (meta *modelMeta) foreignKey(name string) (*column, modelRepository, bool) {
	if !strings.HasSuffix(name, fkSuffix) {
		return nil, nil, false
	}
	col, ok := meta.byColumn[strings.TrimSuffix(name, fkSuffix)]
	if !ok {
		return nil, nil, false
	}
	rel, ok := relatedRepository(col.typ)
	if !ok {
		return nil, nil, false
	}
	return col, rel, true
}

// destinations returns one scan destination per result column, pointing
// into the struct value v. Columns the model does not know are scanned
// and discarded. Foreign key columns are scanned into a holder and
// applied by the returned fixup once the row has been scanned.
func (meta *modelMeta) destinations(v reflect.Value, cols []string) ([]interface{}, func()) {
	dests := make([]interface{}, len(cols))
	var fixups []func()

	for i, name := range cols {
		if col, ok := meta.byColumn[name]; ok {
			dests[i] = reflectx.FieldByIndexes(v, col.index).Addr().Interface()
			continue
		}

		if col, rel, ok := meta.foreignKey(name); ok && rel.pkIndex() != nil {
			holder := reflect.New(reflect.PtrTo(rel.pkType()))
			dests[i] = holder.Interface()
			col := col
			fixups = append(fixups, func() {
				if holder.Elem().IsNil() {
					return
				}
				// FieldByIndexes allocates a nil relation pointer
				target := reflect.Indirect(reflectx.FieldByIndexes(v, col.index))
				reflectx.FieldByIndexes(target, rel.pkIndex()).Set(holder.Elem().Elem())
			})
			continue
		}

		dests[i] = new(interface{})
	}

	return dests, func() {
		for _, fixup := range fixups {
			fixup()
		}
	}
}

// fill assigns column values onto the struct value v. Keys that are
// not columns of the model, nor foreign keys of one, are ignored.
func (meta *modelMeta) fill(v reflect.Value, vals Values) error {
	for name, val := range vals {
		if col, ok := meta.byColumn[name]; ok {
			if err := assign(reflectx.FieldByIndexes(v, col.index), val); err != nil {
				return fmt.Errorf("column %s: %w", name, err)
			}
			continue
		}

		if col, rel, ok := meta.foreignKey(name); ok && rel.pkIndex() != nil && val != nil {
			target := reflect.Indirect(reflectx.FieldByIndexes(v, col.index))
			if err := assign(reflectx.FieldByIndexes(target, rel.pkIndex()), val); err != nil {
				return fmt.Errorf("column %s: %w", name, err)
			}
		}
	}
	return nil
}
