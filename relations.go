package diol

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// ErrRelationCycle is returned when saving a model requires saving a
// model that is already being saved higher up the chain of relations
var ErrRelationCycle = errors.New("diol: cycle in model relations")

// rowData is an ordered list of columns and their values
type rowData struct {
	cols []string
	vals []interface{}
}

// rowFromValues creates a row from a values map, in sorted column order
func rowFromValues(vals Values) *rowData {
	row := &rowData{}
	for _, col := range vals.columns() {
		row.set(col, vals[col])
	}
	return row
}

func (row *rowData) set(col string, val interface{}) {
	for i, existing := range row.cols {
		if existing == col {
			row.vals[i] = val
			return
		}
	}
	row.cols = append(row.cols, col)
	row.vals = append(row.vals, val)
}

func (row *rowData) has(col string) bool {
	for _, existing := range row.cols {
		if existing == col {
			return true
		}
	}
	return false
}

func (row *rowData) get(col string) interface{} {
	for i, existing := range row.cols {
		if existing == col {
			return row.vals[i]
		}
	}
	return nil
}

// conditions returns an equality condition per column, in row order
func (row *rowData) conditions() []WhereCondition {
	conds := make([]WhereCondition, 0, len(row.cols))
	for i, col := range row.cols {
		conds = append(conds, Eq(col, row.vals[i]))
	}
	return conds
}

type visit struct {
	addr uintptr
	typ  reflect.Type
}

// resolver tracks the model instances being saved while relations are
// resolved, so a cycle fails instead of recursing forever
type resolver struct {
	visiting map[visit]struct{}
}

func newResolver() *resolver {
	return &resolver{visiting: make(map[visit]struct{})}
}

// enter marks the instance pointed to by v as being saved
func (res *resolver) enter(v reflect.Value) error {
	key := visit{v.Pointer(), v.Type()}
	if _, ok := res.visiting[key]; ok {
		return fmt.Errorf("%w: %s", ErrRelationCycle, v.Type().Elem().Name())
	}
	res.visiting[key] = struct{}{}
	return nil
}

func (res *resolver) leave(v reflect.Value) {
	delete(res.visiting, visit{v.Pointer(), v.Type()})
}

// relationFunc resolves the related model pointed to by ptr, reporting
// whether its row exists
type relationFunc func(rel modelRepository, ptr reflect.Value) (bool, error)

// saving resolves related models by saving the ones not found in the
// database
func (res *resolver) saving(ctx context.Context) relationFunc {
	return func(rel modelRepository, ptr reflect.Value) (bool, error) {
		return true, rel.getOrSaveValue(ctx, ptr, res)
	}
}

// lookup resolves related models without writing anything
func (res *resolver) lookup(ctx context.Context) relationFunc {
	return func(rel modelRepository, ptr reflect.Value) (bool, error) {
		return rel.lookupValue(ctx, ptr, res)
	}
}

// row collects the columns of the struct value v in field order. Fields
// holding registered models are resolved through resolve and replaced by
// a "<column>_id" column holding their primary key. When a related model
// cannot be resolved, row reports false and returns no row.
//
// Unless withNil is set, nil fields and a zero primary key are skipped.
// With withNil set the primary key is always skipped and nil fields are
// kept as NULL.
func (meta *modelMeta) row(v reflect.Value, withNil bool, resolve relationFunc) (*rowData, bool, error) {
	row := &rowData{}

	for _, col := range meta.columns {
		field, ok := fieldByIndex(v, col.index)
		if col == meta.pk && (withNil || !ok || field.IsZero()) {
			continue
		}

		rel, isRelation := relatedRepository(col.typ)

		// a zero related struct is unset, like a nil pointer
		nilField := !ok || isNil(field) ||
			(isRelation && field.Kind() == reflect.Struct && field.IsZero())
		if nilField && !withNil {
			continue
		}

		if !isRelation {
			if nilField {
				row.set(col.name, nil)
			} else {
				row.set(col.name, field.Interface())
			}
			continue
		}

		if nilField {
			row.set(col.name+fkSuffix, nil)
			continue
		}

		ptr := field
		if ptr.Kind() != reflect.Ptr {
			ptr = field.Addr()
		}
		found, err := resolve(rel, ptr)
		if err != nil {
			return nil, false, fmt.Errorf("resolving %s: %w", col.name, err)
		}
		if !found {
			return nil, false, nil
		}
		row.set(col.name+fkSuffix, rel.primaryKey(ptr))
	}

	return row, true, nil
}

// resolveValues replaces values holding registered models by their
// primary key under "<key>_id", saving them first if not found in the
// database. The related objects are returned by their original key.
// The provided map is not modified.
func resolveValues(ctx context.Context, vals Values) (Values, map[string]interface{}, error) {
	data, related, _, err := replaceRelations(vals, newResolver().saving(ctx), false)
	return data, related, err
}

// resolveCriteria is like resolveValues but never writes: related models
// without a primary key are looked up by their fields, on a copy. It
// reports false when one of them has no row, in which case nothing can
// match the criteria.
func resolveCriteria(ctx context.Context, vals Values) (Values, bool, error) {
	data, _, found, err := replaceRelations(vals, newResolver().lookup(ctx), true)
	return data, found, err
}

func replaceRelations(vals Values, resolve relationFunc, copyAll bool) (Values, map[string]interface{}, bool, error) {
	data := vals.clone()
	related := make(map[string]interface{})

	for _, key := range vals.columns() {
		value := vals[key]
		if value == nil {
			continue
		}

		rel, ok := relatedRepository(reflect.TypeOf(value))
		if !ok {
			continue
		}

		ptr := reflect.ValueOf(value)
		if ptr.Kind() == reflect.Ptr && ptr.IsNil() {
			delete(data, key)
			data[key+fkSuffix] = nil
			continue
		}
		if ptr.Kind() == reflect.Ptr && copyAll {
			ptr = ptr.Elem()
		}
		if ptr.Kind() != reflect.Ptr {
			// a struct passed by value cannot receive its key, work on a copy
			cp := reflect.New(ptr.Type())
			cp.Elem().Set(ptr)
			ptr = cp
		}

		found, err := resolve(rel, ptr)
		if err != nil {
			return nil, nil, false, fmt.Errorf("resolving %s: %w", key, err)
		}
		if !found {
			return nil, nil, false, nil
		}

		delete(data, key)
		data[key+fkSuffix] = rel.primaryKey(ptr)
		related[key] = ptr.Interface()
	}

	return data, related, true, nil
}
