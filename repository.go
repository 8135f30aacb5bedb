package diol

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jmoiron/sqlx"
)

// ErrNoCriteria is returned by Delete when called without criteria
var ErrNoCriteria = errors.New("diol: refusing to delete without criteria")

// Repository translates CRUD calls into SQL statements against the table
// of the model T. Repositories are immutable once created and safe for
// concurrent use.
type Repository[T any] struct {
	db        *DB
	meta      *modelMeta
	modelName string
	tableName string
	idGen     IDGenerator
}

// Option configures a repository created with NewRepository or Model
type Option func(o *options)

type options struct {
	db         *DB
	connection string
	tableName  string
	naming     NamingStrategy
	idGen      IDGenerator
}

// WithDB makes the repository use the provided database handle instead
// of a named connection
func WithDB(db *DB) Option {
	return func(o *options) {
		o.db = db
	}
}

// Using makes the repository use the named connection (see Connection)
func Using(name string) Option {
	return func(o *options) {
		o.connection = name
	}
}

// WithTableName sets the table name explicitly, taking precedence over
// both TableNamer and the naming strategy
func WithTableName(name string) Option {
	return func(o *options) {
		o.tableName = name
	}
}

// WithNaming sets the strategy deriving the table name from the type name
func WithNaming(naming NamingStrategy) Option {
	return func(o *options) {
		o.naming = naming
	}
}

// WithPluralTableNames is shorthand for WithNaming(PluralTableName)
func WithPluralTableNames() Option {
	return WithNaming(PluralTableName)
}

// WithIDGenerator makes the repository generate a primary key for new
// rows instead of reading the key generated by the database
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) {
		o.idGen = gen
	}
}

// NewRepository creates a repository for the struct type T. Unless WithDB
// is provided, the repository uses a named connection, "default" if Using
// is not provided either.
func NewRepository[T any](opts ...Option) (*Repository[T], error) {
	o := options{
		connection: DefaultConnection,
		naming:     TableName,
	}
	for _, opt := range opts {
		opt(&o)
	}

	t := reflect.TypeOf((*T)(nil)).Elem()
	meta, err := metaOf(t)
	if err != nil {
		return nil, err
	}

	db := o.db
	if db == nil {
		db, err = Connection(o.connection)
		if err != nil {
			return nil, fmt.Errorf("repository for %s: %w", t.Name(), err)
		}
	}

	tableName := o.tableName
	if tableName == "" {
		if namer, ok := reflect.New(t).Interface().(TableNamer); ok {
			tableName = namer.TableName()
		} else {
			tableName = o.naming(t.Name())
		}
	}

	return &Repository[T]{
		db:        db,
		meta:      meta,
		modelName: t.Name(),
		tableName: tableName,
		idGen:     o.idGen,
	}, nil
}

// ModelName returns the name of the model type
func (repo *Repository[T]) ModelName() string {
	return repo.modelName
}

// TableName returns the name of the model's table
func (repo *Repository[T]) TableName() string {
	return repo.tableName
}

// DB returns the database handle the repository executes statements on
func (repo *Repository[T]) DB() *DB {
	return repo.db
}

// Create inserts a row built from the provided values and returns the
// corresponding model. Values holding registered models are saved first
// (if not found in the database) and stored as "<key>_id". When no primary
// key is provided it is filled from the key generated by the insert. The
// returned model is built from the values, not read back.
func (repo *Repository[T]) Create(ctx context.Context, vals Values) (*T, error) {
	data, related, err := resolveValues(ctx, vals)
	if err != nil {
		return nil, err
	}

	row := rowFromValues(data)
	id, err := repo.insert(ctx, row)
	if err != nil {
		return nil, err
	}
	if pk := repo.pkName(); pk != "" && repo.acceptsKey(id) {
		if _, given := data[pk]; !given {
			data[pk] = id
		}
	}

	var item T
	v := reflect.ValueOf(&item).Elem()
	if err := repo.meta.fill(v, data); err != nil {
		return nil, fmt.Errorf("building %s: %w", repo.modelName, err)
	}
	for key, obj := range related {
		if col, ok := repo.meta.byColumn[key]; ok {
			if err := assign(fieldAt(v, col), obj); err != nil {
				return nil, fmt.Errorf("building %s: %w", repo.modelName, err)
			}
		}
	}

	return &item, nil
}

// GetOrCreate returns the first row matching all the provided values,
// inserting one first if none does
func (repo *Repository[T]) GetOrCreate(ctx context.Context, vals Values) (*T, error) {
	data, _, err := resolveValues(ctx, vals)
	if err != nil {
		return nil, err
	}

	row := rowFromValues(data)
	items, err := repo.find(ctx, 0, row.conditions()...)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		return &items[0], nil
	}

	id, err := repo.insert(ctx, row)
	if err != nil {
		return nil, err
	}

	if repo.pkName() != "" && !repo.acceptsKey(id) {
		items, err = repo.find(ctx, 1, row.conditions()...)
	} else {
		items, err = repo.getLast(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Filter returns all rows matching all the provided values, or an empty
// slice if nothing matches. Values holding registered models match by
// their primary key and are never saved: one without a key is looked up
// by its fields, and if it has no row nothing matches.
func (repo *Repository[T]) Filter(ctx context.Context, vals Values) ([]T, error) {
	data, found, err := resolveCriteria(ctx, vals)
	if err != nil {
		return nil, err
	}
	if !found {
		return []T{}, nil
	}
	return repo.find(ctx, 0, rowFromValues(data).conditions()...)
}

// Get returns the first row matching all the provided values, or nil if
// nothing matches. Values are resolved like in Filter.
func (repo *Repository[T]) Get(ctx context.Context, vals Values) (*T, error) {
	data, found, err := resolveCriteria(ctx, vals)
	if err != nil || !found {
		return nil, err
	}

	items, err := repo.find(ctx, 1, rowFromValues(data).conditions()...)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// Find returns all rows matching the provided conditions
func (repo *Repository[T]) Find(ctx context.Context, conds ...WhereCondition) ([]T, error) {
	return repo.find(ctx, 0, conds...)
}

// GetAll returns all the rows of the model's table
func (repo *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	return repo.find(ctx, 0)
}

// Count returns the number of rows matching all the provided values.
// Values are resolved like in Filter.
func (repo *Repository[T]) Count(ctx context.Context, vals Values) (int64, error) {
	data, found, err := resolveCriteria(ctx, vals)
	if err != nil || !found {
		return 0, err
	}
	return repo.db.Select().
		From(repo.tableName).
		Where(rowFromValues(data).conditions()...).
		GetCount(ctx)
}

// Save inserts the instance as a new row. Nil fields and a zero primary
// key are left out of the INSERT, fields holding registered models are
// saved first (if not found in the database), and a zero primary key is
// filled afterwards from the key generated by the database.
func (repo *Repository[T]) Save(ctx context.Context, instance *T) error {
	return repo.saveValue(ctx, reflect.ValueOf(instance), newResolver())
}

// GetOrSave looks the instance up by all of its non-nil fields, inserting
// it if no row matches. The columns of the matching (or inserted) row are
// then copied onto the instance, which fills in its primary key.
func (repo *Repository[T]) GetOrSave(ctx context.Context, instance *T) error {
	return repo.getOrSaveValue(ctx, reflect.ValueOf(instance), newResolver())
}

// SaveAll saves every instance of the collection, stopping at the first
// error. An empty collection is a no-op.
func (repo *Repository[T]) SaveAll(ctx context.Context, collection []*T) error {
	for i, instance := range collection {
		if err := repo.Save(ctx, instance); err != nil {
			return fmt.Errorf("saving %s #%d: %w", repo.modelName, i, err)
		}
	}
	return nil
}

// Update writes all the columns of the instance to the row holding its
// primary key. Nil fields are written as NULL. A model with no column
// besides its primary key has nothing to write, so no statement is
// executed.
func (repo *Repository[T]) Update(ctx context.Context, instance *T) error {
	v := reflect.ValueOf(instance)
	if v.IsNil() || repo.meta.pk == nil {
		return fmt.Errorf("updating %s: %w", repo.modelName, ErrNoPrimaryKey)
	}

	pk := fieldAt(v.Elem(), repo.meta.pk)
	if pk.IsZero() {
		return fmt.Errorf("updating %s: %w", repo.modelName, ErrNoPrimaryKey)
	}

	res := newResolver()
	if err := res.enter(v); err != nil {
		return err
	}
	defer res.leave(v)

	row, _, err := repo.meta.row(v.Elem(), true, res.saving(ctx))
	if err != nil || len(row.cols) == 0 {
		return err
	}

	stmt := repo.db.Update(repo.tableName)
	for i, col := range row.cols {
		stmt.Set(col, row.vals[i])
	}
	_, err = stmt.Where(Eq(repo.meta.pk.name, pk.Interface())).Exec(ctx)
	return err
}

// Delete removes all rows matching all the provided values and returns
// how many were removed. Values are resolved like in Filter. Empty
// criteria are refused with ErrNoCriteria.
func (repo *Repository[T]) Delete(ctx context.Context, vals Values) (int64, error) {
	if len(vals) == 0 {
		return 0, ErrNoCriteria
	}

	data, found, err := resolveCriteria(ctx, vals)
	if err != nil || !found {
		return 0, err
	}

	res, err := repo.db.DeleteFrom(repo.tableName).
		Where(rowFromValues(data).conditions()...).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LastInsertID asks the database for the last key generated in the
// current session. It returns nil when the query returns no row.
//
// With a connection pool the query may run on a different connection than
// the INSERT it follows, so the repository itself never relies on it.
func (repo *Repository[T]) LastInsertID(ctx context.Context) (interface{}, error) {
	base := repo.db.statement()
	rows, err := queryRows(ctx, repo.db.DB, base, rawSQL(repo.db.Dialect.LastInsertIDQuery()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var id interface{}
	if err := rows.Scan(&id); err != nil {
		return nil, err
	}
	if b, ok := id.([]byte); ok {
		id = string(b)
	}
	return id, nil
}

func (repo *Repository[T]) saveValue(ctx context.Context, v reflect.Value, res *resolver) error {
	if v.IsNil() {
		return nil
	}
	if err := res.enter(v); err != nil {
		return err
	}
	defer res.leave(v)

	row, _, err := repo.meta.row(v.Elem(), false, res.saving(ctx))
	if err != nil {
		return err
	}

	id, err := repo.insert(ctx, row)
	if err != nil {
		return err
	}
	return repo.setPrimaryKey(v.Elem(), id)
}

func (repo *Repository[T]) getOrSaveValue(ctx context.Context, v reflect.Value, res *resolver) error {
	if v.IsNil() {
		return nil
	}
	if err := res.enter(v); err != nil {
		return err
	}
	defer res.leave(v)

	row, _, err := repo.meta.row(v.Elem(), false, res.saving(ctx))
	if err != nil {
		return err
	}

	found, err := repo.scanFirst(ctx, v.Elem(), 1, row.conditions()...)
	if err != nil || found {
		return err
	}

	id, err := repo.insert(ctx, row)
	if err != nil {
		return err
	}
	if err := repo.setPrimaryKey(v.Elem(), id); err != nil {
		return err
	}

	if repo.meta.pk == nil {
		return nil
	}

	if pk := fieldAt(v.Elem(), repo.meta.pk); !pk.IsZero() {
		_, err = repo.scanFirst(ctx, v.Elem(), 0, Eq(repo.meta.pk.name, pk.Interface()))
	} else {
		// no key to select by, read the row back by its fields
		_, err = repo.scanFirst(ctx, v.Elem(), 1, row.conditions()...)
	}
	return err
}

// lookupValue finds the row of the model pointed to by v without writing
// anything, reporting whether it exists. A non-zero primary key is taken
// as is. Otherwise the row is searched by all non-nil fields and loaded
// onto the instance when found.
func (repo *Repository[T]) lookupValue(ctx context.Context, v reflect.Value, res *resolver) (bool, error) {
	if v.IsNil() {
		return false, nil
	}
	if repo.meta.pk != nil && !fieldAt(v.Elem(), repo.meta.pk).IsZero() {
		return true, nil
	}
	if err := res.enter(v); err != nil {
		return false, err
	}
	defer res.leave(v)

	row, found, err := repo.meta.row(v.Elem(), false, res.lookup(ctx))
	if err != nil || !found {
		return false, err
	}
	return repo.scanFirst(ctx, v.Elem(), 1, row.conditions()...)
}

func (repo *Repository[T]) pkIndex() []int {
	if repo.meta.pk == nil {
		return nil
	}
	return repo.meta.pk.index
}

func (repo *Repository[T]) pkType() reflect.Type {
	if repo.meta.pk == nil {
		return nil
	}
	return repo.meta.pk.typ
}

func (repo *Repository[T]) pkName() string {
	if repo.meta.pk == nil {
		return ""
	}
	return repo.meta.pk.name
}

// primaryKey returns the primary key of the model pointed to by v
func (repo *Repository[T]) primaryKey(v reflect.Value) interface{} {
	if repo.meta.pk == nil || v.IsNil() {
		return nil
	}
	return fieldAt(v.Elem(), repo.meta.pk).Interface()
}

// setPrimaryKey stores a generated key in the instance when its primary
// key is still zero
func (repo *Repository[T]) setPrimaryKey(v reflect.Value, id interface{}) error {
	if repo.meta.pk == nil || !repo.acceptsKey(id) {
		return nil
	}
	field := fieldAt(v, repo.meta.pk)
	if !field.IsZero() {
		return nil
	}
	if err := assign(field, id); err != nil {
		return fmt.Errorf("setting %s primary key: %w", repo.modelName, err)
	}
	return nil
}

// acceptsKey reports whether a key returned by an insert belongs in the
// primary key field. Drivers report a numeric key even when the table has
// none (0 for MySQL), which cannot fill a non-numeric key.
func (repo *Repository[T]) acceptsKey(id interface{}) bool {
	if id == nil {
		return false
	}
	idv := reflect.ValueOf(id)
	if !isNumeric(idv.Kind()) {
		return true
	}
	if idv.IsZero() {
		return false
	}
	typ := repo.meta.pk.typ
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return isNumeric(typ.Kind())
}

// insert executes an INSERT of the row and returns the primary key of the
// new row: the provided one, a generated one, or the one read back through
// the dialect
func (repo *Repository[T]) insert(ctx context.Context, row *rowData) (interface{}, error) {
	pk := repo.pkName()

	if pk != "" && !row.has(pk) && repo.idGen != nil {
		id, err := repo.idGen.Generate()
		if err != nil {
			return nil, fmt.Errorf("generating %s primary key: %w", repo.modelName, err)
		}
		row.set(pk, id)
	}

	stmt := repo.db.InsertInto(repo.tableName).
		Columns(row.cols...).
		Values(row.vals...)

	if pk == "" || row.has(pk) {
		_, err := stmt.Exec(ctx)
		if err != nil {
			return nil, err
		}
		return row.get(pk), nil
	}

	return repo.db.Dialect.InsertID(ctx, stmt, pk)
}

// getLast selects the row holding the provided primary key
func (repo *Repository[T]) getLast(ctx context.Context, id interface{}) ([]T, error) {
	pk := repo.pkName()
	if pk == "" {
		pk = "id"
	}
	return repo.find(ctx, 0, Eq(pk, id))
}

func (repo *Repository[T]) find(ctx context.Context, limit int64, conds ...WhereCondition) ([]T, error) {
	rows, err := repo.db.Select().
		From(repo.tableName).
		Where(conds...).
		Limit(limit).
		Query(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	items := []T{}
	for rows.Next() {
		var item T
		if err := repo.scan(rows, reflect.ValueOf(&item).Elem(), cols); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// scanFirst loads the first row matching the conditions onto the struct
// value v, reporting whether a row was found
func (repo *Repository[T]) scanFirst(ctx context.Context, v reflect.Value, limit int64, conds ...WhereCondition) (bool, error) {
	rows, err := repo.db.Select().
		From(repo.tableName).
		Where(conds...).
		Limit(limit).
		Query(ctx)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return false, rows.Err()
	}

	cols, err := rows.Columns()
	if err != nil {
		return false, err
	}
	return true, repo.scan(rows, v, cols)
}

func (repo *Repository[T]) scan(rows *sqlx.Rows, v reflect.Value, cols []string) error {
	dests, fixup := repo.meta.destinations(v, cols)
	if err := rows.Scan(dests...); err != nil {
		return fmt.Errorf("scanning %s: %w", repo.modelName, err)
	}
	fixup()
	return nil
}

// rawSQL is a statement given as plain SQL without parameters
type rawSQL string

func (r rawSQL) ToSQL() (string, Bindings) {
	return string(r), Bindings{}
}
