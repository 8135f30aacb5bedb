package diol

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// DB is a wrapper around sqlx.DB (which is a wrapper around sql.DB). It
// remembers the dialect of the underlying driver, the logger statements
// are traced to and the error handlers they report failures to.
type DB struct {
	*sqlx.DB
	Dialect     Dialect
	Logger      zerolog.Logger
	ErrHandlers []func(err error)
}

// DBOption configures a DB created with New or Newx
type DBOption func(db *DB)

// WithLogger sets the logger executed statements are traced to
func WithLogger(logger zerolog.Logger) DBOption {
	return func(db *DB) {
		db.Logger = logger
	}
}

// WithErrorHandler adds a function that is called with every error
// returned by the database while executing a statement
func WithErrorHandler(handler func(err error)) DBOption {
	return func(db *DB) {
		db.ErrHandlers = append(db.ErrHandlers, handler)
	}
}

// New creates a new DB instance from an underlying sql.DB object.
// It requires the name of the SQL driver in order to use the correct
// placeholders when generating SQL
func New(db *sql.DB, driverName string, opts ...DBOption) *DB {
	return Newx(sqlx.NewDb(db, driverName), opts...)
}

// Newx creates a new DB instance from an underlying sqlx.DB object
func Newx(db *sqlx.DB, opts ...DBOption) *DB {
	dbz := &DB{
		DB:      db,
		Dialect: DialectFor(db.DriverName()),
		Logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(dbz)
	}
	return dbz
}

func (db *DB) statement() *Statement {
	return &Statement{
		ErrHandlers: db.ErrHandlers,
		Logger:      db.Logger,
	}
}

// Values maps column names to values. It is used both as the data of a
// row and as equality criteria.
type Values map[string]interface{}

// columns returns the keys of the map in sorted order, so generated SQL
// does not depend on map iteration order
func (vals Values) columns() []string {
	cols := make([]string, 0, len(vals))
	for col := range vals {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func (vals Values) clone() Values {
	out := make(Values, len(vals))
	for col, val := range vals {
		out[col] = val
	}
	return out
}

// Bindings collects the named parameters of a statement while its SQL is
// generated. Keys are placeholder names without the leading colon.
type Bindings map[string]interface{}

// bind registers a value for the provided column and returns the named
// placeholder referencing it. A column bound more than once gets a
// numeric suffix (":age", ":age_2", ...).
func (b Bindings) bind(col string, value interface{}) string {
	base := placeholderName(col)
	name := base
	for i := 2; ; i++ {
		if _, taken := b[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
	b[name] = value
	return ":" + name
}

// placeholderName replaces characters sqlx does not accept in a named
// parameter with underscores
func placeholderName(col string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, col)
}

// WhereCondition is an interface describing conditions
// that can be used inside an SQL WHERE clause. It defines
// the Parse function that generates SQL (with named
// placeholders) from the condition(s), registering the
// values it needs in the provided bindings
type WhereCondition interface {
	Parse(binds Bindings) (asSQL string)
}

// SimpleCondition represents the most basic WHERE
// condition, where one left-value (usually a column)
// is compared with a right-value using an operator (e.g.
// "=", "<>", ">=", ...)
type SimpleCondition struct {
	Left     string
	Right    interface{}
	Operator string
}

// AndOrCondition represents a group of AND or OR
// conditions.
type AndOrCondition struct {
	Or         bool
	Conditions []WhereCondition
}

// InCondition is a struct representing IN and NOT IN conditions
type InCondition struct {
	NotIn bool
	Left  string
	Right []interface{}
}

// And joins multiple where conditions as an AndOrCondition
// (representing AND conditions). You will use this a lot
// less than Or as passing multiple conditions to functions
// like Where are all AND conditions.
func And(conds ...WhereCondition) AndOrCondition {
	return AndOrCondition{false, conds}
}

// Or joins multiple where conditions as an AndOrCondition
// (representing OR conditions).
func Or(conds ...WhereCondition) AndOrCondition {
	return AndOrCondition{true, conds}
}

// Eq represents a simple equality condition ("=" operator).
// Comparing with nil generates an IS NULL condition.
func Eq(col string, value interface{}) SimpleCondition {
	return SimpleCondition{col, value, "="}
}

// Ne represents a simple non-equality condition ("<>" operator).
// Comparing with nil generates an IS NOT NULL condition.
func Ne(col string, value interface{}) SimpleCondition {
	return SimpleCondition{col, value, "<>"}
}

// Gt represents a simple greater-than condition (">" operator)
func Gt(col string, value interface{}) SimpleCondition {
	return SimpleCondition{col, value, ">"}
}

// Gte represents a simple greater-than-or-equals condition (">=" operator)
func Gte(col string, value interface{}) SimpleCondition {
	return SimpleCondition{col, value, ">="}
}

// Lt represents a simple less-than condition ("<" operator)
func Lt(col string, value interface{}) SimpleCondition {
	return SimpleCondition{col, value, "<"}
}

// Lte represents a simple less-than-or-equals condition ("<=" operator)
func Lte(col string, value interface{}) SimpleCondition {
	return SimpleCondition{col, value, "<="}
}

// Like represents a wildcard equality condition ("LIKE" operator)
func Like(col string, value interface{}) SimpleCondition {
	return SimpleCondition{col, value, "LIKE"}
}

// NotLike represents a wildcard non-equality condition ("NOT LIKE" operator)
func NotLike(col string, value interface{}) SimpleCondition {
	return SimpleCondition{col, value, "NOT LIKE"}
}

// IsNull represents a simple nullity condition ("IS NULL" operator)
func IsNull(col string) SimpleCondition {
	return SimpleCondition{col, nil, "IS NULL"}
}

// IsNotNull represents a simple non-nullity condition ("IS NOT NULL" operator)
func IsNotNull(col string) SimpleCondition {
	return SimpleCondition{col, nil, "IS NOT NULL"}
}

// In creates an IN condition for matching the value of a column
// against an array of possible values
func In(col string, values ...interface{}) InCondition {
	return InCondition{false, col, values}
}

// NotIn creates a NOT IN condition for checking that the value
// of a column is not one of the defined values
func NotIn(col string, values ...interface{}) InCondition {
	return InCondition{true, col, values}
}

func isSymbolic(op string) bool {
	switch op {
	case "=", "<>", ">", ">=", "<", "<=":
		return true
	}
	return false
}

// Parse implements the WhereCondition interface, generating SQL from
// the condition
func (simple SimpleCondition) Parse(binds Bindings) (asSQL string) {
	if simple.Right == nil {
		switch simple.Operator {
		case "=":
			return simple.Left + " IS NULL"
		case "<>":
			return simple.Left + " IS NOT NULL"
		}
		return simple.Left + " " + simple.Operator
	}

	placeholder := binds.bind(simple.Left, simple.Right)
	if isSymbolic(simple.Operator) {
		return simple.Left + simple.Operator + placeholder
	}
	return simple.Left + " " + simple.Operator + " " + placeholder
}

// Parse implements the WhereCondition interface, generating SQL from
// the condition
func (in InCondition) Parse(binds Bindings) (asSQL string) {
	asSQL = in.Left
	if in.NotIn {
		asSQL += " NOT"
	}
	asSQL += " IN ("

	placeholders := make([]string, 0, len(in.Right))
	for _, val := range in.Right {
		placeholders = append(placeholders, binds.bind(in.Left, val))
	}

	return asSQL + strings.Join(placeholders, ", ") + ")"
}

// Parse implements the WhereCondition interface, generating SQL from
// the condition
func (andOr AndOrCondition) Parse(binds Bindings) (asSQL string) {
	return "(" + andOr.join(binds) + ")"
}

func (andOr AndOrCondition) join(binds Bindings) string {
	sqls := make([]string, 0, len(andOr.Conditions))
	for _, cond := range andOr.Conditions {
		sqls = append(sqls, cond.Parse(binds))
	}
	op := " AND "
	if andOr.Or {
		op = " OR "
	}
	return strings.Join(sqls, op)
}

func parseConditions(conds []WhereCondition, binds Bindings) string {
	if len(conds) == 1 {
		if andOr, ok := conds[0].(AndOrCondition); ok {
			return andOr.join(binds)
		}
		return conds[0].Parse(binds)
	}
	return AndOrCondition{false, conds}.join(binds)
}
