package diol

import (
	"strings"
	"unicode"

	pluralizer "github.com/gertd/go-pluralize"
)

var pluralizeClient = pluralizer.NewClient()

// NamingStrategy converts the name of a Go type to a table name
type NamingStrategy func(typeName string) string

// TableNamer can be implemented by models to choose their table name
type TableNamer interface {
	TableName() string
}

// TableName derives a table name from a type name by splitting it on
// capital letters and joining the lower-cased parts with underscores,
// e.g. "MyFakeEntity" becomes "my_fake_entity". Every capital letter
// starts a new part, so "HTTPLog" becomes "h_t_t_p_log". Only ASCII
// capitals split: other capitals are lower-cased in place, so "CaféÉtéLog"
// becomes "caféété_log".
func TableName(typeName string) string {
	var parts []string
	var current strings.Builder

	for _, r := range typeName {
		if r >= 'A' && r <= 'Z' && current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteRune(unicode.ToLower(r))
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return strings.TrimSpace(strings.Join(parts, "_"))
}

// PluralTableName is like TableName but pluralizes the result,
// e.g. "BlogEntry" becomes "blog_entries"
func PluralTableName(typeName string) string {
	return pluralizeClient.Plural(TableName(typeName))
}
