package diol

import "testing"

func TestTableName(t *testing.T) {
	tests := []struct {
		typeName string
		expected string
	}{
		{"MyFakeEntity", "my_fake_entity"},
		{"User", "user"},
		{"myFakeEntity", "my_fake_entity"},
		{"HTTPLog", "h_t_t_p_log"},
		{"Entry2", "entry2"},
		{"CaféÉtéLog", "caféété_log"},
		{"ÉtéLog", "été_log"},
		{"", ""},
	}

	for _, tst := range tests {
		if got := TableName(tst.typeName); got != tst.expected {
			t.Errorf("TableName(%q): expected %q, got %q", tst.typeName, tst.expected, got)
		}
	}
}

func TestPluralTableName(t *testing.T) {
	tests := []struct {
		typeName string
		expected string
	}{
		{"User", "users"},
		{"BlogEntry", "blog_entries"},
		{"Person", "people"},
	}

	for _, tst := range tests {
		if got := PluralTableName(tst.typeName); got != tst.expected {
			t.Errorf("PluralTableName(%q): expected %q, got %q", tst.typeName, tst.expected, got)
		}
	}
}
