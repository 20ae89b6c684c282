package source

import (
	"reflect"
	"testing"
)

func TestParsePublicationTables(t *testing.T) {
	cases := []struct {
		name     string
		patterns []string
		want     tablePattern
	}{
		{"empty means all tables", nil, tablePattern{}},
		{"star", []string{"*"}, tablePattern{allTables: true}},
		{"star dot star", []string{"*.*"}, tablePattern{allTables: true}},
		{"schema wildcard", []string{"public.*"}, tablePattern{schemas: []string{"public"}}},
		{"explicit table", []string{"public.users"}, tablePattern{tables: []string{"public.users"}}},
		{
			"mixed schema and table",
			[]string{"public.*", "billing.invoices"},
			tablePattern{schemas: []string{"public"}, tables: []string{"billing.invoices"}},
		},
		{
			"star short-circuits the rest",
			[]string{"public.users", "*"},
			tablePattern{allTables: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parsePublicationTables(tc.patterns)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parsePublicationTables(%v) = %+v, want %+v", tc.patterns, got, tc.want)
			}
		})
	}
}

func TestQuoteIdentRaw(t *testing.T) {
	cases := map[string]string{
		"users":   `"users"`,
		`wei"rd`:  `"wei""rd"`,
		"":        `""`,
	}
	for in, want := range cases {
		if got := quoteIdentRaw(in); got != want {
			t.Errorf("quoteIdentRaw(%q) = %q, want %q", in, got, want)
		}
	}
}
