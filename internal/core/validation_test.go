// internal/core/validation_test.go
package core

import (
	"strings"
	"testing"
)

func TestIsValidIdentifier(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    bool
		comment string
	}{
		{"valid simple", "my_table", true, ""},
		{"valid with numbers", "table_123", true, ""},
		{"valid uppercase", "MY_TABLE", true, ""},
		{"valid underscore start", "_table", true, ""},
		{"valid short", "a", true, ""},
		{"valid long (64 chars)", strings.Repeat("a", 64), true, ""},
		{"invalid empty", "", false, "empty string"},
		{"invalid space", "my table", false, "contains space"},
		{"invalid hyphen", "my-table", false, "contains hyphen"},
		{"invalid special char", "table$", false, "contains dollar sign"},
		{"invalid path separator", "table/name", false, "contains path separator"},
		{"invalid too long", strings.Repeat("a", 65), false, "exceeds 64 chars"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsValidIdentifier(tc.input)
			if got != tc.want {
				t.Errorf("IsValidIdentifier(%q) = %v; want %v. %s", tc.input, got, tc.want, tc.comment)
			}
		})
	}
}

func TestHasExplicitLimit(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    bool
		comment string
	}{
		{"plain select", "select * from orders", false, "no limit word"},
		{"trailing limit", "show top customers limit 5", true, ""},
		{"uppercase limit", "SELECT * FROM t LIMIT 10", true, ""},
		{"mixed case", "Limit the output to ten rows", true, "leading word counts"},
		{"limit inside word", "show unlimited plans", false, "substring must not match"},
		{"limitless", "list limitless accounts", false, "substring must not match"},
		{"limit with punctuation", "how many rows? limit: 3", true, "word boundary on colon"},
		{"empty", "", false, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := HasExplicitLimit(tc.input)
			if got != tc.want {
				t.Errorf("HasExplicitLimit(%q) = %v; want %v. %s", tc.input, got, tc.want, tc.comment)
			}
		})
	}
}

func TestIsValidHost(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  bool
	}{
		{"hostname", "db.internal.example.com", true},
		{"ip literal", "10.0.0.12", true},
		{"localhost", "localhost", true},
		{"empty", "", false},
		{"space", "db host", false},
		{"scheme smuggled in", "postgres://db", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidHost(tc.input); got != tc.want {
				t.Errorf("IsValidHost(%q) = %v; want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestIsValidPort(t *testing.T) {
	for _, tc := range []struct {
		port int
		want bool
	}{
		{5432, true}, {1, true}, {65535, true}, {0, false}, {-1, false}, {65536, false},
	} {
		if got := IsValidPort(tc.port); got != tc.want {
			t.Errorf("IsValidPort(%d) = %v; want %v", tc.port, got, tc.want)
		}
	}
}
