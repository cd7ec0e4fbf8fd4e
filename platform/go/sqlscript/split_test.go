package sqlscript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "semicolon inside single quotes",
			input:  "INSERT INTO t VALUES ('a;b'); INSERT INTO t VALUES ('c');",
			expect: []string{"INSERT INTO t VALUES ('a;b')", "INSERT INTO t VALUES ('c')"},
		},
		{
			name:   "semicolon inside double quotes",
			input:  `SELECT "x;y" FROM t; SELECT 1`,
			expect: []string{`SELECT "x;y" FROM t`, "SELECT 1"},
		},
		{
			name:   "comment lines removed",
			input:  "-- header; with semicolon\nCREATE TABLE a (id INT);\n   -- indented comment\nCREATE TABLE b (id INT);",
			expect: []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"},
		},
		{
			name:   "trailing statement without semicolon",
			input:  "SELECT 1;\nSELECT 2",
			expect: []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:   "empty statements discarded",
			input:  ";;  ;\nSELECT 1;;",
			expect: []string{"SELECT 1"},
		},
		{
			name:   "escaped quote keeps string open",
			input:  `INSERT INTO t VALUES ('it\'s;fine'); SELECT 2;`,
			expect: []string{`INSERT INTO t VALUES ('it\'s;fine')`, "SELECT 2"},
		},
		{
			name:   "other quote type does not close string",
			input:  `INSERT INTO t VALUES ('say "hi;" now'); SELECT 3`,
			expect: []string{`INSERT INTO t VALUES ('say "hi;" now')`, "SELECT 3"},
		},
		{
			name:   "only comments",
			input:  "-- nothing\n-- here;",
			expect: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expect, Split(tt.input))
		})
	}
}

func TestSplitCommentsDoNotChangeCount(t *testing.T) {
	t.Parallel()

	plain := "CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);"
	commented := "-- a\nCREATE TABLE a (id INT);\n-- b\n-- still b\nCREATE TABLE b (id INT);"

	require.Len(t, Split(commented), len(Split(plain)))
}
