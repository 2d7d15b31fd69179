package postgres

import "testing"

func TestStatementKind(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT 1", "select"},
		{"\n\t\tINSERT INTO zones (zone_id) VALUES ($1)", "insert"},
		{"update alerts SET status = $1", "update"},
		{"CREATE TABLE IF NOT EXISTS x (id TEXT)", "create"},
		{"WITH t AS (SELECT 1) SELECT * FROM t", "other"},
		{"   ", "other"},
	}
	for _, tt := range tests {
		if got := statementKind(tt.sql); got != tt.want {
			t.Errorf("statementKind(%q) = %q, want %q", tt.sql, got, tt.want)
		}
	}
}
