package db

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestMigrateDSN(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"postgres://u:p@h:5432/db", "pgx5://u:p@h:5432/db"},
		{"postgresql://u@h/db", "pgx5://u@h/db"},
		{"pgx5://already/translated", "pgx5://already/translated"},
	}
	for _, tc := range cases {
		if got := migrateDSN(tc.in); got != tc.want {
			t.Fatalf("migrateDSN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired migrations, got %d up / %d down", ups, downs)
	}
}

func TestTextHelpers(t *testing.T) {
	t.Parallel()

	if got := StringToText("  "); got.Valid {
		t.Fatalf("blank string should map to NULL")
	}
	if got := StringToText(" 42 "); !got.Valid || got.String != "42" {
		t.Fatalf("unexpected text: %#v", got)
	}
	if got := TextToString(pgtype.Text{}); got != "" {
		t.Fatalf("NULL should map to empty string, got %q", got)
	}
}
