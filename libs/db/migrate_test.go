package db

import "testing"

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/app?sslmode=disable":   "pgx5://u:p@localhost:5432/app?sslmode=disable",
		"postgresql://u:p@localhost:5432/app?sslmode=disable": "pgx5://u:p@localhost:5432/app?sslmode=disable",
		"pgx5://already": "pgx5://already",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}
