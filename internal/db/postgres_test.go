package db_test

import (
	"context"
	"testing"

	"github.com/notifyhub/notification-pipeline/internal/config"
	"github.com/notifyhub/notification-pipeline/internal/db"
)

func TestMigrationURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/notify":   "pgx5://u:p@localhost:5432/notify",
		"postgresql://u:p@localhost:5432/notify": "pgx5://u:p@localhost:5432/notify",
		"pgx5://u:p@localhost:5432/notify":       "pgx5://u:p@localhost:5432/notify",
	}
	for in, want := range tests {
		if got := db.MigrationURL(in); got != want {
			t.Errorf("MigrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConnect_RequiresURL(t *testing.T) {
	if _, err := db.Connect(context.Background(), &config.Config{}); err == nil {
		t.Fatal("expected an error without DATABASE_URL")
	}
}
