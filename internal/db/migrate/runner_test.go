package migrate

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"transcendence/backend/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		err := Run(dsn, "up")
		if !errors.Is(err, db.ErrEmptyDSN) {
			t.Errorf("Run(%q) = %v, want ErrEmptyDSN", dsn, err)
		}
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "invalid", "UP", "Down", "both"} {
		t.Run(direction, func(t *testing.T) {
			err := Run("postgres://localhost/test", direction)
			if err == nil {
				t.Fatalf("Run with direction %q should return error", direction)
			}
			if !strings.Contains(err.Error(), "direction") {
				t.Errorf("error %q should mention direction", err)
			}
		})
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "://localhost/test", "postgres://localhost with spaces/test"} {
		if err := Run(dsn, "up"); err == nil {
			t.Errorf("Run with invalid DSN %q should return error", dsn)
		}
	}
}

func TestVersion_EmptyDSN(t *testing.T) {
	if _, _, _, err := Version(""); !errors.Is(err, db.ErrEmptyDSN) {
		t.Fatalf("Version empty DSN: %v", err)
	}
}

func TestMigrationFS_Pairs(t *testing.T) {
	ups, err := fs.Glob(db.MigrationFS, "migrations/*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no up migrations embedded")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(db.MigrationFS, down); err != nil {
			t.Errorf("%s has no matching down migration", up)
		}
	}
}
