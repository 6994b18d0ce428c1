package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hrygo/speechcare/internal/profile"
	"github.com/hrygo/speechcare/internal/version"
	"github.com/hrygo/speechcare/store"
	"github.com/hrygo/speechcare/store/db"
)

// NewTestingStore returns a migrated store. SQLite in a temp dir by default;
// DRIVER=postgres runs the same tests against PostgreSQL.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	profile := getTestingProfile(t)
	dbDriver, err := db.NewDBDriver(profile)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	s := store.New(dbDriver, profile)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func getTestingProfile(t *testing.T) *profile.Profile {
	dir := t.TempDir()
	mode := "prod"
	driver := getDriverFromEnv()

	p := &profile.Profile{
		Mode:    mode,
		Data:    dir,
		Driver:  driver,
		Version: version.GetCurrentVersion(mode),
	}
	switch driver {
	case "sqlite":
		p.DSN = filepath.Join(dir, fmt.Sprintf("speechcare_%s.db", mode))
	case "postgres":
		p.DSN = GetPostgresDSN(t)
	}
	return p
}

func getDriverFromEnv() string {
	driver := os.Getenv("DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	return driver
}
