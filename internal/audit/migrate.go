package audit

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies every pending migration under migrationsDir (a
// "file://..." source URL) to the database at connString. It is idempotent:
// running it against an already-current schema is a no-op.
func Migrate(migrationsDir, connString string) error {
	m, err := migrate.New(migrationsDir, connString)
	if err != nil {
		return fmt.Errorf("audit: open migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("audit: apply migrations: %w", err)
	}
	return nil
}
