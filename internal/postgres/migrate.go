package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/kirinyoku/cinetix/migrations"
)

// Migrate applies all pending schema migrations to the database at dsn.
func Migrate(dsn string) error {
	const op = "postgres.Migrate"

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// migrateURL swaps the postgres scheme for the one the pgx/v5 migrate driver
// registers.
func migrateURL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}
