package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
)

// RunMigrations applies every pending migration from sourceURL
// (file://migrations by default).
func RunMigrations(databaseURL, sourceURL string, log zerolog.Logger) error {
	return withMigrate(databaseURL, sourceURL, log, func(m *migrate.Migrate) error {
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("schema up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logVersion(m, log, "schema migrated")
		return nil
	})
}

// RunMigrationsDown rolls back the most recent migration.
func RunMigrationsDown(databaseURL, sourceURL string, log zerolog.Logger) error {
	return withMigrate(databaseURL, sourceURL, log, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("roll back migration: %w", err)
		}
		logVersion(m, log, "schema rolled back")
		return nil
	})
}

func withMigrate(databaseURL, sourceURL string, log zerolog.Logger, fn func(*migrate.Migrate) error) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations %s: %w", sourceURL, err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			log.Warn().Err(err).Msg("close migrator")
		}
	}()
	return fn(m)
}

func logVersion(m *migrate.Migrate, log zerolog.Logger, msg string) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info().Msg(msg + ", no migrations applied")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("read schema version")
		return
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg(msg)
}
