package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// RunMigrations executes database migrations
func RunMigrations(logger *logrus.Logger, config Config) error {
	dir, err := config.migrationsDir()
	if err != nil {
		return err
	}
	migrationsPath := migrationsSource(dir)

	logger.WithFields(logrus.Fields{
		"migrations_path": migrationsPath,
	}).Debug("Running database migrations")

	m, err := migrate.New(migrationsPath, config.URL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// MigrationStatus returns the current migration version and dirty state
func MigrationStatus(logger *logrus.Logger, config Config) (uint, bool, error) {
	logger.Debug("Checking migration status")

	dir, err := config.migrationsDir()
	if err != nil {
		return 0, false, err
	}

	m, err := migrate.New(migrationsSource(dir), config.URL)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Debug("Migration status retrieved")

	return version, dirty, nil
}
