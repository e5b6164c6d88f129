// Package db opens the Postgres ledger database with GORM after bringing
// its schema up to date with golang-migrate.
package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open runs migrations and connects to the database
func Open(logger *logrus.Logger, config Config) (*gorm.DB, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Starting database setup")

	if err := RunMigrations(logger, config); err != nil {
		return nil, err
	}

	dsn, err := dsnFromURL(config.URL)
	if err != nil {
		return nil, err
	}

	logger.Debug("Establishing GORM database connection")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: NewGormLogrusLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	version, dirty, err := MigrationStatus(logger, config)
	if err != nil {
		return nil, err
	}
	if dirty {
		return nil, fmt.Errorf("database schema version %d is dirty", version)
	}

	logger.WithField("schema_version", version).Info("Database setup completed successfully")
	return db, nil
}
