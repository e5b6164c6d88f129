package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lib/pq"
)

// Config locates the database and its migrations.
type Config struct {
	// URL is a postgres:// connection URL
	URL string

	// MigrationsDir holds the golang-migrate files, <project root>/migrations when empty
	MigrationsDir string
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if _, err := pq.ParseURL(c.URL); err != nil {
		return fmt.Errorf("invalid database URL: %w", err)
	}
	return nil
}

// findProjectRoot looks for go.mod file to determine project root
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// migrationsDir resolves the migrations directory, falling back to the
// project root when none is configured.
func (c Config) migrationsDir() (string, error) {
	if c.MigrationsDir != "" {
		return filepath.Abs(c.MigrationsDir)
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	return filepath.Join(projectRoot, "migrations"), nil
}

// migrationsSource returns the golang-migrate source URL for dir
func migrationsSource(dir string) string {
	return fmt.Sprintf("file://%s", filepath.ToSlash(dir))
}

// dsnFromURL converts a connection URL into the key=value DSN GORM expects
func dsnFromURL(url string) (string, error) {
	dsn, err := pq.ParseURL(url)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}
	return dsn, nil
}
