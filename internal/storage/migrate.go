package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL
)`

// Migrate applies every embedded migration for the store's dialect that has
// not been recorded in schema_migrations, in version order.
func (s *SQLStore) Migrate(ctx context.Context) error {
	dir := "migrations/postgres"
	if s.driver == DriverSQLite {
		dir = "migrations/sqlite"
	}
	source, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		return err
	}

	list, err := fs.ReadDir(source, ".")
	if err != nil {
		return err
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})

	if _, err := s.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, f := range list {
		name := f.Name()
		v, err := scriptVersion(name)
		if err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if v <= current {
			continue
		}

		script, err := fs.ReadFile(source, name)
		if err != nil {
			return err
		}

		log.Info().Str("migration", name).Msg("Applying schema migration")
		if err := s.applyMigration(ctx, v, name, string(script)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		current = v
	}

	return nil
}

func (s *SQLStore) schemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.GetContext(ctx, &v, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func (s *SQLStore) applyMigration(ctx context.Context, version int, name, script string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, CURRENT_TIMESTAMP)`),
		version, name,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// scriptVersion extracts the version from a file named like "0002_name.sql".
func scriptVersion(filename string) (int, error) {
	return strconv.Atoi(strings.SplitN(filename, "_", 2)[0])
}
