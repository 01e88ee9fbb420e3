package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Version int64
	Name    string
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Migration
	Applied   bool
	AppliedAt time.Time
}

// Migrator applies the embedded schema with goose. A Postgres session lock
// keeps replicas that start together from racing on the same migration.
type Migrator struct {
	provider *goose.Provider
}

// NewMigrator prepares a goose provider over the embedded migrations.
func NewMigrator(db *sql.DB) (*Migrator, error) {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("migration lock: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Migrations lists the embedded migrations ordered by version.
func (m *Migrator) Migrations() []Migration {
	sources := m.provider.ListSources()
	result := make([]Migration, 0, len(sources))
	for _, src := range sources {
		result = append(result, migrationOf(src))
	}
	return result
}

// Up applies pending migrations and returns the names of those it ran.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	results, err := m.provider.Up(ctx)
	ran := make([]string, 0, len(results))
	for _, res := range results {
		if res.Error == nil {
			ran = append(ran, migrationOf(res.Source).Name)
		}
	}
	if err != nil {
		return ran, fmt.Errorf("apply migrations: %w", err)
	}
	return ran, nil
}

// Status reports every embedded migration against the goose version table.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	result := make([]MigrationStatus, 0, len(statuses))
	for _, st := range statuses {
		result = append(result, MigrationStatus{
			Migration: migrationOf(st.Source),
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return result, nil
}

// Migrate applies pending migrations and returns the names of those it ran.
func Migrate(ctx context.Context, db *sqlx.DB) ([]string, error) {
	m, err := NewMigrator(db.DB)
	if err != nil {
		return nil, err
	}
	return m.Up(ctx)
}

func migrationOf(src *goose.Source) Migration {
	return Migration{
		Version: src.Version,
		Name:    strings.TrimSuffix(path.Base(src.Path), ".sql"),
	}
}
