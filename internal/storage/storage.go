// Package storage opens the task repository named by a database URL and
// brings its schema up to date.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/BuzzLyutic/taskboard/internal/repo"
	"github.com/BuzzLyutic/taskboard/migrations"
)

var ErrUnsupportedURL = errors.New("unsupported database url")

// Store is an opened repository together with the function that releases it.
type Store struct {
	Repo    repo.TaskRepository
	Backend string
	close   func() error
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to the database behind databaseURL. Postgres URLs
// (postgres://, postgresql://) are migrated with golang-migrate, SQLite URLs
// (sqlite://path, file:path) get their schema applied in place.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return openPostgres(ctx, databaseURL, logger)
	case strings.HasPrefix(databaseURL, "sqlite://"), strings.HasPrefix(databaseURL, "file:"):
		return openSQLite(ctx, sqlitePath(databaseURL), logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, redact(databaseURL))
	}
}

func openPostgres(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if err := MigratePostgres(databaseURL, logger); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("connected to database", zap.String("backend", "postgres"))
	return &Store{
		Repo:    repo.NewTaskRepo(pool),
		Backend: "postgres",
		close: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

// MigratePostgres applies the embedded migrations to the database at databaseURL.
func MigratePostgres(databaseURL string, logger *zap.Logger) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("database schema up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("database migrated", zap.Uint("version", version))
	return nil
}

func openSQLite(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps in-memory databases alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	r := repo.NewSQLiteRepo(db)
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	logger.Info("connected to database", zap.String("backend", "sqlite"), zap.String("path", path))
	return &Store{
		Repo:    r,
		Backend: "sqlite",
		close:   db.Close,
	}, nil
}

// migrateURL rewrites a postgres URL to the scheme the golang-migrate pgx/v5 driver registers.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func sqlitePath(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "sqlite://") {
		return strings.TrimPrefix(databaseURL, "sqlite://")
	}
	return databaseURL
}

// redact drops everything after the scheme so credentials never reach logs.
func redact(databaseURL string) string {
	if i := strings.Index(databaseURL, "://"); i >= 0 {
		return databaseURL[:i+3] + "..."
	}
	if len(databaseURL) > 8 {
		return databaseURL[:8] + "..."
	}
	return databaseURL
}
