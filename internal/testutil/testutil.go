// Package testutil provides databases and fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/repo"
	"github.com/BuzzLyutic/taskboard/internal/storage"
)

// SetupSQLite opens a fresh SQLite database in a temp dir with the schema applied.
func SetupSQLite(t *testing.T) repo.TaskRepository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tasks.db")
	store, err := storage.Open(context.Background(), "sqlite://"+path, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store.Repo
}

// SetupPostgres starts a Postgres container, applies the migrations and
// returns a pool. It skips under -short or when Docker is unavailable.
func SetupPostgres(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	if err := storage.MigratePostgres(connStr, zap.NewNop()); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	cleanup := func() {
		pool.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// TruncateTables empties every Postgres table.
func TruncateTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), "TRUNCATE tasks, idempotency_keys RESTART IDENTITY CASCADE")
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
}

// SeedTasks creates count pending tasks through r and returns their ids.
func SeedTasks(t *testing.T, r repo.TaskRepository, count int) []int64 {
	t.Helper()

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		task, err := r.Create(context.Background(), model.Task{
			Title:    fmt.Sprintf("Task %d", i+1),
			Status:   model.StatusPending,
			Priority: (i % 10) + 1,
		})
		if err != nil {
			t.Fatalf("Failed to seed task: %v", err)
		}
		ids = append(ids, task.ID)
	}
	return ids
}
