package repo

import (
	"context"
	"errors"
	"time"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
)

// TaskRepository is the storage contract shared by the Postgres and SQLite backends.
//
// Update compares versions only when t.Version > 0. A version mismatch on an
// existing task is ErrorConflict, a missing task is ErrorNotFound.
//
// SaveIdempotencyKey keeps an existing key unless the task it points to is gone.
type TaskRepository interface {
	Create(ctx context.Context, t model.Task) (model.Task, error)
	Get(ctx context.Context, id int64) (model.Task, error)
	List(ctx context.Context, filter model.TaskFilter, limit int) ([]model.Task, error)
	Update(ctx context.Context, t model.Task) (model.Task, error)
	Delete(ctx context.Context, id int64) error
	SaveIdempotencyKey(ctx context.Context, key string, resourceID int64) error
	GetIdempotencyKey(ctx context.Context, key string) (int64, error)
	PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error)
	GetStats(ctx context.Context) (model.Stats, error)
	Ping(ctx context.Context) error
}

func newStats() model.Stats {
	stats := model.Stats{ByStatus: make(map[string]int, len(model.Statuses))}
	for _, s := range model.Statuses {
		stats.ByStatus[s] = 0
	}
	return stats
}
