package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

const taskColumns = "id, title, description, status, priority, version, created_at, updated_at"

// TaskRepo stores tasks in Postgres.
type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{
		pool: pool,
	}
}

func (r *TaskRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (title, description, status, priority)
		VALUES ($1, $2, $3, $4)
		RETURNING `+taskColumns,
		t.Title, t.Description, t.Status, t.Priority,
	).Scan(scanTargets(&t)...)
	return t, r.mapError(err)
}

func (r *TaskRepo) Get(ctx context.Context, id int64) (model.Task, error) {
	var t model.Task
	err := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id).Scan(scanTargets(&t)...)
	return t, r.mapError(err)
}

func (r *TaskRepo) List(ctx context.Context, filter model.TaskFilter, limit int) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, filter.Status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, limit)
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(scanTargets(&t)...); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepo) Update(ctx context.Context, t model.Task) (model.Task, error) {
	err := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, status = COALESCE(NULLIF($4, ''), status), priority = $5,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND ($6 = 0 OR version = $6)
		RETURNING `+taskColumns,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.Version,
	).Scan(scanTargets(&t)...)

	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, t.ID); getErr != nil {
			return t, getErr
		}
		return t, ErrorConflict
	}
	return t, r.mapError(err)
}

func (r *TaskRepo) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

func (r *TaskRepo) SaveIdempotencyKey(ctx context.Context, key string, resourceID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key, resource_id) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET resource_id = EXCLUDED.resource_id, created_at = now()
		WHERE NOT EXISTS (SELECT 1 FROM tasks WHERE id = idempotency_keys.resource_id)
	`, key, resourceID)
	return err
}

func (r *TaskRepo) GetIdempotencyKey(ctx context.Context, key string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		SELECT resource_id FROM idempotency_keys WHERE key = $1
	`, key).Scan(&id)
	return id, r.mapError(err)
}

func (r *TaskRepo) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM idempotency_keys WHERE created_at < $1", before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *TaskRepo) GetStats(ctx context.Context) (model.Stats, error) {
	stats := newStats()

	rows, err := r.pool.Query(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.ByStatus[status] = count
		stats.TotalTasks += count
	}
	return stats, rows.Err()
}

func (r *TaskRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// mapError turns driver errors into the repository sentinels.
func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return ErrorConflict
		}
	}
	return err
}

func scanTargets(t *model.Task) []any {
	return []any{&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Version, &t.CreatedAt, &t.UpdatedAt}
}
