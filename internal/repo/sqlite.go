package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT    NOT NULL,
	description TEXT    NOT NULL DEFAULT '',
	status      TEXT    NOT NULL DEFAULT 'pending',
	priority    INTEGER NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	key         TEXT    PRIMARY KEY,
	resource_id INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
`

// SQLiteRepo stores tasks in SQLite. Timestamps are kept as unix nanoseconds.
type SQLiteRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{
		db:  db,
		now: time.Now,
	}
}

// Migrate creates the schema if it does not exist yet.
func (r *SQLiteRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (r *SQLiteRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	now := r.now().UnixNano()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (title, description, status, priority, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		RETURNING `+taskColumns,
		t.Title, t.Description, t.Status, t.Priority, now, now,
	)
	return scanSQLiteTask(row)
}

func (r *SQLiteRepo) Get(ctx context.Context, id int64) (model.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ?
	`, id)
	return scanSQLiteTask(row)
}

func (r *SQLiteRepo) List(ctx context.Context, filter model.TaskFilter, limit int) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE (?1 IS NULL OR status = ?1)
		ORDER BY created_at DESC, id DESC
		LIMIT ?2
	`, filter.Status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, limit)
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *SQLiteRepo) Update(ctx context.Context, t model.Task) (model.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, status = COALESCE(NULLIF(?, ''), status), priority = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND (? = 0 OR version = ?)
		RETURNING `+taskColumns,
		t.Title, t.Description, t.Status, t.Priority, r.now().UnixNano(),
		t.ID, t.Version, t.Version,
	)
	updated, err := scanSQLiteTask(row)
	if errors.Is(err, ErrorNotFound) {
		if _, getErr := r.Get(ctx, t.ID); getErr != nil {
			return t, getErr
		}
		return t, ErrorConflict
	}
	return updated, err
}

func (r *SQLiteRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepo) SaveIdempotencyKey(ctx context.Context, key string, resourceID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, resource_id, created_at) VALUES (?1, ?2, ?3)
		ON CONFLICT (key) DO UPDATE
		SET resource_id = excluded.resource_id, created_at = excluded.created_at
		WHERE NOT EXISTS (SELECT 1 FROM tasks WHERE id = idempotency_keys.resource_id)
	`, key, resourceID, r.now().UnixNano())
	return err
}

func (r *SQLiteRepo) GetIdempotencyKey(ctx context.Context, key string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		SELECT resource_id FROM idempotency_keys WHERE key = ?
	`, key).Scan(&id)
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	return id, nil
}

func (r *SQLiteRepo) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM idempotency_keys WHERE created_at < ?", before.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteRepo) GetStats(ctx context.Context) (model.Stats, error) {
	stats := newStats()

	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
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

func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (model.Task, error) {
	var (
		t                    model.Task
		createdAt, updatedAt int64
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Version, &createdAt, &updatedAt)
	if err != nil {
		return t, mapSQLiteError(err)
	}
	t.CreatedAt = time.Unix(0, createdAt).UTC()
	t.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return t, nil
}

// mapSQLiteError turns driver errors into the repository sentinels.
func mapSQLiteError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrorNotFound
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrorConflict
		}
	}
	return err
}
