package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000

	DefaultListLimit = 20
	MaxListLimit     = 100
)

type TaskService struct {
	repo repo.TaskRepository
}

func NewTaskService(repo repo.TaskRepository) *TaskService {
	return &TaskService{repo: repo}
}

// Create stores a new task. A non-empty idempKey that was seen before returns
// the task created for it instead of creating another one. If that task has
// since been deleted, a new one is created and the key is bound to it.
func (s *TaskService) Create(ctx context.Context, t model.Task, idempKey string) (model.Task, error) {
	t = normalize(t)
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	if err := s.validate(t); err != nil {
		return t, err
	}

	if idempKey != "" {
		existingID, err := s.repo.GetIdempotencyKey(ctx, idempKey)
		switch {
		case err == nil:
			existing, err := s.repo.Get(ctx, existingID)
			if !errors.Is(err, repo.ErrorNotFound) {
				return existing, err
			}
		case !errors.Is(err, repo.ErrorNotFound):
			return t, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return created, err
	}

	if idempKey != "" {
		if err := s.repo.SaveIdempotencyKey(ctx, idempKey, created.ID); err != nil {
			return created, fmt.Errorf("save idempotency key: %w", err)
		}
	}

	return created, nil
}

func (s *TaskService) Get(ctx context.Context, id int64) (model.Task, error) {
	return s.repo.Get(ctx, id)
}

func (s *TaskService) List(ctx context.Context, filter model.TaskFilter, limit int) ([]model.Task, error) {
	if filter.Status != nil && !model.ValidStatus(*filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *filter.Status)
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultListLimit
	}
	return s.repo.List(ctx, filter, limit)
}

// Update replaces the editable fields of the task with t.ID. An empty status
// keeps the stored one. When t.Version is set it must match the stored version.
func (s *TaskService) Update(ctx context.Context, t model.Task) (model.Task, error) {
	t = normalize(t)
	if err := s.validate(t); err != nil {
		return t, err
	}
	return s.repo.Update(ctx, t)
}

// Patch applies the fields present in p onto the stored task. The version is
// only checked when p carries one.
func (s *TaskService) Patch(ctx context.Context, id int64, p model.TaskPatch) (model.Task, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return current, err
	}
	t := p.Apply(current)
	if p.Version == nil {
		t.Version = 0
	}
	return s.Update(ctx, t)
}

func (s *TaskService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *TaskService) GetStats(ctx context.Context) (model.Stats, error) {
	return s.repo.GetStats(ctx)
}

func (s *TaskService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *TaskService) validate(t model.Task) error {
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(t.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", ErrValidation, MaxTitleLength)
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description must be at most %d characters", ErrValidation, MaxDescriptionLength)
	}
	if t.Priority < 1 || t.Priority > 10 {
		return fmt.Errorf("%w: priority must be between 1 and 10", ErrValidation)
	}
	if t.Status != "" && !model.ValidStatus(t.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, t.Status)
	}
	return nil
}

func normalize(t model.Task) model.Task {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	return t
}
