package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/repo"
	"github.com/BuzzLyutic/taskboard/internal/routes"
	"github.com/BuzzLyutic/taskboard/internal/service"
	"github.com/BuzzLyutic/taskboard/pkg/respond"
)

// Reverser builds paths for named routes.
type Reverser interface {
	Reverse(name string, args ...any) (string, error)
}

// TaskHandler is the REST controller for tasks. It implements routes.ViewSet.
type TaskHandler struct {
	service *service.TaskService
	urls    Reverser
	logger  *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, urls Reverser, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		urls:    urls,
		logger:  logger,
	}
}

var _ routes.ViewSet = (*TaskHandler)(nil)

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter model.TaskFilter
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = &status
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	tasks, err := h.service.List(r.Context(), filter, limit)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, tasks)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.Task
	if !h.decode(w, r, &req) {
		return
	}

	idempKey := r.Header.Get("Idempotency-Key")
	task, err := h.service.Create(r.Context(), req, idempKey)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	if location, err := h.urls.Reverse("task-detail", task.ID); err == nil {
		w.Header().Set("Location", location)
	}
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}

	var req model.Task
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = id

	task, err := h.service.Update(r.Context(), req)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) PartialUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}

	var patch model.TaskPatch
	if !h.decode(w, r, &patch) {
		return
	}

	task, err := h.service.Patch(r.Context(), id, patch)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.NoContent(w)
}

func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, stats)
}

func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		respond.JSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// id reads the item identifier. Route patterns only admit digits, so a parse
// failure here means the value overflowed and no such task can exist.
func (h *TaskHandler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := routes.ID(r)
	if err != nil {
		respond.Error(w, r, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}

func (h *TaskHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
	case errors.As(err, &maxErr):
		respond.Error(w, r, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		h.logger.Debug("failed to decode json", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, "invalid json: "+err.Error())
	}
	return false
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, repo.ErrorConflict):
		respond.Error(w, r, http.StatusConflict, "conflict: task was modified, reload and retry")
	case errors.Is(err, service.ErrValidation):
		respond.Error(w, r, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("internal error", zap.Error(err), zap.String("path", r.URL.Path))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
