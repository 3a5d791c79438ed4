package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/repo"
	"github.com/BuzzLyutic/taskboard/internal/routes"
	"github.com/BuzzLyutic/taskboard/internal/service"
	"github.com/BuzzLyutic/taskboard/internal/web"
)

const defaultFormPriority = 5

// PageHandler serves the HTML views: task_list, task_create, task_update and task_delete.
type PageHandler struct {
	service   *service.TaskService
	templates *web.TemplateSet
	urls      Reverser
	logger    *zap.Logger
}

func NewPageHandler(srv *service.TaskService, templates *web.TemplateSet, urls Reverser, logger *zap.Logger) *PageHandler {
	return &PageHandler{
		service:   srv,
		templates: templates,
		urls:      urls,
		logger:    logger,
	}
}

type listData struct {
	Tasks    []model.Task
	Status   string
	Statuses []string
}

type formData struct {
	Action   string
	Submit   string
	Token    string
	Task     model.Task
	Statuses []string
}

func (h *PageHandler) TaskList(w http.ResponseWriter, r *http.Request) {
	var filter model.TaskFilter
	status := r.URL.Query().Get("status")
	if model.ValidStatus(status) {
		filter.Status = &status
	} else {
		status = ""
	}

	tasks, err := h.service.List(r.Context(), filter, service.MaxListLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, web.PageTaskList, web.PageData{
		Title: "Tasks",
		Data:  listData{Tasks: tasks, Status: status, Statuses: model.Statuses},
	})
}

func (h *PageHandler) NewTaskForm(w http.ResponseWriter, r *http.Request) {
	h.renderCreateForm(w, r, http.StatusOK, model.Task{
		Status:   model.StatusPending,
		Priority: defaultFormPriority,
	}, uuid.NewString(), "")
}

// CreateTask handles the create form. The form token doubles as an
// idempotency key, so submitting the same form twice creates one task.
func (h *PageHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	task, err := parseTaskForm(r)
	token := r.PostFormValue("token")
	if _, parseErr := uuid.Parse(token); parseErr != nil {
		token = uuid.NewString()
	}
	if err != nil {
		h.renderCreateForm(w, r, http.StatusBadRequest, task, token, err.Error())
		return
	}

	if _, err := h.service.Create(r.Context(), task, "form:"+token); err != nil {
		if errors.Is(err, service.ErrValidation) {
			h.renderCreateForm(w, r, http.StatusBadRequest, task, token, err.Error())
			return
		}
		h.fail(w, r, err)
		return
	}

	h.redirect(w, r, "task_list")
}

func (h *PageHandler) EditTaskForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderUpdateForm(w, r, http.StatusOK, task, "")
}

func (h *PageHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}

	task, err := parseTaskForm(r)
	task.ID = id
	if err != nil {
		h.renderUpdateForm(w, r, http.StatusBadRequest, task, err.Error())
		return
	}

	if _, err := h.service.Update(r.Context(), task); err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			h.renderUpdateForm(w, r, http.StatusBadRequest, task, err.Error())
		case errors.Is(err, repo.ErrorConflict):
			h.renderUpdateForm(w, r, http.StatusConflict, task,
				"This task was changed by someone else. Reload the page to see the latest version.")
		default:
			h.fail(w, r, err)
		}
		return
	}

	h.redirect(w, r, "task_list")
}

func (h *PageHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, web.PageTaskDelete, web.PageData{Title: "Delete task", Data: task})
}

func (h *PageHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirect(w, r, "task_list")
}

// NotFound renders the 404 page.
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, web.PageNotFound, web.PageData{Title: "Not found"})
}

func (h *PageHandler) renderCreateForm(w http.ResponseWriter, r *http.Request, status int, task model.Task, token, msg string) {
	action, _ := h.urls.Reverse("task_create")
	h.render(w, r, status, web.PageTaskForm, web.PageData{
		Title: "New task",
		Error: msg,
		Data:  formData{Action: action, Submit: "Create", Token: token, Task: task, Statuses: model.Statuses},
	})
}

func (h *PageHandler) renderUpdateForm(w http.ResponseWriter, r *http.Request, status int, task model.Task, msg string) {
	action, _ := h.urls.Reverse("task_update", task.ID)
	h.render(w, r, status, web.PageTaskForm, web.PageData{
		Title: "Edit task",
		Error: msg,
		Data:  formData{Action: action, Submit: "Save", Task: task, Statuses: model.Statuses},
	})
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data web.PageData) {
	if err := h.templates.Render(w, status, page, data); err != nil {
		h.logger.Error("render page", zap.String("page", page), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *PageHandler) redirect(w http.ResponseWriter, r *http.Request, name string) {
	target, err := h.urls.Reverse(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *PageHandler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := routes.ID(r)
	if err != nil {
		h.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (h *PageHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repo.ErrorNotFound) {
		h.NotFound(w, r)
		return
	}
	h.logger.Error("page error", zap.Error(err), zap.String("path", r.URL.Path))
	h.render(w, r, http.StatusInternalServerError, web.PageServerError, web.PageData{Title: "Server error"})
}

// parseTaskForm reads the task fields from a submitted form. The returned task
// holds whatever was parsed so the form can be shown again on error.
func parseTaskForm(r *http.Request) (model.Task, error) {
	if err := r.ParseForm(); err != nil {
		return model.Task{}, fmt.Errorf("%w: malformed form", service.ErrValidation)
	}

	task := model.Task{
		Title:       r.PostForm.Get("title"),
		Description: r.PostForm.Get("description"),
		Status:      r.PostForm.Get("status"),
	}

	if v := strings.TrimSpace(r.PostForm.Get("version")); v != "" {
		version, err := strconv.Atoi(v)
		if err != nil {
			return task, fmt.Errorf("%w: version must be a number", service.ErrValidation)
		}
		task.Version = version
	}

	priority, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("priority")))
	if err != nil {
		return task, fmt.Errorf("%w: priority must be a number", service.ErrValidation)
	}
	task.Priority = priority

	return task, nil
}
