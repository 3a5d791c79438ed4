// Package server assembles the route table for the tasks application and the
// HTTP handler that serves it.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/handler"
	"github.com/BuzzLyutic/taskboard/internal/logger"
	"github.com/BuzzLyutic/taskboard/internal/routes"
	"github.com/BuzzLyutic/taskboard/internal/service"
	"github.com/BuzzLyutic/taskboard/internal/web"
	"github.com/BuzzLyutic/taskboard/pkg/respond"
)

const apiPrefix = "/api/"

type Config struct {
	MaxBodyBytes int64
}

type Server struct {
	Routes  *routes.Table
	handler http.Handler
}

// New builds the route table:
//
//	/                       task_list    GET
//	/task/create/           task_create  GET, POST
//	/task/update/{id}/      task_update  GET, POST
//	/task/delete/{id}/      task_delete  GET, POST
//	/api/tasks/             task-list    GET, POST
//	/api/tasks/{id}/        task-detail  GET, PUT, PATCH, DELETE
//	/api/stats/             task_stats   GET
//	/health                 health       GET
func New(svc *service.TaskService, log *zap.Logger, cfg Config) (*Server, error) {
	table := routes.New()

	templates, err := web.NewTemplateSet(table)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	pages := handler.NewPageHandler(svc, templates, table, log)
	api := handler.NewTaskHandler(svc, table, log)

	id := "{" + routes.IDParam + ":" + routes.IDPattern + "}"
	table.MustAdd("task_list", "/", routes.Actions{
		http.MethodGet: pages.TaskList,
	})
	table.MustAdd("task_create", "/task/create/", routes.Actions{
		http.MethodGet:  pages.NewTaskForm,
		http.MethodPost: pages.CreateTask,
	})
	table.MustAdd("task_update", "/task/update/"+id+"/", routes.Actions{
		http.MethodGet:  pages.EditTaskForm,
		http.MethodPost: pages.UpdateTask,
	})
	table.MustAdd("task_delete", "/task/delete/"+id+"/", routes.Actions{
		http.MethodGet:  pages.ConfirmDelete,
		http.MethodPost: pages.DeleteTask,
	})
	if err := table.Register("api/tasks", "task", api); err != nil {
		return nil, err
	}
	table.MustAdd("task_stats", "/api/stats/", routes.Actions{
		http.MethodGet: api.Stats,
	})
	table.MustAdd("health", "/health", routes.Actions{
		http.MethodGet: api.Health,
	})

	methodNotAllowedPage := templates.ErrorHandler(web.PageMethodNotAllowed, http.StatusMethodNotAllowed, "Method not allowed")

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		logger.Middleware(log),
		middleware.Recoverer,
		middleware.GetHead,
	}
	if cfg.MaxBodyBytes > 0 {
		middlewares = append(middlewares, middleware.RequestSize(cfg.MaxBodyBytes))
	}

	h := table.Handler(routes.Options{
		Middlewares: middlewares,
		NotFound: func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, apiPrefix) {
				respond.Error(w, r, http.StatusNotFound, "not found")
				return
			}
			pages.NotFound(w, r)
		},
		MethodNotAllowed: func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, apiPrefix) {
				respond.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			methodNotAllowedPage(w, r)
		},
	})

	return &Server{Routes: table, handler: h}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
