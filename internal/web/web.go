// Package web renders the server-side pages with html/template. Templates are
// embedded and parsed once at startup; each page is a clone of the layout.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed templates/layouts/*.html
var layoutFS embed.FS

//go:embed templates/pages/*.html
var pageFS embed.FS

const layoutName = "base"

const (
	PageTaskList         = "task_list.html"
	PageTaskForm         = "task_form.html"
	PageTaskDelete       = "task_confirm_delete.html"
	PageNotFound         = "404.html"
	PageMethodNotAllowed = "405.html"
	PageServerError      = "500.html"
)

var pages = []string{PageTaskList, PageTaskForm, PageTaskDelete, PageNotFound, PageMethodNotAllowed, PageServerError}

// Reverser builds URLs for named routes.
type Reverser interface {
	Reverse(name string, args ...any) (string, error)
}

// PageData is passed to every page template.
type PageData struct {
	Title string
	Error string
	Data  any
}

type TemplateSet struct {
	pages map[string]*template.Template
}

// NewTemplateSet parses the layout and clones it for every page. The template
// function "url" reverses named routes through urls.
func NewTemplateSet(urls Reverser) (*TemplateSet, error) {
	funcs := template.FuncMap{
		"url":   urls.Reverse,
		"label": label,
	}

	layouts, err := template.New(layoutName).Funcs(funcs).ParseFS(layoutFS, "templates/layouts/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layouts: %w", err)
	}

	pageSub, err := fs.Sub(pageFS, "templates/pages")
	if err != nil {
		return nil, err
	}

	set := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		t, err := layouts.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layouts for %s: %w", p, err)
		}
		if _, err := t.ParseFS(pageSub, p); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", p, err)
		}
		set[p] = t
	}

	return &TemplateSet{pages: set}, nil
}

// Render writes the page with the given status. The page is executed into a
// buffer first so a template error never leaves a half-written response.
func (ts *TemplateSet) Render(w http.ResponseWriter, status int, page string, data PageData) error {
	t, ok := ts.pages[page]
	if !ok {
		return fmt.Errorf("template not found: %s", page)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, layoutName, data); err != nil {
		return fmt.Errorf("execute %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// ErrorHandler renders page with status, falling back to plain text.
func (ts *TemplateSet) ErrorHandler(page string, status int, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ts.Render(w, status, page, PageData{Title: title}); err != nil {
			http.Error(w, http.StatusText(status), status)
		}
	}
}

// label turns "in_progress" into "In progress".
func label(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
