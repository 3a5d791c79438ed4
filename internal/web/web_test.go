package web

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubURLs map[string]string

func (s stubURLs) Reverse(name string, args ...any) (string, error) {
	pattern, ok := s[name]
	if !ok {
		return "", fmt.Errorf("no route %q", name)
	}
	return fmt.Sprintf(pattern, args...), nil
}

var urls = stubURLs{
	"task_list":   "/",
	"task_create": "/task/create/",
	"task_update": "/task/update/%v/",
	"task_delete": "/task/delete/%v/",
}

type task struct {
	ID          int64
	Title       string
	Description string
	Status      string
	Priority    int
	UpdatedAt   time.Time
}

func TestTemplateSet_Render(t *testing.T) {
	ts, err := NewTemplateSet(urls)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	err = ts.Render(w, http.StatusOK, PageTaskList, PageData{
		Title: "Tasks",
		Data: map[string]any{
			"Tasks":    []task{{ID: 7, Title: "<b>Write docs</b>", Status: "in_progress", Priority: 3}},
			"Status":   "",
			"Statuses": []string{"pending", "in_progress", "completed"},
		},
	})
	require.NoError(t, err)

	body := w.Body.String()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, body, `href="/task/update/7/"`)
	assert.Contains(t, body, `href="/task/delete/7/"`)
	assert.Contains(t, body, "&lt;b&gt;Write docs&lt;/b&gt;")
	assert.Contains(t, body, "In progress")
}

func TestTemplateSet_RenderErrors(t *testing.T) {
	ts, err := NewTemplateSet(urls)
	require.NoError(t, err)

	t.Run("unknown page", func(t *testing.T) {
		w := httptest.NewRecorder()
		assert.Error(t, ts.Render(w, http.StatusOK, "missing.html", PageData{}))
		assert.Zero(t, w.Body.Len())
	})

	t.Run("unresolvable url leaves response untouched", func(t *testing.T) {
		broken, err := NewTemplateSet(stubURLs{"task_create": "/task/create/"})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		assert.Error(t, broken.Render(w, http.StatusOK, PageNotFound, PageData{Title: "Not found"}))
		assert.Zero(t, w.Body.Len())
		assert.Empty(t, w.Header().Get("Content-Type"))
	})
}

func TestTemplateSet_ErrorHandler(t *testing.T) {
	ts, err := NewTemplateSet(urls)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	ts.ErrorHandler(PageNotFound, http.StatusNotFound, "Not found")(w, httptest.NewRequest(http.MethodGet, "/nope/", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Not found")
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "In progress", label("in_progress"))
	assert.Equal(t, "Pending", label("pending"))
	assert.Equal(t, "", label(""))
}
