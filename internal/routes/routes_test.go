package routes

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a ViewSet that writes the action name and id it was called with.
type recorder struct{}

func (recorder) write(w http.ResponseWriter, r *http.Request, action string) {
	id := ""
	if n, err := ID(r); err == nil {
		id = strconv.FormatInt(n, 10)
	}
	fmt.Fprintf(w, "%s:%s", action, id)
}

func (v recorder) List(w http.ResponseWriter, r *http.Request)          { v.write(w, r, "list") }
func (v recorder) Create(w http.ResponseWriter, r *http.Request)        { v.write(w, r, "create") }
func (v recorder) Retrieve(w http.ResponseWriter, r *http.Request)      { v.write(w, r, "retrieve") }
func (v recorder) Update(w http.ResponseWriter, r *http.Request)        { v.write(w, r, "update") }
func (v recorder) PartialUpdate(w http.ResponseWriter, r *http.Request) { v.write(w, r, "partial_update") }
func (v recorder) Destroy(w http.ResponseWriter, r *http.Request)       { v.write(w, r, "destroy") }

func named(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if n, err := ID(r); err == nil {
			id = strconv.FormatInt(n, 10)
		}
		fmt.Fprintf(w, "%s:%s", name, id)
	}
}

func newTaskTable(t *testing.T) *Table {
	t.Helper()

	table := New()
	id := "{" + IDParam + ":" + IDPattern + "}"
	require.NoError(t, table.Add("task_list", "/", Actions{http.MethodGet: named("task_list")}))
	require.NoError(t, table.Add("task_create", "/task/create/", Actions{
		http.MethodGet:  named("task_create"),
		http.MethodPost: named("task_create"),
	}))
	require.NoError(t, table.Add("task_update", "/task/update/"+id+"/", Actions{
		http.MethodGet:  named("task_update"),
		http.MethodPost: named("task_update"),
	}))
	require.NoError(t, table.Add("task_delete", "/task/delete/"+id+"/", Actions{
		http.MethodGet:  named("task_delete"),
		http.MethodPost: named("task_delete"),
	}))
	require.NoError(t, table.Register("api/tasks", "task", recorder{}))
	return table
}

func TestTable_Resolve(t *testing.T) {
	table := newTaskTable(t)

	tests := []struct {
		method   string
		path     string
		wantName string
		wantID   string
		wantOK   bool
	}{
		{http.MethodGet, "/", "task_list", "", true},
		{http.MethodPost, "/task/create/", "task_create", "", true},
		{http.MethodPost, "/task/update/42/", "task_update", "42", true},
		{http.MethodPost, "/task/update/0/", "task_update", "0", true},
		{http.MethodPost, "/task/update/abc/", "", "", false},
		{http.MethodPost, "/task/update/4a/", "", "", false},
		{http.MethodPost, "/task/update//", "", "", false},
		{http.MethodGet, "/task/delete/7/", "task_delete", "7", true},
		{http.MethodGet, "/task/delete/x/", "", "", false},
		{http.MethodGet, "/api/tasks/", "task-list", "", true},
		{http.MethodPost, "/api/tasks/", "task-list", "", true},
		{http.MethodGet, "/api/tasks/7/", "task-detail", "7", true},
		{http.MethodPut, "/api/tasks/7/", "task-detail", "7", true},
		{http.MethodPatch, "/api/tasks/7/", "task-detail", "7", true},
		{http.MethodDelete, "/api/tasks/7/", "task-detail", "7", true},
		{http.MethodPut, "/api/tasks/", "", "", false},
		{http.MethodPost, "/api/tasks/7/", "", "", false},
		{http.MethodGet, "/api/tasks", "", "", false},
		{http.MethodGet, "/missing/", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			match, ok := table.Resolve(tt.method, tt.path)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantName, match.Name)
				assert.Equal(t, tt.wantID, match.Params[IDParam])
			}
		})
	}
}

func TestTable_ResolveAnyInteger(t *testing.T) {
	table := newTaskTable(t)

	for _, n := range []int64{0, 1, 9, 10, 42, 1 << 20, 9223372036854775807} {
		for _, name := range []string{"task_update", "task_delete"} {
			path, err := table.Reverse(name, n)
			require.NoError(t, err)

			match, ok := table.Resolve(http.MethodPost, path)
			require.True(t, ok, path)
			assert.Equal(t, name, match.Name)
			assert.Equal(t, strconv.FormatInt(n, 10), match.Params[IDParam])
		}
	}
}

func TestTable_EveryRouteResolvesToItself(t *testing.T) {
	table := newTaskTable(t)

	for _, route := range table.Routes() {
		var args []any
		for _, s := range route.segments {
			if s.param != "" {
				args = append(args, 12)
			}
		}

		path, err := table.Reverse(route.Name, args...)
		require.NoError(t, err, route.Name)

		for _, method := range route.Methods() {
			match, ok := table.Resolve(method, path)
			require.True(t, ok, "%s %s", method, path)
			assert.Equal(t, route.Name, match.Name, "%s %s", method, path)
			if len(args) > 0 {
				assert.Equal(t, "12", match.Params[IDParam])
			}
		}
	}
}

func TestTable_Reverse(t *testing.T) {
	table := newTaskTable(t)

	tests := []struct {
		name    string
		args    []any
		want    string
		wantErr bool
	}{
		{name: "task_list", want: "/"},
		{name: "task_create", want: "/task/create/"},
		{name: "task_update", args: []any{42}, want: "/task/update/42/"},
		{name: "task_delete", args: []any{"7"}, want: "/task/delete/7/"},
		{name: "task-list", want: "/api/tasks/"},
		{name: "task-detail", args: []any{int64(3)}, want: "/api/tasks/3/"},
		{name: "task_update", wantErr: true},
		{name: "task_update", args: []any{"abc"}, wantErr: true},
		{name: "task_update", args: []any{-1}, wantErr: true},
		{name: "task_update", args: []any{1, 2}, wantErr: true},
		{name: "task_list", args: []any{1}, wantErr: true},
		{name: "unknown", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s%v", tt.name, tt.args), func(t *testing.T) {
			got, err := table.Reverse(tt.name, tt.args...)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoReverse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTable_Add(t *testing.T) {
	h := named("x")

	t.Run("duplicate name", func(t *testing.T) {
		table := New()
		require.NoError(t, table.Add("a", "/a/", Actions{http.MethodGet: h}))
		assert.ErrorIs(t, table.Add("a", "/b/", Actions{http.MethodGet: h}), ErrDuplicateName)
	})

	t.Run("duplicate pattern", func(t *testing.T) {
		table := New()
		require.NoError(t, table.Add("a", "/a/", Actions{http.MethodGet: h}))
		assert.ErrorIs(t, table.Add("b", "/a/", Actions{http.MethodPost: h}), ErrInvalidRoute)
	})

	invalid := []struct {
		name    string
		route   string
		pattern string
		actions Actions
	}{
		{"empty name", "", "/a/", Actions{http.MethodGet: h}},
		{"relative pattern", "a", "a/", Actions{http.MethodGet: h}},
		{"no actions", "a", "/a/", Actions{}},
		{"nil handler", "a", "/a/", Actions{http.MethodGet: nil}},
		{"unbalanced", "a", "/a/{id/", Actions{http.MethodGet: h}},
		{"bad regexp", "a", "/a/{id:[0-9}/", Actions{http.MethodGet: h}},
		{"empty param", "a", "/a/{}/", Actions{http.MethodGet: h}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, New().Add(tt.route, tt.pattern, tt.actions), ErrInvalidRoute)
		})
	}

	t.Run("register twice", func(t *testing.T) {
		table := New()
		require.NoError(t, table.Register("api/tasks", "task", recorder{}))
		assert.ErrorIs(t, table.Register("/api/tasks/", "task", recorder{}), ErrDuplicateName)
	})
}

func TestTable_RoutesAreUnique(t *testing.T) {
	table := newTaskTable(t)

	names := map[string]bool{}
	for _, r := range table.Routes() {
		assert.False(t, names[r.Name], r.Name)
		names[r.Name] = true
	}
	assert.Len(t, names, 6)

	detail := table.Routes()[5]
	assert.Equal(t, "task-detail", detail.Name)
	assert.Equal(t, []string{http.MethodDelete, http.MethodGet, http.MethodPatch, http.MethodPut}, detail.Methods())
}

func TestTable_Handler(t *testing.T) {
	table := newTaskTable(t)
	h := table.Handler(Options{
		NotFound: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "custom not found", http.StatusNotFound)
		},
	})

	tests := []struct {
		method       string
		target       string
		wantCode     int
		wantBody     string
		wantLocation string
	}{
		{http.MethodGet, "/", http.StatusOK, "task_list:", ""},
		{http.MethodPost, "/task/create/", http.StatusOK, "task_create:", ""},
		{http.MethodPost, "/task/update/42/", http.StatusOK, "task_update:42", ""},
		{http.MethodPost, "/task/update/abc/", http.StatusNotFound, "custom not found\n", ""},
		{http.MethodGet, "/api/tasks/", http.StatusOK, "list:", ""},
		{http.MethodPost, "/api/tasks/", http.StatusOK, "create:", ""},
		{http.MethodGet, "/api/tasks/7/", http.StatusOK, "retrieve:7", ""},
		{http.MethodPut, "/api/tasks/7/", http.StatusOK, "update:7", ""},
		{http.MethodPatch, "/api/tasks/7/", http.StatusOK, "partial_update:7", ""},
		{http.MethodDelete, "/api/tasks/7/", http.StatusOK, "destroy:7", ""},
		{http.MethodDelete, "/api/tasks/", http.StatusMethodNotAllowed, "", ""},
		{http.MethodGet, "/api/tasks/7?x=1", http.StatusMovedPermanently, "", "/api/tasks/7/?x=1"},
		{http.MethodHead, "/api/tasks", http.StatusMovedPermanently, "", "/api/tasks/"},
		{http.MethodPatch, "/api/tasks/7", http.StatusPermanentRedirect, "", "/api/tasks/7/"},
		{http.MethodGet, "/api/tasks/abc", http.StatusNotFound, "custom not found\n", ""},
		{http.MethodGet, "/static/app.js", http.StatusNotFound, "custom not found\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				body, _ := io.ReadAll(w.Body)
				assert.Equal(t, tt.wantBody, string(body))
			}
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
			}
		})
	}
}

func TestParsePattern(t *testing.T) {
	segments, err := parsePattern("/a/{id:[0-9]{1,3}}/b/{slug}/")
	require.NoError(t, err)
	require.Len(t, segments, 5)

	assert.Equal(t, "/a/", segments[0].literal)
	assert.Equal(t, "id", segments[1].param)
	assert.True(t, segments[1].re.MatchString("123"))
	assert.False(t, segments[1].re.MatchString("1234"))
	assert.Equal(t, "/b/", segments[2].literal)
	assert.Equal(t, "slug", segments[3].param)
	assert.Nil(t, segments[3].re)
	assert.Equal(t, "/", segments[4].literal)
}
