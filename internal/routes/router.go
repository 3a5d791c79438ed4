package routes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ViewSet is a resource controller covering the standard actions on one
// resource type.
type ViewSet interface {
	List(w http.ResponseWriter, r *http.Request)
	Create(w http.ResponseWriter, r *http.Request)
	Retrieve(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	PartialUpdate(w http.ResponseWriter, r *http.Request)
	Destroy(w http.ResponseWriter, r *http.Request)
}

// Register expands vs into a collection route "<basename>-list" at
// prefix/ and an item route "<basename>-detail" at prefix/{id}/.
func (t *Table) Register(prefix, basename string, vs ViewSet) error {
	base := "/" + strings.Trim(prefix, "/") + "/"

	if err := t.Add(basename+"-list", base, Actions{
		http.MethodGet:  vs.List,
		http.MethodPost: vs.Create,
	}); err != nil {
		return err
	}
	return t.Add(basename+"-detail", base+"{"+IDParam+":"+IDPattern+"}/", Actions{
		http.MethodGet:    vs.Retrieve,
		http.MethodPut:    vs.Update,
		http.MethodPatch:  vs.PartialUpdate,
		http.MethodDelete: vs.Destroy,
	})
}

type Options struct {
	// Middlewares run before routing, in order.
	Middlewares      []func(http.Handler) http.Handler
	NotFound         http.HandlerFunc
	MethodNotAllowed http.HandlerFunc
}

// Handler returns a chi router serving every route in the table. Paths
// missing a trailing slash are redirected when the slashed path would match.
func (t *Table) Handler(opts Options) http.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.newMux(opts)
}

func (t *Table) newMux(opts Options) *chi.Mux {
	mux := chi.NewRouter()
	for _, mw := range opts.Middlewares {
		mux.Use(mw)
	}
	mux.Use(appendSlash(mux))

	if opts.NotFound != nil {
		mux.NotFound(opts.NotFound)
	}
	if opts.MethodNotAllowed != nil {
		mux.MethodNotAllowed(opts.MethodNotAllowed)
	}

	for _, route := range t.routes {
		for _, method := range route.Methods() {
			mux.MethodFunc(method, route.Pattern, route.Actions[method])
		}
	}
	return mux
}

func appendSlash(mux *chi.Mux) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if strings.HasSuffix(path, "/") || hasFileExtension(path) {
				next.ServeHTTP(w, r)
				return
			}

			method := r.Method
			if method == http.MethodHead {
				method = http.MethodGet
			}
			if mux.Match(chi.NewRouteContext(), method, path) || !mux.Match(chi.NewRouteContext(), method, path+"/") {
				next.ServeHTTP(w, r)
				return
			}

			target := path + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			code := http.StatusPermanentRedirect
			if method == http.MethodGet {
				code = http.StatusMovedPermanently
			}
			http.Redirect(w, r, target, code)
		})
	}
}

func hasFileExtension(path string) bool {
	lastSlash := strings.LastIndex(path, "/")
	lastDot := strings.LastIndex(path, ".")
	return lastDot > lastSlash
}
