// Package routes is a named route table. Routes are registered once at startup,
// can be reversed into paths by name, resolved from a method and path, and
// served through a chi router.
package routes

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

const (
	// IDParam is the path parameter generated for resource items.
	IDParam = "id"
	// IDPattern restricts identifiers to non-negative integers.
	IDPattern = "[0-9]+"
)

var (
	ErrDuplicateName = errors.New("duplicate route name")
	ErrInvalidRoute  = errors.New("invalid route")
	ErrNoReverse     = errors.New("no route matches")
)

// Actions maps HTTP methods to the handlers serving them.
type Actions map[string]http.HandlerFunc

type Route struct {
	Name    string
	Pattern string
	Actions Actions

	segments []segment
}

// Methods returns the route's methods in sorted order.
func (r Route) Methods() []string {
	methods := make([]string, 0, len(r.Actions))
	for m := range r.Actions {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Match is the result of resolving a request against the table.
type Match struct {
	Name   string
	Params map[string]string
}

type Table struct {
	mu        sync.Mutex
	routes    []Route
	byName    map[string]int
	byPattern map[string]string
	resolver  *chi.Mux
}

func New() *Table {
	return &Table{
		byName:    make(map[string]int),
		byPattern: make(map[string]string),
	}
}

// Add registers a named route. Patterns use chi syntax and must start with "/".
func (t *Table) Add(name, pattern string, actions Actions) error {
	if name == "" {
		return fmt.Errorf("%w: empty name for %q", ErrInvalidRoute, pattern)
	}
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("%w: pattern %q must start with /", ErrInvalidRoute, pattern)
	}
	if len(actions) == 0 {
		return fmt.Errorf("%w: route %q has no actions", ErrInvalidRoute, name)
	}
	for method, h := range actions {
		if h == nil {
			return fmt.Errorf("%w: route %q has a nil %s handler", ErrInvalidRoute, name, method)
		}
	}

	segments, err := parsePattern(pattern)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRoute, name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	if other, ok := t.byPattern[pattern]; ok {
		return fmt.Errorf("%w: pattern %q already registered as %s", ErrInvalidRoute, pattern, other)
	}

	t.byName[name] = len(t.routes)
	t.byPattern[pattern] = name
	t.routes = append(t.routes, Route{
		Name:     name,
		Pattern:  pattern,
		Actions:  actions,
		segments: segments,
	})
	t.resolver = nil
	return nil
}

// MustAdd is Add for static tables built at startup.
func (t *Table) MustAdd(name, pattern string, actions Actions) {
	if err := t.Add(name, pattern, actions); err != nil {
		panic(err)
	}
}

// Routes returns a copy of the registered routes in registration order.
func (t *Table) Routes() []Route {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Reverse builds the path of the named route, filling its parameters in order.
func (t *Table) Reverse(name string, args ...any) (string, error) {
	t.mu.Lock()
	i, ok := t.byName[name]
	var route Route
	if ok {
		route = t.routes[i]
	}
	t.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("%w: unknown route %q", ErrNoReverse, name)
	}
	return route.build(args)
}

// Resolve reports which route a request with method and path would dispatch to.
func (t *Table) Resolve(method, path string) (Match, bool) {
	t.mu.Lock()
	if t.resolver == nil {
		t.resolver = t.newMux(Options{})
	}
	mux := t.resolver
	t.mu.Unlock()

	// Find returns the pattern as registered; RoutePattern trims its trailing slash.
	rctx := chi.NewRouteContext()
	pattern := mux.Find(rctx, method, path)
	if pattern == "" {
		return Match{}, false
	}

	t.mu.Lock()
	name, ok := t.byPattern[pattern]
	t.mu.Unlock()
	if !ok {
		return Match{}, false
	}

	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		params[key] = rctx.URLParams.Values[i]
	}
	return Match{Name: name, Params: params}, true
}

// ID parses the item identifier captured by a resource route.
func ID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, IDParam), 10, 64)
}

func (r Route) build(args []any) (string, error) {
	params := 0
	for _, s := range r.segments {
		if s.param != "" {
			params++
		}
	}
	if len(args) != params {
		return "", fmt.Errorf("%w: %s takes %d arguments, got %d", ErrNoReverse, r.Name, params, len(args))
	}

	var b strings.Builder
	next := 0
	for _, s := range r.segments {
		if s.param == "" {
			b.WriteString(s.literal)
			continue
		}
		v := fmt.Sprint(args[next])
		next++
		if v == "" || strings.Contains(v, "/") {
			return "", fmt.Errorf("%w: %s: bad value %q for %s", ErrNoReverse, r.Name, v, s.param)
		}
		if s.re != nil && !s.re.MatchString(v) {
			return "", fmt.Errorf("%w: %s: %q does not match %s", ErrNoReverse, r.Name, v, s.re.String())
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

type segment struct {
	literal string
	param   string
	re      *regexp.Regexp
}

// parsePattern splits a chi pattern into literal text and {name} or
// {name:regexp} parameters. Regexps may contain balanced braces.
func parsePattern(pattern string) ([]segment, error) {
	var segments []segment
	for len(pattern) > 0 {
		open := strings.IndexByte(pattern, '{')
		if open < 0 {
			segments = append(segments, segment{literal: pattern})
			break
		}
		if open > 0 {
			segments = append(segments, segment{literal: pattern[:open]})
		}

		depth, end := 0, -1
		for i := open; i < len(pattern); i++ {
			switch pattern[i] {
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth == 0 {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("unbalanced braces in %q", pattern)
		}

		name, expr, hasExpr := strings.Cut(pattern[open+1:end], ":")
		if name == "" {
			return nil, fmt.Errorf("empty parameter name in %q", pattern)
		}
		seg := segment{param: name}
		if hasExpr {
			re, err := regexp.Compile("^(?:" + expr + ")$")
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", name, err)
			}
			seg.re = re
		}
		segments = append(segments, seg)
		pattern = pattern[end+1:]
	}
	return segments, nil
}
