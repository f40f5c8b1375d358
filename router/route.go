package router

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Route is a static route descriptor.
type Route struct {
	// Path is the pattern, e.g. "/posts/:id".
	Path string
	// Name is optional and must be unique when set.
	Name string
	// View handles the route in the HTTP surface. It may be nil elsewhere.
	View http.Handler
	// RequiresAuth marks routes that need a signed-in user.
	RequiresAuth bool
}

// Location is a resolved navigation target.
type Location struct {
	// Path is relative to the table's base path.
	Path   string
	Name   string
	Params map[string]string
	Query  url.Values
	Route  *Route
}

// RequiresAuth reports whether the matched route needs a signed-in user.
func (l Location) RequiresAuth() bool {
	return l.Route != nil && l.Route.RequiresAuth
}

// Param returns the named path parameter.
func (l Location) Param(name string) string {
	return l.Params[name]
}

type compiledRoute struct {
	route    *Route
	segments []segment
}

type segment struct {
	literal string
	param   string
}

// Table is a compiled, immutable route table.
type Table struct {
	base   string
	routes []compiledRoute
	byName map[string]*compiledRoute
}

// TableOption customizes Compile.
type TableOption func(*Table)

// WithBase mounts the table under base, e.g. "/vue-blog/".
func WithBase(base string) TableOption {
	return func(t *Table) {
		t.base = normalizeBase(base)
	}
}

// Compile validates routes and returns a table that matches them in order.
func Compile(routes []Route, opts ...TableOption) (*Table, error) {
	t := &Table{
		base:   "/",
		byName: make(map[string]*compiledRoute, len(routes)),
	}
	for _, opt := range opts {
		opt(t)
	}

	seen := make(map[string]struct{}, len(routes))
	t.routes = make([]compiledRoute, 0, len(routes))
	for i := range routes {
		r := routes[i]
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("%w: path %q must start with /", ErrInvalidRoute, r.Path)
		}
		segs, err := parsePattern(r.Path)
		if err != nil {
			return nil, err
		}
		shape := patternShape(segs)
		if _, dup := seen[shape]; dup {
			return nil, fmt.Errorf("%w: duplicate pattern %q", ErrInvalidRoute, r.Path)
		}
		seen[shape] = struct{}{}

		t.routes = append(t.routes, compiledRoute{route: &r, segments: segs})
	}
	for i := range t.routes {
		cr := &t.routes[i]
		if cr.route.Name == "" {
			continue
		}
		if _, dup := t.byName[cr.route.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidRoute, cr.route.Name)
		}
		t.byName[cr.route.Name] = cr
	}

	return t, nil
}

// Base returns the mount point, always ending in "/".
func (t *Table) Base() string {
	return t.base
}

// Routes returns the descriptors in match order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	for i, cr := range t.routes {
		out[i] = *cr.route
	}
	return out
}

// Resolve parses raw (a path with optional query, with or without the base
// prefix) and matches it.
func (t *Table) Resolve(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrNoRoute, err)
	}
	loc, ok := t.Match(t.stripBase(u.Path))
	if !ok {
		return Location{}, fmt.Errorf("%w: %s", ErrNoRoute, u.Path)
	}
	loc.Query = u.Query()
	return loc, nil
}

// Match matches an app-relative path. Trailing slashes are ignored.
func (t *Table) Match(path string) (Location, bool) {
	parts := splitPath(path)
	for i := range t.routes {
		cr := &t.routes[i]
		params, ok := cr.match(parts)
		if !ok {
			continue
		}
		return Location{
			Path:   "/" + strings.Join(parts, "/"),
			Name:   cr.route.Name,
			Params: params,
			Route:  cr.route,
		}, true
	}
	return Location{}, false
}

// Href builds the public URL path of a named route, including the base.
func (t *Table) Href(name string, params map[string]string) (string, error) {
	cr, ok := t.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown route name %q", ErrNoRoute, name)
	}
	parts := make([]string, 0, len(cr.segments))
	for _, seg := range cr.segments {
		if seg.param == "" {
			parts = append(parts, seg.literal)
			continue
		}
		v, ok := params[seg.param]
		if !ok || v == "" {
			return "", fmt.Errorf("%w: route %q needs param %q", ErrNoRoute, name, seg.param)
		}
		parts = append(parts, url.PathEscape(v))
	}
	return t.PublicPath("/" + strings.Join(parts, "/")), nil
}

// PublicPath prefixes an app-relative path with the base.
func (t *Table) PublicPath(path string) string {
	if t.base == "/" {
		return path
	}
	return strings.TrimSuffix(t.base, "/") + path
}

func (t *Table) stripBase(path string) string {
	if t.base == "/" {
		return path
	}
	trimmed := strings.TrimSuffix(t.base, "/")
	if path == trimmed {
		return "/"
	}
	if strings.HasPrefix(path, t.base) {
		return "/" + strings.TrimPrefix(path, t.base)
	}
	return path
}

func (cr *compiledRoute) match(parts []string) (map[string]string, bool) {
	if len(parts) != len(cr.segments) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range cr.segments {
		if seg.param == "" {
			if seg.literal != parts[i] {
				return nil, false
			}
			continue
		}
		v, err := url.PathUnescape(parts[i])
		if err != nil {
			return nil, false
		}
		if params == nil {
			params = make(map[string]string, 1)
		}
		params[seg.param] = v
	}
	return params, true
}

func parsePattern(pattern string) ([]segment, error) {
	parts := splitPath(pattern)
	segs := make([]segment, 0, len(parts))
	names := make(map[string]struct{})
	for _, p := range parts {
		if !strings.HasPrefix(p, ":") {
			segs = append(segs, segment{literal: p})
			continue
		}
		name := p[1:]
		if name == "" {
			return nil, fmt.Errorf("%w: empty parameter in %q", ErrInvalidRoute, pattern)
		}
		if _, dup := names[name]; dup {
			return nil, fmt.Errorf("%w: repeated parameter %q in %q", ErrInvalidRoute, name, pattern)
		}
		names[name] = struct{}{}
		segs = append(segs, segment{param: name})
	}
	return segs, nil
}

func patternShape(segs []segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		if s.param != "" {
			b.WriteByte(':')
			continue
		}
		b.WriteString(s.literal)
	}
	return b.String()
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func normalizeBase(base string) string {
	base = strings.Trim(strings.TrimSpace(base), "/")
	if base == "" {
		return "/"
	}
	return "/" + base + "/"
}
