package router

import (
	"context"
	"fmt"
	"sync"
)

// Result describes a finished navigation.
type Result struct {
	From Location
	// Requested is where the navigation was asked to go.
	Requested Location
	// To is where it ended up after redirects.
	To        Location
	Decisions []Decision
}

// Redirected reports whether any guard run in the navigation redirected.
func (r Result) Redirected() bool {
	for _, d := range r.Decisions {
		if !d.Allowed() {
			return true
		}
	}
	return false
}

// Hook observes completed navigations.
type Hook func(ctx context.Context, res Result)

// Options tune a [Router].
type Options struct {
	// MaxRedirects bounds redirect chains. Default 5.
	MaxRedirects int
}

// Router runs navigations against a table and guard, and tracks the current
// location. Safe for concurrent use.
type Router struct {
	table        *Table
	guard        *Guard
	maxRedirects int

	mu      sync.Mutex
	current Location
	gen     uint64
	hooks   []Hook
}

// New returns a Router positioned at no location.
func New(table *Table, guard *Guard, opts Options) *Router {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 5
	}
	return &Router{table: table, guard: guard, maxRedirects: opts.MaxRedirects}
}

// Table returns the compiled route table.
func (r *Router) Table() *Table {
	return r.table
}

// Guard returns the navigation guard.
func (r *Router) Guard() *Guard {
	return r.guard
}

// Current returns the location of the last committed navigation.
func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// AfterEach registers a hook run after every decided navigation, including
// those made through Authorize. Register hooks before navigating.
func (r *Router) AfterEach(h Hook) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, h)
	r.mu.Unlock()
}

// Push navigates to raw, following guard redirects, and makes the final
// location current. If another Push starts before this one is decided, this
// one returns ErrNavigationSuperseded and leaves the current location alone.
func (r *Router) Push(ctx context.Context, raw string) (Result, error) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	from := r.current
	r.mu.Unlock()

	res, err := r.run(ctx, raw, from, gen)
	if err != nil {
		return res, err
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return res, ErrNavigationSuperseded
	}
	r.current = res.To
	r.mu.Unlock()

	r.fire(ctx, res)
	return res, nil
}

// Authorize runs the guard once for to without following redirects or
// touching the current location. The HTTP surface uses it per request.
func (r *Router) Authorize(ctx context.Context, to, from Location) Decision {
	d := r.guard.Decide(ctx, Request{To: to, From: from})
	res := Result{From: from, Requested: to, To: to, Decisions: []Decision{d}}
	if !d.Allowed() {
		if loc, err := r.table.Resolve(d.Redirect); err == nil {
			res.To = loc
		}
	}
	r.fire(ctx, res)
	return d
}

func (r *Router) run(ctx context.Context, raw string, from Location, gen uint64) (Result, error) {
	target, err := r.table.Resolve(raw)
	if err != nil {
		return Result{From: from}, err
	}
	res := Result{From: from, Requested: target}

	for hop := 0; ; hop++ {
		d := r.guard.Decide(ctx, Request{To: target, From: from})
		res.Decisions = append(res.Decisions, d)

		if r.superseded(gen) {
			return res, ErrNavigationSuperseded
		}
		if d.Allowed() {
			res.To = target
			return res, nil
		}
		if hop >= r.maxRedirects {
			return res, fmt.Errorf("%w: %d redirects from %s", ErrRedirectLoop, hop, res.Requested.Path)
		}
		target, err = r.table.Resolve(d.Redirect)
		if err != nil {
			return res, fmt.Errorf("redirect target %q: %w", d.Redirect, err)
		}
	}
}

func (r *Router) superseded(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen != gen
}

func (r *Router) fire(ctx context.Context, res Result) {
	r.mu.Lock()
	hooks := append([]Hook(nil), r.hooks...)
	r.mu.Unlock()
	for _, h := range hooks {
		h(ctx, res)
	}
}
