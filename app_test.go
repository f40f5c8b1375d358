package goBlog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goBlog/auth"
	"github.com/MrEthical07/goBlog/auth/authtest"
	"github.com/MrEthical07/goBlog/router"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/goleak"
)

func waitReady(t *testing.T, a *App) {
	t.Helper()
	select {
	case <-a.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("initial session query did not settle")
	}
}

func buildWithBackend(t *testing.T, b auth.Backend, mutate func(*Config), sink AuditSink) *App {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Audit.Enabled = sink != nil
	if mutate != nil {
		mutate(&cfg)
	}
	builder := New().WithConfig(cfg).WithBackend(b)
	if sink != nil {
		builder.WithAuditSink(sink)
	}
	a, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAppGuardsAuthoringRoutes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := authtest.New(nil)
	a := buildWithBackend(t, backend, nil, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitReady(t, a)

	res, err := a.Navigate(context.Background(), "/vue-blog/create")
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if res.To.Name != RouteLogin {
		t.Fatalf("expected redirect to login, got %+v", res.To)
	}

	user := &auth.User{ID: "u-1", Email: "a@example.com"}
	backend.Emit(auth.EventSignedIn, authtest.SessionFor(user))
	if cur := a.Store().Current(); cur == nil || cur.ID != "u-1" {
		t.Fatalf("store did not follow sign-in, got %+v", cur)
	}

	res, err = a.Navigate(context.Background(), "/create")
	if err != nil || res.To.Name != RouteCreatePost {
		t.Fatalf("expected create to be allowed, got %+v err=%v", res.To, err)
	}

	s := a.MetricsSnapshot()
	if s.Counters[MetricNavigationRedirected] != 1 || s.Counters[MetricNavigationAllowed] != 2 {
		t.Fatalf("unexpected navigation counters %+v", s.Counters)
	}
	if s.Counters[MetricSessionInitialSync] != 1 || s.Counters[MetricSessionSignedIn] != 1 {
		t.Fatalf("unexpected session counters %+v", s.Counters)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := backend.Listeners(); n != 0 {
		t.Fatalf("expected subscription released, %d listeners remain", n)
	}
	if err := a.Start(context.Background()); !errors.Is(err, ErrAppClosed) {
		t.Fatalf("expected ErrAppClosed after close, got %v", err)
	}
}

func TestAppGuardSourceStoreUsesCachedValue(t *testing.T) {
	backend := authtest.New(nil)
	a := buildWithBackend(t, backend, func(c *Config) { c.Guard.Source = GuardSourceStore }, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitReady(t, a)

	// The backend now reports a user but never notified the store.
	backend.SetUser(&auth.User{ID: "u-1"})
	calls := backend.Calls()

	res, err := a.Navigate(context.Background(), "/create")
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if res.To.Name != RouteLogin {
		t.Fatalf("store source should redirect on its cached nil user, got %+v", res.To)
	}
	if backend.Calls() != calls {
		t.Fatalf("store source must not query the backend")
	}
}

func TestAppFailOpenCountsAndAudits(t *testing.T) {
	backend := authtest.New(nil)
	sink := NewChannelSink(32)
	a := buildWithBackend(t, backend, func(c *Config) {
		c.Guard.FailMode = "open"
		c.Audit.DropIfFull = false
	}, sink)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitReady(t, a)

	backend.SetError(errors.New("backend down"))
	res, err := a.Navigate(context.Background(), "/posts/1/edit")
	if err != nil || res.Redirected() {
		t.Fatalf("fail-open should admit the navigation, got %+v err=%v", res, err)
	}

	s := a.MetricsSnapshot()
	if s.Counters[MetricGuardQueryError] != 1 || s.Counters[MetricGuardFailOpen] != 1 {
		t.Fatalf("unexpected counters %+v", s.Counters)
	}

	_ = a.Close()
	var nav *AuditEvent
	for len(sink.Events()) > 0 {
		e := <-sink.Events()
		if e.Type == AuditNavigation {
			nav = &e
		}
	}
	if nav == nil || nav.Path != "/posts/1/edit" || nav.Outcome != "allowed" || !strings.Contains(nav.Error, "backend down") {
		t.Fatalf("unexpected navigation audit %+v", nav)
	}
}

func TestAppInitialErrorMetric(t *testing.T) {
	backend := authtest.New(nil)
	backend.SetError(errors.New("unreachable"))
	a := buildWithBackend(t, backend, nil, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitReady(t, a)

	if a.Store().Current() != nil {
		t.Fatalf("expected no user after failed initial query")
	}
	if got := a.MetricsSnapshot().Counters[MetricSessionInitialError]; got != 1 {
		t.Fatalf("expected one initial error, got %d", got)
	}
}

func TestAppNavigateErrorsCounted(t *testing.T) {
	a := buildWithBackend(t, authtest.New(nil), nil, nil)
	if _, err := a.Navigate(context.Background(), "/nowhere"); !errors.Is(err, router.ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
	if got := a.MetricsSnapshot().Counters[MetricNavigationNotFound]; got != 1 {
		t.Fatalf("expected not-found counter, got %d", got)
	}
}

func TestBuildRequiresBackendConfig(t *testing.T) {
	if _, err := New().Build(context.Background()); !errors.Is(err, ErrMissingBackendConfig) {
		t.Fatalf("expected ErrMissingBackendConfig, got %v", err)
	}

	b := New().WithBackend(authtest.New(nil))
	a, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build with injected backend: %v", err)
	}
	defer a.Close()
	if _, err := b.Build(context.Background()); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestAppServesBlogOverRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()

	cfg := DefaultConfig()
	cfg.Backend.URL = "redis://" + mr.Addr()
	cfg.Backend.Key = "app-test-signing-key-0123"
	a, err := New().WithConfig(cfg).WithRedis(rdb).Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitReady(t, a)

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Get(srv.URL + "/vue-blog/create")
	if err != nil {
		t.Fatalf("get create: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/vue-blog/login" {
		t.Fatalf("expected redirect to login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp = send(t, client, http.MethodPost, srv.URL+"/vue-blog/register", "",
		`{"email":"writer@example.com","password":"correct horse","display_name":"Writer"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 from register, got %d", resp.StatusCode)
	}
	var registered struct {
		User        *auth.User `json:"user"`
		AccessToken string     `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil || registered.AccessToken == "" {
		t.Fatalf("expected an access token from register, got %+v err=%v", registered, err)
	}
	resp.Body.Close()
	writer := registered.AccessToken

	// A second caller without credentials gets nothing from the writer's sign-up.
	resp = send(t, client, http.MethodPost, srv.URL+"/vue-blog/create", "", `{"title":"Spam","body":"not mine"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("anonymous create after another caller signed in: expected 302, got %d", resp.StatusCode)
	}
	resp = send(t, client, http.MethodGet, srv.URL+"/vue-blog/login", "", "")
	var whoami struct {
		User *auth.User `json:"user"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&whoami)
	resp.Body.Close()
	if whoami.User != nil {
		t.Fatalf("anonymous login view leaked %+v", whoami.User)
	}
	resp = send(t, client, http.MethodPost, srv.URL+"/vue-blog/logout", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("anonymous logout: expected 204, got %d", resp.StatusCode)
	}

	resp = send(t, client, http.MethodPost, srv.URL+"/vue-blog/create", writer, `{"title":"First","body":"Hello from the test"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 from create, got %d", resp.StatusCode)
	}

	list, err := a.Posts().List(context.Background(), 10)
	if err != nil || len(list) != 1 || list[0].Title != "First" || list[0].AuthorID != registered.User.ID {
		t.Fatalf("unexpected posts %+v err=%v", list, err)
	}
	if cur := a.Store().Current(); cur != nil {
		t.Fatalf("HTTP sign-up must not touch the local session, got %+v", cur)
	}

	resp = send(t, client, http.MethodPost, srv.URL+"/vue-blog/logout", writer, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("writer logout: expected 204, got %d", resp.StatusCode)
	}
	resp = send(t, client, http.MethodGet, srv.URL+"/vue-blog/create", writer, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("revoked token: expected 302, got %d", resp.StatusCode)
	}
}

func send(t *testing.T, client *http.Client, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}
