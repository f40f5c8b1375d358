package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/goBlog/auth"
	"github.com/MrEthical07/goBlog/auth/authtest"
	"github.com/MrEthical07/goBlog/router"
)

func echoView(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loc, ok := LocationFromContext(r.Context())
		if !ok {
			http.Error(w, "no location", http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Route", name)
		w.Header().Set("X-Param-Id", loc.Param("id"))
		if d, ok := DecisionFromContext(r.Context()); ok && d.User != nil {
			w.Header().Set("X-User", d.User.ID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func newTestRouter(t *testing.T, backend *authtest.Backend) *router.Router {
	t.Helper()
	table, err := router.Compile([]router.Route{
		{Path: "/", Name: "Home", View: echoView("Home")},
		{Path: "/login", Name: "Login", View: echoView("Login")},
		{Path: "/create", Name: "CreatePost", RequiresAuth: true, View: echoView("CreatePost")},
		{Path: "/posts/:id", Name: "PostDetail", View: echoView("PostDetail")},
		{Path: "/about", Name: "About"},
	}, router.WithBase("/vue-blog/"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	users := auth.TokenUsers{Verifier: backend}
	return router.New(table, router.NewGuard(users, router.GuardConfig{}), router.Options{})
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	return serveAs(h, target, "")
}

func serveAs(h http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNavigateRedirectsAnonymousToLogin(t *testing.T) {
	h := Navigate(newTestRouter(t, authtest.New(nil)))(nil)

	rr := serve(h, "/vue-blog/create")
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/vue-blog/login" {
		t.Fatalf("expected redirect to /vue-blog/login, got %q", loc)
	}
}

func TestNavigateDispatchesAllowedRequests(t *testing.T) {
	user := &auth.User{ID: "u-1"}
	h := Navigate(newTestRouter(t, authtest.New(user)))(nil)

	rr := serveAs(h, "/vue-blog/create", authtest.TokenFor(user))
	if rr.Code != http.StatusOK || rr.Header().Get("X-Route") != "CreatePost" {
		t.Fatalf("expected CreatePost view, got %d %q", rr.Code, rr.Header().Get("X-Route"))
	}
	if rr.Header().Get("X-User") != "u-1" {
		t.Fatalf("expected decision user in context, got %q", rr.Header().Get("X-User"))
	}

	rr = serve(h, "/vue-blog/posts/9")
	if rr.Header().Get("X-Route") != "PostDetail" || rr.Header().Get("X-Param-Id") != "9" {
		t.Fatalf("expected PostDetail with id 9, got %q %q", rr.Header().Get("X-Route"), rr.Header().Get("X-Param-Id"))
	}
}

func TestNavigateUnknownPath(t *testing.T) {
	h := Navigate(newTestRouter(t, authtest.New(nil)))(nil)
	if rr := serve(h, "/vue-blog/nowhere"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestNavigateFallsBackToNext(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := LocationFromContext(r.Context()); !ok {
			t.Fatalf("expected location in context")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	h := Navigate(newTestRouter(t, authtest.New(nil)))(next)

	if rr := serve(h, "/vue-blog/about"); rr.Code != http.StatusNoContent || !called {
		t.Fatalf("expected next handler, got %d called=%v", rr.Code, called)
	}
}

func TestNavigateNilRouter(t *testing.T) {
	h := Navigate(nil)(nil)
	if rr := serve(h, "/"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestNavigateScopesSessionToCaller(t *testing.T) {
	writer := &auth.User{ID: "u-1"}
	h := Navigate(newTestRouter(t, authtest.New(writer)))(nil)

	if rr := serveAs(h, "/vue-blog/create", authtest.TokenFor(writer)); rr.Code != http.StatusOK {
		t.Fatalf("token holder: expected 200, got %d", rr.Code)
	}
	if rr := serve(h, "/vue-blog/create"); rr.Code != http.StatusFound {
		t.Fatalf("anonymous caller after a signed-in one: expected 302, got %d", rr.Code)
	}
	if rr := serveAs(h, "/vue-blog/create", "token-someone-else"); rr.Code != http.StatusFound {
		t.Fatalf("foreign token: expected 302, got %d", rr.Code)
	}
	rr := serve(h, "/vue-blog/login")
	if rr.Code != http.StatusOK || rr.Header().Get("X-User") != "" {
		t.Fatalf("anonymous login view must not see the writer, got %d %q", rr.Code, rr.Header().Get("X-User"))
	}
}

func TestNavigateReadsSessionCookie(t *testing.T) {
	user := &auth.User{ID: "u-1"}
	h := Navigate(newTestRouter(t, authtest.New(user)))(nil)

	req := httptest.NewRequest(http.MethodGet, "/vue-blog/create", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: authtest.TokenFor(user)})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("X-User") != "u-1" {
		t.Fatalf("expected cookie to authenticate, got %d %q", rr.Code, rr.Header().Get("X-User"))
	}
}

func TestAccessTokenPrefersBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")
	if got := AccessToken(req); got != "from-header" {
		t.Fatalf("expected bearer token, got %q", got)
	}

	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	if got := AccessToken(req); got != "from-cookie" {
		t.Fatalf("expected cookie fallback, got %q", got)
	}
}
