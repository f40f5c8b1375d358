package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/goBlog/auth"
	"github.com/MrEthical07/goBlog/router"
)

// SessionCookie carries the access token for browsers. An Authorization
// bearer header takes precedence over it.
const SessionCookie = "goblog_session"

type locationContextKey struct{}

type decisionContextKey struct{}

// LocationFromContext returns the resolved location of the current request.
func LocationFromContext(ctx context.Context) (router.Location, bool) {
	loc, ok := ctx.Value(locationContextKey{}).(router.Location)
	return loc, ok
}

// DecisionFromContext returns the guard decision that admitted the request.
func DecisionFromContext(ctx context.Context) (router.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(router.Decision)
	return d, ok
}

// WithLocation attaches loc and d to ctx the way Navigate does. Handlers under
// test use it to run without the middleware.
func WithLocation(ctx context.Context, loc router.Location, d router.Decision) context.Context {
	ctx = context.WithValue(ctx, locationContextKey{}, loc)
	return context.WithValue(ctx, decisionContextKey{}, d)
}

// Navigate routes each request through rt. The caller's access token, if any,
// is attached to the request context with auth.ContextWithAccessToken before
// the guard runs, so rt's guard should query an auth.TokenUsers. Requests the
// guard redirects get a 302 to the login path under the table base. Unknown
// paths get 404. Allowed requests go to the route's View, or to next when the
// route has none.
func Navigate(rt *router.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rt == nil {
				http.Error(w, "router unavailable", http.StatusServiceUnavailable)
				return
			}

			loc, err := rt.Table().Resolve(r.URL.RequestURI())
			if err != nil {
				http.NotFound(w, r)
				return
			}

			ctx := auth.ContextWithAccessToken(r.Context(), AccessToken(r))
			d := rt.Authorize(ctx, loc, refererLocation(rt.Table(), r))
			if !d.Allowed() {
				http.Redirect(w, r, rt.Table().PublicPath(d.Redirect), http.StatusFound)
				return
			}

			h := next
			if loc.Route != nil && loc.Route.View != nil {
				h = loc.Route.View
			}
			if h == nil {
				http.NotFound(w, r)
				return
			}
			h.ServeHTTP(w, r.WithContext(WithLocation(ctx, loc, d)))
		})
	}
}

// AccessToken returns the bearer token of r, falling back to SessionCookie.
func AccessToken(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// refererLocation is the best available "from" for a stateless request.
func refererLocation(table *router.Table, r *http.Request) router.Location {
	ref := r.Referer()
	if ref == "" {
		return router.Location{}
	}
	loc, err := table.Resolve(ref)
	if err != nil {
		return router.Location{}
	}
	return loc
}
