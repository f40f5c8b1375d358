package views

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/goBlog/auth"
	"github.com/MrEthical07/goBlog/backend"
	"github.com/MrEthical07/goBlog/internal/logging"
	"github.com/MrEthical07/goBlog/internal/rate"
	"github.com/MrEthical07/goBlog/middleware"
	"github.com/MrEthical07/goBlog/password"
	"github.com/MrEthical07/goBlog/posts"
)

const maxBodyBytes = 1 << 20

// Accounts is the part of the auth backend the account views drive. Every
// call acts for the HTTP caller only, never for a process-wide session.
type Accounts interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (*auth.Session, error)
	CreateSession(ctx context.Context, email, password string) (*auth.Session, error)
	RevokeSession(ctx context.Context, accessToken string) error
}

// Posts is the post storage the views read and write.
type Posts interface {
	List(ctx context.Context, limit int) ([]posts.Post, error)
	Get(ctx context.Context, id string) (*posts.Post, error)
	Create(ctx context.Context, authorID string, d posts.Draft) (*posts.Post, error)
	Update(ctx context.Context, id, editorID string, d posts.Draft) (*posts.Post, error)
}

// Throttle budgets sign-in failures and account creation. Over-budget calls
// return an error matching rate.ErrRateLimited.
type Throttle interface {
	CheckSignIn(ctx context.Context, email, ip string) error
	FailSignIn(ctx context.Context, email, ip string) error
	ResetSignIn(ctx context.Context, email string) error
	AllowSignUp(ctx context.Context, ip string) error
}

// Views is the set of route handlers.
type Views struct {
	accounts Accounts
	posts    Posts
	throttle Throttle
	log      *slog.Logger
}

func New(accounts Accounts, p Posts, logger *slog.Logger) *Views {
	if logger == nil {
		logger = slog.Default()
	}
	return &Views{accounts: accounts, posts: p, log: logger.With("component", "views")}
}

// WithThrottle enables sign-in and sign-up throttling. Call it before serving.
func (v *Views) WithThrottle(t Throttle) *Views {
	v.throttle = t
	return v
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type sessionResponse struct {
	User        *auth.User `json:"user"`
	AccessToken string     `json:"access_token,omitempty"`
	ExpiresAt   string     `json:"expires_at,omitempty"`
}

// Home lists the newest posts.
func (v *Views) Home() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		list, err := v.posts.List(r.Context(), 20)
		if err != nil {
			v.fail(w, r, "list posts", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": currentUser(r), "posts": list})
	})
}

// Login reports the current user on GET and signs in on POST.
func (v *Views) Login() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, sessionResponse{User: currentUser(r)})
			return
		}

		if !v.hasAccounts(w) {
			return
		}
		var in credentials
		if !decode(w, r, &in) {
			return
		}
		ip := clientIP(r)
		if v.throttle != nil && !v.throttled(w, r, "sign in", v.throttle.CheckSignIn(r.Context(), in.Email, ip)) {
			return
		}
		s, err := v.accounts.CreateSession(r.Context(), in.Email, in.Password)
		switch {
		case errors.Is(err, backend.ErrInvalidCredentials), errors.Is(err, backend.ErrInvalidEmail):
			if v.throttle != nil {
				if terr := v.throttle.FailSignIn(r.Context(), in.Email, ip); terr != nil && !errors.Is(terr, rate.ErrRateLimited) {
					logging.LogError(r.Context(), v.log, "record sign-in failure", terr)
				}
			}
			writeError(w, http.StatusUnauthorized, "invalid email or password")
		case err != nil:
			v.fail(w, r, "sign in", err)
		default:
			if v.throttle != nil {
				if terr := v.throttle.ResetSignIn(r.Context(), in.Email); terr != nil {
					logging.LogError(r.Context(), v.log, "reset sign-in failures", terr)
				}
			}
			setSessionCookie(w, r, s)
			writeJSON(w, http.StatusOK, newSessionResponse(s))
		}
	})
}

// Register creates an account and signs it in.
func (v *Views) Register() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) || !v.hasAccounts(w) {
			return
		}
		var in credentials
		if !decode(w, r, &in) {
			return
		}
		if v.throttle != nil && !v.throttled(w, r, "sign up", v.throttle.AllowSignUp(r.Context(), clientIP(r))) {
			return
		}
		s, err := v.accounts.CreateAccount(r.Context(), in.Email, in.Password, in.DisplayName)
		switch {
		case errors.Is(err, backend.ErrEmailTaken):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, backend.ErrInvalidEmail), errors.Is(err, password.ErrTooShort):
			writeError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			v.fail(w, r, "sign up", err)
		default:
			setSessionCookie(w, r, s)
			writeJSON(w, http.StatusCreated, newSessionResponse(s))
		}
	})
}

// Logout revokes the caller's own session. It succeeds when the caller holds
// none.
func (v *Views) Logout() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) || !v.hasAccounts(w) {
			return
		}
		if token, _ := auth.AccessTokenFromContext(r.Context()); token != "" {
			if err := v.accounts.RevokeSession(r.Context(), token); err != nil {
				v.fail(w, r, "sign out", err)
				return
			}
		}
		clearSessionCookie(w, r)
		w.WriteHeader(http.StatusNoContent)
	})
}

// CreatePost publishes a post as the signed-in user.
func (v *Views) CreatePost() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		user := currentUser(r)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{"user": user, "max_title_length": posts.MaxTitleLength})
			return
		}

		var d posts.Draft
		if !decode(w, r, &d) {
			return
		}
		p, err := v.posts.Create(r.Context(), user.ID, d)
		if err != nil {
			v.postError(w, r, "create post", err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	})
}

// PostDetail shows one post.
func (v *Views) PostDetail() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		p, err := v.posts.Get(r.Context(), postID(r))
		if err != nil {
			v.postError(w, r, "get post", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	})
}

// EditPost loads a post for editing on GET and saves it on PUT or POST.
func (v *Views) EditPost() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet, http.MethodPut, http.MethodPost) {
			return
		}
		user := currentUser(r)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		id := postID(r)

		if r.Method == http.MethodGet {
			p, err := v.posts.Get(r.Context(), id)
			if err != nil {
				v.postError(w, r, "get post", err)
				return
			}
			if p.AuthorID != user.ID {
				v.postError(w, r, "get post", posts.ErrForbidden)
				return
			}
			writeJSON(w, http.StatusOK, p)
			return
		}

		var d posts.Draft
		if !decode(w, r, &d) {
			return
		}
		p, err := v.posts.Update(r.Context(), id, user.ID, d)
		if err != nil {
			v.postError(w, r, "update post", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	})
}

func (v *Views) hasAccounts(w http.ResponseWriter) bool {
	if v.accounts == nil {
		writeError(w, http.StatusNotImplemented, "account operations are not configured")
		return false
	}
	return true
}

// throttled reports whether the request may continue after a throttle check.
func (v *Views) throttled(w http.ResponseWriter, r *http.Request, op string, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, rate.ErrRateLimited):
		if wait, ok := rate.RetryAfter(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int((wait+time.Second-1)/time.Second)))
		}
		writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
	default:
		v.fail(w, r, op+" throttle", err)
	}
	return false
}

func (v *Views) postError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, posts.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, posts.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, posts.ErrInvalidDraft):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, posts.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		v.fail(w, r, op, err)
	}
}

func (v *Views) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	logging.LogError(r.Context(), v.log, op+" failed", err)
	writeError(w, http.StatusServiceUnavailable, "service unavailable")
}

func newSessionResponse(s *auth.Session) sessionResponse {
	if s == nil {
		return sessionResponse{}
	}
	return sessionResponse{
		User:        s.User,
		AccessToken: s.AccessToken,
		ExpiresAt:   s.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, s *auth.Session) {
	if s == nil || s.AccessToken == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    s.AccessToken,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func currentUser(r *http.Request) *auth.User {
	d, ok := middleware.DecisionFromContext(r.Context())
	if !ok {
		return nil
	}
	return d.User
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func postID(r *http.Request) string {
	loc, _ := middleware.LocationFromContext(r.Context())
	return loc.Param("id")
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	for _, m := range methods {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
