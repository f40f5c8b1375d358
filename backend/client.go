package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goBlog/auth"
	"github.com/MrEthical07/goBlog/jwt"
	"github.com/MrEthical07/goBlog/password"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Config controls a [Client]. Zero fields take the documented defaults.
type Config struct {
	// Prefix namespaces every Redis key and the notice channel. Default "goblog".
	Prefix string
	// SessionTTL is how long a session survives without a refresh. Default 7 days.
	SessionTTL time.Duration
	// Storage persists the local session. Default is in-memory.
	Storage Storage
	// Password sets the Argon2id cost for new accounts. Default password.DefaultParams.
	Password password.Params
	Logger   *slog.Logger
}

type notice struct {
	Event     auth.Event `json:"event"`
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id,omitempty"`
	Origin    string     `json:"origin"`
}

type transition struct {
	event   auth.Event
	session *auth.Session
}

// Client talks to the hosted auth service on behalf of one local identity.
// It is safe for concurrent use.
type Client struct {
	rdb    redis.UniversalClient
	tokens *jwt.Manager
	hasher *password.Hasher
	cfg    Config
	log    *slog.Logger
	id     string

	mu      sync.Mutex
	session *auth.Session

	lmu       sync.Mutex
	listeners map[uint64]auth.Listener
	nextID    uint64

	qmu   sync.Mutex
	queue []transition
	wake  chan struct{}

	pubsub    *redis.PubSub
	done      chan struct{}
	closed    atomic.Bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewClient subscribes to revocation notices and restores any session held in
// cfg.Storage. The restored session is not verified until GetUser.
func NewClient(ctx context.Context, rdb redis.UniversalClient, tokens *jwt.Manager, cfg Config) (*Client, error) {
	if rdb == nil {
		return nil, errors.New("backend: redis client required")
	}
	if tokens == nil {
		return nil, errors.New("backend: token manager required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "goblog"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.Storage == nil {
		cfg.Storage = &MemoryStorage{}
	}
	if cfg.Password == (password.Params{}) {
		cfg.Password = password.DefaultParams()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}

	c := &Client{
		rdb:       rdb,
		tokens:    tokens,
		hasher:    hasher,
		cfg:       cfg,
		log:       cfg.Logger.With("component", "backend"),
		id:        uuid.NewString(),
		listeners: make(map[uint64]auth.Listener),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	stored, err := cfg.Storage.Load()
	if err != nil {
		c.log.Warn("discarding unreadable stored session", "error", err)
		stored = nil
	}
	c.session = stored

	ps := rdb.Subscribe(ctx, c.channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, unavailable("subscribe", err)
	}
	c.pubsub = ps

	c.wg.Add(2)
	go c.dispatch()
	go c.listen()

	return c, nil
}

// Close stops notice delivery. Pending transitions are delivered before Close
// returns. Close does not sign out.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.pubsub.Close()
		c.wg.Wait()
	})
	return err
}

// GetSession returns the local session without contacting the service.
func (c *Client) GetSession(context.Context) (*auth.Session, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneSession(c.session), nil
}

// GetUser asks the service who the local session belongs to. It returns
// (nil, nil) when there is no session, the access token is invalid or expired,
// or the session was revoked. Transport failures are returned as errors.
func (c *Client) GetUser(ctx context.Context) (*auth.User, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.mu.Lock()
	token := ""
	if c.session != nil {
		token = c.session.AccessToken
	}
	c.mu.Unlock()
	return c.resolve(ctx, "get_user", token)
}

// UserForToken asks the service who holds accessToken, with the same results
// as GetUser. It ignores the local session, so a server can check each
// caller on its own.
func (c *Client) UserForToken(ctx context.Context, accessToken string) (*auth.User, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.resolve(ctx, "user_for_token", accessToken)
}

func (c *Client) resolve(ctx context.Context, op, token string) (*auth.User, error) {
	if token == "" {
		return nil, nil
	}

	claims, err := c.tokens.Parse(token)
	if err != nil {
		c.log.Debug("access token rejected", "op", op, "error", err)
		return nil, nil
	}

	live, err := c.rdb.Exists(ctx, c.sessionKey(claims.SessionID)).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	if live == 0 {
		return nil, nil
	}

	fields, err := c.rdb.HGetAll(ctx, c.userKey(claims.UserID())).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return userFromHash(fields), nil
}

// OnAuthStateChange registers fn for every future transition of the local session.
func (c *Client) OnAuthStateChange(fn auth.Listener) auth.Subscription {
	if fn == nil {
		return auth.SubscriptionFunc(nil)
	}

	c.lmu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.lmu.Unlock()

	var once sync.Once
	return auth.SubscriptionFunc(func() {
		once.Do(func() {
			c.lmu.Lock()
			delete(c.listeners, id)
			c.lmu.Unlock()
		})
	})
}

// SignUp creates an account and signs the client in as it.
func (c *Client) SignUp(ctx context.Context, email, plaintext, displayName string) (*auth.Session, error) {
	session, err := c.CreateAccount(ctx, email, plaintext, displayName)
	if err != nil {
		return nil, err
	}
	c.adopt(session)
	return cloneSession(session), nil
}

// CreateAccount creates an account and opens a session for it. The local
// session is left alone; the caller hands the access token to whoever signed up.
func (c *Client) CreateAccount(ctx context.Context, email, plaintext, displayName string) (*auth.Session, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := c.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	claimed, err := c.rdb.SetNX(ctx, c.emailKey(addr), id, 0).Result()
	if err != nil {
		return nil, unavailable("sign_up", err)
	}
	if !claimed {
		return nil, ErrEmailTaken
	}

	now := time.Now().UTC()
	if err := c.rdb.HSet(ctx, c.userKey(id), map[string]interface{}{
		"id":            id,
		"email":         addr,
		"display_name":  strings.TrimSpace(displayName),
		"password_hash": hash,
		"created_at":    now.Format(time.RFC3339Nano),
	}).Err(); err != nil {
		_ = c.rdb.Del(ctx, c.emailKey(addr)).Err()
		return nil, unavailable("sign_up", err)
	}

	return c.newSession(ctx, &auth.User{
		ID:          id,
		Email:       addr,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   now,
	})
}

// SignInWithPassword verifies the credentials and replaces the local session.
func (c *Client) SignInWithPassword(ctx context.Context, email, plaintext string) (*auth.Session, error) {
	session, err := c.CreateSession(ctx, email, plaintext)
	if err != nil {
		return nil, err
	}
	c.adopt(session)
	return cloneSession(session), nil
}

// CreateSession verifies the credentials and opens a new session without
// touching the local one.
func (c *Client) CreateSession(ctx context.Context, email, plaintext string) (*auth.Session, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	id, err := c.rdb.Get(ctx, c.emailKey(addr)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, unavailable("sign_in", err)
	}

	fields, err := c.rdb.HGetAll(ctx, c.userKey(id)).Result()
	if err != nil {
		return nil, unavailable("sign_in", err)
	}
	if len(fields) == 0 {
		return nil, ErrInvalidCredentials
	}
	ok, err := c.hasher.Verify(plaintext, fields["password_hash"])
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	return c.newSession(ctx, userFromHash(fields))
}

// SignOut ends the local session and revokes it on the service. The local
// session is cleared even when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	cur := c.session
	if cur != nil {
		c.session = nil
		c.persist(nil)
		c.enqueue(auth.EventSignedOut, nil)
	}
	c.mu.Unlock()
	if cur == nil {
		return nil
	}

	return c.revoke(ctx, "sign_out", cur.UserOrNil().ID, cur.ID)
}

// RevokeSession ends the session accessToken belongs to, on the service and on
// every client holding it, this one included. A token that no longer parses
// has nothing to revoke and returns nil.
func (c *Client) RevokeSession(ctx context.Context, accessToken string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	claims, err := c.tokens.Parse(accessToken)
	if err != nil {
		c.log.Debug("revocation token rejected", "error", err)
		return nil
	}
	c.revokeLocal(claims.UserID(), claims.SessionID)
	return c.revoke(ctx, "revoke_session", claims.UserID(), claims.SessionID)
}

// SignOutEverywhere revokes every session of the signed-in user, on every
// client. It returns ErrNoSession when the service does not recognise the
// local session.
func (c *Client) SignOutEverywhere(ctx context.Context) error {
	user, err := c.GetUser(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNoSession
	}
	userID := user.ID

	sids, err := c.rdb.SMembers(ctx, c.userSessionsKey(userID)).Result()
	if err != nil {
		return unavailable("sign_out_everywhere", err)
	}
	pipe := c.rdb.TxPipeline()
	for _, sid := range sids {
		pipe.Del(ctx, c.sessionKey(sid))
	}
	pipe.Del(ctx, c.userSessionsKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("sign_out_everywhere", err)
	}

	c.revokeLocal(userID, "")
	return c.publish(ctx, notice{Event: auth.EventSignedOut, UserID: userID})
}

// RefreshSession extends the local session on the service and issues a fresh
// access token. A session the service no longer knows is ended locally.
func (c *Client) RefreshSession(ctx context.Context) (*auth.Session, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.mu.Lock()
	cur := cloneSession(c.session)
	c.mu.Unlock()
	if cur == nil || cur.User == nil {
		return nil, ErrNoSession
	}

	extended, err := c.rdb.Expire(ctx, c.sessionKey(cur.ID), c.cfg.SessionTTL).Result()
	if err != nil {
		return nil, unavailable("refresh", err)
	}
	if !extended {
		c.revokeLocal(cur.User.ID, cur.ID)
		return nil, ErrSessionRevoked
	}

	token, expires, err := c.tokens.Issue(cur.User.ID, cur.ID, cur.User.Email)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.ID != cur.ID {
		return nil, ErrNoSession
	}
	c.session.AccessToken = token
	c.session.ExpiresAt = expires
	c.persist(c.session)
	c.enqueue(auth.EventTokenRefreshed, c.session)
	return cloneSession(c.session), nil
}

// UpdateUser changes the signed-in user's display name.
func (c *Client) UpdateUser(ctx context.Context, displayName string) (*auth.User, error) {
	user, err := c.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNoSession
	}

	displayName = strings.TrimSpace(displayName)
	if err := c.rdb.HSet(ctx, c.userKey(user.ID), "display_name", displayName).Err(); err != nil {
		return nil, unavailable("update_user", err)
	}
	user.DisplayName = displayName

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.User != nil && c.session.User.ID == user.ID {
		c.session.User = user.Clone()
		c.persist(c.session)
		c.enqueue(auth.EventUserUpdated, c.session)
	}
	return user, nil
}

func (c *Client) revoke(ctx context.Context, op, userID, sid string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, c.sessionKey(sid))
	pipe.SRem(ctx, c.userSessionsKey(userID), sid)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(op, err)
	}
	return c.publish(ctx, notice{Event: auth.EventSignedOut, UserID: userID, SessionID: sid})
}

func (c *Client) newSession(ctx context.Context, user *auth.User) (*auth.Session, error) {
	sid := uuid.NewString()
	token, expires, err := c.tokens.Issue(user.ID, sid, user.Email)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, c.sessionKey(sid), user.ID, c.cfg.SessionTTL)
	pipe.SAdd(ctx, c.userSessionsKey(user.ID), sid)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("create_session", err)
	}

	c.log.Info("session started", "user_id", user.ID, "session_id", sid)
	return &auth.Session{ID: sid, AccessToken: token, ExpiresAt: expires, User: user}, nil
}

// adopt makes session the local one.
func (c *Client) adopt(session *auth.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
	c.persist(session)
	c.enqueue(auth.EventSignedIn, session)
}

// revokeLocal ends the local session if it belongs to userID and, when sid is
// set, is that session.
func (c *Client) revokeLocal(userID, sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.session
	if cur == nil || cur.User == nil || cur.User.ID != userID {
		return
	}
	if sid != "" && cur.ID != sid {
		return
	}
	c.session = nil
	c.persist(nil)
	c.enqueue(auth.EventSignedOut, nil)
	c.log.Info("session revoked", "user_id", userID, "session_id", cur.ID)
}

// persist must be called with c.mu held.
func (c *Client) persist(session *auth.Session) {
	var err error
	if session == nil {
		err = c.cfg.Storage.Clear()
	} else {
		err = c.cfg.Storage.Save(session)
	}
	if err != nil {
		c.log.Warn("session storage write failed", "error", err)
	}
}

// enqueue records a transition for in-order delivery. It never blocks, so it
// is safe to call with c.mu held.
func (c *Client) enqueue(event auth.Event, session *auth.Session) {
	c.qmu.Lock()
	c.queue = append(c.queue, transition{event: event, session: cloneSession(session)})
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.wake:
			c.drain()
		case <-c.done:
			c.drain()
			return
		}
	}
}

func (c *Client) drain() {
	for {
		c.qmu.Lock()
		batch := c.queue
		c.queue = nil
		c.qmu.Unlock()
		if len(batch) == 0 {
			return
		}

		for _, t := range batch {
			c.lmu.Lock()
			fns := make([]auth.Listener, 0, len(c.listeners))
			for _, fn := range c.listeners {
				fns = append(fns, fn)
			}
			c.lmu.Unlock()

			for _, fn := range fns {
				fn(t.event, cloneSession(t.session))
			}
		}
	}
}

func (c *Client) listen() {
	defer c.wg.Done()
	ch := c.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.handleNotice(msg.Payload)
		case <-c.done:
			return
		}
	}
}

func (c *Client) handleNotice(payload string) {
	var n notice
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		c.log.Warn("ignoring malformed auth notice", "error", err)
		return
	}
	if n.Event != auth.EventSignedOut || n.UserID == "" {
		return
	}
	c.revokeLocal(n.UserID, n.SessionID)
}

func (c *Client) publish(ctx context.Context, n notice) error {
	n.Origin = c.id
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode auth notice: %w", err)
	}
	if err := c.rdb.Publish(ctx, c.channel(), data).Err(); err != nil {
		return unavailable("publish", err)
	}
	return nil
}

func (c *Client) channel() string              { return c.cfg.Prefix + ":auth" }
func (c *Client) userKey(id string) string     { return c.cfg.Prefix + ":user:" + id }
func (c *Client) emailKey(addr string) string  { return c.cfg.Prefix + ":user-email:" + addr }
func (c *Client) sessionKey(sid string) string { return c.cfg.Prefix + ":session:" + sid }
func (c *Client) userSessionsKey(id string) string {
	return c.cfg.Prefix + ":user-sessions:" + id
}

func normalizeEmail(email string) (string, error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || parsed.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(parsed.Address), nil
}

func userFromHash(fields map[string]string) *auth.User {
	created, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return &auth.User{
		ID:          fields["id"],
		Email:       fields["email"],
		DisplayName: fields["display_name"],
		CreatedAt:   created,
	}
}

func unavailable(op string, err error) error {
	return oops.
		In("backend").
		Code("backend_unavailable").
		With("op", op).
		Wrapf(err, "auth backend %s", op)
}
