package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goBlog/auth"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("session store already started")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("session store closed")
)

// Source tells observers which writer produced a [Change].
type Source uint8

const (
	// SourceInitial is the startup GetUser query.
	SourceInitial Source = iota + 1
	// SourceEvent is a backend auth-state-change notification.
	SourceEvent
)

func (s Source) String() string {
	switch s {
	case SourceInitial:
		return "initial"
	case SourceEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Change is delivered to observers after every write.
type Change struct {
	User   *auth.User
	Event  auth.Event
	Source Source
	Seq    uint64
}

// Options tune a [Store]. The zero value gives one initial attempt with no
// timeout.
type Options struct {
	Logger *slog.Logger
	// InitialRetries is how many extra attempts the initial query gets.
	InitialRetries uint64
	// RetryBase is the first backoff interval between attempts. Default 100ms.
	RetryBase time.Duration
	// InitialTimeout bounds each initial attempt. Zero means no bound.
	InitialTimeout time.Duration
	// OnInitialError is called once when the initial query finally fails.
	OnInitialError func(error)
}

// Store is the observable session cell. Create it with [NewStore].
type Store struct {
	backend auth.Backend
	opts    Options
	log     *slog.Logger

	// writeMu serializes write + notify so observers see changes in write order.
	writeMu sync.Mutex

	mu        sync.Mutex
	user      *auth.User
	seq       uint64
	events    uint64
	observers map[uint64]func(Change)
	nextObs   uint64
	sub       auth.Subscription
	cancel    context.CancelFunc
	closed    bool

	started   atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
	wg        sync.WaitGroup
}

// NewStore returns an unstarted store reading from backend.
func NewStore(backend auth.Backend, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 100 * time.Millisecond
	}
	return &Store{
		backend:   backend,
		opts:      opts,
		log:       opts.Logger.With("component", "session_store"),
		observers: make(map[uint64]func(Change)),
		ready:     make(chan struct{}),
	}
}

// Start subscribes to backend notifications and issues the initial query in
// the background. ctx supplies values only; the query outlives it and is
// stopped by Close.
func (s *Store) Start(ctx context.Context) error {
	if s.backend == nil {
		return errors.New("session store: nil backend")
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.sub = s.backend.OnAuthStateChange(s.onAuthStateChange)
	qctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	marker := s.events
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.markReady()
		user, err := s.queryInitial(qctx)
		s.applyInitial(user, err, marker)
	}()

	return nil
}

// Current returns a copy of the logged-in user, or nil.
func (s *Store) Current() *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

// Seq increases by one on every applied write.
func (s *Store) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Ready is closed once the initial query has resolved, failed, or been
// abandoned by Close.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// GetUser reads the cached value. It lets a Store stand in wherever an
// [auth.UserQuerier] is expected.
func (s *Store) GetUser(context.Context) (*auth.User, error) {
	return s.Current(), nil
}

// Observe registers fn for every future change. Observers run synchronously on
// the writing goroutine and must not call Close.
func (s *Store) Observe(fn func(Change)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	s.nextObs++
	id := s.nextObs
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Close releases the backend subscription, abandons a pending initial query and
// detaches observers. The last value stays readable. Close is idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub, cancel := s.sub, s.cancel
	s.sub, s.cancel = nil, nil
	s.observers = map[uint64]func(Change){}
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.markReady()
}

func (s *Store) queryInitial(ctx context.Context) (*auth.User, error) {
	var user *auth.User
	backoff := retry.WithMaxRetries(s.opts.InitialRetries, retry.NewExponential(s.opts.RetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		actx := ctx
		if s.opts.InitialTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, s.opts.InitialTimeout)
			defer cancel()
		}
		u, err := s.backend.GetUser(actx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Debug("initial session query attempt failed", "error", err)
			return retry.RetryableError(err)
		}
		user = u
		return nil
	})
	return user, err
}

func (s *Store) applyInitial(user *auth.User, err error, marker uint64) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("initial session query failed; treating as signed out", "error", err)
		if s.opts.OnInitialError != nil {
			s.opts.OnInitialError(err)
		}
		return
	}
	if s.events != marker {
		s.mu.Unlock()
		s.log.Debug("discarding initial session result superseded by notification")
		return
	}
	change := s.writeLocked(user, "", SourceInitial)
	observers := s.snapshotObserversLocked()
	s.mu.Unlock()

	notify(observers, change)
}

func (s *Store) onAuthStateChange(event auth.Event, session *auth.Session) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.events++
	change := s.writeLocked(session.UserOrNil(), event, SourceEvent)
	observers := s.snapshotObserversLocked()
	s.mu.Unlock()

	s.log.Debug("session updated from notification", "event", string(event), "signed_in", change.User != nil)
	notify(observers, change)
}

func (s *Store) writeLocked(user *auth.User, event auth.Event, source Source) Change {
	s.user = user.Clone()
	s.seq++
	return Change{User: s.user, Event: event, Source: source, Seq: s.seq}
}

func (s *Store) snapshotObserversLocked() []func(Change) {
	out := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		out = append(out, fn)
	}
	return out
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func notify(observers []func(Change), change Change) {
	for _, fn := range observers {
		c := change
		c.User = change.User.Clone()
		fn(c)
	}
}
