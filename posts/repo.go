package posts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// MaxTitleLength bounds Draft.Title in bytes.
const MaxTitleLength = 200

var (
	ErrNotFound     = errors.New("post not found")
	ErrForbidden    = errors.New("only the author may edit a post")
	ErrInvalidDraft = errors.New("invalid post")
	ErrConflict     = errors.New("post changed concurrently")
)

// Post is a stored blog post.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft is the editable part of a post.
type Draft struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Validate trims d and checks it.
func (d *Draft) Validate() error {
	d.Title = strings.TrimSpace(d.Title)
	d.Body = strings.TrimSpace(d.Body)
	switch {
	case d.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidDraft)
	case len(d.Title) > MaxTitleLength:
		return fmt.Errorf("%w: title exceeds %d bytes", ErrInvalidDraft, MaxTitleLength)
	case d.Body == "":
		return fmt.Errorf("%w: body is required", ErrInvalidDraft)
	}
	return nil
}

// Repo reads and writes posts. Safe for concurrent use.
type Repo struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time

	entropyMu sync.Mutex
	entropy   io.Reader
}

func NewRepo(rdb redis.UniversalClient, prefix string) *Repo {
	if prefix == "" {
		prefix = "goblog"
	}
	return &Repo{
		rdb:     rdb,
		prefix:  prefix,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (r *Repo) postKey(id string) string { return r.prefix + ":post:" + id }
func (r *Repo) indexKey() string         { return r.prefix + ":posts" }

// List returns up to limit posts, newest first. limit <= 0 means 20.
func (r *Repo) List(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := r.rdb.ZRevRange(ctx, r.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, unavailable("list", err)
	}
	if len(ids) == 0 {
		return []Post{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.postKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("list", err)
	}

	out := make([]Post, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, postFromHash(ids[i], fields))
	}
	return out, nil
}

// Get returns the post with id, or ErrNotFound.
func (r *Repo) Get(ctx context.Context, id string) (*Post, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, ErrNotFound
	}
	fields, err := r.rdb.HGetAll(ctx, r.postKey(id)).Result()
	if err != nil {
		return nil, unavailable("get", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	p := postFromHash(id, fields)
	return &p, nil
}

// Create stores a new post by authorID.
func (r *Repo) Create(ctx context.Context, authorID string, d Draft) (*Post, error) {
	if authorID == "" {
		return nil, fmt.Errorf("%w: author is required", ErrInvalidDraft)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC().Truncate(time.Millisecond)
	id, err := r.newID(now)
	if err != nil {
		return nil, fmt.Errorf("post id: %w", err)
	}
	p := Post{ID: id, Title: d.Title, Body: d.Body, AuthorID: authorID, CreatedAt: now, UpdatedAt: now}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.postKey(id), postToHash(p))
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(now.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return nil, unavailable("create", err)
	}
	return &p, nil
}

// Update replaces the title and body of post id. Only its author may do so.
func (r *Repo) Update(ctx context.Context, id, editorID string, d Draft) (*Post, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, ErrNotFound
	}

	key := r.postKey(id)
	var updated Post
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return ErrNotFound
		}
		p := postFromHash(id, fields)
		if p.AuthorID != editorID {
			return ErrForbidden
		}
		p.Title, p.Body, p.UpdatedAt = d.Title, d.Body, r.now().UTC().Truncate(time.Millisecond)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "title", p.Title, "body", p.Body, "updated_at", formatTime(p.UpdatedAt))
			return nil
		})
		if err != nil {
			return err
		}
		updated = p
		return nil
	}, key)

	switch {
	case err == nil:
		return &updated, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
		return nil, err
	case errors.Is(err, redis.TxFailedErr):
		return nil, ErrConflict
	default:
		return nil, unavailable("update", err)
	}
}

func (r *Repo) newID(at time.Time) (string, error) {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), r.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func postToHash(p Post) map[string]any {
	return map[string]any{
		"title":      p.Title,
		"body":       p.Body,
		"author_id":  p.AuthorID,
		"created_at": formatTime(p.CreatedAt),
		"updated_at": formatTime(p.UpdatedAt),
	}
}

func postFromHash(id string, fields map[string]string) Post {
	return Post{
		ID:        id,
		Title:     fields["title"],
		Body:      fields["body"],
		AuthorID:  fields["author_id"],
		CreatedAt: parseTime(fields["created_at"]),
		UpdatedAt: parseTime(fields["updated_at"]),
	}
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func unavailable(op string, err error) error {
	return oops.In("posts").Code("posts_unavailable").With("op", op).Wrapf(err, "posts %s", op)
}
