package state

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	variants "github.com/goliatone/go-variants"
)

const (
	// DefaultCookieName is the cookie holding persisted assignments.
	DefaultCookieName = "assignedVariants"
	// DefaultMaxAge is how long persisted assignments are retained.
	DefaultMaxAge = 24 * time.Hour
)

// CookieOption configures a CookieStore.
type CookieOption func(*CookieStore)

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) CookieOption {
	return func(s *CookieStore) {
		if name != "" {
			s.name = name
		}
	}
}

// WithCookiePath sets the cookie path, "/" by default.
func WithCookiePath(path string) CookieOption {
	return func(s *CookieStore) {
		if path != "" {
			s.path = path
		}
	}
}

// WithCodec selects the cookie value encoding.
func WithCodec(codec Codec) CookieOption {
	return func(s *CookieStore) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithSecure marks the cookie Secure.
func WithSecure(secure bool) CookieOption {
	return func(s *CookieStore) {
		s.secure = secure
	}
}

// WithCookieLogger sets the logger used to report malformed cookies.
func WithCookieLogger(logger *slog.Logger) CookieOption {
	return func(s *CookieStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for Meta.UpdatedAt.
func WithClock(now func() time.Time) CookieOption {
	return func(s *CookieStore) {
		if now != nil {
			s.now = now
		}
	}
}

// CookieStore persists assignments in a cookie of one request/response pair.
// Saved values are visible to later Loads on the same store.
type CookieStore struct {
	request *http.Request
	writer  http.ResponseWriter
	name    string
	path    string
	secure  bool
	codec   Codec
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	saved variants.Assignment
	meta  Meta
}

// NewCookieStore binds a store to r and w. w may be nil for read only use.
func NewCookieStore(r *http.Request, w http.ResponseWriter, opts ...CookieOption) *CookieStore {
	s := &CookieStore{
		request: r,
		writer:  w,
		name:    DefaultCookieName,
		path:    "/",
		codec:   JSONCodec{},
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Name returns the cookie name.
func (s *CookieStore) Name() string {
	return s.name
}

// Load reads the assignment cookie. Missing or malformed cookies report
// ok=false; malformed ones are logged.
func (s *CookieStore) Load(ctx context.Context, _ Ref) (variants.Assignment, Meta, bool, error) {
	s.mu.Lock()
	if s.saved != nil {
		defer s.mu.Unlock()
		return s.saved.Clone(), cloneMeta(s.meta), true, nil
	}
	s.mu.Unlock()

	if s.request == nil {
		return nil, Meta{}, false, nil
	}
	cookie, err := s.request.Cookie(s.name)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, Meta{}, false, nil
	}
	if err != nil {
		return nil, Meta{}, false, err
	}
	assigned, err := s.codec.Decode(cookie.Value)
	if err != nil {
		s.logger.WarnContext(ctx, "state: ignoring malformed assignment cookie",
			"cookie", s.name,
			"codec", s.codec.Name(),
			"error", err,
		)
		return nil, Meta{}, false, nil
	}
	return assigned, Meta{}, true, nil
}

// Save writes the assignment cookie. MaxAge defaults to DefaultMaxAge.
func (s *CookieStore) Save(_ context.Context, _ Ref, assigned variants.Assignment, meta Meta) (Meta, error) {
	if s.writer == nil {
		return Meta{}, ErrNoWriter
	}
	value, err := s.codec.Encode(assigned)
	if err != nil {
		return Meta{}, err
	}
	out := cloneMeta(meta)
	if out.MaxAge <= 0 {
		out.MaxAge = DefaultMaxAge
	}
	out.UpdatedAt = s.now()

	http.SetCookie(s.writer, &http.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     s.path,
		MaxAge:   int(out.MaxAge / time.Second),
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	s.mu.Lock()
	s.saved = assigned.Clone()
	s.meta = cloneMeta(out)
	s.mu.Unlock()
	return out, nil
}
