// Package identity assigns each visitor a stable id kept in a long lived
// cookie. Deterministic backends bucket visitors by this id.
package identity

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultCookieName holds the visitor id.
	DefaultCookieName = "user_id"
	// DefaultMaxAge keeps the visitor id for one year.
	DefaultMaxAge = 365 * 24 * time.Hour
)

// Option configures the identity middleware.
type Option func(*config)

type config struct {
	cookieName string
	maxAge     time.Duration
	redirect   bool
	generate   func() string
	logger     *slog.Logger
}

func applyOptions(opts []Option) config {
	cfg := config{
		cookieName: DefaultCookieName,
		maxAge:     DefaultMaxAge,
		redirect:   true,
		generate:   uuid.NewString,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) Option {
	return func(cfg *config) {
		if name != "" {
			cfg.cookieName = name
		}
	}
}

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.maxAge = d
		}
	}
}

// WithRedirect controls whether a first visit is answered with a 307 to the
// same URL once the cookie is set. When disabled the request continues with
// the new id on its context.
func WithRedirect(redirect bool) Option {
	return func(cfg *config) {
		cfg.redirect = redirect
	}
}

// WithGenerator replaces uuid.NewString for new ids.
func WithGenerator(fn func() string) Option {
	return func(cfg *config) {
		if fn != nil {
			cfg.generate = fn
		}
	}
}

// WithLogger sets the middleware logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

type contextKey struct{}

// ContextWithUserID binds the visitor id to ctx.
func ContextWithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the visitor id bound to ctx.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// FromRequest reads the visitor id cookie.
func FromRequest(r *http.Request, cookieName string) (string, bool) {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Middleware ensures every request carries a visitor id.
func Middleware(next http.Handler, opts ...Option) http.Handler {
	cfg := applyOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := FromRequest(r, cfg.cookieName); ok {
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), id)))
			return
		}

		id := cfg.generate()
		http.SetCookie(w, &http.Cookie{
			Name:     cfg.cookieName,
			Value:    id,
			Path:     "/",
			MaxAge:   int(cfg.maxAge / time.Second),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		if cfg.redirect {
			cfg.logger.DebugContext(r.Context(), "identity: assigned visitor id, redirecting", "path", r.URL.Path)
			http.Redirect(w, r, r.URL.RequestURI(), http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), id)))
	})
}
