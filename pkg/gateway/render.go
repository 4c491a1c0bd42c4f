package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/pkg/identity"
	"github.com/goliatone/go-variants/pkg/state"
)

// Gin runs the gateway as gin middleware. Rewritten requests are dispatched
// again through engine so routes declared under the ":variants" parameter
// serve them.
func (g *Gateway) Gin(engine *gin.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcome, err := g.Handle(c.Writer, c.Request)
		if err != nil {
			g.onError(c.Writer, c.Request, err)
			c.Abort()
			return
		}
		if !outcome.Rewritten() {
			c.Next()
			return
		}
		c.Request.URL.Path = outcome.Path
		c.Request.URL.RawPath = ""
		engine.HandleContext(c)
		c.Abort()
	}
}

// Renderer strips the token segment written by the gateway, provides the
// decoded assignment to a fresh request scope and serves next with the
// original path. Requests without a token are served with an empty
// assignment.
func (g *Gateway) Renderer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, rest, ok := variants.SplitTokenPath(r.URL.Path)
		if !ok {
			g.logger.WarnContext(r.Context(), "gateway: request reached renderer without a token",
				"path", r.URL.Path,
			)
			token = variants.TokenPrefix
		}
		ctx, err := g.provide(r.Context(), token)
		if err != nil {
			g.onError(w, r, err)
			return
		}
		out := r.Clone(ctx)
		out.URL.Path = rest
		out.URL.RawPath = ""
		next.ServeHTTP(w, out)
	})
}

// GinRenderer provides the assignment carried by the ":variants" route
// parameter to the request scope.
func (g *Gateway) GinRenderer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param(variants.ParamName)
		if token == "" {
			g.logger.WarnContext(c.Request.Context(), "gateway: route has no variants parameter",
				"path", c.Request.URL.Path,
			)
			token = variants.TokenPrefix
		}
		ctx, err := g.provide(c.Request.Context(), token)
		if err != nil {
			g.onError(c.Writer, c.Request, err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// provide binds a render scope to ctx and publishes the decoded token.
func (g *Gateway) provide(ctx context.Context, token string) (context.Context, error) {
	opts := append([]variants.ScopeOption{variants.WithDeadlockTimeout(g.deadlock)}, g.scopeOpts...)
	ctx = variants.ContextWithScope(ctx, variants.NewScope(opts...))
	if _, err := variants.ProvideToken(ctx, token); err != nil {
		return nil, err
	}
	return ctx, nil
}

// DebugReport is the payload written by DebugHandler.
type DebugReport struct {
	Visitor  string                  `json:"visitor,omitempty"`
	Assigned variants.Assignment     `json:"assigned"`
	Variants []variants.CatalogEntry `json:"variants"`
}

// DebugHandler writes the assignment provided for the request and the
// descriptor catalog as JSON. Mount it behind Renderer.
func (g *Gateway) DebugHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assigned, _ := variants.PeekAssigned(r.Context())
		if assigned == nil {
			assigned = variants.Assignment{}
		}
		var ds []*variants.Descriptor
		if g.registry != nil {
			ds = g.registry.All()
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		visitor, _ := g.visitorID(r)
		report := DebugReport{Visitor: visitor, Assigned: assigned, Variants: variants.Catalog(assigned, ds...)}
		if err := enc.Encode(report); err != nil {
			g.logger.WarnContext(r.Context(), "gateway: write debug report", "error", err)
		}
	})
}

// ResetHandler expires the assignment cookie, and the visitor cookie when
// visitor is true, then redirects to redirect or the referer.
func (g *Gateway) ResetHandler(redirect string, visitor bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		names := []string{g.cookieName()}
		if visitor {
			names = append(names, g.identityCookie)
		}
		for _, name := range names {
			http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
		}
		target := redirect
		if target == "" {
			target = r.Referer()
		}
		if target == "" {
			target = "/"
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	})
}

func (g *Gateway) cookieName() string {
	return state.NewCookieStore(nil, nil, g.cookieOpts...).Name()
}

// visitorID returns the visitor bound to r, if any.
func (g *Gateway) visitorID(r *http.Request) (string, bool) {
	if id, ok := identity.FromContext(r.Context()); ok {
		return id, true
	}
	return identity.FromRequest(r, g.identityCookie)
}
