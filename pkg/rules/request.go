package rules

import (
	"context"
	"net/http"
)

// Request holds the request attributes rule conditions can inspect.
type Request struct {
	Path   string
	Query  map[string]string
	Header map[string]string
	Cookie map[string]string
	UserID string
}

// RequestFromHTTP captures r. Multi valued queries and headers keep their
// first value. Header names use their canonical form.
func RequestFromHTTP(r *http.Request) Request {
	if r == nil {
		return Request{}
	}
	req := Request{
		Query:  map[string]string{},
		Header: map[string]string{},
		Cookie: map[string]string{},
	}
	if r.URL != nil {
		req.Path = r.URL.Path
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				req.Query[key] = values[0]
			}
		}
	}
	for key, values := range r.Header {
		if len(values) > 0 {
			req.Header[key] = values[0]
		}
	}
	for _, c := range r.Cookies() {
		if _, seen := req.Cookie[c.Name]; !seen {
			req.Cookie[c.Name] = c.Value
		}
	}
	return req
}

func (r Request) snapshot(variantID string) map[string]any {
	return map[string]any{
		"path":    r.Path,
		"query":   nonNil(r.Query),
		"header":  nonNil(r.Header),
		"cookie":  nonNil(r.Cookie),
		"user_id": r.UserID,
		"variant": variantID,
	}
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

type requestContextKey struct{}

// WithRequest binds req to ctx for rule backed descriptors.
func WithRequest(ctx context.Context, req Request) context.Context {
	return context.WithValue(ctx, requestContextKey{}, req)
}

// RequestFromContext returns the request bound by WithRequest.
func RequestFromContext(ctx context.Context) (Request, bool) {
	if ctx == nil {
		return Request{}, false
	}
	req, ok := ctx.Value(requestContextKey{}).(Request)
	return req, ok
}
