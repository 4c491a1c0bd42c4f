package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func captureHandler(seen *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddlewareRedirectsFirstVisit(t *testing.T) {
	var seen string
	handler := Middleware(captureHandler(&seen), WithGenerator(func() string { return "visitor-1" }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/foo?x=1", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/foo?x=1" {
		t.Fatalf("expected redirect to same url, got %q", loc)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DefaultCookieName || cookies[0].Value != "visitor-1" {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
	if cookies[0].MaxAge != int(DefaultMaxAge/time.Second) || cookies[0].Path != "/" {
		t.Fatalf("unexpected cookie attributes %+v", cookies[0])
	}
	if seen != "" {
		t.Fatalf("next handler must not run on redirect")
	}
}

func TestMiddlewareContinuesWithoutRedirect(t *testing.T) {
	var seen string
	handler := Middleware(captureHandler(&seen), WithRedirect(false), WithGenerator(func() string { return "visitor-2" }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected next handler status, got %d", rec.Code)
	}
	if seen != "visitor-2" {
		t.Fatalf("expected new id on context, got %q", seen)
	}
}

func TestMiddlewareReusesCookie(t *testing.T) {
	var seen string
	handler := Middleware(captureHandler(&seen), WithCookieName("vid"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "vid", Value: "existing"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "existing" {
		t.Fatalf("expected cookie id, got %q", seen)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("existing visitors must not get a new cookie")
	}
}

func TestMiddlewareGeneratesUUIDByDefault(t *testing.T) {
	var seen string
	handler := Middleware(captureHandler(&seen), WithRedirect(false))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 36 {
		t.Fatalf("expected uuid visitor id, got %q", seen)
	}
}
