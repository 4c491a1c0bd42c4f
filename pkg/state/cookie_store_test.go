package state_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/pkg/state"
)

func responseCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestCookieStoreSaveThenLoadFromNextRequest(t *testing.T) {
	for _, codec := range []state.Codec{state.JSONCodec{}, state.CBORCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
			rec := httptest.NewRecorder()
			store := state.NewCookieStore(httptest.NewRequest(http.MethodGet, "/", nil), rec,
				state.WithCodec(codec),
				state.WithClock(func() time.Time { return fixed }),
			)

			meta, err := store.Save(context.Background(), state.Ref{}, variants.Assignment{"a": "x", "b": "y z"}, state.Meta{})
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if meta.MaxAge != state.DefaultMaxAge || !meta.UpdatedAt.Equal(fixed) {
				t.Fatalf("unexpected meta %+v", meta)
			}

			cookie := responseCookie(t, rec, state.DefaultCookieName)
			if cookie.MaxAge != int(state.DefaultMaxAge/time.Second) {
				t.Fatalf("expected 24h max age, got %d", cookie.MaxAge)
			}
			if cookie.Path != "/" {
				t.Fatalf("expected root path, got %q", cookie.Path)
			}

			next := httptest.NewRequest(http.MethodGet, "/", nil)
			next.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
			loaded, _, ok, err := state.NewCookieStore(next, nil, state.WithCodec(codec)).Load(context.Background(), state.Ref{})
			if err != nil || !ok {
				t.Fatalf("load: ok=%v err=%v", ok, err)
			}
			if !loaded.Equal(variants.Assignment{"a": "x", "b": "y z"}) {
				t.Fatalf("unexpected loaded assignment %v", loaded)
			}
		})
	}
}

func TestCookieStoreMissingAndMalformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, _, ok, err := state.NewCookieStore(req, nil).Load(context.Background(), state.Ref{}); ok || err != nil {
		t.Fatalf("missing cookie should report ok=false, got ok=%v err=%v", ok, err)
	}

	req.AddCookie(&http.Cookie{Name: state.DefaultCookieName, Value: "not-json"})
	if _, _, ok, err := state.NewCookieStore(req, nil).Load(context.Background(), state.Ref{}); ok || err != nil {
		t.Fatalf("malformed cookie should be ignored, got ok=%v err=%v", ok, err)
	}
}

func TestCookieStoreLogsOnlyToConfiguredLogger(t *testing.T) {
	var global bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&global, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: state.DefaultCookieName, Value: "not-json"})
	if _, _, ok, _ := state.NewCookieStore(req, nil).Load(context.Background(), state.Ref{}); ok {
		t.Fatalf("malformed cookie should be ignored")
	}
	if global.Len() != 0 {
		t.Fatalf("default store must not log to slog.Default, got %q", global.String())
	}

	var own bytes.Buffer
	store := state.NewCookieStore(req, nil, state.WithCookieLogger(slog.New(slog.NewTextHandler(&own, nil))))
	if _, _, ok, _ := store.Load(context.Background(), state.Ref{}); ok {
		t.Fatalf("malformed cookie should be ignored")
	}
	if !bytes.Contains(own.Bytes(), []byte("malformed assignment cookie")) {
		t.Fatalf("expected warning on configured logger, got %q", own.String())
	}
}

func TestCookieStoreLoadSeesOwnSave(t *testing.T) {
	store := state.NewCookieStore(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder(), state.WithCookieName("av"))
	if _, err := store.Save(context.Background(), state.Ref{}, variants.Assignment{"a": "x"}, state.Meta{MaxAge: time.Hour}); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, meta, ok, err := store.Load(context.Background(), state.Ref{})
	if err != nil || !ok || loaded["a"] != "x" {
		t.Fatalf("expected saved value, got %v ok=%v err=%v", loaded, ok, err)
	}
	if meta.MaxAge != time.Hour {
		t.Fatalf("expected explicit max age, got %s", meta.MaxAge)
	}
	if store.Name() != "av" {
		t.Fatalf("expected custom name, got %q", store.Name())
	}
}

func TestCookieStoreSaveWithoutWriter(t *testing.T) {
	store := state.NewCookieStore(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	if _, err := store.Save(context.Background(), state.Ref{}, variants.Assignment{}, state.Meta{}); err != state.ErrNoWriter {
		t.Fatalf("expected ErrNoWriter, got %v", err)
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"", "json", "cbor"} {
		if _, err := state.CodecByName(name); err != nil {
			t.Fatalf("codec %q: %v", name, err)
		}
	}
	if _, err := state.CodecByName("xml"); err == nil {
		t.Fatalf("expected unknown codec error")
	}
}
