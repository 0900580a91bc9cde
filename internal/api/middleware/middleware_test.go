package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	internaljwt "storefront-chat/internal/jwt"
	"storefront-chat/internal/service/chat"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}

	h := Chain(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}, mark("a"), mark("b"))
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"a", "b", "handler"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v", order)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins:   []string{"https://shop.test"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}
	called := false
	h := CORS(cfg)(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://shop.test")
	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusNoContent || called {
		t.Fatalf("expected preflight to short-circuit with 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != "GET, POST" {
		t.Fatalf("unexpected methods header %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
	if rec.Header().Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("unexpected max age %q", rec.Header().Get("Access-Control-Max-Age"))
	}

	// No Origin header: the terminal client and server-to-server calls.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil)
	rec = httptest.NewRecorder()
	h(rec, req)
	if !called || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected plain request to pass without CORS headers")
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", rec.Code)
	}
}

type stubResolver struct {
	identity chat.Identity
	err      error
}

func (s stubResolver) IdentityFromAuthorizationHeader(string) (chat.Identity, error) {
	return s.identity, s.err
}

func TestAuthenticateStoresIdentity(t *testing.T) {
	want := chat.Identity{UserID: "agent-1", Role: internaljwt.RoleAgent}
	var got chat.Identity
	h := Chain(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}, Authenticate(stubResolver{identity: want}), RequireStaff())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got != want {
		t.Fatalf("unexpected identity %+v", got)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	h := Authenticate(stubResolver{err: &chat.Error{Code: chat.ErrorCodeUnauthorized, Message: "invalid token"}})(
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("handler should not run") },
	)
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	staffOnly := Chain(func(w http.ResponseWriter, r *http.Request) { t.Fatal("handler should not run") },
		Authenticate(stubResolver{identity: chat.Identity{UserID: "c1", Role: internaljwt.RoleCustomer}}), RequireStaff())
	rec = httptest.NewRecorder()
	staffOnly(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
