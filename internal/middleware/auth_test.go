package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soaringjerry/hitlrate/internal/services"
)

func whoami(t *testing.T, a *Authenticator, req *http.Request) (services.Principal, bool) {
	t.Helper()
	var (
		got services.Principal
		ok  bool
	)
	h := a.WithAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = PrincipalFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got, ok
}

func TestWithAuthBearerAndCookie(t *testing.T) {
	a := NewAuthenticator("test-secret")
	tok, err := a.SignToken("u1", "alice", services.RoleRater, time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	p, ok := whoami(t, a, req)
	if !ok || p.UserID != "u1" || p.Username != "alice" || p.Role != services.RoleRater {
		t.Fatalf("bearer principal = %+v (%v)", p, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tok})
	if p, ok := whoami(t, a, req); !ok || p.UserID != "u1" {
		t.Fatalf("cookie principal = %+v (%v)", p, ok)
	}
}

func TestWithAuthRejectsBadTokens(t *testing.T) {
	a := NewAuthenticator("test-secret")
	other := NewAuthenticator("other-secret")
	foreign, _ := other.SignToken("u1", "alice", services.RoleRater, time.Hour)
	expired, _ := a.SignToken("u1", "alice", services.RoleRater, -time.Minute)

	for name, tok := range map[string]string{"foreign": foreign, "expired": expired, "garbage": "abc"} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tok)
			if _, ok := whoami(t, a, req); ok {
				t.Fatalf("expected no principal")
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	a := NewAuthenticator("test-secret")
	tok, _ := a.SignToken("u1", "alice", services.RoleRater, time.Hour)
	h := a.WithAuth(RequireRole(services.RoleRequester)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("rater status = %d, want 403", rec.Code)
	}
}

func TestCORSOrigins(t *testing.T) {
	c := NewCORS([]string{"https://app.example"})
	h := c.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow origin = %q", got)
	}

	c.SetOrigins([]string{"*"})
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q, want *", got)
	}
}
