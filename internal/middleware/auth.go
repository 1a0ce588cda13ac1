package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/soaringjerry/hitlrate/internal/services"
)

type authCtxKey int

const authKey authCtxKey = 7

// TokenCookie is the cookie the browser client stores the access token in.
const TokenCookie = "hitl_token"

type Claims struct {
	UID      string        `json:"uid"`
	Username string        `json:"username"`
	Role     services.Role `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// SignToken matches services.TokenSigner.
func (a *Authenticator) SignToken(uid, username string, role services.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{UID: uid, Username: username, Role: role, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) parseToken(tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid && c.UID != "" && c.Role.Valid() {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// WithAuth attaches claims to the context when the bearer header or the
// token cookie carries a valid token.
func (a *Authenticator) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := tokenFromRequest(r); tok != "" {
			if c, err := a.parseToken(tok); err == nil {
				ctx := context.WithValue(r.Context(), authKey, c)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Value(authKey).(*Claims); !ok {
			deny(w, http.StatusUnauthorized, services.ErrorUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireRole(role services.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := r.Context().Value(authKey).(*Claims)
			if !ok {
				deny(w, http.StatusUnauthorized, services.ErrorUnauthorized, "not authenticated")
				return
			}
			if c.Role != role {
				deny(w, http.StatusForbidden, services.ErrorForbidden, string(role)+" role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func PrincipalFromContext(ctx context.Context) (services.Principal, bool) {
	if c, ok := ctx.Value(authKey).(*Claims); ok {
		return services.Principal{UserID: c.UID, Username: c.Username, Role: c.Role}, true
	}
	return services.Principal{}, false
}

func deny(w http.ResponseWriter, status int, code services.ErrorCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": string(code), "message": msg}})
}
