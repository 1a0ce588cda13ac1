package api

import (
	"net/http"
	"time"

	"github.com/soaringjerry/hitlrate/internal/middleware"
	"github.com/soaringjerry/hitlrate/internal/services"
)

func (rt *Router) setTokenCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   rt.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "register", err)
		return
	}
	res, err := rt.users.Register(r.Context(), in)
	if err != nil {
		rt.writeError(w, r, "register", err)
		return
	}
	rt.setTokenCookie(w, res.Token, rt.users.TokenTTL())
	writeJSON(w, http.StatusCreated, res)
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "login", err)
		return
	}
	res, err := rt.users.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		rt.writeError(w, r, "login", err)
		return
	}
	rt.setTokenCookie(w, res.Token, rt.users.TokenTTL())
	writeJSON(w, http.StatusOK, res)
}

// POST /api/auth/logout
func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   rt.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GET /api/auth/me
func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := rt.users.Me(r.Context(), principal(r))
	if err != nil {
		rt.writeError(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GET /api/users/raters
func (rt *Router) handleListRaters(w http.ResponseWriter, r *http.Request) {
	raters, err := rt.users.ListRaters(r.Context(), principal(r))
	if err != nil {
		rt.writeError(w, r, "list raters", err)
		return
	}
	writeJSON(w, http.StatusOK, raters)
}
