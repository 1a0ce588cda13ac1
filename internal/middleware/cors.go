package middleware

import (
	"net/http"
	"sync/atomic"
)

// CORS answers preflights and sets the allow headers for configured origins.
// A "*" entry allows any origin without credentials. Origins can be swapped
// at runtime with SetOrigins.
type CORS struct {
	origins atomic.Pointer[[]string]
}

func NewCORS(origins []string) *CORS {
	c := &CORS{}
	c.SetOrigins(origins)
	return c
}

func (c *CORS) SetOrigins(origins []string) {
	cp := append([]string(nil), origins...)
	c.origins.Store(&cp)
}

func (c *CORS) allowed(origin string) (string, bool) {
	for _, o := range *c.origins.Load() {
		if o == "*" {
			return "*", false
		}
		if o == origin {
			return origin, true
		}
	}
	return "", false
}

func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if allow, creds := c.allowed(origin); allow != "" {
				w.Header().Set("Access-Control-Allow-Origin", allow)
				if creds {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
				w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
