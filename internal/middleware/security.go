package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecureHeaders adds standard security headers.
func SecureHeaders(isDevelopment bool) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		PermissionsPolicy:  "camera=(), microphone=(), geolocation=()",
		IsDevelopment:      isDevelopment,
	})
	return s.Handler
}
