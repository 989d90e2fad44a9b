package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/cors"
)

// CORS allows browser clients to call the API. Origins come from
// CORS_ALLOWED_ORIGINS (comma separated); when unset every origin is allowed.
func CORS(next http.Handler) http.Handler {
	return NewCORS(strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ","))(next)
}

// NewCORS builds a CORS middleware for the given origin allow-list.
func NewCORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
}
