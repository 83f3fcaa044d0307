package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// CORS returns middleware that applies the configured allowed origin policy.
// Browser checkout needs the Authorization and Idempotency-Key headers.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, responses.RequestIDHeader},
		ExposedHeaders:   []string{responses.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           cfg.MaxAgeSeconds,
	}).Handler
}
