package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// Origins allowed when MARIPOSA_APP_CORS_ORIGINS is unset.
var defaultCORSOrigins = []string{
	"http://localhost:3000",               // local storefront dev
	"https://mariposavintage.com.br",      // production storefront
	"https://www.mariposavintage.com.br",  // production storefront (www)
	"https://mariposa-vintage.vercel.app", // Vercel preview deployments
}

// CORS returns middleware that applies the storefront's allowed origin
// policy. Idempotency-Key must be listed so the checkout call survives the
// browser's preflight.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
