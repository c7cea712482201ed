package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const devFrontendOrigin = "http://localhost:5173"

// CORS allows the configured frontend and the local dev server.
func CORS(frontendURL string) func(http.Handler) http.Handler {
	origins := []string{devFrontendOrigin}
	if frontendURL != "" && frontendURL != devFrontendOrigin {
		origins = append(origins, frontendURL)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
