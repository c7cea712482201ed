package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/zhouzirui/moodchat/backend/pkg/utils"
)

// RateLimit caps requests per client IP within a sliding window.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	message := fmt.Sprintf("Maximum %d requests per %d seconds", requests, int(window.Seconds()))
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("[ratelimit] limit exceeded for %s", r.RemoteAddr)
			utils.RespondJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":   "Rate limit exceeded",
				"message": message,
			})
		}),
	)
}
