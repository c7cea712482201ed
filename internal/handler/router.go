package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/moodchat/backend/internal/config"
	authHandler "github.com/zhouzirui/moodchat/backend/internal/handler/auth"
	"github.com/zhouzirui/moodchat/backend/internal/handler/chat"
	"github.com/zhouzirui/moodchat/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/moodchat/backend/internal/middleware"
	aiService "github.com/zhouzirui/moodchat/backend/internal/service/ai"
	authService "github.com/zhouzirui/moodchat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/moodchat/backend/internal/service/chat"
	"github.com/zhouzirui/moodchat/backend/pkg/utils"
)

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires HTTP routes to core services. aiSvc may be nil when no
// model provider is configured.
func NewRouter(cfg *config.Config, db Pinger, authSvc *authService.Service, chatSvc *chatService.Service, aiSvc *aiService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.Server.FrontendURL))

	r.Get("/healthz", handleHealth(db))

	requireAuth := middlewarePkg.Authenticate(authSvc.Tokens())

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))

		authHandler.New(authSvc).RegisterRoutes(api, requireAuth)

		api.Group(func(protected chi.Router) {
			protected.Use(requireAuth)

			protected.Route("/conversations", func(conversations chi.Router) {
				chat.New(chatSvc).RegisterRoutes(conversations)
				stream.New(chatSvc).RegisterRoutes(conversations)
			})
		})

		api.Get("/llm/metrics", func(w http.ResponseWriter, r *http.Request) {
			if aiSvc == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "ai service unavailable")
				return
			}
			utils.RespondJSON(w, http.StatusOK, aiSvc.Metrics())
		})

		api.With(requireAuth).Delete("/llm/cache", func(w http.ResponseWriter, r *http.Request) {
			if aiSvc == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "ai service unavailable")
				return
			}
			aiSvc.ClearCache()
			log.Println("[ai] response cache cleared via api")
			utils.RespondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cache cleared"})
		})
	})

	return r
}

func handleHealth(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			log.Printf("[health] database ping failed: %v", err)
			utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
	}
}
