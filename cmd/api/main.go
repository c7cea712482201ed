package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/moodchat/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/moodchat/backend/internal/config"
	"github.com/zhouzirui/moodchat/backend/internal/handler"
	"github.com/zhouzirui/moodchat/backend/internal/service/ai"
	"github.com/zhouzirui/moodchat/backend/internal/service/auth"
	"github.com/zhouzirui/moodchat/backend/internal/service/chat"
	"github.com/zhouzirui/moodchat/backend/internal/service/memory"
	"github.com/zhouzirui/moodchat/backend/internal/service/vision"
	"github.com/zhouzirui/moodchat/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Initialize AI service
	var responder chat.Responder
	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = newAIService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 LLM 相关环境变量")
		} else {
			responder = aiService
			log.Printf("AI service initialized (provider=%s)", cfg.AI.Provider)
		}
	} else {
		log.Println("LLM 凭证未配置，跳过 AI 功能初始化")
	}

	var images chat.ImageAnalyzer
	if visionService := vision.NewService(cfg.Vision); visionService.Enabled() {
		images = visionService
		log.Printf("Vision service initialized (model=%s)", cfg.Vision.Model)
	} else {
		log.Println("Vision service disabled")
	}

	chatService := chat.NewService(db, responder, images, sentiment.NewAnalyzer())

	authService := auth.NewService(
		db,
		auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		auth.NewMailer(cfg.Mail),
		cfg.Auth,
		cfg.Server.Development,
	)
	defer authService.Wait()

	router := handler.NewRouter(cfg, db, authService, chatService, aiService)

	startServer(ctx, cfg.Server, router)
}

func newAIService(ctx context.Context, cfg config.AIConfig) (*ai.Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	features := ai.Features{
		Cache:         cfg.EnableCache,
		TaskDetection: cfg.EnableTaskDetection,
		Sentiment:     cfg.EnableSentiment,
		Memory:        cfg.EnableMemory,
	}
	return ai.NewService(ctx, chatModel,
		memory.NewResponseCache(cfg.CacheTTL),
		memory.NewManager(cfg.MemoryWindow),
		features,
	)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("MoodChat backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
