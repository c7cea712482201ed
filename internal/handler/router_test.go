package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/moodchat/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/moodchat/backend/internal/config"
	"github.com/zhouzirui/moodchat/backend/internal/model/user"
	authService "github.com/zhouzirui/moodchat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/moodchat/backend/internal/service/chat"
	"github.com/zhouzirui/moodchat/backend/internal/store"
)

func newTestRouter(t *testing.T, limit int) (http.Handler, *authService.Service) {
	t.Helper()
	db, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "router.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Server:    config.ServerConfig{FrontendURL: "http://localhost:5173"},
		RateLimit: config.RateLimitConfig{Requests: limit, Window: time.Minute},
	}
	authSvc := authService.NewService(db, authService.NewTokenManager("secret", time.Hour), authService.LogMailer{}, config.AuthConfig{}, false)
	chatSvc := chatService.NewService(db, nil, nil, sentiment.NewAnalyzer())
	return NewRouter(cfg, db, authSvc, chatSvc, nil), authSvc
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t, 60)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health response %d %s", resp.Code, resp.Body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r, authSvc := newTestRouter(t, 60)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	token, err := authSvc.Tokens().Issue(user.User{ID: "u1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || strings.TrimSpace(resp.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %s", resp.Code, resp.Body)
	}
}

func TestMetricsUnavailableWithoutAI(t *testing.T) {
	r, _ := newTestRouter(t, 60)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/llm/metrics", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestAPIRateLimit(t *testing.T) {
	r, _ := newTestRouter(t, 1)

	for i, want := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/api/llm/metrics", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, resp.Code)
		}
	}
}
