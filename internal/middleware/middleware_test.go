package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/moodchat/backend/internal/model/user"
	"github.com/zhouzirui/moodchat/backend/internal/service/auth"
)

func whoami(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "no identity", http.StatusInternalServerError)
		return
	}
	w.Write([]byte(id.UserID + "|" + id.Type))
}

func TestAuthenticateAcceptsHeaderAndQueryToken(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	token, err := tokens.Issue(user.User{ID: "u1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	h := Authenticate(tokens)(http.HandlerFunc(whoami))

	for name, req := range map[string]*http.Request{
		"bearer": func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			return r
		}(),
		"raw header": func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", token)
			return r
		}(),
		"query": httptest.NewRequest(http.MethodGet, "/?token="+token, nil),
	} {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK || resp.Body.String() != "u1|user" {
			t.Fatalf("%s: unexpected response %d %q", name, resp.Code, resp.Body)
		}
	}
}

func TestAuthenticateRejects(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	h := Authenticate(tokens)(http.HandlerFunc(whoami))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized || !strings.Contains(resp.Body.String(), `"success":false`) {
		t.Fatalf("unexpected response %d %s", resp.Code, resp.Body)
	}

	expired := auth.NewTokenManager("secret", -time.Minute)
	token, _ := expired.Issue(user.User{ID: "u1"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized || !strings.Contains(resp.Body.String(), "Token has expired") {
		t.Fatalf("unexpected expired response %d %s", resp.Code, resp.Body)
	}
}

func TestRateLimitReturnsJSON(t *testing.T) {
	h := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", last.Code)
	}
	if !strings.Contains(last.Body.String(), "Maximum 2 requests per 60 seconds") {
		t.Fatalf("unexpected body %s", last.Body)
	}
}

func TestCORSAllowsFrontend(t *testing.T) {
	h := CORS("https://chat.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/conversations", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://chat.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for unknown site %q", got)
	}
}
