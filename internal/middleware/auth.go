package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/zhouzirui/moodchat/backend/internal/service/auth"
	"github.com/zhouzirui/moodchat/backend/pkg/utils"
)

type contextKey struct{}

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID string
	Email  string
	Type   string
}

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// Authenticate rejects requests without a valid token. The token is read from
// the Authorization header, or from the token query parameter for websocket
// upgrades where browsers cannot set headers.
func Authenticate(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				utils.RespondFailure(w, http.StatusUnauthorized, "No token provided. Please login first.")
				return
			}

			claims, err := tokens.Parse(raw)
			if err != nil {
				log.Printf("[auth] rejected token: %v", err)
				utils.RespondFailure(w, http.StatusUnauthorized, auth.Message(err))
				return
			}

			ctx := WithIdentity(r.Context(), Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
				Type:   claims.Type,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFrom returns the caller set by Authenticate.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return header
	}
	return r.URL.Query().Get("token")
}
