package httpmw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/chat-service/internal/auth"
	"github.com/cwrk-planet/chat-service/internal/domain"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

type PrincipalVerifier interface {
	Principal(token string) (domain.Authenticated, error)
}

// AuthMiddleware requires a valid bearer JWT. Unlike the socket gateway it
// does not fall back to a guest: every route behind it is per-user.
func AuthMiddleware(v PrincipalVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			p, err := v.Principal(token)
			if err != nil {
				slog.Debug("http auth rejected", "path", r.URL.Path, "err", err)
				writeUnauthorized(w, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPrincipal, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

func PrincipalFromCtx(ctx context.Context) (domain.Authenticated, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(domain.Authenticated)
	return p, ok
}

func UserIDFromCtx(ctx context.Context) int64 {
	if p, ok := PrincipalFromCtx(ctx); ok {
		return p.UserID
	}
	return 0
}
