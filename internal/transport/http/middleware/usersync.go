package httpmw

import (
	"context"
	"log/slog"
	"net/http"
)

type UserEnsurer interface {
	EnsureUser(ctx context.Context, id int64, username string) error
}

// UserSyncMiddleware upserts the authenticated principal into the user table
// so favorites and push endpoints have an owner row. Best effort: a failure
// never aborts the request.
func UserSyncMiddleware(users UserEnsurer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := PrincipalFromCtx(r.Context()); ok && p.Username != "" {
				if err := users.EnsureUser(r.Context(), p.UserID, p.Username); err != nil {
					slog.Warn("user sync failed", "user", p.UserID, "err", err)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
