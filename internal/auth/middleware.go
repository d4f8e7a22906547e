package auth

import (
	"context"
	"net/http"
	"strings"

	"schedule-management-backend/internal/analytics"
	"schedule-management-backend/internal/httpx"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

type Middleware struct {
	secret []byte
}

func New(secret []byte) Middleware {
	return Middleware{secret: secret}
}

func (m Middleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			httpx.Fail(w, httpx.NewError(http.StatusUnauthorized, "UNAUTHORIZED", "missing token"))
			return
		}

		tokenString := strings.TrimPrefix(h, "Bearer ")
		userID, err := ParseToken(m.secret, tokenString)
		if err != nil {
			httpx.Fail(w, httpx.NewError(http.StatusUnauthorized, "UNAUTHORIZED", "invalid token"))
			return
		}

		ctx := WithUserID(r.Context(), userID)

		// analytics reads the user from its own key
		ctx = analytics.WithUserID(ctx, userID)

		next(w, r.WithContext(ctx))
	}
}

// Handler adapts Wrap for routers that take http.Handler middleware.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return m.Wrap(next.ServeHTTP)
}

func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return 0, false
	}
	uid, ok := v.(int)
	return uid, ok
}
