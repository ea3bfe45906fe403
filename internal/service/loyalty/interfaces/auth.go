package interfaces

import (
	"context"
	"net/http"
	"strings"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/service/loyalty/domain"
)

type ctxKey struct{}

// Authenticator 把访问令牌解析为商户 ID
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// BusinessIDFrom 返回鉴权中间件写入的商户 ID
func BusinessIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequireAuth 校验 Authorization: Bearer <token>，scheme 不区分大小写
func RequireAuth(auth Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			writeError(w, r, domain.ErrUnauthorized)
			return
		}
		businessID, err := auth.Authenticate(token)
		if err != nil {
			writeError(w, r, domain.ErrUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, businessID)
		l := logger.Ctx(ctx).With().Str("business_id", businessID).Logger()
		next.ServeHTTP(w, r.WithContext(l.WithContext(ctx)))
	})
}
