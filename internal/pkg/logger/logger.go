// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// base 是进程级别的根 logger，Init 之前使用一个合理的默认值
var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 根据服务名和日志级别配置根 logger。
// level 无法解析时退回 info。
func Init(serviceName, level string) zerolog.Logger {
	return InitWithWriter(os.Stdout, serviceName, level)
}

// InitWithWriter 与 Init 相同，但允许指定输出（测试中使用）
func InitWithWriter(w io.Writer, serviceName, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	base = zerolog.New(w).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
	return base
}

// L 返回根 logger
func L() *zerolog.Logger {
	return &base
}

// Ctx 返回与 context 绑定的 logger。
// 优先使用中间件注入的 logger；否则基于根 logger 附加 trace_id。
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &base
	}
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	l := withTrace(ctx, base)
	return &l
}

func withTrace(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return l
	}
	return l.With().Str("trace_id", spanCtx.TraceID().String()).Logger()
}

// Middleware 为每个请求注入带 trace_id、method、path 的 logger
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		l := withTrace(ctx, base).With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		next.ServeHTTP(w, r.WithContext(l.WithContext(ctx)))
	})
}
