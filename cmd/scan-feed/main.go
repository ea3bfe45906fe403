// cmd/scan-feed/main.go
package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"stampcard/internal/pkg/bootstrap"
	"stampcard/internal/pkg/logger"
	"stampcard/internal/pkg/mq"
	"stampcard/internal/service/feed"
	"stampcard/internal/service/loyalty/infrastructure"
)

const serviceName = "scan-feed"

// scan-feed 消费扫码事件，通过 WebSocket 实时推送给商户后台
func main() {
	cfg, nc, err := bootstrap.Init(serviceName)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	if len(cfg.Infra.Kafka.Brokers) == 0 {
		logger.L().Fatal().Msg("infra.kafka.brokers is required for scan-feed")
	}

	hub := feed.NewHub()
	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.ScanTopic, cfg.Feed.GroupID)
	consumer := feed.NewScanConsumer(reader, hub, otel.Tracer(serviceName))

	// hub 和消费者随进程运行，HTTP 服务关闭后再停止
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error { return consumer.Run(gctx) })

	// 与 loyalty-service 共用同一个 JWT 密钥
	tokens := infrastructure.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Feed.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			feed.NewHandler(hub, tokens).RegisterRoutes(appCtx.Mux)
			appCtx.Mux.Handle("GET /metrics", promhttp.Handler())
		},
		Closers: []func(ctx context.Context) error{
			func(context.Context) error { return reader.Close() },
			func(context.Context) error {
				cancel()
				return g.Wait()
			},
		},
	}, nc)
}
