// cmd/loyalty-service/main.go
package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"

	"stampcard/internal/pkg/bootstrap"
	"stampcard/internal/pkg/database"
	"stampcard/internal/pkg/logger"
	"stampcard/internal/pkg/mq"
	"stampcard/internal/pkg/redis"
	"stampcard/internal/service/loyalty/application"
	"stampcard/internal/service/loyalty/domain"
	"stampcard/internal/service/loyalty/infrastructure"
	"stampcard/internal/service/loyalty/interfaces"
	"stampcard/internal/zookeeper"
)

const serviceName = "loyalty-service"

// main 是组装根：创建并组装所有依赖，然后启动服务
func main() {
	cfg, nc, err := bootstrap.Init(serviceName)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.L()
	var closers []func(ctx context.Context) error

	// 1. 存储
	db, err := database.Open(cfg.Infra.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := infrastructure.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate schema")
	}
	closers = append(closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	ledger := infrastructure.NewGormLedger(db, cfg.Loyalty.MaxConflictRetries)

	var businesses domain.BusinessRepository = infrastructure.NewGormBusinessRepository(db)
	if cfg.Infra.Redis.Addrs != "" {
		rc, err := redis.NewClient(cfg.Infra.Redis.Addrs)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, business cache disabled")
		} else {
			businesses = infrastructure.NewCachedBusinessRepository(businesses, rc.GetClient(), cfg.Infra.Redis.CacheTTL)
			closers = append(closers, func(context.Context) error { return rc.Close() })
		}
	}

	// 2. 扫码的可选协作者
	var scanOpts []application.ScanOption
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		publisher := infrastructure.NewKafkaScanPublisher(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.ScanTopic))
		scanOpts = append(scanOpts, application.WithPublisher(publisher))
		closers = append(closers, func(context.Context) error { return publisher.Close() })
	}
	if cfg.Infra.Zookeeper.Servers != "" {
		zc, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("zookeeper unavailable, relying on optimistic versioning only")
		} else {
			scanOpts = append(scanOpts, application.WithLocker(infrastructure.NewZKMembershipLocker(zc, cfg.Infra.Zookeeper.LockTimeout)))
			closers = append(closers, func(context.Context) error { zc.Close(); return nil })
		}
	}

	// 3. 用例
	tracer := otel.Tracer(serviceName)
	tokens := infrastructure.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	svc := interfaces.Services{
		Scan:         application.NewScanService(ledger, businesses, tracer, scanOpts...),
		Business:     application.NewBusinessService(businesses, tokens, infrastructure.NewBcryptHasher(bcrypt.DefaultCost), domain.SystemClock, tracer),
		Registration: application.NewRegistrationService(businesses, infrastructure.NewGormClientRepository(db), ledger, domain.SystemClock, tracer),
		Landing:      application.NewLandingService(infrastructure.NewGormLandingRepository(db), businesses, tracer),
		Client:       application.NewClientService(ledger, businesses, infrastructure.PNGQREncoder{}, tracer),
		Health:       ledger,
	}

	// 4. 启动
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewLoyaltyHandler(svc, appCtx.Config.App.PublicBaseURL).RegisterRoutes(appCtx.Mux)
			appCtx.Mux.Handle("GET /metrics", promhttp.Handler())
		},
		Closers: closers,
	}, nc)
}
