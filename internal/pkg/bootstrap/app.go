// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/pkg/nacos"
	"stampcard/internal/pkg/utils"
	"stampcard/internal/tracing"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未配置 Nacos 时为 nil
	Config *Config
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 一个函数，允许每个服务注册自己独特的 HTTP 路由
	// Closers 在 HTTP 服务器关闭之后按逆序执行
	Closers []func(ctx context.Context) error
}

// Init 加载本地配置（CONFIG_FILE，默认 config/config.yaml），初始化日志，
// 并在配置了 Nacos 时用远程配置覆盖本地配置、监听后续变更。
func Init(serviceName string) (*Config, *nacos.Client, error) {
	cfg, err := LoadFile(getEnv("CONFIG_FILE", "config/config.yaml"))
	if err != nil {
		return nil, nil, err
	}
	setCurrentConfig(cfg)
	logger.Init(serviceName, cfg.App.LogLevel)

	if cfg.Infra.Nacos.ServerAddrs == "" {
		return GetCurrentConfig(), nil, nil
	}

	nc, err := nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		return nil, nil, errors.Wrap(err, "init nacos client")
	}
	if cfg.Infra.Nacos.DataID != "" {
		if content, err := nc.GetConfig(cfg.Infra.Nacos.DataID); err != nil {
			logger.L().Warn().Err(err).Msg("nacos config unavailable, keep local config")
		} else if remote, err := Parse([]byte(content)); err != nil {
			logger.L().Warn().Err(err).Msg("invalid nacos config, keep local config")
		} else {
			setCurrentConfig(remote)
		}

		err = nc.ListenConfig(cfg.Infra.Nacos.DataID, func(content string) {
			updated, err := Parse([]byte(content))
			if err != nil {
				logger.L().Error().Err(err).Msg("ignore invalid config update")
				return
			}
			setCurrentConfig(updated)
			logger.L().Info().Msg("config reloaded from nacos")
		})
		if err != nil {
			logger.L().Warn().Err(err).Msg("nacos config listen failed")
		}
	}
	return GetCurrentConfig(), nc, nil
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
// 调用前需要先执行 Init。
func StartService(info AppInfo, nc *nacos.Client) {
	cfg := GetCurrentConfig()
	log := logger.L()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. 服务注册（可选）
	var ip string
	if nc != nil {
		ip, err = utils.GetOutboundIP()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := nc.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 3. 创建并启动 HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: nc, Config: cfg})
	}
	handler := tracing.Middleware(info.ServiceName, logger.Middleware(mux))
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 4. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msgf("Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// a. 从 Nacos 注销服务
	if nc != nil {
		if err := nc.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Error().Err(err).Msg("Error deregistering from Nacos")
		} else {
			log.Info().Msgf("Service %s deregistered from Nacos.", info.ServiceName)
		}
		nc.Close()
	}

	// b. 关闭 HTTP 服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	}

	// c. 释放服务自身的资源（后进先出）
	for i := len(info.Closers) - 1; i >= 0; i-- {
		if err := info.Closers[i](ctx); err != nil {
			log.Error().Err(err).Msg("Error closing resource")
		}
	}

	// d. 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer provider")
	}

	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}
