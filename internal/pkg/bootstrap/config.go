// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"stampcard/internal/pkg/database"
)

// Config 是所有服务共享的配置快照，加载后不可修改
type Config struct {
	App     AppConfig     `yaml:"app"`
	Infra   InfraConfig   `yaml:"infra"`
	Auth    AuthConfig    `yaml:"auth"`
	Loyalty LoyaltyConfig `yaml:"loyalty"`
	Feed    FeedConfig    `yaml:"feed"`
}

type AppConfig struct {
	Port          int    `yaml:"port"`
	LogLevel      string `yaml:"log_level"`
	PublicBaseURL string `yaml:"public_base_url"` // 二维码中扫码地址的前缀，为空时按请求的 Host 推断
}

type InfraConfig struct {
	DB        database.Config `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type RedisConfig struct {
	Addrs    string        `yaml:"addrs"` // 为空时不启用缓存
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type KafkaConfig struct {
	Brokers   []string `yaml:"brokers"` // 为空时不发布扫码事件
	ScanTopic string   `yaml:"scan_topic"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type ZookeeperConfig struct {
	Servers        string        `yaml:"servers"` // 为空时不启用分布式锁
	SessionTimeout time.Duration `yaml:"session_timeout"`
	LockTimeout    time.Duration `yaml:"lock_timeout"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"server_addrs"` // 为空时不注册、不拉取远程配置
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	DataID      string `yaml:"data_id"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type LoyaltyConfig struct {
	MaxConflictRetries int `yaml:"max_conflict_retries"`
}

type FeedConfig struct {
	Port    int    `yaml:"port"`
	GroupID string `yaml:"group_id"`
}

// Default 返回默认配置
func Default() Config {
	return Config{
		App: AppConfig{Port: 8090, LogLevel: "info"},
		Infra: InfraConfig{
			DB: database.Config{
				Driver:       database.DriverMySQL,
				DSN:          "loyalty:loyalty@tcp(localhost:3306)/loyalty?charset=utf8mb4",
				MaxOpenConns: 20,
				MaxIdleConns: 10,
			},
			Redis:     RedisConfig{CacheTTL: 5 * time.Minute},
			Kafka:     KafkaConfig{ScanTopic: "loyalty-scan-events"},
			Zookeeper: ZookeeperConfig{SessionTimeout: 5 * time.Second, LockTimeout: 3 * time.Second},
			Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
		},
		Auth:    AuthConfig{JWTSecret: "dev-secret", TokenTTL: 7 * 24 * time.Hour},
		Loyalty: LoyaltyConfig{MaxConflictRetries: 5},
		Feed:    FeedConfig{Port: 8091, GroupID: "loyalty-scan-feed"},
	}
}

var current atomic.Pointer[Config]

// GetCurrentConfig 返回当前生效的配置快照
func GetCurrentConfig() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	c := Default()
	return &c
}

func setCurrentConfig(c Config) {
	current.Store(&c)
}

// Parse 在默认配置之上解析 YAML 内容，再应用环境变量覆盖
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parse config yaml")
		}
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// LoadFile 读取配置文件；文件不存在时只使用默认值和环境变量
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Validate 检查配置的基本合法性
func (c Config) Validate() error {
	if c.App.Port <= 0 {
		return errors.New("app.port must be positive")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Loyalty.MaxConflictRetries <= 0 {
		return errors.New("loyalty.max_conflict_retries must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := getEnv("HTTP_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = p
		}
	}
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.PublicBaseURL = getEnv("PUBLIC_BASE_URL", cfg.App.PublicBaseURL)
	cfg.Infra.DB.Driver = getEnv("DB_DRIVER", cfg.Infra.DB.Driver)
	cfg.Infra.DB.DSN = getEnv("DATABASE_DSN", cfg.Infra.DB.DSN)
	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Zookeeper.Servers = getEnv("ZK_SERVERS", cfg.Infra.Zookeeper.Servers)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	cfg.Infra.Nacos.DataID = getEnv("NACOS_DATA_ID", cfg.Infra.Nacos.DataID)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
