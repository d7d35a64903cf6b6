package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Grading   GradingConfig   `mapstructure:"grading"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// GradingConfig 阅卷管线参数
type GradingConfig struct {
	Workers       int           `mapstructure:"workers"`        // worker 池大小
	LeaseSeconds  int           `mapstructure:"lease_seconds"`  // 队列租约时长
	RetryBudget   int           `mapstructure:"retry_budget"`   // 重试预算，超过进死信
	PollInterval  time.Duration `mapstructure:"poll_interval"`  // 队列空闲时的轮询间隔
	ReapInterval  time.Duration `mapstructure:"reap_interval"`  // 过期租约回收间隔
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // 孤儿答卷扫描间隔
	SweepGrace    time.Duration `mapstructure:"sweep_grace"`    // 孤儿判定的入队宽限期
}

// SyncConfig 成绩发布参数；等级阈值是配置而不是写死的业务规则
type SyncConfig struct {
	Interval   time.Duration   `mapstructure:"interval"`
	BatchSize  int             `mapstructure:"batch_size"`
	Thresholds GradeThresholds `mapstructure:"thresholds"`
}

type GradeThresholds struct {
	Excellent float64 `mapstructure:"excellent"`
	Good      float64 `mapstructure:"good"`
	Fair      float64 `mapstructure:"fair"`
	Pass      float64 `mapstructure:"pass"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("EXAM_CENTER")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Grading.Workers <= 0 {
		cfg.Grading.Workers = 4
	}
	if cfg.Grading.LeaseSeconds <= 0 {
		cfg.Grading.LeaseSeconds = 60
	}
	if cfg.Grading.RetryBudget <= 0 {
		cfg.Grading.RetryBudget = 5
	}
	if cfg.Grading.PollInterval <= 0 {
		cfg.Grading.PollInterval = 2 * time.Second
	}
	if cfg.Grading.ReapInterval <= 0 {
		cfg.Grading.ReapInterval = 30 * time.Second
	}
	if cfg.Grading.SweepInterval <= 0 {
		cfg.Grading.SweepInterval = time.Minute
	}
	if cfg.Grading.SweepGrace <= 0 {
		cfg.Grading.SweepGrace = 30 * time.Second
	}
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = 30 * time.Second
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = 100
	}
	if cfg.Sync.Thresholds.Excellent <= 0 {
		cfg.Sync.Thresholds = GradeThresholds{Excellent: 90, Good: 80, Fair: 70, Pass: 60}
	}
}
