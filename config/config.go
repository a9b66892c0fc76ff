package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	OAuth       OAuthConfig       `mapstructure:"oauth"`
	Email       EmailConfig       `mapstructure:"email"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Cron        CronConfig        `mapstructure:"cron"`
	CORS        CORSConfig        `mapstructure:"cors"`
	OSS         OSSConfig         `mapstructure:"oss"`
	Admin       AdminConfig       `mapstructure:"admin"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"`
	FrontendURL string `mapstructure:"frontend_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret            string `mapstructure:"secret"`
	ExpireHours       int    `mapstructure:"expire_hours"`
	RefreshExpireDays int    `mapstructure:"refresh_expire_days"`
}

type OAuthConfig struct {
	Github GithubOAuthConfig `mapstructure:"github"`
}

type GithubOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type EmailConfig struct {
	SendgridAPIKey string `mapstructure:"sendgrid_api_key"`
	From           string `mapstructure:"from"`
	FromName       string `mapstructure:"from_name"`
}

type StripeConfig struct {
	SecretKey  string `mapstructure:"secret_key"`
	SuccessURL string `mapstructure:"success_url"`
	CancelURL  string `mapstructure:"cancel_url"`
	Currency   string `mapstructure:"currency"`
	// 新订阅的试用天数，0 表示不试用
	TrialDays int64 `mapstructure:"trial_days"`
}

type EntitlementConfig struct {
	// 逾期订阅是否仍享有付费套餐权益
	PastDueEntitled bool `mapstructure:"past_due_entitled"`
	// 同一用户的并发 start 是否串行化（行锁）
	SerializeStarts bool   `mapstructure:"serialize_starts"`
	FreePlanName    string `mapstructure:"free_plan_name"`
	FreeToolLimit   int    `mapstructure:"free_tool_limit"`
}

type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requests_per_min"`
	AuthPerMin     int  `mapstructure:"auth_per_min"`
}

type QueueConfig struct {
	EmailQueue  string `mapstructure:"email_queue"`
	MaxWorkers  int    `mapstructure:"max_workers"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type CronConfig struct {
	ExpireInterval    time.Duration `mapstructure:"expire_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	// 系统日志归档，间隔为 0 时 worker 不归档
	ArchiveInterval time.Duration `mapstructure:"archive_interval"`
	LogRetention    time.Duration `mapstructure:"log_retention"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	ArchivePrefix   string `mapstructure:"archive_prefix"`
}

type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	FullName string `mapstructure:"full_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_expire_days", 30)
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("entitlement.past_due_entitled", true)
	v.SetDefault("entitlement.serialize_starts", true)
	v.SetDefault("entitlement.free_plan_name", "Free")
	v.SetDefault("entitlement.free_tool_limit", 5)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_min", 60)
	v.SetDefault("rate_limit.auth_per_min", 5)
	v.SetDefault("queue.email_queue", "toolbox:email_queue")
	v.SetDefault("queue.max_workers", 2)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("cron.expire_interval", 10*time.Minute)
	v.SetDefault("cron.reconcile_interval", time.Hour)
	v.SetDefault("cron.archive_interval", 24*time.Hour)
	v.SetDefault("cron.log_retention", 30*24*time.Hour)
	v.SetDefault("oss.archive_prefix", "system-logs")
}

func Load(configPath string) (*Config, error) {
	// .env 仅用于本地开发，不存在时忽略
	_ = godotenv.Load()

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default 返回只包含默认值的配置（测试与 CLI 使用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
