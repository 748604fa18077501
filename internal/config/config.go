package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. SUMMARIZER_SERVER_PORT.
const EnvPrefix = "SUMMARIZER"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxRequestSize int64         `mapstructure:"max_request_size"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
}

type SecurityConfig struct {
	// DemoKeys are bypass credentials that skip usage accounting but are
	// still rate limited.
	DemoKeys       []string `mapstructure:"demo_keys"`
	EnableCORS     bool     `mapstructure:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	Output        string `mapstructure:"output"`
	ConsoleOutput bool   `mapstructure:"console_output"`
	MaxSize       int    `mapstructure:"max_size"`
	MaxBackups    int    `mapstructure:"max_backups"`
	MaxAge        int    `mapstructure:"max_age"`
	Compress      bool   `mapstructure:"compress"`
}

type DatabaseConfig struct {
	Driver       string             `mapstructure:"driver"`
	DSN          string             `mapstructure:"dsn"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
}

// CapabilitiesConfig declares optional schema features known at deploy time.
type CapabilitiesConfig struct {
	LastUsed bool `mapstructure:"last_used"`
}

// WindowConfig is a fixed window counter: at most MaxRequests per WindowSeconds.
type WindowConfig struct {
	WindowSeconds int `mapstructure:"window_seconds" json:"windowSeconds"`
	MaxRequests   int `mapstructure:"max_requests" json:"maxRequests"`
}

// Window returns the window length.
func (w WindowConfig) Window() time.Duration {
	return time.Duration(w.WindowSeconds) * time.Second
}

type BlockConfig struct {
	ViolationThreshold int `mapstructure:"violation_threshold"`
	LookbackSeconds    int `mapstructure:"lookback_seconds"`
	DurationSeconds    int `mapstructure:"duration_seconds"`
}

type RateLimitConfig struct {
	Key   WindowConfig `mapstructure:"key"`
	IP    WindowConfig `mapstructure:"ip"`
	Block BlockConfig  `mapstructure:"block"`
}

type GitHubConfig struct {
	Host       string        `mapstructure:"host"`
	APIBaseURL string        `mapstructure:"api_base_url"`
	RawBaseURL string        `mapstructure:"raw_base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
	Branches   []string      `mapstructure:"branches"`
	Filenames  []string      `mapstructure:"filenames"`
}

type SummarizerConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxReadmeSize int           `mapstructure:"max_readme_size"`
}

// Load loads the configuration from file and environment
func Load() (*Config, error) {
	var cfg Config

	// 0 是合法值（不限流 / 不封禁），不能在 setDefaults 里按零值补
	registerDefaults()

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 设置默认值
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadFile reads a config file into viper and loads it. An empty path uses
// defaults and environment variables only.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	BindEnv()
	return Load()
}

// BindEnv enables SUMMARIZER_* environment overrides for every config key.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
}

var envKeys = []string{
	"server.host", "server.port", "server.mode",
	"security.demo_keys",
	"logging.level", "logging.output",
	"database.driver", "database.dsn", "database.capabilities.last_used",
	"github.token", "github.api_base_url", "github.raw_base_url",
	"summarizer.api_key", "summarizer.model",
}

// registerDefaults sets defaults for keys where an explicit zero means
// "unlimited" or "disabled".
func registerDefaults() {
	viper.SetDefault("ratelimit.key.max_requests", 100)
	viper.SetDefault("ratelimit.ip.max_requests", 20)
	viper.SetDefault("ratelimit.block.violation_threshold", 5)
}

func setDefaults(cfg *Config) {
	// 服务器配置
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 90 * time.Second
	}
	if cfg.Server.MaxRequestSize == 0 {
		cfg.Server.MaxRequestSize = 64 << 10
	}

	// 日志配置
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "logs/summarizer.log"
	}
	cfg.Logging.ConsoleOutput = true
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 10
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 30
	}

	// 数据库配置
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "./data/keys.db"
	}

	// 限流配置
	if cfg.RateLimit.Key.WindowSeconds == 0 {
		cfg.RateLimit.Key.WindowSeconds = 86400
	}
	if cfg.RateLimit.IP.WindowSeconds == 0 {
		cfg.RateLimit.IP.WindowSeconds = 60
	}
	if cfg.RateLimit.Block.LookbackSeconds == 0 {
		cfg.RateLimit.Block.LookbackSeconds = 600
	}
	if cfg.RateLimit.Block.DurationSeconds == 0 {
		cfg.RateLimit.Block.DurationSeconds = 900
	}

	// GitHub配置
	if cfg.GitHub.Host == "" {
		cfg.GitHub.Host = "github.com"
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com"
	}
	if cfg.GitHub.RawBaseURL == "" {
		cfg.GitHub.RawBaseURL = "https://raw.githubusercontent.com"
	}
	if cfg.GitHub.Timeout == 0 {
		cfg.GitHub.Timeout = 10 * time.Second
	}
	if cfg.GitHub.UserAgent == "" {
		cfg.GitHub.UserAgent = "summarizer-gateway"
	}
	if len(cfg.GitHub.Branches) == 0 {
		cfg.GitHub.Branches = []string{"main", "master"}
	}
	if len(cfg.GitHub.Filenames) == 0 {
		cfg.GitHub.Filenames = []string{"README.md", "Readme.md", "readme.md", "README.MD"}
	}

	// Summarizer配置
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = "gemini-1.5-flash"
	}
	if cfg.Summarizer.Timeout == 0 {
		cfg.Summarizer.Timeout = 60 * time.Second
	}
	if cfg.Summarizer.MaxReadmeSize == 0 {
		cfg.Summarizer.MaxReadmeSize = 48 << 10
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
	for name, w := range map[string]WindowConfig{"key": cfg.RateLimit.Key, "ip": cfg.RateLimit.IP} {
		if w.WindowSeconds < 0 || w.MaxRequests < 0 {
			return fmt.Errorf("invalid %s rate limit: window=%d max=%d", name, w.WindowSeconds, w.MaxRequests)
		}
	}
	if cfg.RateLimit.Block.ViolationThreshold < 0 || cfg.RateLimit.Block.DurationSeconds < 0 {
		return fmt.Errorf("invalid block config")
	}
	return nil
}
