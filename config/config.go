package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mohammad-safakhou/deepresearch/internal/budget"
)

// Config holds all configuration for the research service
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Search     SearchConfig     `mapstructure:"search"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Research   ResearchConfig   `mapstructure:"research"`
	Capability CapabilityConfig `mapstructure:"capability"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	MaxTimeout     time.Duration `mapstructure:"max_timeout"`
}

func (g GeneralConfig) Normalize() GeneralConfig {
	if g.DefaultTimeout <= 0 {
		g.DefaultTimeout = 600 * time.Second
	}
	if g.MaxTimeout <= 0 {
		g.MaxTimeout = 1200 * time.Second
	}
	return g
}

func (g GeneralConfig) Validate() error {
	if g.DefaultTimeout > g.MaxTimeout {
		return fmt.Errorf("general.default_timeout (%s) exceeds general.max_timeout (%s)", g.DefaultTimeout, g.MaxTimeout)
	}
	return nil
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address         string `mapstructure:"address"`
	JWTSecret       string `mapstructure:"jwt_secret"`
	StreamChunkSize int    `mapstructure:"stream_chunk_size"`
}

func (s ServerConfig) Normalize() ServerConfig {
	if s.Address == "" {
		s.Address = ":10001"
	} else if !strings.Contains(s.Address, ":") {
		s.Address = ":" + s.Address
	}
	if s.StreamChunkSize <= 0 {
		s.StreamChunkSize = 8192
	}
	return s
}

// LLMConfig selects the chat-completions backend.
type LLMConfig struct {
	Provider   string        `mapstructure:"provider"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

func (l LLMConfig) Validate() error {
	if l.Provider != "" && l.Provider != "openai" {
		return fmt.Errorf("llm.provider %q not supported", l.Provider)
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries cannot be negative")
	}
	return nil
}

// SearchConfig selects the web search backend.
type SearchConfig struct {
	Provider   string        `mapstructure:"provider"`
	SearxngURL string        `mapstructure:"searxng_url"`
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Language   string        `mapstructure:"language"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "searxng":
		if strings.TrimSpace(s.SearxngURL) == "" {
			return fmt.Errorf("search.searxng_url required for searxng")
		}
	case "brave", "serper":
		if strings.TrimSpace(s.APIKey) == "" {
			return fmt.Errorf("search.api_key required for %s", s.Provider)
		}
	case "duckduckgo":
	default:
		return fmt.Errorf("search.provider %q not supported", s.Provider)
	}
	return nil
}

// FetchConfig controls page extraction.
type FetchConfig struct {
	Backend     string        `mapstructure:"backend"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxChars    int           `mapstructure:"max_chars"`
	Headless    bool          `mapstructure:"headless"`
	Concurrency int           `mapstructure:"concurrency"`
}

func (f FetchConfig) Validate() error {
	if f.Backend != "chromedp" && f.Backend != "http" {
		return fmt.Errorf("fetch.backend %q not supported", f.Backend)
	}
	if f.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be >= 1")
	}
	return nil
}

// ResearchConfig tunes the orchestrator.
type ResearchConfig struct {
	MaxGapIterations  int                `mapstructure:"max_gap_iterations"`
	ExtractStructured bool               `mapstructure:"extract_structured"`
	MaxSteps          int                `mapstructure:"max_steps"`
	MaxTokens         int64              `mapstructure:"max_tokens"` // 0 is unlimited
	SourcePolicy      SourcePolicyConfig `mapstructure:"source_policy"`
}

// Budget returns the default per-run limits.
func (r ResearchConfig) Budget() budget.Config {
	steps := r.MaxSteps
	cfg := budget.Config{MaxSteps: &steps}
	if r.MaxTokens != 0 {
		tokens := r.MaxTokens
		cfg.MaxTokens = &tokens
	}
	return cfg
}

func (r ResearchConfig) Validate() error {
	if r.MaxGapIterations < 1 || r.MaxGapIterations > 3 {
		return fmt.Errorf("research.max_gap_iterations must be within 1..3")
	}
	if r.MaxSteps < 1 || r.MaxSteps > 60 {
		return fmt.Errorf("research.max_steps must be within 1..60")
	}
	if err := r.Budget().Validate(); err != nil {
		return fmt.Errorf("research: %w", err)
	}
	return r.SourcePolicy.Validate()
}

// CapabilityConfig controls the ToolCard registry behaviour.
type CapabilityConfig struct {
	SigningSecret string   `mapstructure:"signing_secret"`
	RequiredTools []string `mapstructure:"required_tools"`
}

// StorageConfig contains optional backing stores.
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a redis host is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether report persistence is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "600s")
	v.SetDefault("general.max_timeout", "1200s")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.stream_chunk_size", 8192)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("search.provider", "searxng")
	v.SetDefault("search.searxng_url", "http://localhost:8080")
	v.SetDefault("search.endpoint", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.language", "en")
	v.SetDefault("search.timeout", "15s")
	v.SetDefault("search.cache_ttl", "1h")
	v.SetDefault("fetch.backend", "chromedp")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.max_chars", 20000)
	v.SetDefault("fetch.headless", true)
	v.SetDefault("fetch.concurrency", 3)
	v.SetDefault("research.max_gap_iterations", 1)
	v.SetDefault("research.extract_structured", true)
	v.SetDefault("research.max_steps", 30)
	v.SetDefault("research.max_tokens", 0)
	v.SetDefault("research.source_policy.allow", []string{})
	v.SetDefault("research.source_policy.disallow", []string{})
	v.SetDefault("capability.signing_secret", "")
	v.SetDefault("capability.required_tools", []string{})
	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", "5s")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "deepresearch")
}

// Load reads config from path (or the default search paths) plus RESEARCH_*
// environment overrides. A missing file is tolerated only when no explicit
// path was given.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (RESEARCH_*)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.General = config.General.Normalize()
	config.Server = config.Server.Normalize()
	config.Research.SourcePolicy = config.Research.SourcePolicy.Normalize()

	for _, validate := range []func() error{
		config.General.Validate,
		config.LLM.Validate,
		config.Search.Validate,
		config.Fetch.Validate,
		config.Research.Validate,
		config.Storage.Redis.Validate,
		config.Storage.Postgres.Validate,
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &config, nil
}

// LoadConfig loads config and panics on any error
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}

// PostgresDSN returns the configured connection string, or "" when
// persistence is disabled.
func (c *Config) PostgresDSN() string {
	p := c.Storage.Postgres
	if !p.Enabled() {
		return ""
	}
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}
