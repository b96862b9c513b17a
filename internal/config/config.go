package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ConnectionConfig struct {
	Endpoint              string `yaml:"endpoint"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
	IdleTimeoutSeconds    int    `yaml:"idle_timeout_seconds"`
	BackoffMinMS          int    `yaml:"backoff_min_ms"`
	BackoffMaxMS          int    `yaml:"backoff_max_ms"`
}

type SymbolConfig struct {
	Symbol     string `yaml:"symbol"`
	Instrument string `yaml:"instrument"`
	Depth      int    `yaml:"depth"`
	Enabled    *bool  `yaml:"enabled"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type PersistenceConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds"`
	QueueSize         int `yaml:"queue_size"`
	TopLevels         int `yaml:"top_levels"`
	HistoryTTLSeconds int `yaml:"history_ttl_seconds"`
	LatestTTLSeconds  int `yaml:"latest_ttl_seconds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Exchange    string            `yaml:"exchange"`
	Connection  ConnectionConfig  `yaml:"connection"`
	Symbols     []SymbolConfig    `yaml:"symbols"`
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     LoggingConfig     `yaml:"logging"`
}

func defaults() Config {
	return Config{
		Exchange: "binance",
		Connection: ConnectionConfig{
			ConnectTimeoutSeconds: 10,
			IdleTimeoutSeconds:    30,
			BackoffMinMS:          500,
			BackoffMaxMS:          30000,
		},
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Redis:  RedisConfig{Enabled: true, Host: "localhost", Port: 6379},
		Persistence: PersistenceConfig{
			IntervalSeconds:   30,
			QueueSize:         8,
			TopLevels:         5,
			HistoryTTLSeconds: 3600,
			LatestTTLSeconds:  60,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load builds the effective configuration from layered sources, each
// overriding the previous one:
//
//	built-in defaults
//	<dir>/default.yml
//	<dir>/<CONFIG_ENV>.yml
//	<dir>/local.yml
//	explicit file (the --config flag)
//	environment variables
func Load(dir, file string) (*Config, error) {
	merged := map[string]any{}

	layers := []string{}
	if dir != "" {
		layers = append(layers, filepath.Join(dir, "default.yml"))
		if env := os.Getenv("CONFIG_ENV"); env != "" {
			layers = append(layers, filepath.Join(dir, env+".yml"))
		}
		layers = append(layers, filepath.Join(dir, "local.yml"))
	}

	for _, path := range layers {
		if err := mergeFile(merged, path, false); err != nil {
			return nil, err
		}
	}
	if file != "" {
		if err := mergeFile(merged, file, true); err != nil {
			return nil, err
		}
	}

	cfg := defaults()
	if len(merged) > 0 {
		raw, err := yaml.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("re-encode merged config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("decode merged config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeFile(dst map[string]any, path string, required bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	layer := map[string]any{}
	if err := yaml.Unmarshal(raw, &layer); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	deepMerge(dst, layer)
	return nil
}

// deepMerge folds src into dst. Nested maps merge key by key; every
// other value, lists included, replaces wholesale.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				deepMerge(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}

func (c *Config) applyEnv() {
	prefix := strings.ToUpper(c.Exchange)

	if v, ok := os.LookupEnv(prefix + "_WS_ENDPOINT"); ok {
		c.Connection.Endpoint = v
	}
	if v, ok := os.LookupEnv(prefix + "_SYMBOLS"); ok {
		c.setSymbols(v)
	}
	if v, ok := os.LookupEnv(prefix + "_INSTRUMENTS"); ok {
		c.setSymbols(v)
	}
	if v, ok := os.LookupEnv(prefix + "_DEPTH"); ok {
		if depth, err := strconv.Atoi(v); err == nil {
			for i := range c.Symbols {
				c.Symbols[i].Depth = depth
			}
		}
	}
	if v, ok := os.LookupEnv("HTTP_HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := os.LookupEnv("HTTP_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v, ok := os.LookupEnv("REDIS_ENABLED"); ok {
		c.Redis.Enabled = isTruthy(v)
	}
	if v, ok := os.LookupEnv("REDIS_HOST"); ok {
		c.Redis.Host = v
	}
	if v, ok := os.LookupEnv("REDIS_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = port
		}
	}
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := os.LookupEnv("REDIS_DB"); ok {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v, ok := os.LookupEnv("DATABASE_DSN"); ok {
		c.Archive.DSN = v
	}
	if v, ok := os.LookupEnv("ARCHIVE_ENABLED"); ok {
		c.Archive.Enabled = isTruthy(v)
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok {
		c.Logging.Format = v
	}
}

// setSymbols replaces the symbol list with a comma-separated override,
// keeping the depth of the first configured symbol as the default.
func (c *Config) setSymbols(list string) {
	depth := 0
	if len(c.Symbols) > 0 {
		depth = c.Symbols[0].Depth
	}
	var out []SymbolConfig
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, SymbolConfig{Symbol: strings.ToLower(s), Instrument: s, Depth: depth})
	}
	if len(out) > 0 {
		c.Symbols = out
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (c *Config) Validate() error {
	switch c.Exchange {
	case "binance", "cryptocom":
	default:
		return fmt.Errorf("unsupported exchange: %q", c.Exchange)
	}
	enabled := c.EnabledSymbols()
	if len(enabled) == 0 {
		return fmt.Errorf("at least one enabled symbol is required")
	}
	for _, s := range enabled {
		if s.Depth <= 0 {
			return fmt.Errorf("symbol %s: depth must be positive", s.Symbol)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}

// EnabledSymbols filters out symbols explicitly disabled in config.
// A symbol with no enabled flag is on.
func (c *Config) EnabledSymbols() []SymbolConfig {
	out := make([]SymbolConfig, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Enabled != nil && !*s.Enabled {
			continue
		}
		out = append(out, s)
	}
	return out
}
