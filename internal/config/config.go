package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Log         LogConfig                 `json:"log" yaml:"log"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" yaml:"server_address"`
	// Database selects the entry of Databases to open (sqlite3 or mysql).
	Database string `json:"database" yaml:"database"`
	// ClientStore selects where chat history, theme and currentUser live: memory, sql or redis.
	ClientStore       string   `json:"client_store" yaml:"client_store"`
	ReplyDelayMillis  int      `json:"reply_delay_ms" yaml:"reply_delay_ms"`
	MinWorkers        int      `json:"min_workers" yaml:"min_workers"`
	MaxWorkers        int      `json:"max_workers" yaml:"max_workers"`
	QueueSize         int      `json:"queue_size" yaml:"queue_size"`
	WorkerIdleTimeout int      `json:"worker_idle_timeout" yaml:"worker_idle_timeout"` // seconds
	TokenTTLHours     int      `json:"token_ttl_hours" yaml:"token_ttl_hours"`
	AllowedOrigins    []string `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimitWindow   int      `json:"rate_limit_window" yaml:"rate_limit_window"` // seconds
	RateLimitCapacity int      `json:"rate_limit_capacity" yaml:"rate_limit_capacity"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // console or json
	File   string `json:"file" yaml:"file"`
}

// Load reads configuration from the provided path (defaults to config.json).
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.BasicConfig.ClientStore == "sql" || cfg.BasicConfig.ClientStore == "" {
		if _, ok := cfg.Databases[cfg.BasicConfig.Database]; !ok {
			return nil, fmt.Errorf("database config for %s not found", cfg.BasicConfig.Database)
		}
	}
	if cfg.BasicConfig.ClientStore == "redis" && !cfg.Redis.Enabled {
		return nil, fmt.Errorf("client_store redis requires redis.enabled")
	}

	// relative sqlite files live next to the config file
	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases["sqlite3"] = db
	}

	return &cfg, nil
}

// Default returns a configuration usable without any file: in-memory sqlite,
// sql client storage and no redis.
func Default() *Config {
	cfg := &Config{
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "file:chathistory?mode=memory&cache=shared"},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CHATHISTORY_ADDR")); v != "" {
		cfg.BasicConfig.ServerAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATHISTORY_DB")); v != "" {
		cfg.BasicConfig.Database = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATHISTORY_STORE")); v != "" {
		cfg.BasicConfig.ClientStore = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATHISTORY_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
}

func applyDefaults(cfg *Config) {
	b := &cfg.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":8090"
	}
	if b.Database == "" {
		b.Database = "sqlite3"
	}
	if b.ClientStore == "" {
		b.ClientStore = "sql"
	}
	if b.ReplyDelayMillis <= 0 {
		b.ReplyDelayMillis = 1000
	}
	if b.MinWorkers <= 0 {
		b.MinWorkers = 1
	}
	if b.MaxWorkers < b.MinWorkers {
		b.MaxWorkers = b.MinWorkers * 4
	}
	if b.QueueSize <= 0 {
		b.QueueSize = 64
	}
	if b.WorkerIdleTimeout <= 0 {
		b.WorkerIdleTimeout = 30
	}
	if b.TokenTTLHours <= 0 {
		b.TokenTTLHours = 24
	}
	if len(b.AllowedOrigins) == 0 {
		b.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if b.RateLimitWindow <= 0 {
		b.RateLimitWindow = 10
	}
	if b.RateLimitCapacity <= 0 {
		b.RateLimitCapacity = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}
