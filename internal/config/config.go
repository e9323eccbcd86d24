package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

const envPrefix = "CHESS"

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Bot      BotConfig      `mapstructure:"bot"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// OriginPatterns lists extra websocket origins, e.g. "app.example.com".
	OriginPatterns []string `mapstructure:"origin_patterns"`
}

type StoreConfig struct {
	// Driver is memory, redis or postgres.
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type NotifyConfig struct {
	// Driver is local (in-process only) or redis (fan out across replicas).
	Driver string `mapstructure:"driver"`
	Buffer int    `mapstructure:"buffer"`
}

type AuthConfig struct {
	JWTSecret           string `mapstructure:"jwt_secret"`
	AllowHeaderIdentity bool   `mapstructure:"allow_header_identity"`
}

type BotConfig struct {
	StockfishPath     string `mapstructure:"stockfish_path"`
	PerPresetCapacity int    `mapstructure:"per_preset_capacity"`
	DefaultDifficulty string `mapstructure:"default_difficulty"`
}

type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is legacy, console or json.
	Format     string `mapstructure:"format"`
	Console    bool   `mapstructure:"console"`
	Caller     bool   `mapstructure:"caller"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads CHESS_CONFIG (or ./config/chess.yaml when unset), then
// CHESS_* environment overrides.
func Load() (*AppConfig, error) {
	return LoadFile(strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG")))
}

// LoadFile is Load with an explicit config file. An empty path searches
// the default locations; a missing default file is not an error.
func LoadFile(path string) (*AppConfig, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chess")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.origin_patterns", []string{})

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.ttl", "24h")

	v.SetDefault("redis.url", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 16)
	v.SetDefault("database.max_idle_conns", 8)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("notify.driver", "local")
	v.SetDefault("notify.buffer", 32)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.allow_header_identity", false)

	v.SetDefault("bot.stockfish_path", "")
	v.SetDefault("bot.per_preset_capacity", 0)
	v.SetDefault("bot.default_difficulty", "")

	v.SetDefault("archive.enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "legacy")
	v.SetDefault("log.console", true)
	v.SetDefault("log.caller", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.compress", true)
}

func (c *AppConfig) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Notify.Driver = strings.ToLower(strings.TrimSpace(c.Notify.Driver))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
	c.Database.URL = strings.TrimSpace(c.Database.URL)
	c.Bot.StockfishPath = strings.TrimSpace(c.Bot.StockfishPath)
}

// Validate checks the cross-field requirements.
func (c *AppConfig) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url (CHESS_REDIS_URL) is required for the redis store")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url (CHESS_DATABASE_URL) is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Notify.Driver {
	case "local":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url (CHESS_REDIS_URL) is required for redis notify")
		}
	default:
		return fmt.Errorf("unknown notify driver %q", c.Notify.Driver)
	}

	if c.Redis.URL != "" {
		if _, err := redis.ParseURL(c.Redis.URL); err != nil {
			return fmt.Errorf("redis.url: %w", err)
		}
	}
	if c.Archive.Enabled && c.Database.URL == "" {
		return errors.New("database.url (CHESS_DATABASE_URL) is required when the archive is enabled")
	}
	if c.Auth.JWTSecret == "" && !c.Auth.AllowHeaderIdentity {
		return errors.New("auth.jwt_secret (CHESS_AUTH_JWT_SECRET) is required unless header identity is allowed")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	return nil
}
