package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`

	Storage struct {
		Path     string `mapstructure:"path"`
		InMemory bool   `mapstructure:"in_memory"`
	} `mapstructure:"storage"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Hub struct {
		MailboxSize      int           `mapstructure:"mailbox_size"`
		SessionBuffer    int           `mapstructure:"session_buffer"`
		SendTimeout      time.Duration `mapstructure:"send_timeout"`
		IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
		EvictionInterval time.Duration `mapstructure:"eviction_interval"`
	} `mapstructure:"hub"`

	Captcha struct {
		Enabled   bool   `mapstructure:"enabled"`
		Secret    string `mapstructure:"secret"`
		VerifyURL string `mapstructure:"verify_url"`
	} `mapstructure:"captcha"`

	SMTP struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
		User    string `mapstructure:"user"`
		Pass    string `mapstructure:"pass"`
		From    string `mapstructure:"from"`
	} `mapstructure:"smtp"`

	Broker struct {
		// When URL is set, message-created events are mirrored to this AMQP
		// exchange for external consumers. Presence itself never leaves the
		// process.
		URL      string `mapstructure:"url"`
		Exchange string `mapstructure:"exchange"`
	} `mapstructure:"broker"`

	RateLimit struct {
		RequestsPerMinute     int `mapstructure:"requests_per_minute"`
		AuthRequestsPerWindow int `mapstructure:"auth_requests_per_window"`
		AuthWindowMinutes     int `mapstructure:"auth_window_minutes"`
	} `mapstructure:"rate_limit"`

	Log struct {
		Level     string `mapstructure:"level"`
		File      string `mapstructure:"file"`
		MaxSizeMB int    `mapstructure:"max_size_mb"`
		MaxAge    int    `mapstructure:"max_age"`
	} `mapstructure:"log"`

	// logLevel is the live logging threshold. It is the only knob a config
	// file reload may touch: everything else in Config is read-only after
	// LoadConfig returns.
	logLevel slog.LevelVar
}

// LogLevel returns the dynamic level handle for handler construction.
func (c *Config) LogLevel() *slog.LevelVar { return &c.logLevel }

// ParseLogLevel maps the config string onto a slog level, defaulting to info.
func ParseLogLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8085")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.in_memory", false)

	v.SetDefault("auth.token_ttl", 7*24*time.Hour)

	v.SetDefault("hub.mailbox_size", 256)
	v.SetDefault("hub.session_buffer", 64)
	v.SetDefault("hub.send_timeout", 500*time.Millisecond)
	v.SetDefault("hub.idle_timeout", 30*time.Minute)
	v.SetDefault("hub.eviction_interval", 15*time.Minute)

	v.SetDefault("captcha.enabled", false)
	v.SetDefault("captcha.verify_url", "https://www.google.com/recaptcha/api/siteverify")

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.port", 587)

	v.SetDefault("broker.exchange", "snappy.events")

	v.SetDefault("rate_limit.requests_per_minute", 100)
	v.SetDefault("rate_limit.auth_requests_per_window", 5)
	v.SetDefault("rate_limit.auth_window_minutes", 15)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_age", 14)
}

// LoadConfig reads the optional config file, then layers SNAPPY_* environment
// variables on top. A missing file is not an error; everything has a default
// except the JWT secret, which is required.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SNAPPY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("config: auth.jwt_secret is required")
	}
	cfg.logLevel.Set(ParseLogLevel(cfg.Log.Level))

	// Keep watching the file so the log level applies without a restart.
	// Reloads unmarshal into a scratch struct and only retune the LevelVar:
	// the live Config is shared across goroutines and must stay immutable.
	if path != "" {
		v.OnConfigChange(func(_ fsnotify.Event) {
			var next Config
			if err := v.Unmarshal(&next); err != nil {
				slog.Warn("config reload failed", "err", err)
				return
			}
			cfg.logLevel.Set(ParseLogLevel(next.Log.Level))
			slog.Info("log level reloaded", "level", next.Log.Level)
		})
		v.WatchConfig()
	}

	return &cfg, nil
}
