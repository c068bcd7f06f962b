package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CALSHARE_"

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file and env mode).
	ModeFlag string

	// Environ overrides the process environment (tests). Nil means os.Environ.
	Environ map[string]string

	// FlagOverrides are CLI flag values that override every other source.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr     *string
	StoreDriver    *string
	DataDir        *string
	CacheDriver    *string
	PushTransport  *string
	LoggingLevel   *string
	MetricsEnabled *string // "true", "false", or "" (unset)
}

// fileConfig mirrors Config but with pointer fields to detect presence.
type fileConfig struct {
	Mode       string `toml:"mode"`
	ListenAddr string `toml:"listen_addr"`

	Server    *serverFileConfig    `toml:"server"`
	Store     *storeFileConfig     `toml:"store"`
	Cache     *cacheFileConfig     `toml:"cache"`
	Push      *pushFileConfig      `toml:"push"`
	Reminders *remindersFileConfig `toml:"reminders"`
	Logging   *loggingFileConfig   `toml:"logging"`
	Metrics   *metricsFileConfig   `toml:"metrics"`
	HTTP      *httpFileConfig      `toml:"http"`
	Identity  *identityFileConfig  `toml:"identity"`
}

type serverFileConfig struct {
	SessionTTLSeconds *int     `toml:"session_ttl_seconds"`
	TrustedProxies    []string `toml:"trusted_proxies"`
}

type storeFileConfig struct {
	Driver   string   `toml:"driver"`
	DataDir  string   `toml:"data_dir"`
	DSN      string   `toml:"dsn"`
	Replicas []string `toml:"replicas"`
}

type cacheFileConfig struct {
	Driver  string                    `toml:"driver"`
	Drivers map[string]map[string]any `toml:"drivers"`
}

type pushFileConfig struct {
	Transport string `toml:"transport"`
	AMQPURL   string `toml:"amqp_url"`
	Exchange  string `toml:"exchange"`
	Queue     string `toml:"queue"`
}

type remindersFileConfig struct {
	Enabled                    *bool `toml:"enabled"`
	DefaultNotifyBeforeMinutes *int  `toml:"default_notify_before_minutes"`
}

type loggingFileConfig struct {
	Level string `toml:"level"`
}

type metricsFileConfig struct {
	Enabled *bool  `toml:"enabled"`
	Path    string `toml:"path"`
}

type httpFileConfig struct {
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

type identityFileConfig struct {
	SeedUsers []SeedUser `toml:"seed_users"`
}

// envConfig lists the supported CALSHARE_* variables. Empty values mean unset.
type envConfig struct {
	Mode              string   `env:"MODE"`
	ListenAddr        string   `env:"LISTEN_ADDR"`
	SessionTTLSeconds int      `env:"SESSION_TTL_SECONDS"`
	StoreDriver       string   `env:"STORE_DRIVER"`
	StoreDataDir      string   `env:"STORE_DATA_DIR"`
	StoreDSN          string   `env:"STORE_DSN"`
	StoreReplicas     []string `env:"STORE_REPLICAS" envSeparator:","`
	CacheDriver       string   `env:"CACHE_DRIVER"`
	RedisAddr         string   `env:"REDIS_ADDR"`
	RedisPassword     string   `env:"REDIS_PASSWORD"`
	PushTransport     string   `env:"PUSH_TRANSPORT"`
	AMQPURL           string   `env:"AMQP_URL"`
	RemindersEnabled  string   `env:"REMINDERS_ENABLED"`
	LoggingLevel      string   `env:"LOG_LEVEL"`
	MetricsEnabled    string   `env:"METRICS_ENABLED"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > CALSHARE_MODE > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CALSHARE_* environment variables
//  5. Overlay CLI flags
//  6. Validate enum fields
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error (fail fast). Unknown/undecoded TOML keys produce a warning
// but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	var ec envConfig
	envOpts := env.Options{Prefix: EnvPrefix}
	if opts.Environ != nil {
		envOpts.Environment = opts.Environ
	}
	if err := env.ParseWithOptions(&ec, envOpts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if ec.Mode != "" {
		modeStr = ec.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}
	overlayEnv(cfg, &ec)
	overlayFlags(cfg, opts.FlagOverrides)

	if err := validateEnums(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// presetForMode returns the base config for a given mode.
func presetForMode(mode Mode) *Config {
	switch mode {
	case ModeDev:
		return DevConfig()
	default:
		return StrictConfig()
	}
}

// StrictConfig returns production defaults: durable sqlite store, rate limiting on.
func StrictConfig() *Config {
	return &Config{
		Mode:       string(ModeStrict),
		ListenAddr: ":8080",
		Server: ServerConfig{
			SessionTTLSeconds: 7 * 24 * 3600,
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".calshare",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Push: PushConfig{
			Transport: "local",
			Exchange:  "calshare_push",
		},
		Reminders: RemindersConfig{
			Enabled:                    true,
			DefaultNotifyBeforeMinutes: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		HTTP: HTTPConfig{
			Interceptors: map[string]map[string]any{
				"ratelimit": {"enabled": true},
			},
		},
	}
}

// DevConfig returns development defaults: in-memory store, debug logs, no rate limiting.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.Store = StoreConfig{Driver: "memory"}
	cfg.Logging.Level = "debug"
	cfg.HTTP.Interceptors = map[string]map[string]any{
		"ratelimit": {"enabled": false},
	}
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Server != nil {
		if fc.Server.SessionTTLSeconds != nil {
			cfg.Server.SessionTTLSeconds = *fc.Server.SessionTTLSeconds
		}
		if fc.Server.TrustedProxies != nil {
			cfg.Server.TrustedProxies = fc.Server.TrustedProxies
		}
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
		if fc.Store.DSN != "" {
			cfg.Store.DSN = fc.Store.DSN
		}
		if fc.Store.Replicas != nil {
			cfg.Store.Replicas = fc.Store.Replicas
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if fc.Cache.Drivers != nil {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Push != nil {
		if fc.Push.Transport != "" {
			cfg.Push.Transport = fc.Push.Transport
		}
		if fc.Push.AMQPURL != "" {
			cfg.Push.AMQPURL = fc.Push.AMQPURL
		}
		if fc.Push.Exchange != "" {
			cfg.Push.Exchange = fc.Push.Exchange
		}
		if fc.Push.Queue != "" {
			cfg.Push.Queue = fc.Push.Queue
		}
	}

	if fc.Reminders != nil {
		if fc.Reminders.Enabled != nil {
			cfg.Reminders.Enabled = *fc.Reminders.Enabled
		}
		if fc.Reminders.DefaultNotifyBeforeMinutes != nil {
			cfg.Reminders.DefaultNotifyBeforeMinutes = *fc.Reminders.DefaultNotifyBeforeMinutes
		}
	}

	if fc.Logging != nil && fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}

	if fc.Metrics != nil {
		if fc.Metrics.Enabled != nil {
			cfg.Metrics.Enabled = *fc.Metrics.Enabled
		}
		if fc.Metrics.Path != "" {
			cfg.Metrics.Path = fc.Metrics.Path
		}
	}

	if fc.HTTP != nil {
		for name, section := range fc.HTTP.Interceptors {
			if cfg.HTTP.Interceptors == nil {
				cfg.HTTP.Interceptors = make(map[string]map[string]any)
			}
			cfg.HTTP.Interceptors[name] = section
		}
	}

	if fc.Identity != nil && fc.Identity.SeedUsers != nil {
		cfg.Identity.SeedUsers = fc.Identity.SeedUsers
	}
}

// overlayEnv applies CALSHARE_* environment values onto cfg.
func overlayEnv(cfg *Config, ec *envConfig) {
	if ec.ListenAddr != "" {
		cfg.ListenAddr = ec.ListenAddr
	}
	if ec.SessionTTLSeconds > 0 {
		cfg.Server.SessionTTLSeconds = ec.SessionTTLSeconds
	}
	if ec.StoreDriver != "" {
		cfg.Store.Driver = ec.StoreDriver
	}
	if ec.StoreDataDir != "" {
		cfg.Store.DataDir = ec.StoreDataDir
	}
	if ec.StoreDSN != "" {
		cfg.Store.DSN = ec.StoreDSN
	}
	if len(ec.StoreReplicas) > 0 {
		cfg.Store.Replicas = ec.StoreReplicas
	}
	if ec.CacheDriver != "" {
		cfg.Cache.Driver = ec.CacheDriver
	}
	if ec.RedisAddr != "" || ec.RedisPassword != "" {
		redis := driverSection(cfg, "redis")
		if ec.RedisAddr != "" {
			redis["addr"] = ec.RedisAddr
		}
		if ec.RedisPassword != "" {
			redis["password"] = ec.RedisPassword
		}
	}
	if ec.PushTransport != "" {
		cfg.Push.Transport = ec.PushTransport
	}
	if ec.AMQPURL != "" {
		cfg.Push.AMQPURL = ec.AMQPURL
	}
	if ec.RemindersEnabled != "" {
		cfg.Reminders.Enabled = ec.RemindersEnabled == "true"
	}
	if ec.LoggingLevel != "" {
		cfg.Logging.Level = ec.LoggingLevel
	}
	if ec.MetricsEnabled != "" {
		cfg.Metrics.Enabled = ec.MetricsEnabled == "true"
	}
}

// driverSection returns the mutable [cache.drivers.<name>] map, creating it if needed.
func driverSection(cfg *Config, name string) map[string]any {
	if cfg.Cache.Drivers == nil {
		cfg.Cache.Drivers = make(map[string]map[string]any)
	}
	section, ok := cfg.Cache.Drivers[name]
	if !ok {
		section = make(map[string]any)
		cfg.Cache.Drivers[name] = section
	}
	return section
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.DataDir != nil && *f.DataDir != "" {
		cfg.Store.DataDir = *f.DataDir
	}
	if f.CacheDriver != nil && *f.CacheDriver != "" {
		cfg.Cache.Driver = *f.CacheDriver
	}
	if f.PushTransport != nil && *f.PushTransport != "" {
		cfg.Push.Transport = *f.PushTransport
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
	if f.MetricsEnabled != nil && *f.MetricsEnabled != "" {
		// Parse "true" or "false" string (only apply when explicitly set)
		cfg.Metrics.Enabled = *f.MetricsEnabled == "true"
	}
}

// validateEnums validates enum-like config fields and returns an error for invalid values.
func validateEnums(cfg *Config) error {
	switch cfg.Store.Driver {
	case "memory", "json", "sqlite", "bolt":
		if cfg.Store.Driver != "memory" && cfg.Store.DataDir == "" && cfg.Store.DSN == "" {
			return fmt.Errorf("store.data_dir or store.dsn is required for store.driver %q", cfg.Store.Driver)
		}
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for store.driver \"postgres\"")
		}
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of memory, json, sqlite, postgres, bolt", cfg.Store.Driver)
	}

	switch cfg.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory, redis", cfg.Cache.Driver)
	}

	switch cfg.Push.Transport {
	case "local":
	case "amqp":
		if cfg.Push.AMQPURL == "" {
			return fmt.Errorf("push.amqp_url is required when push.transport is \"amqp\"")
		}
	default:
		return fmt.Errorf("invalid push.transport %q: must be one of local, amqp", cfg.Push.Transport)
	}

	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	if cfg.Server.SessionTTLSeconds <= 0 {
		return fmt.Errorf("server.session_ttl_seconds must be positive, got %d", cfg.Server.SessionTTLSeconds)
	}
	if cfg.Reminders.DefaultNotifyBeforeMinutes < 0 {
		return fmt.Errorf("reminders.default_notify_before_minutes must not be negative")
	}
	for i, u := range cfg.Identity.SeedUsers {
		if u.Email == "" || u.FullName == "" {
			return fmt.Errorf("identity.seed_users[%d]: email and full_name are required", i)
		}
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	return nil
}
