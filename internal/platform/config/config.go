// Package config provides configuration loading and validation.
package config

import (
	"net/url"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":8080"
	ListenAddr string `toml:"listen_addr"`

	Server    ServerConfig    `toml:"server"`
	Store     StoreConfig     `toml:"store"`
	Cache     CacheConfig     `toml:"cache"`
	Push      PushConfig      `toml:"push"`
	Reminders RemindersConfig `toml:"reminders"`
	Logging   LoggingConfig   `toml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics"`
	HTTP      HTTPConfig      `toml:"http"`
	Identity  IdentityConfig  `toml:"identity"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// SessionTTLSeconds is the lifetime of a login session.
	SessionTTLSeconds int `toml:"session_ttl_seconds"`

	// TrustedProxies are CIDRs whose X-Forwarded-For / X-Real-IP headers are honored.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// StoreConfig selects the document store driver.
type StoreConfig struct {
	// Driver is one of memory, json, sqlite, postgres, bolt.
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"`

	// DSN is the connection string for sql drivers. It may contain a password.
	DSN      string   `toml:"dsn"`
	Replicas []string `toml:"replicas"`
}

// CacheConfig selects the cache driver.
type CacheConfig struct {
	// Driver is memory or redis.
	Driver string `toml:"driver"`

	// Drivers holds per-driver settings from [cache.drivers.<name>].
	Drivers map[string]map[string]any `toml:"drivers"`
}

// PushConfig selects how push messages reach connected clients.
type PushConfig struct {
	// Transport is local (in-process websocket hub) or amqp.
	Transport string `toml:"transport"`
	AMQPURL   string `toml:"amqp_url"`
	Exchange  string `toml:"exchange"`
	Queue     string `toml:"queue"`
}

// RemindersConfig controls local reminder scheduling.
type RemindersConfig struct {
	Enabled                    bool `toml:"enabled"`
	DefaultNotifyBeforeMinutes int  `toml:"default_notify_before_minutes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `toml:"level"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// HTTPConfig holds HTTP interceptor configuration.
type HTTPConfig struct {
	// Interceptors maps interceptor name to its raw config,
	// e.g. [http.interceptors.ratelimit].
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// IdentityConfig lists accounts created at startup.
type IdentityConfig struct {
	SeedUsers []SeedUser `toml:"seed_users"`
}

// SeedUser is one [[identity.seed_users]] entry. An empty password is generated and logged once.
type SeedUser struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
	FullName string `toml:"full_name"`
}

// Redacted returns a copy safe for logging: credentials in DSNs and the AMQP URL are masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Store.DSN = redactURL(c.Store.DSN)
	out.Store.Replicas = make([]string, len(c.Store.Replicas))
	for i, r := range c.Store.Replicas {
		out.Store.Replicas[i] = redactURL(r)
	}
	out.Push.AMQPURL = redactURL(c.Push.AMQPURL)
	if c.Cache.Drivers != nil {
		out.Cache.Drivers = make(map[string]map[string]any, len(c.Cache.Drivers))
		for name, settings := range c.Cache.Drivers {
			copied := make(map[string]any, len(settings))
			for k, v := range settings {
				if k == "password" {
					v = "[REDACTED]"
				}
				copied[k] = v
			}
			out.Cache.Drivers[name] = copied
		}
	}
	if c.Identity.SeedUsers != nil {
		out.Identity.SeedUsers = make([]SeedUser, len(c.Identity.SeedUsers))
		for i, u := range c.Identity.SeedUsers {
			if u.Password != "" {
				u.Password = "[REDACTED]"
			}
			out.Identity.SeedUsers[i] = u
		}
	}
	return out
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		// key=value DSNs and plain paths are masked wholesale when they mention a password
		if strings.Contains(raw, "password") {
			return "[REDACTED]"
		}
		return raw
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "REDACTED")
	}
	return u.String()
}
