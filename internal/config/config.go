// Package config holds the gateway's startup configuration.
//
// The configuration is an explicit struct constructed once in main and passed
// by reference into the gateway. There are no ambient globals and no
// per-request environment reads. Sources, in order of precedence:
//
//	defaults < YAML file (optional) < environment variables
//
// String values from the YAML file support ${VAR} and ${VAR:-default}
// expansion so one file can serve several deployments.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete gateway configuration.
type Config struct {
	ListenAddr string         `yaml:"listen_addr"`
	Env        string         `yaml:"env"`
	Upstream   UpstreamConfig `yaml:"upstream"`
	Session    SessionConfig  `yaml:"session"`
	CORS       CORSConfig     `yaml:"cors"`
	Audit      AuditConfig    `yaml:"audit"`
	Events     EventsConfig   `yaml:"events"`
}

// UpstreamConfig points the gateway at the incident-management API.
type UpstreamConfig struct {
	// BaseURL is the root of the upstream API, e.g. "http://incident-api:9000".
	// Gateway paths mirror upstream paths exactly, so no path prefix belongs here.
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// SessionConfig controls the session cookie issued on login.
type SessionConfig struct {
	CookieName string   `yaml:"cookie_name"`
	TTL        Duration `yaml:"ttl"`
}

// CORSConfig lists SPA origins allowed to send the session cookie.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AuditConfig controls the sqlite request audit trail. An empty path
// disables auditing entirely.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// EventsConfig controls the /events live-refresh websocket.
type EventsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Duration wraps time.Duration so YAML values like "10s" parse directly.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(Expand(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a Config with every field at its default.
func Default() *Config {
	return &Config{
		ListenAddr: DefaultListenAddr,
		Env:        "development",
		Upstream: UpstreamConfig{
			Timeout: Duration(DefaultUpstreamTimeout),
		},
		Session: SessionConfig{
			CookieName: DefaultCookieName,
			TTL:        Duration(DefaultSessionTTL),
		},
		Events: EventsConfig{Enabled: true},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("UPSTREAM_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.Upstream.Timeout = Duration(parsed)
		}
	}
	if v := os.Getenv("SESSION_COOKIE_NAME"); v != "" {
		c.Session.CookieName = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.Session.TTL = Duration(parsed)
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("AUDIT_DB_PATH"); v != "" {
		c.Audit.Path = v
	}
	if v := os.Getenv("EVENTS_ENABLED"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			c.Events.Enabled = parsed
		}
	}
}

// expand applies ${VAR} expansion to string fields sourced from YAML.
func (c *Config) expand() {
	c.ListenAddr = Expand(c.ListenAddr)
	c.Env = Expand(c.Env)
	c.Upstream.BaseURL = Expand(c.Upstream.BaseURL)
	c.Session.CookieName = Expand(c.Session.CookieName)
	c.Audit.Path = Expand(c.Audit.Path)
	for i, origin := range c.CORS.AllowedOrigins {
		c.CORS.AllowedOrigins[i] = Expand(origin)
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required (set UPSTREAM_BASE_URL)")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.base_url %q is not an absolute URL", c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout.Std() <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if c.Session.TTL.Std() <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name must not be empty")
	}
	return nil
}

// IsProduction reports whether the gateway runs in a production deployment.
// The Secure cookie flag follows this.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Expand resolves ${VAR} and ${VAR:-default} references in a value.
func Expand(value string) string {
	if !strings.Contains(value, "${") {
		return value
	}
	start := strings.Index(value, "${")
	end := strings.Index(value[start:], "}")
	if end < 0 {
		return value
	}
	end += start

	content := value[start+2 : end]
	varName, defaultVal := content, ""
	if idx := strings.Index(content, ":-"); idx != -1 {
		varName = content[:idx]
		defaultVal = content[idx+2:]
	}

	resolved := os.Getenv(varName)
	if resolved == "" {
		resolved = defaultVal
	}
	// Handle any further references in the remainder.
	return value[:start] + resolved + Expand(value[end+1:])
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
