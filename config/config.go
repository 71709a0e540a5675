// Package config provides configuration file parsing for danmurelay.
//
// This package enables running the relay as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
// YAML, TOML and JSON (with comments) are supported; the format is chosen
// by file extension.
//
// Example configuration:
//
//	title: Danmu
//	upstream:
//	  url: ${DANMU_UPSTREAM:-ws://127.0.0.1:23333/}
//	  reconnect_delay: 3s
//	target_group_id: 697375450
//	broadcast_interval: 500ms
//	listen:
//	  pull: ":2334"
//	  push: ":233"
//	log:
//	  level: info
//	  format: json
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// minReconnectDelay keeps a dead upstream from being dialled in a hot loop.
	minReconnectDelay = 100 * time.Millisecond

	// minBroadcastInterval bounds how often subscribers can be written to.
	minBroadcastInterval = 50 * time.Millisecond

	defaultUpstreamURL       = "ws://127.0.0.1:23333/"
	defaultReconnectDelay    = 3 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	defaultTargetGroupID     = 697375450
	defaultBroadcastInterval = 500 * time.Millisecond
	defaultPullAddr          = ":2334"
	defaultPushAddr          = ":233"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultNATSSubject       = "danmu.records"
)

// Format is a configuration file syntax.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Config is the root configuration structure for danmurelay.
//
// Use [Load] or [Parse] to create a Config.
type Config struct {
	// Title is shown by the overlay page. Defaults to "Danmu" at render time.
	Title string `yaml:"title" toml:"title" json:"title"`

	// Upstream configures the chat event feed connection.
	Upstream UpstreamConfig `yaml:"upstream" toml:"upstream" json:"upstream"`

	// TargetGroupID is the only group whose messages are relayed.
	// Defaults to 697375450.
	TargetGroupID int64 `yaml:"target_group_id" toml:"target_group_id" json:"target_group_id"`

	// BroadcastInterval is how often changes are checked and pushed.
	// Defaults to 500ms; must be at least 50ms.
	BroadcastInterval Duration `yaml:"broadcast_interval" toml:"broadcast_interval" json:"broadcast_interval"`

	// Listen holds the two HTTP listen addresses.
	Listen ListenConfig `yaml:"listen" toml:"listen" json:"listen"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log" toml:"log" json:"log"`

	// NATS optionally mirrors pushed records to a NATS subject.
	NATS NATSConfig `yaml:"nats" toml:"nats" json:"nats"`
}

// UpstreamConfig defines the upstream websocket feed.
type UpstreamConfig struct {
	// URL is the ws:// or wss:// feed URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url" toml:"url" json:"url"`

	// ReconnectDelay is the pause before redialling. Defaults to 3s.
	ReconnectDelay Duration `yaml:"reconnect_delay" toml:"reconnect_delay" json:"reconnect_delay"`

	// HandshakeTimeout bounds the websocket handshake. Defaults to 10s.
	HandshakeTimeout Duration `yaml:"handshake_timeout" toml:"handshake_timeout" json:"handshake_timeout"`
}

// ListenConfig defines the pull and push listen addresses. Both serve every
// route; equal addresses share one listener.
type ListenConfig struct {
	// Pull defaults to ":2334".
	Pull string `yaml:"pull" toml:"pull" json:"pull"`

	// Push defaults to ":233".
	Push string `yaml:"push" toml:"push" json:"push"`
}

// LogConfig defines logger output.
type LogConfig struct {
	// Level is debug, info, warn or error. Defaults to info.
	Level string `yaml:"level" toml:"level" json:"level"`

	// Format is json or text. Defaults to json.
	Format string `yaml:"format" toml:"format" json:"format"`
}

// NATSConfig defines the optional NATS mirror.
type NATSConfig struct {
	// URL is the NATS server URL. Empty disables the mirror.
	// Supports environment variable substitution.
	URL string `yaml:"url" toml:"url" json:"url"`

	// Subject defaults to "danmu.records".
	Subject string `yaml:"subject" toml:"subject" json:"subject"`
}

// Enabled reports whether the mirror is configured.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// Duration wraps time.Duration for config unmarshalling. It accepts
// duration strings like "10s", "1m", "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration. TOML and
// JSON decoding use it.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// FormatFromPath returns the format implied by a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json", ".jsonc":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file extension %q (expected .yaml, .yml, .toml, .json or .jsonc)", filepath.Ext(path))
	}
}

// Load reads and parses a configuration file.
//
// The format is chosen by extension. Environment variables are expanded
// after parsing. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, format)
}

// Parse parses configuration data in the given format.
//
// Environment variables are expanded in the upstream and NATS URLs.
// Defaults are applied to every unset field, then the result is validated.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case FormatJSON:
		// strip comments and trailing commas
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults fills unset fields.
func (c *Config) applyDefaults() {
	if c.Upstream.URL == "" {
		c.Upstream.URL = defaultUpstreamURL
	}
	if c.Upstream.ReconnectDelay == 0 {
		c.Upstream.ReconnectDelay = Duration(defaultReconnectDelay)
	}
	if c.Upstream.HandshakeTimeout == 0 {
		c.Upstream.HandshakeTimeout = Duration(defaultHandshakeTimeout)
	}
	if c.TargetGroupID == 0 {
		c.TargetGroupID = defaultTargetGroupID
	}
	if c.BroadcastInterval == 0 {
		c.BroadcastInterval = Duration(defaultBroadcastInterval)
	}
	if c.Listen.Pull == "" {
		c.Listen.Pull = defaultPullAddr
	}
	if c.Listen.Push == "" {
		c.Listen.Push = defaultPushAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = defaultNATSSubject
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	expanded, err := expandEnvVars(c.Upstream.URL)
	if err != nil {
		return fmt.Errorf("upstream.url: %w", err)
	}
	c.Upstream.URL = expanded

	parsedURL, err := url.Parse(c.Upstream.URL)
	if err != nil {
		return fmt.Errorf("upstream.url: invalid url: %w", err)
	}
	if parsedURL.Scheme != "ws" && parsedURL.Scheme != "wss" {
		return fmt.Errorf("upstream.url: scheme must be ws or wss, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("upstream.url: host is required")
	}

	if d := c.Upstream.ReconnectDelay.Duration(); d < minReconnectDelay {
		return fmt.Errorf("upstream.reconnect_delay must be at least %s, got %s", minReconnectDelay, d)
	}
	if d := c.Upstream.HandshakeTimeout.Duration(); d <= 0 {
		return fmt.Errorf("upstream.handshake_timeout must be positive, got %s", d)
	}

	if c.TargetGroupID < 0 {
		return fmt.Errorf("target_group_id must be positive, got %d", c.TargetGroupID)
	}

	if d := c.BroadcastInterval.Duration(); d < minBroadcastInterval {
		return fmt.Errorf("broadcast_interval must be at least %s, got %s", minBroadcastInterval, d)
	}

	if _, _, err := net.SplitHostPort(c.Listen.Pull); err != nil {
		return fmt.Errorf("listen.pull: invalid address %q: %w", c.Listen.Pull, err)
	}
	if _, _, err := net.SplitHostPort(c.Listen.Push); err != nil {
		return fmt.Errorf("listen.push: invalid address %q: %w", c.Listen.Push, err)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}

	if c.NATS.URL != "" {
		expanded, err := expandEnvVars(c.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats.url: %w", err)
		}
		c.NATS.URL = expanded

		// ${VAR:-} lets an environment disable the mirror
		if c.NATS.URL != "" {
			u, err := url.Parse(c.NATS.URL)
			if err != nil {
				return fmt.Errorf("nats.url: invalid url: %w", err)
			}
			if u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("nats.url: must be of the form nats://host:port, got %q", c.NATS.URL)
			}
		}
	}

	return nil
}
