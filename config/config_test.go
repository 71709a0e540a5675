package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("title: Chat\n"), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Title != "Chat" {
		t.Errorf("Title = %q, want Chat", cfg.Title)
	}
	if cfg.Upstream.URL != "ws://127.0.0.1:23333/" {
		t.Errorf("Upstream.URL = %q", cfg.Upstream.URL)
	}
	if cfg.Upstream.ReconnectDelay.Duration() != 3*time.Second {
		t.Errorf("ReconnectDelay = %v, want 3s", cfg.Upstream.ReconnectDelay.Duration())
	}
	if cfg.Upstream.HandshakeTimeout.Duration() != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", cfg.Upstream.HandshakeTimeout.Duration())
	}
	if cfg.TargetGroupID != 697375450 {
		t.Errorf("TargetGroupID = %d, want 697375450", cfg.TargetGroupID)
	}
	if cfg.BroadcastInterval.Duration() != 500*time.Millisecond {
		t.Errorf("BroadcastInterval = %v, want 500ms", cfg.BroadcastInterval.Duration())
	}
	if cfg.Listen.Pull != ":2334" || cfg.Listen.Push != ":233" {
		t.Errorf("Listen = %+v, want :2334/:233", cfg.Listen)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info/json", cfg.Log)
	}
	if cfg.NATS.Enabled() {
		t.Error("NATS mirror should be disabled by default")
	}
	if cfg.NATS.Subject != "danmu.records" {
		t.Errorf("NATS.Subject = %q, want danmu.records", cfg.NATS.Subject)
	}
}

// fullConfig is the same configuration in every supported format.
var fullConfig = map[Format]string{
	FormatYAML: `
title: Stream Chat
upstream:
  url: wss://feed.example.com/events
  reconnect_delay: 1s
  handshake_timeout: 5s
target_group_id: 42
broadcast_interval: 250ms
listen:
  pull: 127.0.0.1:8080
  push: 127.0.0.1:8081
log:
  level: debug
  format: text
nats:
  url: nats://127.0.0.1:4222
  subject: chat.latest
`,
	FormatTOML: `
title = "Stream Chat"
target_group_id = 42
broadcast_interval = "250ms"

[upstream]
url = "wss://feed.example.com/events"
reconnect_delay = "1s"
handshake_timeout = "5s"

[listen]
pull = "127.0.0.1:8080"
push = "127.0.0.1:8081"

[log]
level = "debug"
format = "text"

[nats]
url = "nats://127.0.0.1:4222"
subject = "chat.latest"
`,
	FormatJSON: `{
  // comments and trailing commas are allowed
  "title": "Stream Chat",
  "upstream": {
    "url": "wss://feed.example.com/events",
    "reconnect_delay": "1s",
    "handshake_timeout": "5s",
  },
  "target_group_id": 42,
  "broadcast_interval": "250ms",
  "listen": {"pull": "127.0.0.1:8080", "push": "127.0.0.1:8081"},
  "log": {"level": "debug", "format": "text"},
  /* mirror */
  "nats": {"url": "nats://127.0.0.1:4222", "subject": "chat.latest"},
}`,
}

func TestParse_AllFormats(t *testing.T) {
	for format, data := range fullConfig {
		t.Run(string(format), func(t *testing.T) {
			cfg, err := Parse([]byte(data), format)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			if cfg.Title != "Stream Chat" {
				t.Errorf("Title = %q", cfg.Title)
			}
			if cfg.Upstream.URL != "wss://feed.example.com/events" {
				t.Errorf("Upstream.URL = %q", cfg.Upstream.URL)
			}
			if cfg.Upstream.ReconnectDelay.Duration() != time.Second {
				t.Errorf("ReconnectDelay = %v, want 1s", cfg.Upstream.ReconnectDelay.Duration())
			}
			if cfg.Upstream.HandshakeTimeout.Duration() != 5*time.Second {
				t.Errorf("HandshakeTimeout = %v, want 5s", cfg.Upstream.HandshakeTimeout.Duration())
			}
			if cfg.TargetGroupID != 42 {
				t.Errorf("TargetGroupID = %d, want 42", cfg.TargetGroupID)
			}
			if cfg.BroadcastInterval.Duration() != 250*time.Millisecond {
				t.Errorf("BroadcastInterval = %v, want 250ms", cfg.BroadcastInterval.Duration())
			}
			if cfg.Listen.Pull != "127.0.0.1:8080" || cfg.Listen.Push != "127.0.0.1:8081" {
				t.Errorf("Listen = %+v", cfg.Listen)
			}
			if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
				t.Errorf("Log = %+v", cfg.Log)
			}
			if !cfg.NATS.Enabled() || cfg.NATS.URL != "nats://127.0.0.1:4222" || cfg.NATS.Subject != "chat.latest" {
				t.Errorf("NATS = %+v", cfg.NATS)
			}
		})
	}
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"relay.yaml":  fullConfig[FormatYAML],
		"relay.yml":   fullConfig[FormatYAML],
		"relay.toml":  fullConfig[FormatTOML],
		"relay.json":  fullConfig[FormatJSON],
		"relay.jsonc": fullConfig[FormatJSON],
	}

	for name, data := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.TargetGroupID != 42 {
				t.Errorf("TargetGroupID = %d, want 42", cfg.TargetGroupID)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "relay.ini")
	if err := os.WriteFile(unknown, []byte("x=1"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "unknown extension", path: unknown, wantErr: "unsupported config file extension"},
		{name: "missing file", path: filepath.Join(dir, "missing.yaml"), wantErr: "failed to read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	// t.Setenv auto-restores after test
	t.Setenv("TEST_FEED_HOST", "feed.test.com:6700")
	t.Setenv("TEST_NATS_URL", "nats://bus.test.com:4222")

	yaml := `
upstream:
  url: ws://${TEST_FEED_HOST}/
nats:
  url: ${TEST_NATS_URL}
`
	cfg, err := Parse([]byte(yaml), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Upstream.URL != "ws://feed.test.com:6700/" {
		t.Errorf("Upstream.URL = %q, want ws://feed.test.com:6700/", cfg.Upstream.URL)
	}
	if cfg.NATS.URL != "nats://bus.test.com:4222" {
		t.Errorf("NATS.URL = %q, want nats://bus.test.com:4222", cfg.NATS.URL)
	}
}

func TestParse_EnvVarDefault(t *testing.T) {
	yaml := `
upstream:
  url: ws://${UNSET_FEED_HOST:-127.0.0.1:6700}/
nats:
  url: ${UNSET_NATS_URL:-}
`
	cfg, err := Parse([]byte(yaml), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Upstream.URL != "ws://127.0.0.1:6700/" {
		t.Errorf("Upstream.URL = %q, want ws://127.0.0.1:6700/", cfg.Upstream.URL)
	}
	// an empty default disables the mirror
	if cfg.NATS.Enabled() {
		t.Errorf("NATS mirror should be disabled, got URL %q", cfg.NATS.URL)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	// MISSING_FEED_HOST is expected to not exist in the environment
	yaml := `
upstream:
  url: ws://${MISSING_FEED_HOST}/
`
	_, err := Parse([]byte(yaml), FormatYAML)
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "MISSING_FEED_HOST") {
		t.Errorf("error should mention MISSING_FEED_HOST: %v", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "http upstream",
			yaml:    "upstream:\n  url: http://127.0.0.1:23333/\n",
			wantErr: "scheme must be ws or wss",
		},
		{
			name:    "upstream without host",
			yaml:    "upstream:\n  url: ws:///events\n",
			wantErr: "host is required",
		},
		{
			name:    "reconnect delay too short",
			yaml:    "upstream:\n  reconnect_delay: 10ms\n",
			wantErr: "reconnect_delay must be at least 100ms",
		},
		{
			name:    "negative handshake timeout",
			yaml:    "upstream:\n  handshake_timeout: -1s\n",
			wantErr: "handshake_timeout must be positive",
		},
		{
			name:    "negative group",
			yaml:    "target_group_id: -1\n",
			wantErr: "target_group_id must be positive",
		},
		{
			name:    "broadcast interval too short",
			yaml:    "broadcast_interval: 10ms\n",
			wantErr: "broadcast_interval must be at least 50ms",
		},
		{
			name:    "pull address without port",
			yaml:    "listen:\n  pull: localhost\n",
			wantErr: "listen.pull: invalid address",
		},
		{
			name:    "push address without port",
			yaml:    "listen:\n  push: localhost\n",
			wantErr: "listen.push: invalid address",
		},
		{
			name:    "unknown log level",
			yaml:    "log:\n  level: verbose\n",
			wantErr: "log.level must be",
		},
		{
			name:    "unknown log format",
			yaml:    "log:\n  format: xml\n",
			wantErr: "log.format must be",
		},
		{
			name:    "nats url without scheme",
			yaml:    "nats:\n  url: 127.0.0.1:4222\n",
			wantErr: "nats.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), FormatYAML)
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		data    string
		wantErr string
	}{
		{name: "yaml", format: FormatYAML, data: "upstream: [unclosed", wantErr: "failed to parse YAML"},
		{name: "toml", format: FormatTOML, data: "title = ", wantErr: "failed to parse TOML"},
		{name: "json", format: FormatJSON, data: `{"title": }`, wantErr: "failed to parse JSON"},
		{name: "unknown format", format: Format("ini"), data: "", wantErr: "unsupported config format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDuration_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", "10s", 10 * time.Second, false},
		{"milliseconds", "1500ms", 1500 * time.Millisecond, false},
		{"minutes", "2m", 2 * time.Minute, false},
		{"combined", "1m30s", 90 * time.Second, false},
		{"invalid", "not-a-duration", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for format, data := range map[Format]string{
				FormatYAML: "upstream:\n  reconnect_delay: " + tt.input + "\n",
				FormatTOML: "[upstream]\nreconnect_delay = \"" + tt.input + "\"\n",
				FormatJSON: `{"upstream": {"reconnect_delay": "` + tt.input + `"}}`,
			} {
				cfg, err := Parse([]byte(data), format)
				if tt.wantErr {
					if err == nil {
						t.Fatalf("%s: Parse() expected error, got nil", format)
					}
					continue
				}
				if err != nil {
					t.Fatalf("%s: Parse() error = %v", format, err)
				}
				if got := cfg.Upstream.ReconnectDelay.Duration(); got != tt.want {
					t.Errorf("%s: ReconnectDelay = %v, want %v", format, got, tt.want)
				}
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false}, // set var takes precedence
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// UNSET and MISSING are expected to not exist in environment
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"relay.yaml", FormatYAML, false},
		{"/etc/danmurelay/relay.YML", FormatYAML, false},
		{"relay.toml", FormatTOML, false},
		{"relay.json", FormatJSON, false},
		{"relay.jsonc", FormatJSON, false},
		{"relay", "", true},
		{"relay.conf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("FormatFromPath() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("FormatFromPath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FormatFromPath() = %q, want %q", got, tt.want)
			}
		})
	}
}
