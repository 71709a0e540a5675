package config

import (
	"log/slog"

	"github.com/jpalmerr/danmurelay"
)

// BuildOptions converts parsed configuration into relay options.
//
// The logger, error hooks and push callbacks are process concerns and are
// left to the caller. cfg must have come from [Parse] or [Load], which
// apply defaults and validate every field.
func BuildOptions(cfg *Config) []danmurelay.Option {
	opts := []danmurelay.Option{
		danmurelay.WithUpstreamURL(cfg.Upstream.URL),
		danmurelay.WithReconnectDelay(cfg.Upstream.ReconnectDelay.Duration()),
		danmurelay.WithHandshakeTimeout(cfg.Upstream.HandshakeTimeout.Duration()),
		danmurelay.WithTargetGroup(cfg.TargetGroupID),
		danmurelay.WithBroadcastInterval(cfg.BroadcastInterval.Duration()),
		danmurelay.WithPullAddr(cfg.Listen.Pull),
		danmurelay.WithPushAddr(cfg.Listen.Push),
	}
	if cfg.Title != "" {
		opts = append(opts, danmurelay.WithTitle(cfg.Title))
	}
	return opts
}

// SlogLevel returns the configured level. Unknown values map to info;
// [Parse] rejects them.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
