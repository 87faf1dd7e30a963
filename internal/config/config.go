// Package config loads the deskbot configuration: JSON5 file, then
// environment overrides. Env vars take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Channel  ChannelConfig  `json:"channel"`
	Provider ProviderConfig `json:"provider"`
	Answer   AnswerConfig   `json:"answer"`
	Coalesce CoalesceConfig `json:"coalesce"`
	Sessions SessionsConfig `json:"sessions"`
	Handoff  HandoffConfig  `json:"handoff"`
	Storage  StorageConfig  `json:"storage"`
	Log      LogConfig      `json:"log"`
}

// ServerConfig covers the webhook ingest surface.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	WebhookToken string `json:"webhook_token"` // shared header token; empty disables the check
	RateLimitRPM int    `json:"rate_limit_rpm"`
}

// ChannelConfig covers the outbound messaging channel.
type ChannelConfig struct {
	APIBase      string `json:"api_base"`
	Token        string `json:"token"`          // channel access token
	StaffGroupID string `json:"staff_group_id"` // where handoff notifications go
	TimeoutSec   int    `json:"timeout_sec"`
}

// ProviderConfig selects the OpenAI-compatible model backend.
type ProviderConfig struct {
	APIKey     string `json:"api_key"`
	APIBase    string `json:"api_base"`
	ChatModel  string `json:"chat_model"`
	EmbedModel string `json:"embed_model"`
	TimeoutSec int    `json:"timeout_sec"`
}

// AnswerConfig tunes the decision policy and reply shaping.
type AnswerConfig struct {
	SimThreshold  float64 `json:"sim_threshold"`
	Margin        float64 `json:"margin"`
	SearchLimit   int     `json:"search_limit"`
	MaxReplyRunes int     `json:"max_reply_runes"`
}

// CoalesceConfig bounds the per-user debounce buffer.
type CoalesceConfig struct {
	WindowMS     int `json:"window_ms"`
	MaxFragments int `json:"max_fragments"`
	MaxChars     int `json:"max_chars"`
}

// SessionsConfig bounds per-user conversation history.
type SessionsConfig struct {
	TTLMinutes int `json:"ttl_minutes"`
	MaxTurns   int `json:"max_turns"`
}

// HandoffConfig covers the human-handoff state machine and reply relay.
type HandoffConfig struct {
	StatePath          string   `json:"state_path"`
	RelayTTLMinutes    int      `json:"relay_ttl_minutes"`
	AutoReleaseMinutes int      `json:"auto_release_minutes"` // 0 disables the sweep
	RequestWords       []string `json:"request_words"`
	ReleaseWords       []string `json:"release_words"`
}

// StorageConfig locates on-disk data.
type StorageConfig struct {
	CorpusPath string `json:"corpus_path"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         18820,
			RateLimitRPM: 60,
		},
		Channel: ChannelConfig{
			APIBase:    "https://api.line.me",
			TimeoutSec: 10,
		},
		Provider: ProviderConfig{
			APIBase:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
			TimeoutSec: 60,
		},
		Answer: AnswerConfig{
			SimThreshold:  0.85,
			Margin:        0.10,
			SearchLimit:   5,
			MaxReplyRunes: 5000,
		},
		Coalesce: CoalesceConfig{
			WindowMS:     500,
			MaxFragments: 10,
			MaxChars:     2000,
		},
		Sessions: SessionsConfig{
			TTLMinutes: 60,
			MaxTurns:   20,
		},
		Handoff: HandoffConfig{
			StatePath:       "~/.deskbot/handoff.json",
			RelayTTLMinutes: 10,
		},
		Storage: StorageConfig{
			CorpusPath: "~/.deskbot/corpus.db",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing file
// yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("DESKBOT_OPENAI_API_KEY", &c.Provider.APIKey)
	envStr("DESKBOT_OPENAI_API_BASE", &c.Provider.APIBase)
	envStr("DESKBOT_CHAT_MODEL", &c.Provider.ChatModel)
	envStr("DESKBOT_EMBED_MODEL", &c.Provider.EmbedModel)

	envStr("DESKBOT_CHANNEL_TOKEN", &c.Channel.Token)
	envStr("DESKBOT_CHANNEL_API_BASE", &c.Channel.APIBase)
	envStr("DESKBOT_STAFF_GROUP_ID", &c.Channel.StaffGroupID)

	envStr("DESKBOT_WEBHOOK_TOKEN", &c.Server.WebhookToken)
	envStr("DESKBOT_HOST", &c.Server.Host)
	if v := os.Getenv("DESKBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}

	envStr("DESKBOT_HANDOFF_STATE", &c.Handoff.StatePath)
	envStr("DESKBOT_CORPUS_PATH", &c.Storage.CorpusPath)
	envStr("DESKBOT_LOG_LEVEL", &c.Log.Level)
}

// CoalesceWindow returns the debounce window as a duration.
func (c *Config) CoalesceWindow() time.Duration {
	return time.Duration(c.Coalesce.WindowMS) * time.Millisecond
}

// SessionTTL returns the history TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Sessions.TTLMinutes) * time.Minute
}

// RelayTTL returns the reply-relay binding TTL as a duration.
func (c *Config) RelayTTL() time.Duration {
	return time.Duration(c.Handoff.RelayTTLMinutes) * time.Minute
}

// AutoRelease returns the handoff auto-release age, zero when disabled.
func (c *Config) AutoRelease() time.Duration {
	return time.Duration(c.Handoff.AutoReleaseMinutes) * time.Minute
}

// HandoffStatePath returns the expanded handoff record file path.
func (c *Config) HandoffStatePath() string { return ExpandHome(c.Handoff.StatePath) }

// CorpusPath returns the expanded corpus database path.
func (c *Config) CorpusPath() string { return ExpandHome(c.Storage.CorpusPath) }

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return home
}
