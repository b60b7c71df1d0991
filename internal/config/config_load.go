package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

const secretMask = "***"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			APIURL:         "https://botapi.icq.net",
			Name:           "goicq-bot",
			TimeoutSec:     20,
			PollTimeoutSec: 60,
			WrapLength:     5000,
			SendBurst:      1,
		},
		Dedup: DedupConfig{
			MaxEntries: 1024,
			TTLSec:     60,
		},
		Polling: PollingConfig{
			ErrorBackoffMs: 1000,
		},
		Handlers: HandlersConfig{
			Feedback: FeedbackConfig{
				Command: "feedback",
				Reply:   "Got it!",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("GOICQ_TOKEN", &c.Bot.Token)
	envStr("GOICQ_API_URL", &c.Bot.APIURL)
	envStr("GOICQ_OWNER", &c.Bot.Owner)
	envStr("GOICQ_NAME", &c.Bot.Name)
	envStr("GOICQ_LOG_LEVEL", &c.Log.Level)

	if v := os.Getenv("GOICQ_POLL_TIMEOUT"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.Bot.PollTimeoutSec = sec
		}
	}
	if v := os.Getenv("GOICQ_SEND_RATE"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r >= 0 {
			c.Bot.SendRate = r
		}
	}
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"text": true, "json": true}
)

// Validate reports the first setting that would keep the bot from running.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required (set it in the config file or GOICQ_TOKEN)")
	}
	if c.Bot.TimeoutSec <= 0 {
		return fmt.Errorf("bot.timeout_sec must be positive, got %d", c.Bot.TimeoutSec)
	}
	if c.Bot.PollTimeoutSec <= 0 {
		return fmt.Errorf("bot.poll_timeout_sec must be positive, got %d", c.Bot.PollTimeoutSec)
	}
	if c.Bot.WrapLength <= 0 {
		return fmt.Errorf("bot.wrap_length must be positive, got %d", c.Bot.WrapLength)
	}
	if c.Bot.SendRate < 0 {
		return fmt.Errorf("bot.send_rate must not be negative, got %v", c.Bot.SendRate)
	}
	if c.Handlers.Feedback.Enabled && c.Bot.Owner == "" {
		return errors.New("handlers.feedback needs bot.owner to relay to")
	}
	if lvl := strings.ToLower(c.Log.Level); lvl != "" && !validLevels[lvl] {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if f := strings.ToLower(c.Log.Format); f != "" && !validFormats[f] {
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	return nil
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// MaskedCopy returns a copy of the config with secret fields masked, for
// display.
func (c *Config) MaskedCopy() *Config {
	cp := *c
	cp.Handlers.AllowFrom = append(FlexibleStringSlice(nil), c.Handlers.AllowFrom...)
	maskNonEmpty(&cp.Bot.Token)
	return &cp
}

// StripSecrets zeros out secret fields. Used before saving so the token never
// lands in config.json; it belongs in GOICQ_TOKEN.
func (c *Config) StripSecrets() {
	c.Bot.Token = ""
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}
