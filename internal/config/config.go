package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON. UINs are often
// written as bare numbers.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration of a goicq bot process.
type Config struct {
	Bot      BotConfig      `json:"bot"`
	Dedup    DedupConfig    `json:"dedup"`
	Polling  PollingConfig  `json:"polling"`
	Handlers HandlersConfig `json:"handlers"`
	Log      LogConfig      `json:"log"`
}

// BotConfig holds the account and API client settings.
type BotConfig struct {
	Token          string  `json:"token"`                // from config or env GOICQ_TOKEN
	APIURL         string  `json:"api_url,omitempty"`    // default https://botapi.icq.net
	Name           string  `json:"name,omitempty"`       // User-Agent application name
	Version        string  `json:"version,omitempty"`    // User-Agent application version
	Owner          string  `json:"owner,omitempty"`      // uin receiving /feedback relays
	TimeoutSec     int     `json:"timeout_sec"`          // per-request timeout
	PollTimeoutSec int     `json:"poll_timeout_sec"`     // long-poll hold time
	WrapLength     int     `json:"wrap_length"`          // max chars per sent message
	SendRate       float64 `json:"send_rate,omitempty"`  // messages per second, 0 = unlimited
	SendBurst      int     `json:"send_burst,omitempty"` // limiter burst
}

func (b BotConfig) Timeout() time.Duration     { return time.Duration(b.TimeoutSec) * time.Second }
func (b BotConfig) PollTimeout() time.Duration { return time.Duration(b.PollTimeoutSec) * time.Second }

// DedupConfig bounds the cache of sent messages used to drop their echoes.
type DedupConfig struct {
	MaxEntries int `json:"max_entries"`
	TTLSec     int `json:"ttl_sec"`
}

func (d DedupConfig) TTL() time.Duration { return time.Duration(d.TTLSec) * time.Second }

type PollingConfig struct {
	ErrorBackoffMs int `json:"error_backoff_ms"` // delay after a failed fetch
}

func (p PollingConfig) ErrorBackoff() time.Duration {
	return time.Duration(p.ErrorBackoffMs) * time.Millisecond
}

// HandlersConfig configures the built-in handler set of the run command.
type HandlersConfig struct {
	AllowFrom FlexibleStringSlice `json:"allow_from,omitempty"` // uins allowed to use commands, empty = everyone
	Feedback  FeedbackConfig      `json:"feedback"`
}

type FeedbackConfig struct {
	Enabled    bool   `json:"enabled"`
	Command    string `json:"command,omitempty"`
	Reply      string `json:"reply,omitempty"`
	ErrorReply string `json:"error_reply,omitempty"`
}

type LogConfig struct {
	Level    string `json:"level,omitempty"`     // "debug", "info" (default), "warn", "error"
	Format   string `json:"format,omitempty"`    // "text" (default) or "json"
	HTTPDump bool   `json:"http_dump,omitempty"` // dump API traffic at debug level
}
