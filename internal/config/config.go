// Package config loads the bot configuration.
//
// Sources are layered, later ones winning: built-in defaults, a TOML file,
// a .env file, CHATTO_* environment variables, and finally command-line
// flags (applied by the caller before Validate).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

type Config struct {
	Instance string   `toml:"instance" env:"CHATTO_INSTANCE"` // default "https://dev.chatto.run"
	Prefix   string   `toml:"prefix" env:"CHATTO_PREFIX"`     // default "!"
	Spaces   []string `toml:"spaces" env:"CHATTO_SPACES"`
	DMs      bool     `toml:"dms" env:"CHATTO_DMS"`     // default true; subscribe to the DM pseudo space
	Rooms    []string `toml:"rooms" env:"CHATTO_ROOMS"` // allowlist; empty = every room
	Admins   []string `toml:"admins" env:"CHATTO_ADMINS"`
	Groups   []string `toml:"groups" env:"CHATTO_GROUPS"` // enabled built-in groups

	// Credentials. Session wins over email/password.
	Session  string `toml:"session" env:"CHATTO_SESSION"`
	Email    string `toml:"email" env:"CHATTO_EMAIL"`
	Password string `toml:"password" env:"CHATTO_PASSWORD"`

	ReplayHorizon      time.Duration `toml:"replay_horizon" env:"CHATTO_REPLAY_HORIZON"`           // default 1h
	HeartbeatInterval  time.Duration `toml:"heartbeat_interval" env:"CHATTO_HEARTBEAT_INTERVAL"`   // default 30s
	HandshakeTimeout   time.Duration `toml:"handshake_timeout" env:"CHATTO_HANDSHAKE_TIMEOUT"`     // default 10s
	BackoffBase        time.Duration `toml:"backoff_base" env:"CHATTO_BACKOFF_BASE"`               // default 1s
	BackoffCap         time.Duration `toml:"backoff_cap" env:"CHATTO_BACKOFF_CAP"`                 // default 60s
	DrainTimeout       time.Duration `toml:"drain_timeout" env:"CHATTO_DRAIN_TIMEOUT"`             // default 10s
	CheckpointInterval time.Duration `toml:"checkpoint_interval" env:"CHATTO_CHECKPOINT_INTERVAL"` // default 30s; 0 = on shutdown only

	StateURL string `toml:"state_url" env:"CHATTO_STATE_URL"` // file path, file://, postgres:// or redis://
	NATSURL  string `toml:"nats_url" env:"CHATTO_NATS_URL"`   // optional, empty = no event bus
	HTTPAddr string `toml:"http_addr" env:"CHATTO_HTTP_ADDR"` // optional, empty = no status server

	// RemindersPath is the TOML file of the remind group; empty keeps
	// reminders in memory.
	RemindersPath string `toml:"reminders_path" env:"CHATTO_REMINDERS_PATH"`

	// HTTPToken, when set, is required as a Bearer token by the status server.
	HTTPToken string `toml:"http_token" env:"CHATTO_HTTP_TOKEN"`

	// Cursor snapshot backup
	BackupS3Bucket   string `toml:"backup_s3_bucket" env:"CHATTO_BACKUP_S3_BUCKET"` // enables S3 when set
	BackupS3Key      string `toml:"backup_s3_key" env:"CHATTO_BACKUP_S3_KEY"`       // default "chattobot/cursors.json"
	BackupS3Region   string `toml:"backup_s3_region" env:"CHATTO_BACKUP_S3_REGION"` // default "us-east-1"
	BackupS3Endpoint string `toml:"backup_s3_endpoint" env:"CHATTO_BACKUP_S3_ENDPOINT"`

	ReplyRate  float64 `toml:"reply_rate" env:"CHATTO_REPLY_RATE"` // mutations per second per room; 0 = unlimited
	ReplyBurst int     `toml:"reply_burst" env:"CHATTO_REPLY_BURST"`

	LogLevel     string `toml:"log_level" env:"CHATTO_LOG_LEVEL"` // debug, info, warn, error
	OTelEndpoint string `toml:"otel_endpoint" env:"CHATTO_OTEL_ENDPOINT"`
}

// DefaultGroups are the built-in groups enabled when none are configured.
var DefaultGroups = []string{"ping", "help", "dice", "admin"}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Instance:           "https://dev.chatto.run",
		Prefix:             "!",
		DMs:                true,
		Groups:             slices.Clone(DefaultGroups),
		ReplayHorizon:      time.Hour,
		HeartbeatInterval:  30 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		BackoffBase:        time.Second,
		BackoffCap:         60 * time.Second,
		DrainTimeout:       10 * time.Second,
		CheckpointInterval: 30 * time.Second,
		StateURL:           ".chatto-bot-state.toml",
		RemindersPath:      ".chatto-bot-reminders.toml",
		BackupS3Key:        "chattobot/cursors.json",
		BackupS3Region:     "us-east-1",
		ReplyBurst:         3,
		LogLevel:           "info",
	}
}

// LoadOptions selects the files Load reads. Missing files are skipped unless
// the path was given explicitly.
type LoadOptions struct {
	Path    string // TOML file; "" = none
	DotEnv  string // default ".env"
	Environ []string
}

// Load builds the configuration from defaults, the TOML file, the .env file
// and the environment. It does not validate.
func Load(opts LoadOptions) (*Config, error) {
	c := Default()

	if opts.Path != "" {
		if _, err := toml.DecodeFile(opts.Path, c); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", opts.Path, err)
		}
	}

	dotenvPath := opts.DotEnv
	if dotenvPath == "" {
		dotenvPath = ".env"
	}
	vars, err := readDotEnv(dotenvPath)
	if err != nil {
		return nil, err
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	maps.Copy(vars, env.ToMap(environ))

	if err := env.ParseWithOptions(c, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// readDotEnv reads KEY=VALUE lines. Blank lines and # comments are skipped;
// matching single or double quotes around a value are removed.
func readDotEnv(path string) (map[string]string, error) {
	vars := map[string]string{}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return vars, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		vars[strings.TrimSpace(key)] = value
	}
	return vars, nil
}

// SubscribedSpaces returns the configured spaces plus the DM pseudo space
// when DMs are enabled.
func (c *Config) SubscribedSpaces() []string {
	out := slices.Clone(c.Spaces)
	if c.DMs && !slices.Contains(out, model.DMSpace) {
		out = append(out, model.DMSpace)
	}
	return out
}

// HasCredentials reports whether a session or an email/password pair is set.
func (c *Config) HasCredentials() bool {
	return c.Session != "" || (c.Email != "" && c.Password != "")
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if u, err := url.Parse(c.Instance); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("instance %q must be an http(s) URL", c.Instance)
	}
	if c.Prefix == "" || strings.ContainsAny(c.Prefix, " \t\r\n") {
		add("prefix %q must be non-empty and contain no whitespace", c.Prefix)
	}
	if len(c.SubscribedSpaces()) == 0 {
		add("no spaces configured and dms disabled: nothing to subscribe to")
	}
	if !c.HasCredentials() {
		add("no credentials: set session, or email and password")
	}
	for name, d := range map[string]time.Duration{
		"replay_horizon":     c.ReplayHorizon,
		"heartbeat_interval": c.HeartbeatInterval,
		"handshake_timeout":  c.HandshakeTimeout,
		"backoff_base":       c.BackoffBase,
		"backoff_cap":        c.BackoffCap,
		"drain_timeout":      c.DrainTimeout,
	} {
		if d <= 0 {
			add("%s must be positive, got %s", name, d)
		}
	}
	if c.CheckpointInterval < 0 {
		add("checkpoint_interval must not be negative, got %s", c.CheckpointInterval)
	}
	if c.BackoffBase > c.BackoffCap {
		add("backoff_base %s exceeds backoff_cap %s", c.BackoffBase, c.BackoffCap)
	}
	if _, err := StateScheme(c.StateURL); err != nil {
		errs = append(errs, err)
	}
	if c.BackupS3Bucket != "" && c.BackupS3Key == "" {
		add("backup_s3_key is required when backup_s3_bucket is set")
	}
	if c.ReplyRate < 0 || c.ReplyBurst < 0 {
		add("reply_rate and reply_burst must not be negative")
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		add("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return errors.Join(errs...)
}

// StateScheme classifies a state_url: "file", "postgres" or "redis".
func StateScheme(stateURL string) (string, error) {
	if stateURL == "" {
		return "", errors.New("state_url is empty")
	}
	i := strings.Index(stateURL, "://")
	if i < 0 {
		return "file", nil
	}
	switch scheme := stateURL[:i]; scheme {
	case "file":
		return "file", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "redis", "rediss":
		return "redis", nil
	default:
		return "", fmt.Errorf("state_url scheme %q is not supported (file, postgres, redis)", scheme)
	}
}

// StatePath returns the filesystem path of a file state_url.
func StatePath(stateURL string) string {
	return strings.TrimPrefix(stateURL, "file://")
}
