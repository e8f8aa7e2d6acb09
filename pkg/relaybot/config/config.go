// Package config defines relaybot's configuration: the YAML schema, its
// defaults and validation, plus loading with env expansion and secret
// resolution (vault, OS keyring, environment).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/relaybot/pkg/relaybot/access"
	"github.com/jholhewres/relaybot/pkg/relaybot/bot"
	"github.com/jholhewres/relaybot/pkg/relaybot/channels/telegram"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
	"github.com/jholhewres/relaybot/pkg/relaybot/limiter"
	"github.com/jholhewres/relaybot/pkg/relaybot/media"
	"github.com/jholhewres/relaybot/pkg/relaybot/mtproto"
	"github.com/jholhewres/relaybot/pkg/relaybot/progress"
	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
	"github.com/jholhewres/relaybot/pkg/relaybot/scheduler"
	"github.com/jholhewres/relaybot/pkg/relaybot/youtube"
)

// Config is the root configuration.
type Config struct {
	// Name is shown in logs and the version output.
	Name string `yaml:"name"`

	Telegram  TelegramConfig     `yaml:"telegram"`
	Database  database.HubConfig `yaml:"database"`
	State     StateConfig        `yaml:"state"`
	Limits    LimitsConfig       `yaml:"limits"`
	Login     LoginConfig        `yaml:"login"`
	ForceSub  bot.ForceSubConfig `yaml:"force_sub"`
	Media     MediaConfig        `yaml:"media"`
	YouTube   youtube.Config     `yaml:"youtube"`
	MTProto   mtproto.Config     `yaml:"mtproto"`
	Scheduler scheduler.Config   `yaml:"scheduler"`
	Logging   LoggingConfig      `yaml:"logging"`
	Security  SecurityConfig     `yaml:"security"`
}

// TelegramConfig holds the Telegram credentials and bot-wide settings.
type TelegramConfig struct {
	// APIID and APIHash come from my.telegram.org.
	APIID   int    `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`

	// BotToken is the Bot API token from @BotFather.
	BotToken string `yaml:"bot_token"`

	// OwnerIDs have admin commands and unlimited access.
	OwnerIDs []int64 `yaml:"owner_ids"`

	// DefaultSession is a session string used for users who never logged in.
	DefaultSession string `yaml:"default_session"`

	// LogGroup receives a copy of everything relayed. 0 disables it.
	LogGroup int64 `yaml:"log_group"`

	// FreemiumLimit is the batch size of free users. 0 closes the free tier.
	FreemiumLimit int `yaml:"freemium_limit"`

	// ParseMode and PollTimeout tune the Bot API channel.
	ParseMode   string `yaml:"parse_mode"`
	PollTimeout int    `yaml:"poll_timeout"`
}

// StateConfig selects where cooldowns live.
type StateConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend string              `yaml:"backend"`
	Redis   limiter.RedisConfig `yaml:"redis"`
}

// LimitsConfig holds rate limits and size thresholds.
type LimitsConfig struct {
	Cooldown     time.Duration `yaml:"cooldown"`
	LinkDelay    time.Duration `yaml:"link_delay"`
	BatchDelay   time.Duration `yaml:"batch_delay"`
	FloodRetries int           `yaml:"flood_retries"`

	// SizeLimit is the largest file sent in one piece; PartSize the size
	// of each part once split.
	SizeLimit int64 `yaml:"size_limit"`
	PartSize  int64 `yaml:"part_size"`

	// BatchMax is the batch size of premium users.
	BatchMax int `yaml:"batch_max"`

	// FreePass is the default length of /freepass.
	FreePass time.Duration `yaml:"free_pass"`

	// DefaultPremium is the plan length of /add without a duration.
	DefaultPremium time.Duration `yaml:"default_premium"`

	BroadcastDelay time.Duration `yaml:"broadcast_delay"`
}

// LoginConfig bounds the chat login questions.
type LoginConfig struct {
	PhoneTimeout    time.Duration `yaml:"phone_timeout"`
	CodeTimeout     time.Duration `yaml:"code_timeout"`
	PasswordTimeout time.Duration `yaml:"password_timeout"`
}

// MediaConfig configures local file handling.
type MediaConfig struct {
	Workspace media.WorkspaceConfig `yaml:"workspace"`
	Tools     media.ToolsConfig     `yaml:"tools"`

	// ProgressInterval throttles status message edits.
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// File, when set, receives logs too, rotated by lumberjack.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig holds keys used at rest.
type SecurityConfig struct {
	// SessionKey encrypts stored session strings. Required.
	SessionKey string `yaml:"session_key"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	botDef := bot.DefaultConfig()
	accDef := access.DefaultConfig()
	tgDef := telegram.DefaultConfig()
	return &Config{
		Name: "relaybot",
		Telegram: TelegramConfig{
			FreemiumLimit: accDef.FreemiumLimit,
			ParseMode:     tgDef.ParseMode,
			PollTimeout:   tgDef.PollTimeout,
		},
		Database: database.DefaultHubConfig(),
		State: StateConfig{
			Backend: "memory",
			Redis:   limiter.RedisConfig{Addr: "localhost:6379", Prefix: "relaybot:cooldown:"},
		},
		Limits: LimitsConfig{
			Cooldown:       limiter.DefaultCooldown,
			LinkDelay:      botDef.LinkDelay,
			BatchDelay:     botDef.BatchDelay,
			FloodRetries:   3,
			SizeLimit:      media.SizeLimit,
			PartSize:       media.PartSize,
			BatchMax:       accDef.PremiumLimit,
			FreePass:       accDef.FreePass,
			DefaultPremium: botDef.DefaultPremium,
			BroadcastDelay: botDef.BroadcastDelay,
		},
		Login: LoginConfig{
			PhoneTimeout:    botDef.PhoneTimeout,
			CodeTimeout:     botDef.CodeTimeout,
			PasswordTimeout: botDef.PasswordTimeout,
		},
		ForceSub: botDef.ForceSub,
		Media: MediaConfig{
			Workspace:        media.DefaultWorkspaceConfig(),
			Tools:            media.DefaultToolsConfig(),
			ProgressInterval: progress.DefaultInterval,
		},
		YouTube:   youtube.DefaultConfig(),
		MTProto:   mtproto.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.APIID == 0 {
		errs = append(errs, errors.New("telegram.api_id is required"))
	}
	if unset(c.Telegram.APIHash) {
		errs = append(errs, errors.New("telegram.api_hash is required"))
	}
	if unset(c.Telegram.BotToken) {
		errs = append(errs, errors.New("telegram.bot_token is required"))
	}
	switch {
	case c.Security.SessionKey == "":
		errs = append(errs, errors.New("security.session_key is required (sessions are stored encrypted)"))
	case IsEnvReference(c.Security.SessionKey):
		errs = append(errs, fmt.Errorf("security.session_key references an unset variable: %s", c.Security.SessionKey))
	}
	if len(c.Telegram.OwnerIDs) == 0 {
		errs = append(errs, errors.New("telegram.owner_ids needs at least one owner"))
	}
	if c.Telegram.FreemiumLimit < 0 {
		errs = append(errs, errors.New("telegram.freemium_limit must not be negative"))
	}
	if c.Limits.SizeLimit <= 0 || c.Limits.PartSize <= 0 {
		errs = append(errs, errors.New("limits.size_limit and limits.part_size must be positive"))
	} else if c.Limits.PartSize >= c.Limits.SizeLimit {
		errs = append(errs, fmt.Errorf("limits.part_size (%d) must be smaller than limits.size_limit (%d)",
			c.Limits.PartSize, c.Limits.SizeLimit))
	}

	switch c.State.Backend {
	case "", "memory":
	case "redis":
		if c.State.Redis.Addr == "" {
			errs = append(errs, errors.New("state.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("state.backend %q is not memory or redis", c.State.Backend))
	}

	switch c.Database.Backend {
	case "", database.BackendSQLite, database.BackendPostgreSQL:
	default:
		errs = append(errs, fmt.Errorf("database.backend %q is not sqlite or postgresql", c.Database.Backend))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not text or json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func unset(s string) bool {
	return s == "" || IsEnvReference(s)
}

// AccessConfig returns the access manager settings.
func (c *Config) AccessConfig() access.Config {
	return access.Config{
		Owners:        c.Telegram.OwnerIDs,
		FreemiumLimit: c.Telegram.FreemiumLimit,
		PremiumLimit:  c.Limits.BatchMax,
		FreePass:      c.Limits.FreePass,
	}
}

// BotConfig returns the router settings.
func (c *Config) BotConfig() bot.Config {
	return bot.Config{
		ForceSub:           c.ForceSub,
		Cooldown:           c.Limits.Cooldown,
		LinkDelay:          c.Limits.LinkDelay,
		BatchDelay:         c.Limits.BatchDelay,
		PhoneTimeout:       c.Login.PhoneTimeout,
		CodeTimeout:        c.Login.CodeTimeout,
		PasswordTimeout:    c.Login.PasswordTimeout,
		DefaultPremium:     c.Limits.DefaultPremium,
		BroadcastDelay:     c.Limits.BroadcastDelay,
		YouTubeMaxDuration: c.YouTube.MaxDuration,
		YouTubeSizeLimit:   c.YouTube.SizeLimit,
	}
}

// RelayConfig returns the pipeline settings.
func (c *Config) RelayConfig() relay.Config {
	return relay.Config{
		SizeLimit:        c.Limits.SizeLimit,
		PartSize:         c.Limits.PartSize,
		LogGroup:         c.Telegram.LogGroup,
		FloodRetries:     c.Limits.FloodRetries,
		ProgressInterval: c.Media.ProgressInterval,
	}
}

// MTProtoConfig returns the client settings with the API credentials.
func (c *Config) MTProtoConfig() mtproto.Config {
	m := c.MTProto
	m.APIID = c.Telegram.APIID
	m.APIHash = c.Telegram.APIHash
	return m
}

// TelegramChannelConfig returns the Bot API channel settings.
func (c *Config) TelegramChannelConfig() telegram.Config {
	t := telegram.DefaultConfig()
	t.Token = c.Telegram.BotToken
	if c.Telegram.ParseMode != "" {
		t.ParseMode = c.Telegram.ParseMode
	}
	if c.Telegram.PollTimeout > 0 {
		t.PollTimeout = c.Telegram.PollTimeout
	}
	return t
}

// Masked returns a copy with secrets hidden, for display.
func (c *Config) Masked() *Config {
	cp := *c
	cp.Telegram.OwnerIDs = append([]int64(nil), c.Telegram.OwnerIDs...)
	cp.Telegram.APIHash = MaskSecret(c.Telegram.APIHash)
	cp.Telegram.BotToken = MaskSecret(c.Telegram.BotToken)
	cp.Telegram.DefaultSession = MaskSecret(c.Telegram.DefaultSession)
	cp.Security.SessionKey = MaskSecret(c.Security.SessionKey)
	cp.Database.PostgreSQL.Password = MaskSecret(c.Database.PostgreSQL.Password)
	cp.State.Redis.Password = MaskSecret(c.State.Redis.Password)
	return &cp
}

// MaskSecret keeps the first four characters of s.
func MaskSecret(s string) string {
	switch {
	case s == "" || IsEnvReference(s):
		return s
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****"
	}
}
