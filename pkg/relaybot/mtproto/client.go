// Package mtproto runs Telegram clients over MTProto: user accounts
// (userbots) that read restricted chats, and the bot account used for
// large uploads.
package mtproto

import (
	"errors"
	"time"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"golang.org/x/time/rate"
)

var (
	// ErrNoSession is returned when a user has no stored session and no
	// default session is configured.
	ErrNoSession = errors.New("no session: login first")

	// ErrNotAuthorized is returned when a stored session was revoked.
	ErrNotAuthorized = errors.New("session is not authorized")

	// ErrNotConnected is returned when the bot client is not running.
	ErrNotConnected = errors.New("mtproto client not connected")
)

// Config configures MTProto clients.
type Config struct {
	APIID   int    `yaml:"-"`
	APIHash string `yaml:"-"`

	// FloodRetries is how often a FLOOD_WAIT is waited out and retried.
	FloodRetries uint `yaml:"flood_retries"`

	// RateInterval and RateBurst limit outgoing requests.
	RateInterval time.Duration `yaml:"rate_interval"`
	RateBurst    int           `yaml:"rate_burst"`

	// UploadThreads is the number of parallel upload workers.
	UploadThreads int `yaml:"upload_threads"`

	// PeerDB is the bbolt file caching peers seen by the bot client.
	PeerDB string `yaml:"peer_db"`

	// DialogPages bounds the dialog scan used to resolve private chats.
	DialogPages int `yaml:"dialog_pages"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		FloodRetries:  3,
		RateInterval:  100 * time.Millisecond,
		RateBurst:     5,
		UploadThreads: 8,
		PeerDB:        "./data/peers.bolt",
		DialogPages:   10,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FloodRetries == 0 {
		c.FloodRetries = def.FloodRetries
	}
	if c.RateInterval <= 0 {
		c.RateInterval = def.RateInterval
	}
	if c.RateBurst <= 0 {
		c.RateBurst = def.RateBurst
	}
	if c.UploadThreads <= 0 {
		c.UploadThreads = def.UploadThreads
	}
	if c.PeerDB == "" {
		c.PeerDB = def.PeerDB
	}
	if c.DialogPages <= 0 {
		c.DialogPages = def.DialogPages
	}
	return c
}

// NewClient creates a client with flood wait and rate limit middlewares.
// handler may be nil.
func NewClient(cfg Config, storage session.Storage, handler telegram.UpdateHandler) *telegram.Client {
	cfg = cfg.withDefaults()
	waiter := floodwait.NewSimpleWaiter().WithMaxRetries(cfg.FloodRetries)

	return telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  handler,
		Device: telegram.DeviceConfig{
			DeviceModel:   "relaybot",
			SystemVersion: "linux",
			AppVersion:    "1.0",
		},
		Middlewares: []telegram.Middleware{
			waiter,
			ratelimit.New(rate.Every(cfg.RateInterval), cfg.RateBurst),
		},
	})
}
