package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/relaybot/pkg/relaybot/access"
	"github.com/jholhewres/relaybot/pkg/relaybot/bot"
	"github.com/jholhewres/relaybot/pkg/relaybot/channels/telegram"
	"github.com/jholhewres/relaybot/pkg/relaybot/config"
	"github.com/jholhewres/relaybot/pkg/relaybot/database"
	"github.com/jholhewres/relaybot/pkg/relaybot/limiter"
	"github.com/jholhewres/relaybot/pkg/relaybot/media"
	"github.com/jholhewres/relaybot/pkg/relaybot/mtproto"
	"github.com/jholhewres/relaybot/pkg/relaybot/relay"
	"github.com/jholhewres/relaybot/pkg/relaybot/scheduler"
	"github.com/jholhewres/relaybot/pkg/relaybot/youtube"
)

// newServeCmd creates the `relaybot serve` command that runs the bot.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long: `Start relaybot: poll the Bot API for messages, relay links through the
users' accounts and run the maintenance jobs.

Examples:
  relaybot serve
  relaybot serve --config ./relaybot.yaml --verbose`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, configPath, err := resolveConfig(cmd, cliLogger(cmd))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── Configure logger ──
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger, closeLog, err := newLogger(cfg.Logging, verbose)
	if err != nil {
		return err
	}
	defer closeLog.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage and state ──
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	cooldown, closeCooldown, err := newCooldown(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCooldown()

	ws := media.NewWorkspace(cfg.Media.Workspace, logger)
	if err := ws.EnsureDir(); err != nil {
		return err
	}
	prober := media.NewProber(cfg.Media.Tools, logger)

	// ── Telegram clients ──
	mtcfg := cfg.MTProtoConfig()
	sender := mtproto.NewBotSender(mtcfg, cfg.Telegram.BotToken, botSessionPath(mtcfg), logger)
	if err := sender.Start(ctx); err != nil {
		return fmt.Errorf("starting bot MTProto client: %w", err)
	}
	defer sender.Stop()

	userbots, err := mtproto.NewUserbots(mtcfg, store, isNotFound, cfg.Telegram.DefaultSession, logger)
	if err != nil {
		return err
	}
	if !userbots.HasDefault() {
		logger.Info("no default session configured, users must /login before relaying")
	}

	channel := telegram.New(cfg.TelegramChannelConfig(), logger)
	if err := channel.Connect(ctx); err != nil {
		return err
	}
	defer channel.Disconnect()

	videos, err := youtube.New(cfg.YouTube, ws, prober, logger)
	if err != nil {
		return fmt.Errorf("youtube: %w", err)
	}

	// ── Router ──
	pipeline := relay.New(cfg.RelayConfig(), sender, bot.NewChatNotifier(channel), ws, prober, store, logger)
	router := bot.New(cfg.BotConfig(), bot.Deps{
		Messenger:  channel,
		Membership: channel,
		Store:      store,
		Access:     access.NewManager(cfg.AccessConfig(), store, logger),
		Cooldown:   cooldown,
		Fetcher:    bot.NewUserbotFetcher(userbots, pipeline),
		Videos:     videos,
		Uploader:   pipeline,
		Login: func(ctx context.Context, phone string, p mtproto.Prompter) (*mtproto.LoginResult, error) {
			return mtproto.Login(ctx, mtcfg, phone, p)
		},
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return router.Run(gctx) })

	// ── Maintenance ──
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Scheduler.JobTimeout, logger)
		err := sched.AddMaintenance(cfg.Scheduler, scheduler.Maintenance{
			Store:     store,
			Notifier:  router,
			Workspace: ws,
			Cooldown:  cooldown,
		})
		if err != nil {
			return err
		}
		sched.Start(gctx)
		defer sched.Stop()

		// Leftovers of a previous run are cleaned right away.
		g.Go(func() error {
			if err := sched.Run(scheduler.JobTempCleanup); err != nil {
				logger.Warn("initial workspace cleanup failed", "error", err)
			}
			return nil
		})
	}

	logger.Info("relaybot running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"bot", channel.Username(),
		"config", configPath,
		"owners", len(cfg.Telegram.OwnerIDs),
		"free_service", cfg.Telegram.FreemiumLimit > 0,
	)

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping...")
		select {
		case err = <-done:
			logger.Info("shutdown complete")
		case <-time.After(30 * time.Second):
			logger.Warn("shutdown timed out after 30s, forcing exit")
		}
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// newCooldown returns the configured cooldown store and its closer.
func newCooldown(ctx context.Context, cfg *config.Config) (limiter.Cooldown, func(), error) {
	if cfg.State.Backend != "redis" {
		return limiter.NewMemoryCooldown(), func() {}, nil
	}
	rc, err := limiter.NewRedisCooldown(ctx, cfg.State.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return rc, func() { rc.Close() }, nil
}

// botSessionPath keeps the bot's MTProto session next to the peer cache.
func botSessionPath(cfg mtproto.Config) string {
	return filepath.Join(filepath.Dir(cfg.PeerDB), "bot.session.json")
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
