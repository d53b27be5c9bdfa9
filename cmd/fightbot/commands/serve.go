package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aryanwp/fightbot/pkg/fightbot/audio"
	"github.com/aryanwp/fightbot/pkg/fightbot/bot"
	"github.com/aryanwp/fightbot/pkg/fightbot/channels/whatsapp"
	"github.com/aryanwp/fightbot/pkg/fightbot/web"
	"github.com/spf13/cobra"
)

// newServeCmd creates the `fightbot serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bot daemon",
		Long: `Start FightBot as a daemon service, connecting to WhatsApp and
processing commands. Also starts the keepalive HTTP server.

Examples:
  fightbot serve
  fightbot serve --config ./config.yaml
  fightbot serve --no-web`,
		RunE: runServe,
	}

	cmd.Flags().Bool("no-web", false, "disable the keepalive HTTP server")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// ── Configure logger ──
	logger := buildLogger(cmd, cfg)

	// ── Resolve secrets ──
	bot.ResolveWebToken(cfg, logger)

	// ── Access policy ──
	store := bot.NewPolicyStore(cfg.PolicyPath)
	access, err := bot.NewAccessManager(store, cfg.Owner, logger)
	if err != nil {
		return fmt.Errorf("loading access policy: %w", err)
	}

	// ── Channel ──
	wa := whatsapp.New(cfg.Channels.WhatsApp, logger)

	// ── Audio downloader ──
	var fetcher bot.AudioFetcher
	var janitor *audio.Janitor
	if cfg.Audio.Enabled {
		fetcher = audio.New(audio.Config{
			BinaryPath:   cfg.Audio.BinaryPath,
			DownloadDir:  cfg.Audio.DownloadDir,
			FetchTimeout: cfg.Audio.FetchTimeout,
		}, logger)

		janitor = audio.NewJanitor(cfg.Audio.DownloadDir, cfg.Audio.MaxFileAge, logger)
		if err := janitor.Start(cfg.Audio.CleanupSchedule); err != nil {
			logger.Error("failed to start download cleanup", "error", err)
		}
	}

	// ── Bot ──
	b := bot.New(cfg, wa, access, fetcher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	// ── Keepalive/status HTTP server ──
	var webServer *web.Server
	noWeb, _ := cmd.Flags().GetBool("no-web")
	if cfg.Web.Enabled && !noWeb {
		webServer = web.New(web.Config{
			Listen:      cfg.Web.Listen,
			AuthToken:   cfg.Web.AuthToken,
			QRImagePath: wa.QRImagePath(),
		}, &botStatusAPI{bot: b}, logger)
		if err := webServer.Start(ctx); err != nil {
			logger.Error("failed to start web server", "error", err)
		}
	}

	// ── Wait for shutdown ──
	logger.Info("FightBot running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"owner", bot.BareIdentity(access.Owner()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	// Graceful shutdown with timeout.
	done := make(chan struct{})
	go func() {
		if webServer != nil {
			webServer.Stop()
		}
		if janitor != nil {
			janitor.Stop()
		}
		b.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// buildLogger configures slog from config plus the --verbose flag.
func buildLogger(cmd *cobra.Command, cfg *bot.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// resolveConfig loads config from the --config flag, then standard
// locations, then falls back to defaults.
func resolveConfig(cmd *cobra.Command) (*bot.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := bot.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := bot.FindConfigFile(); found != "" {
		cfg, err := bot.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	slog.Info("no config file found, using defaults")
	return bot.DefaultConfig(), nil
}

// botStatusAPI adapts the bot to the web server's status interface.
type botStatusAPI struct {
	bot *bot.Bot
}

func (a *botStatusAPI) ChannelHealth() web.ChannelHealthInfo {
	h := a.bot.Channel().Health()
	state, _ := h.Details["state"].(string)
	return web.ChannelHealthInfo{
		Name:       a.bot.Channel().Name(),
		Connected:  h.Connected,
		State:      state,
		LastMsgAt:  h.LastMessageAt,
		ErrorCount: h.ErrorCount,
	}
}

func (a *botStatusAPI) ActiveLoops() (int, int) {
	return a.bot.States().ActiveCounts()
}
