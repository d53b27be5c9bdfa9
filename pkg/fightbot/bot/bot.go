// Package bot wires the access policy, the per-conversation schedulers and
// the command router into a message-driven agent on top of a chat channel.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryanwp/fightbot/pkg/fightbot/audio"
	"github.com/aryanwp/fightbot/pkg/fightbot/channels"
)

// AudioFetcher resolves a free-text song query to a local mp3 path.
// Satisfied by audio.Downloader.
type AudioFetcher interface {
	Fetch(ctx context.Context, query string) (string, error)
}

// Bot is the top-level agent. One instance serves one channel.
type Bot struct {
	config *Config

	// channel is the single connected chat transport.
	channel channels.Channel

	// access guards every command except /ytmp3.
	access *AccessManager

	// states holds the per-conversation scheduling records.
	states *StateStore

	broadcast *BroadcastScheduler
	rename    *RenameScheduler

	// audio serves /ytmp3. Nil disables the command.
	audio AudioFetcher

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Bot with all dependencies. The channel is used for sends
// and, when it supports them, group renames and audio messages.
func New(cfg *Config, channel channels.Channel, access *AccessManager, fetcher AudioFetcher, logger *slog.Logger) *Bot {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	var renamer GroupRenamer
	if gc, ok := channel.(channels.GroupChannel); ok {
		renamer = gc
	} else {
		renamer = unsupportedRenamer{}
	}

	return &Bot{
		config:    cfg,
		channel:   channel,
		access:    access,
		states:    NewStateStore(),
		broadcast: NewBroadcastScheduler(channel, logger),
		rename:    NewRenameScheduler(renamer, logger),
		audio:     fetcher,
		logger:    logger.With("component", "bot"),
	}
}

// Start connects the channel and begins processing messages. Returns once
// the channel is up; message handling continues in the background until
// ctx is cancelled or Stop is called.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.logger.Info("starting fight bot",
		"channel", b.channel.Name(),
		"owner", BareIdentity(b.access.Owner()))

	if err := b.channel.Connect(b.ctx); err != nil {
		return fmt.Errorf("failed to connect channel: %w", err)
	}

	go b.messageLoop()

	b.logger.Info("fight bot started")
	return nil
}

// Stop shuts the bot down. Cancelling the run context tears down every
// running broadcast and rename loop with it.
func (b *Bot) Stop() {
	b.logger.Info("stopping fight bot...")

	if b.cancel != nil {
		b.cancel()
	}
	if err := b.channel.Disconnect(); err != nil {
		b.logger.Warn("channel disconnect failed", "error", err)
	}

	b.logger.Info("fight bot stopped")
}

// States exposes the conversation store for the status endpoint.
func (b *Bot) States() *StateStore { return b.states }

// Access exposes the access manager.
func (b *Bot) Access() *AccessManager { return b.access }

// Channel exposes the underlying transport.
func (b *Bot) Channel() channels.Channel { return b.channel }

func (b *Bot) messageLoop() {
	for {
		select {
		case msg, ok := <-b.channel.Receive():
			if !ok {
				return
			}
			go b.handleMessage(msg)

		case <-b.ctx.Done():
			return
		}
	}
}

// handleMessage processes one incoming message: commands are routed and
// answered, everything else is ignored.
func (b *Bot) handleMessage(msg *channels.IncomingMessage) {
	start := time.Now()
	logger := b.logger.With(
		"chat_id", msg.ChatID,
		"from", msg.From,
		"msg_id", msg.ID,
	)

	if !IsCommand(msg.Content) {
		return
	}

	result := b.HandleCommand(b.ctx, msg)
	if !result.Handled {
		return
	}
	if result.Response != "" {
		b.sendReply(msg, result.Response, result.Mentions)
	}

	logger.Info("command processed",
		"duration_ms", time.Since(start).Milliseconds())
}

// sendReply sends a quoted reply on the conversation the message came from.
func (b *Bot) sendReply(original *channels.IncomingMessage, content string, mentions []string) {
	outMsg := &channels.OutgoingMessage{
		Content:       content,
		ReplyTo:       original.ID,
		ReplyToSender: original.From,
		Mentions:      mentions,
	}

	if err := b.channel.Send(b.ctx, original.ChatID, outMsg); err != nil {
		b.logger.Error("failed to send reply",
			"chat_id", original.ChatID,
			"error", err,
		)
	}
}

// fetchAndSendAudio runs the /ytmp3 download and delivers the result. It
// runs on its own goroutine; every outcome is reported back to the chat.
func (b *Bot) fetchAndSendAudio(ctx context.Context, msg *channels.IncomingMessage, query string) {
	if b.audio == nil {
		b.sendReply(msg, "Audio downloads are disabled.", nil)
		return
	}

	path, err := b.audio.Fetch(ctx, query)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return
	case audio.IsNotFound(err):
		b.sendReply(msg, "Audio file not found after download.", nil)
		return
	default:
		b.logger.Warn("audio fetch failed", "query", query, "error", err)
		b.sendReply(msg, "Failed to download audio (maybe no results).", nil)
		return
	}

	mc, ok := b.channel.(channels.MediaChannel)
	if !ok {
		b.sendReply(msg, "Error while sending audio.", nil)
		return
	}

	audioMsg := &channels.AudioMessage{
		Path:          path,
		MimeType:      "audio/mpeg",
		ReplyTo:       msg.ID,
		ReplyToSender: msg.From,
	}
	if err := mc.SendAudio(ctx, msg.ChatID, audioMsg); err != nil {
		b.logger.Warn("audio send failed", "path", path, "error", err)
		b.sendReply(msg, "Error while sending audio.", nil)
	}
}

// unsupportedRenamer backs the rename scheduler on channels without group
// management.
type unsupportedRenamer struct{}

func (unsupportedRenamer) RenameGroup(context.Context, string, string) error {
	return ErrNotAGroup
}
