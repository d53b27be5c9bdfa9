// Package bot – broadcast.go implements the per-conversation broadcast
// ("spam") loop: a fixed-rate repeating send of a captured text.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aryanwp/fightbot/pkg/fightbot/channels"
)

// TextSender is the outbound capability the broadcast loop needs.
// Satisfied by channels.Channel.
type TextSender interface {
	Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error
}

// BroadcastScheduler drives the broadcast loop of each conversation.
// State machine per conversation: Idle → Running → Idle.
type BroadcastScheduler struct {
	sender TextSender
	logger *slog.Logger
}

// NewBroadcastScheduler creates a scheduler sending through the given channel.
func NewBroadcastScheduler(sender TextSender, logger *slog.Logger) *BroadcastScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BroadcastScheduler{
		sender: sender,
		logger: logger.With("component", "broadcast"),
	}
}

// Start begins the broadcast loop for a conversation. Only valid from Idle;
// requires non-empty text. The first send happens one interval after start.
// ctx bounds the loop's lifetime (the bot's run context, not the command's).
func (b *BroadcastScheduler) Start(ctx context.Context, cs *ConversationState, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyArgument
	}

	cs.Lock()
	defer cs.Unlock()

	if cs.Broadcast.Active {
		return ErrBroadcastRunning
	}

	cs.Broadcast.Active = true
	cs.Broadcast.Text = text
	b.startLoopLocked(ctx, cs)

	b.logger.Info("broadcast started",
		"chat", cs.ChatID,
		"interval", cs.Broadcast.Interval)
	return nil
}

// Stop cancels the loop. Only valid from Running.
func (b *BroadcastScheduler) Stop(cs *ConversationState) error {
	cs.Lock()
	defer cs.Unlock()

	if !cs.Broadcast.Active {
		return ErrBroadcastNotRunning
	}

	cs.Broadcast.gen++
	cs.Broadcast.cancel()
	cs.Broadcast.cancel = nil
	cs.Broadcast.Active = false

	b.logger.Info("broadcast stopped", "chat", cs.ChatID)
	return nil
}

// Reconfigure updates the stored interval, clamped to the minimum. If the
// loop is Running, the active ticker is swapped for one at the new interval
// without changing the text or leaving the Running state.
func (b *BroadcastScheduler) Reconfigure(ctx context.Context, cs *ConversationState, interval time.Duration) {
	if interval < MinBroadcastInterval {
		interval = MinBroadcastInterval
	}

	cs.Lock()
	defer cs.Unlock()

	cs.Broadcast.Interval = interval

	if cs.Broadcast.Active {
		// Swap the running ticker under the lock: the old goroutine is
		// cancelled and a fresh one starts at the new interval.
		cs.Broadcast.cancel()
		b.startLoopLocked(ctx, cs)
	}
}

// startLoopLocked spawns the ticker goroutine. Caller holds the state lock.
func (b *BroadcastScheduler) startLoopLocked(ctx context.Context, cs *ConversationState) {
	loopCtx, cancel := context.WithCancel(ctx)
	cs.Broadcast.cancel = cancel
	cs.Broadcast.gen++

	interval := cs.Broadcast.Interval
	go b.run(loopCtx, cs, interval, cs.Broadcast.gen)
}

// run is the fixed-rate send loop. Ticks are paced by the ticker regardless
// of send latency; a failed send is logged and the loop continues. A tick
// that raced past its select when the loop was stopped or swapped sees a
// bumped gen and bows out without sending.
func (b *BroadcastScheduler) run(ctx context.Context, cs *ConversationState, interval time.Duration, gen uint64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.Lock()
			active := cs.Broadcast.Active && cs.Broadcast.gen == gen
			text := cs.Broadcast.Text
			cs.Unlock()

			if !active {
				return
			}

			if err := b.sender.Send(ctx, cs.ChatID, &channels.OutgoingMessage{Content: text}); err != nil {
				b.logger.Warn("broadcast send failed",
					"chat", cs.ChatID,
					"error", err)
			}
		}
	}
}
