// Package bot – rename.go implements the per-conversation group rename
// ("nc") loop: a chained timer that cycles the group subject through a
// name pool, each name prefixed with a random decoration.
package bot

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

// GroupRenamer is the outbound capability the rename loop needs.
// Satisfied by channels.GroupChannel.
type GroupRenamer interface {
	RenameGroup(ctx context.Context, chatID, name string) error
}

// decorations is the symbol pool prepended to each generated name.
var decorations = []string{
	"💥", "🔥", "⚔️", "🥊", "💣", "👊", "😈", "💀", "⚡", "🛡️",
	"🏹", "🧨", "🚀", "💫", "⭐", "🌟", "✨", "⚙️", "🌀", "💎",
	"💢", "🔱", "🩸", "☠️", "🎯", "🏴", "🦴",
}

// RenameScheduler drives the rename loop of each conversation. Unlike the
// broadcast loop, each tick schedules the next one only after the rename
// call completes, so rename latency stretches the effective period.
type RenameScheduler struct {
	renamer GroupRenamer
	logger  *slog.Logger
}

// NewRenameScheduler creates a scheduler renaming through the given channel.
func NewRenameScheduler(renamer GroupRenamer, logger *slog.Logger) *RenameScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenameScheduler{
		renamer: renamer,
		logger:  logger.With("component", "rename"),
	}
}

// ParseNamePool splits a raw argument into pool entries on "|", trimming
// whitespace and dropping empties. An argument without separators yields a
// one-entry pool containing the argument verbatim.
func ParseNamePool(raw string) []string {
	if !strings.Contains(raw, "|") {
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		return []string{raw}
	}
	parts := strings.Split(raw, "|")
	pool := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			pool = append(pool, p)
		}
	}
	return pool
}

// Start begins the rename loop for a conversation. Group chats only; only
// valid from Idle; requires a non-empty pool after parsing.
func (r *RenameScheduler) Start(ctx context.Context, cs *ConversationState, rawNames string, isGroup bool) error {
	if !isGroup {
		return ErrNotAGroup
	}

	cs.Lock()
	defer cs.Unlock()

	if cs.Rename.Active {
		return ErrRenameRunning
	}

	pool := ParseNamePool(rawNames)
	if len(pool) == 0 {
		return ErrEmptyArgument
	}

	cs.Rename.Active = true
	cs.Rename.NamePool = pool
	cs.Rename.Index = 0
	r.scheduleLocked(ctx, cs, cs.Rename.Interval)

	r.logger.Info("rename loop started",
		"chat", cs.ChatID,
		"pool_size", len(pool),
		"interval", cs.Rename.Interval)
	return nil
}

// Stop cancels the pending tick. Only valid from Running. The name pool and
// index are discarded; a later start begins from the pool head again.
func (r *RenameScheduler) Stop(cs *ConversationState) error {
	cs.Lock()
	defer cs.Unlock()

	if !cs.Rename.Active {
		return ErrRenameNotRunning
	}

	cs.Rename.gen++
	if cs.Rename.timer != nil {
		cs.Rename.timer.Stop()
		cs.Rename.timer = nil
	}
	cs.Rename.Active = false
	cs.Rename.NamePool = nil
	cs.Rename.Index = 0

	r.logger.Info("rename loop stopped", "chat", cs.ChatID)
	return nil
}

// Reconfigure updates the stored interval, clamped to the minimum. If the
// loop is Running, the pending wait is reset: the next tick fires one full
// new interval from now, not from the previous tick.
func (r *RenameScheduler) Reconfigure(ctx context.Context, cs *ConversationState, interval time.Duration) {
	if interval < MinRenameInterval {
		interval = MinRenameInterval
	}

	cs.Lock()
	defer cs.Unlock()

	cs.Rename.Interval = interval

	if cs.Rename.Active {
		if cs.Rename.timer != nil {
			cs.Rename.timer.Stop()
		}
		r.scheduleLocked(ctx, cs, interval)
	}
}

// scheduleLocked arms the next tick. Caller holds the state lock. The
// generation captured here lets the tick detect a concurrent stop or
// reschedule and bow out instead of forking the chain.
func (r *RenameScheduler) scheduleLocked(ctx context.Context, cs *ConversationState, d time.Duration) {
	cs.Rename.gen++
	gen := cs.Rename.gen
	cs.Rename.timer = time.AfterFunc(d, func() {
		r.tick(ctx, cs, gen)
	})
}

// tick performs one rename and chains the next. The active flag and
// generation are re-checked at the top because the timer may fire after a
// stop or reconfigure has already superseded it.
func (r *RenameScheduler) tick(ctx context.Context, cs *ConversationState, gen uint64) {
	if ctx.Err() != nil {
		return
	}

	cs.Lock()
	if !cs.Rename.Active || cs.Rename.gen != gen {
		cs.Unlock()
		return
	}

	pool := cs.Rename.NamePool
	idx := cs.Rename.Index
	if idx < 0 || idx >= len(pool) {
		idx = 0
	}
	name := decorations[rand.IntN(len(decorations))] + " " + pool[idx]

	cs.Rename.Index = (idx + 1) % len(pool)
	chatID := cs.ChatID
	cs.Unlock()

	if err := r.renamer.RenameGroup(ctx, chatID, name); err != nil {
		r.logger.Warn("group rename failed",
			"chat", chatID,
			"name", name,
			"error", err)
	}

	cs.Lock()
	if cs.Rename.Active && cs.Rename.gen == gen {
		r.scheduleLocked(ctx, cs, cs.Rename.Interval)
	}
	cs.Unlock()
}
