package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aryanwp/fightbot/pkg/fightbot/audio"
	"github.com/aryanwp/fightbot/pkg/fightbot/bot"
	"github.com/aryanwp/fightbot/pkg/fightbot/channels"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newConsoleCmd creates the `fightbot console` command: a local REPL that
// drives the command router without a WhatsApp connection. Useful for
// trying out loops and delays before going live.
func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run an interactive local console",
		Long: `Start a local REPL where typed lines are processed as chat messages
from the owner in a simulated group. Broadcast sends and group renames are
printed to stdout.

Examples:
  fightbot console
  fightbot> /spam hello
  fightbot> /stopspam`,
		RunE: runConsole,
	}
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// Console logs go to stderr so they do not interleave with the REPL.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	// The operator is the owner; the policy file is kept in memory only.
	store := bot.NewPolicyStore("")
	access, err := bot.NewAccessManager(store, "console", logger)
	if err != nil {
		return err
	}

	ch := newConsoleChannel()

	var fetcher bot.AudioFetcher
	if cfg.Audio.Enabled {
		fetcher = audio.New(audio.Config{
			BinaryPath:   cfg.Audio.BinaryPath,
			DownloadDir:  cfg.Audio.DownloadDir,
			FetchTimeout: cfg.Audio.FetchTimeout,
		}, logger)
	}

	b := bot.New(cfg, ch, access, fetcher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Stop()

	rl, err := readline.New("fightbot> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("FightBot console. Type /menu for commands, Ctrl+D to exit.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) || err != nil {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ch.emit(line)

		// Give the handler a beat so the reply prints before the prompt.
		time.Sleep(150 * time.Millisecond)
	}
}

// consoleChannel is an in-memory channel backing the REPL. Sends and
// renames print to stdout; typed lines come in as owner messages in a
// simulated group.
type consoleChannel struct {
	msgs      chan *channels.IncomingMessage
	connected atomic.Bool
}

const consoleChatID = "console@g.us"

func newConsoleChannel() *consoleChannel {
	return &consoleChannel{
		msgs: make(chan *channels.IncomingMessage, 16),
	}
}

func (c *consoleChannel) Name() string { return "console" }

func (c *consoleChannel) Connect(_ context.Context) error {
	c.connected.Store(true)
	return nil
}

func (c *consoleChannel) Disconnect() error {
	if c.connected.CompareAndSwap(true, false) {
		close(c.msgs)
	}
	return nil
}

func (c *consoleChannel) Send(_ context.Context, _ string, msg *channels.OutgoingMessage) error {
	fmt.Printf("[bot] %s\n", msg.Content)
	return nil
}

func (c *consoleChannel) RenameGroup(_ context.Context, _ string, name string) error {
	fmt.Printf("[rename] %s\n", name)
	return nil
}

func (c *consoleChannel) Receive() <-chan *channels.IncomingMessage {
	return c.msgs
}

func (c *consoleChannel) IsConnected() bool {
	return c.connected.Load()
}

func (c *consoleChannel) Health() channels.HealthStatus {
	return channels.HealthStatus{Connected: c.connected.Load()}
}

// emit injects a typed line as an incoming owner message.
func (c *consoleChannel) emit(content string) {
	if !c.connected.Load() {
		return
	}
	c.msgs <- &channels.IncomingMessage{
		ID:        uuid.NewString(),
		Channel:   "console",
		From:      "console",
		FromName:  "operator",
		ChatID:    consoleChatID,
		IsGroup:   true,
		Content:   content,
		Timestamp: time.Now(),
	}
}
