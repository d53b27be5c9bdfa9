// Package bot – router.go implements the chat command surface.
//
// Commands are prefixed with "/" and, except for /ytmp3, only available
// to the owner and subadmins:
//
//	/menu                      - Show the command menu
//	/status                    - Show loop status for this conversation
//	/spam <text>               - Start the broadcast loop
//	/stopspam                  - Stop the broadcast loop
//	/setdelay <seconds>        - Set the broadcast interval
//	/startnc <name1|name2|...> - Start the group rename loop
//	/stopnc                    - Stop the group rename loop
//	/setncdelay <seconds>      - Set the rename interval
//	/addsubadmin <@tag|number> - Grant subadmin (owner only)
//	/removesubadmin <...>      - Revoke subadmin (owner only)
//	/ytmp3 <song name>         - Fetch a song as mp3 audio (public)
//	/help                      - Show command descriptions
package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aryanwp/fightbot/pkg/fightbot/channels"
)

// CommandResult contains the result of a command execution.
type CommandResult struct {
	// Response is the text to send back, quoted on the triggering message.
	// Empty means no reply.
	Response string

	// Mentions are addresses to tag in the response.
	Mentions []string

	// Handled is true if the message was a command (even one that was
	// denied or unknown).
	Handled bool
}

// IsCommand returns true if the message starts with "/".
func IsCommand(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "/")
}

// ParseCommand splits a message into its lowercased command token and the
// raw argument remainder. Internal spacing of the remainder is preserved
// so broadcast texts and name pools pass through verbatim.
func ParseCommand(content string) (cmd, args string) {
	content = strings.TrimSpace(content)
	cmd, args, _ = strings.Cut(content, " ")
	return strings.ToLower(cmd), args
}

// HandleCommand processes a command from a chat message. ctx is the bot's
// run context; work outliving the reply (audio fetches) is bound to it.
// Returns Handled false if the message is not a command at all.
func (b *Bot) HandleCommand(ctx context.Context, msg *channels.IncomingMessage) CommandResult {
	if !IsCommand(msg.Content) {
		return CommandResult{Handled: false}
	}

	cmd, args := ParseCommand(msg.Content)
	cs := b.states.Get(msg.ChatID)

	// /ytmp3 is public. Everything else goes through the access gate.
	if cmd == "/ytmp3" {
		return b.ytmp3Command(ctx, msg, args)
	}

	if !b.access.IsAuthorized(msg.From) {
		return CommandResult{
			Response: "Only owner/subadmins can use this command.",
			Handled:  true,
		}
	}

	switch cmd {
	case "/menu":
		return b.menuCommand()

	case "/status":
		return b.statusCommand(cs)

	case "/setdelay":
		return b.setDelayCommand(ctx, cs, args)

	case "/setncdelay":
		return b.setNCDelayCommand(ctx, cs, args)

	case "/spam":
		return b.spamCommand(ctx, cs, args)

	case "/stopspam":
		return b.stopSpamCommand(cs)

	case "/startnc":
		return b.startNCCommand(ctx, cs, args, msg.IsGroup)

	case "/stopnc":
		return b.stopNCCommand(cs)

	case "/addsubadmin":
		return b.addSubadminCommand(msg, args)

	case "/removesubadmin":
		return b.removeSubadminCommand(msg, args)

	case "/help":
		return b.helpCommand()
	}

	// Unknown commands are swallowed without a reply.
	return CommandResult{Handled: true}
}

func (b *Bot) menuCommand() CommandResult {
	text := `🎯 FIGHT BOT MENU 🛡️

/start
/spam
/stopspam
/setdelay
/startnc
/stopnc
/setncdelay
/status
/ytmp3
/help
`
	return CommandResult{
		Response: text,
		Mentions: b.staffMentions(),
		Handled:  true,
	}
}

func (b *Bot) statusCommand(cs *ConversationState) CommandResult {
	cs.Lock()
	spamOn := cs.Broadcast.Active
	spamDelay := cs.Broadcast.Interval
	ncOn := cs.Rename.Active
	ncDelay := cs.Rename.Interval
	cs.Unlock()

	owner := b.access.Owner()
	subs := b.access.Subadmins()

	subsLabel := "None"
	if len(subs) > 0 {
		labels := make([]string, len(subs))
		for i, j := range subs {
			labels[i] = "@" + BareIdentity(j)
		}
		subsLabel = strings.Join(labels, " ")
	}

	text := fmt.Sprintf(`🎯 *FIGHT BOT STATUS* 🥊

Spam: %s (delay: %ss)
NC: %s (delay: %ss)
Owner: @%s
Subadmins: %s
`,
		onOff(spamOn), formatSeconds(spamDelay),
		onOff(ncOn), formatSeconds(ncDelay),
		BareIdentity(owner), subsLabel)

	return CommandResult{
		Response: text,
		Mentions: b.staffMentions(),
		Handled:  true,
	}
}

func (b *Bot) setDelayCommand(ctx context.Context, cs *ConversationState, args string) CommandResult {
	if strings.TrimSpace(args) == "" {
		return CommandResult{Response: "Provide seconds (ex: /setdelay 0.3)", Handled: true}
	}
	secs, err := parseSeconds(args)
	if err != nil {
		return CommandResult{Response: "Invalid value.", Handled: true}
	}

	b.broadcast.Reconfigure(ctx, cs, secondsToInterval(secs))
	return CommandResult{
		Response: fmt.Sprintf("Spam delay set to %s seconds.", formatFloat(secs)),
		Handled:  true,
	}
}

func (b *Bot) setNCDelayCommand(ctx context.Context, cs *ConversationState, args string) CommandResult {
	if strings.TrimSpace(args) == "" {
		return CommandResult{Response: "Provide seconds (ex: /setncdelay 0.7)", Handled: true}
	}
	secs, err := parseSeconds(args)
	if err != nil {
		return CommandResult{Response: "Invalid value.", Handled: true}
	}

	b.rename.Reconfigure(ctx, cs, secondsToInterval(secs))
	return CommandResult{
		Response: fmt.Sprintf("NC delay set to %s seconds.", formatFloat(secs)),
		Handled:  true,
	}
}

func (b *Bot) spamCommand(ctx context.Context, cs *ConversationState, args string) CommandResult {
	err := b.broadcast.Start(ctx, cs, args)
	switch {
	case errors.Is(err, ErrEmptyArgument):
		return CommandResult{Response: "Provide text (/spam message)", Handled: true}
	case errors.Is(err, ErrBroadcastRunning):
		return CommandResult{Response: "Spam is running.", Handled: true}
	case err != nil:
		b.logger.Error("broadcast start failed", "chat", cs.ChatID, "error", err)
		return CommandResult{Handled: true}
	}

	cs.Lock()
	interval := cs.Broadcast.Interval
	cs.Unlock()
	return CommandResult{
		Response: fmt.Sprintf("Spam started 🥊 (delay %ss).", formatSeconds(interval)),
		Handled:  true,
	}
}

func (b *Bot) stopSpamCommand(cs *ConversationState) CommandResult {
	if err := b.broadcast.Stop(cs); err != nil {
		return CommandResult{Response: "Spam not running.", Handled: true}
	}
	return CommandResult{Response: "Spam stopped 🛑.", Handled: true}
}

func (b *Bot) startNCCommand(ctx context.Context, cs *ConversationState, args string, isGroup bool) CommandResult {
	err := b.rename.Start(ctx, cs, args, isGroup)
	switch {
	case errors.Is(err, ErrNotAGroup):
		return CommandResult{Response: "Use in group.", Handled: true}
	case errors.Is(err, ErrRenameRunning):
		return CommandResult{Response: "NC already running.", Handled: true}
	case errors.Is(err, ErrEmptyArgument):
		return CommandResult{Response: "Provide names: /startnc name1|name2|...", Handled: true}
	case err != nil:
		b.logger.Error("rename start failed", "chat", cs.ChatID, "error", err)
		return CommandResult{Handled: true}
	}

	cs.Lock()
	interval := cs.Rename.Interval
	cs.Unlock()
	return CommandResult{
		Response: fmt.Sprintf("NC started 🥊 (delay %ss).", formatSeconds(interval)),
		Handled:  true,
	}
}

func (b *Bot) stopNCCommand(cs *ConversationState) CommandResult {
	if err := b.rename.Stop(cs); err != nil {
		return CommandResult{Response: "No NC running.", Handled: true}
	}
	return CommandResult{Response: "NC stopped 🛑.", Handled: true}
}

func (b *Bot) addSubadminCommand(msg *channels.IncomingMessage, args string) CommandResult {
	if !b.access.IsOwner(msg.From) {
		return CommandResult{Response: "Only owner can add subadmins.", Handled: true}
	}

	target := resolveTarget(msg.Mentions, args)
	if target == "" {
		return CommandResult{Response: "Tag or provide number.", Handled: true}
	}

	added, err := b.access.AddSubadmin(target)
	if err != nil {
		b.logger.Error("subadmin add failed", "target", target, "error", err)
		return CommandResult{Response: "Failed to update subadmins.", Handled: true}
	}
	if !added {
		return CommandResult{Response: "Already subadmin.", Handled: true}
	}
	return CommandResult{Response: "Subadmin added.", Handled: true}
}

func (b *Bot) removeSubadminCommand(msg *channels.IncomingMessage, args string) CommandResult {
	if !b.access.IsOwner(msg.From) {
		return CommandResult{Response: "Only owner can remove subadmins.", Handled: true}
	}

	target := resolveTarget(msg.Mentions, args)
	if target == "" {
		return CommandResult{Response: "Tag or provide number.", Handled: true}
	}

	if err := b.access.RemoveSubadmin(target); err != nil {
		b.logger.Error("subadmin remove failed", "target", target, "error", err)
		return CommandResult{Response: "Failed to update subadmins.", Handled: true}
	}
	return CommandResult{Response: "Subadmin removed.", Handled: true}
}

func (b *Bot) helpCommand() CommandResult {
	text := `FIGHT BOT 🎯 Commands:

/spam - Start spam
/stopspam - Stop spam
/setdelay - Set spam delay (per group)
/startnc - Start group name cycling
/stopnc - Stop NC
/setncdelay - Set NC delay (per group)
/status - Show status
/ytmp3 - Download YouTube audio (mp3) from song name
/menu
/help
`
	return CommandResult{Response: text, Handled: true}
}

// ytmp3Command acknowledges the request and fetches the audio in the
// background so long downloads never block the message loop.
func (b *Bot) ytmp3Command(ctx context.Context, msg *channels.IncomingMessage, args string) CommandResult {
	query := strings.TrimSpace(args)
	if query == "" {
		return CommandResult{Response: "Use: /ytmp3 <song name>", Handled: true}
	}

	go b.fetchAndSendAudio(ctx, msg, query)

	return CommandResult{
		Response: "Searching & downloading: " + query,
		Handled:  true,
	}
}

// staffMentions returns the owner plus every subadmin, for replies that
// tag the whole staff.
func (b *Bot) staffMentions() []string {
	return append([]string{b.access.Owner()}, b.access.Subadmins()...)
}

// resolveTarget picks the target identity for subadmin commands: the
// first tagged user wins, otherwise the digits of the raw argument.
func resolveTarget(mentions []string, args string) string {
	if len(mentions) > 0 {
		return mentions[0]
	}
	if num := DigitsOnly(args); num != "" {
		return num
	}
	return ""
}

// parseSeconds parses a positive decimal seconds value. ParseFloat also
// accepts "inf" and "nan"; neither makes a usable interval.
func parseSeconds(args string) (float64, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(args), 64)
	if err != nil {
		return 0, ErrBadNumber
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return 0, ErrBadNumber
	}
	return secs, nil
}

// secondsToInterval converts seconds to a duration, rounding to the
// nearest millisecond. Clamping happens in the schedulers.
func secondsToInterval(secs float64) time.Duration {
	return time.Duration(math.Round(secs*1000)) * time.Millisecond
}

// formatSeconds renders a duration as a bare decimal seconds value,
// trailing zeros trimmed ("1", "0.3").
func formatSeconds(d time.Duration) string {
	return formatFloat(d.Seconds())
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func onOff(on bool) string {
	if on {
		return "ON 🟢"
	}
	return "OFF 🔴"
}
