// Package whatsapp – events.go processes incoming whatsmeow events and
// converts them into the bot's unified IncomingMessage type.
package whatsapp

import (
	"fmt"
	"strings"

	"github.com/aryanwp/fightbot/pkg/fightbot/channels"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ConnectionState represents the current connection state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateWaitingQR    ConnectionState = "waiting_qr"
	StateBanned       ConnectionState = "banned"
)

// handleEvent is the main whatsmeow event dispatcher.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.handleConnected(evt)

	case *events.Disconnected:
		w.handleDisconnected(evt)

	case *events.StreamReplaced:
		w.handleStreamReplaced(evt)

	case *events.LoggedOut:
		w.handleLoggedOut(evt)

	case *events.TemporaryBan:
		w.handleTemporaryBan(evt)

	case *events.KeepAliveTimeout:
		w.handleKeepAliveTimeout(evt)

	case *events.KeepAliveRestored:
		w.logger.Info("whatsapp: keep-alive restored")
		w.errorCount.Store(0)

	case *events.ConnectFailure:
		w.handleConnectFailure(evt)

	case *events.PairSuccess:
		w.logger.Info("whatsapp: device paired",
			"jid", evt.ID, "platform", evt.Platform)
	}
}

func (w *WhatsApp) handleConnected(_ *events.Connected) {
	w.setState(StateConnected)
	w.connected.Store(true)
	w.errorCount.Store(0)
	w.reconnectAttempts.Store(0)
	w.UpdateLastMsgTime()

	w.logger.Info("whatsapp: connected", "jid", w.getClientJID())
}

func (w *WhatsApp) handleDisconnected(_ *events.Disconnected) {
	previous := w.getState()
	w.setState(StateDisconnected)

	w.logger.Warn("whatsapp: disconnected",
		"was_connected", w.connected.Load())

	w.connected.Store(false)

	// Attempt reconnection unless the disconnect was intentional.
	if previous == StateConnected && w.ctx.Err() == nil {
		go w.attemptReconnect()
	}
}

func (w *WhatsApp) handleStreamReplaced(_ *events.StreamReplaced) {
	w.setState(StateDisconnected)
	w.connected.Store(false)
	w.logger.Error("whatsapp: stream replaced - another device connected")
}

// handleLoggedOut handles session invalidation. This is the one terminal
// disconnect: no reconnection is attempted, a fresh QR pairing is required.
func (w *WhatsApp) handleLoggedOut(evt *events.LoggedOut) {
	w.setState(StateDisconnected)
	w.connected.Store(false)

	reason := "unknown"
	if evt.Reason != 0 {
		reason = evt.Reason.String()
	}

	w.logger.Error("whatsapp: logged out, session invalidated",
		"reason", reason,
		"on_connect", evt.OnConnect)

	go func() {
		if err := w.loginWithQR(w.ctx); err != nil {
			w.logger.Warn("whatsapp: QR re-login failed", "error", err)
		}
	}()
}

func (w *WhatsApp) handleTemporaryBan(evt *events.TemporaryBan) {
	w.setState(StateBanned)
	w.connected.Store(false)

	w.logger.Error("whatsapp: temporary ban",
		"code", evt.Code,
		"expire", evt.Expire)
}

func (w *WhatsApp) handleKeepAliveTimeout(evt *events.KeepAliveTimeout) {
	w.logger.Warn("whatsapp: keep-alive timeout",
		"error_count", evt.ErrorCount,
		"last_success", evt.LastSuccess)

	w.errorCount.Add(1)

	// Half-open connections look connected but are dead; force a
	// reconnect once keepalive fails repeatedly.
	if evt.ErrorCount >= 3 && w.getState() == StateConnected {
		w.logger.Error("whatsapp: keep-alive failed repeatedly, forcing reconnection",
			"error_count", evt.ErrorCount)
		w.setState(StateReconnecting)
		w.connected.Store(false)
		go w.attemptReconnect()
	}
}

func (w *WhatsApp) handleConnectFailure(evt *events.ConnectFailure) {
	w.setState(StateDisconnected)
	w.connected.Store(false)

	reason := "unknown"
	if evt.Reason != 0 {
		reason = evt.Reason.String()
	}
	permanent := evt.PermanentDisconnectDescription()

	w.logger.Error("whatsapp: connect failure",
		"reason", reason,
		"message", evt.Message,
		"permanent", permanent)

	if permanent == "" && w.ctx.Err() == nil {
		go w.attemptReconnect()
	}
}

// handleMessageEvt processes an incoming WhatsApp message event.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	w.UpdateLastMsgTime()

	// Skip messages from self.
	if evt.Info.IsFromMe {
		return
	}

	// Skip status broadcasts.
	if evt.Info.Chat.Server == "broadcast" {
		return
	}

	// Resolve sender JID — WhatsApp may use LID (Linked Identity) format
	// instead of phone numbers. Resolve to phone JID for access control.
	senderJID := evt.Info.Sender
	resolvedSender := senderJID.String()
	if senderJID.Server == "lid" && w.client != nil && w.client.Store != nil {
		if altJID, err := w.client.Store.GetAltJID(w.ctx, senderJID); err == nil && !altJID.IsEmpty() {
			resolvedSender = altJID.String()
		}
	}

	msg := &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      resolvedSender,
		FromName:  evt.Info.PushName,
		ChatID:    evt.Info.Chat.String(),
		IsGroup:   evt.Info.IsGroup,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
		Metadata: map[string]any{
			"sender_jid": senderJID.String(),
			"push_name":  evt.Info.PushName,
		},
	}

	extractMessageContent(evt.Message, msg)

	w.emitMessage(msg)
}

// extractMessageContent pulls the text body, quoted context and mentions
// out of a wire message. Fields stay zero when absent.
func extractMessageContent(waMsg *waE2E.Message, msg *channels.IncomingMessage) {
	if waMsg == nil {
		return
	}

	if waMsg.Conversation != nil {
		msg.Content = waMsg.GetConversation()
		return
	}

	if ext := waMsg.ExtendedTextMessage; ext != nil {
		msg.Content = ext.GetText()
		if ci := ext.GetContextInfo(); ci != nil {
			if ci.StanzaID != nil {
				msg.ReplyTo = ci.GetStanzaID()
			}
			msg.Mentions = ci.GetMentionedJID()
		}
		return
	}

	// Audio, media, stickers etc. carry no command text; leave Content empty.
}

// ---------- Helpers ----------

// ParseJID converts a string JID to types.JID.
// Accepts "5511999999999", "5511999999999@s.whatsapp.net" or group IDs
// like "123456789-1234@g.us".
func ParseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	// Bare phone number — strip non-digits and add the default server.
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)

	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}

	return types.NewJID(digits, types.DefaultUserServer), nil
}
