// Package whatsapp implements the WhatsApp transport for FightBot using
// whatsmeow — a native Go WhatsApp Web API library. No Node.js, no Baileys.
//
// Features:
//   - QR code login with persistent session (QR rendered to a PNG for
//     headless deployments)
//   - Send text with reply quoting and mentions
//   - Group subject renaming
//   - MP3 delivery as playable audio messages
//   - Automatic reconnection with backoff
//   - Connection state management and health monitoring
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/aryanwp/fightbot/pkg/fightbot/channels"

	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for session store.
)

// Config holds WhatsApp transport configuration.
type Config struct {
	// SessionDir is the directory for session persistence (SQLite).
	// Ignored if DatabasePath is set.
	SessionDir string `yaml:"session_dir"`

	// DatabasePath is the path to the SQLite database file for session
	// storage. If empty, defaults to {SessionDir}/whatsapp.db.
	DatabasePath string `yaml:"database_path"`

	// QRImagePath is where the pairing QR code PNG is written while a
	// login is pending. If empty, defaults to {SessionDir}/qr.png.
	QRImagePath string `yaml:"qr_image_path"`

	// ReconnectBackoff is the initial backoff duration for reconnection.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// MaxReconnectAttempts is the maximum number of reconnection attempts
	// (0 = unlimited).
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// HealthMonitor configures proactive connection health monitoring.
	HealthMonitor HealthMonitorConfig `yaml:"health_monitor"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionDir:           "./sessions/whatsapp",
		ReconnectBackoff:     5 * time.Second,
		MaxReconnectAttempts: 10,
		HealthMonitor:        DefaultHealthMonitorConfig(),
	}
}

// WhatsApp implements channels.Channel, channels.GroupChannel and
// channels.MediaChannel on top of whatsmeow.
type WhatsApp struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	// messages is the channel for incoming messages.
	messages chan *channels.IncomingMessage

	// connected tracks connection state.
	connected atomic.Bool

	// state tracks detailed connection state.
	state atomic.Value // ConnectionState

	// lastMsg tracks the last activity timestamp for health.
	lastMsg atomic.Value // time.Time

	// errorCount tracks consecutive errors.
	errorCount atomic.Int64

	// reconnectAttempts tracks reconnection tries.
	reconnectAttempts atomic.Int32

	// reconnectGuard prevents multiple concurrent reconnection attempts.
	reconnectGuard atomic.Bool

	// messagesClosed tracks if the messages channel has been closed.
	messagesClosed atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new WhatsApp transport instance.
func New(cfg Config, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}

	w := &WhatsApp{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
	w.setState(StateDisconnected)
	return w
}

// ---------- State Management ----------

func (w *WhatsApp) getState() ConnectionState {
	if v := w.state.Load(); v != nil {
		return v.(ConnectionState)
	}
	return StateDisconnected
}

func (w *WhatsApp) setState(state ConnectionState) {
	w.state.Store(state)
}

// GetState returns the current connection state (public API).
func (w *WhatsApp) GetState() ConnectionState {
	return w.getState()
}

func (w *WhatsApp) getClientJID() string {
	if w.client != nil && w.client.Store.ID != nil {
		return w.client.Store.ID.String()
	}
	return ""
}

// ---------- Channel Interface ----------

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// Connect establishes the WhatsApp Web connection via whatsmeow.
// If no existing session is found, the QR login process runs in the
// background (non-blocking) so the process can start immediately; the QR
// code is written as a PNG to cfg.QRImagePath for scanning.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.setState(StateConnecting)
	w.logger.Info("whatsapp: initializing connection...")

	dbPath := w.cfg.DatabasePath
	if dbPath == "" {
		if err := os.MkdirAll(w.cfg.SessionDir, 0o700); err != nil {
			w.setState(StateDisconnected)
			return fmt.Errorf("creating session dir: %w", err)
		}
		dbPath = w.cfg.SessionDir + "/whatsapp.db"
	}
	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := w.getDevice(w.ctx, container)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("getting device: %w", err)
	}

	// Device name shown in the WhatsApp linked devices list.
	store.SetOSInfo("FightBot", [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, waLog.Noop)
	w.client.AddEventHandler(w.handleEvent)

	// whatsmeow's built-in auto-reconnect handles network hiccups and
	// server-initiated disconnects; our own backoff loop covers the rest.
	w.client.EnableAutoReconnect = true
	w.client.InitialAutoReconnect = true

	if w.client.Store.ID == nil {
		// First login — start the QR process in the background.
		w.setState(StateWaitingQR)
		w.logger.Info("whatsapp: no existing session, QR code required",
			"qr_image", w.qrImagePath())
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("whatsapp: QR login pending", "error", err)
			}
		}()
		return nil
	}

	// Existing session — reconnect.
	if err := w.client.Connect(); err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("connecting: %w", err)
	}

	w.connected.Store(true)
	w.logger.Info("whatsapp: connected (existing session)",
		"jid", w.getClientJID())

	w.StartHealthMonitor(w.ctx, w.cfg.HealthMonitor)

	return nil
}

// Disconnect gracefully closes the WhatsApp connection.
func (w *WhatsApp) Disconnect() error {
	w.setState(StateDisconnected)
	w.connected.Store(false)

	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}

	// Mark first to prevent emitMessage racing a send into a closed channel.
	if w.messagesClosed.CompareAndSwap(false, true) {
		close(w.messages)
	}

	w.removeQRImage()
	w.logger.Info("whatsapp: disconnected")
	return nil
}

// Send sends a text message, optionally quoting the originating message and
// tagging mentioned identities.
func (w *WhatsApp) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	jid, err := ParseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}

	waMsg := buildTextMessage(to, msg)

	if _, err := w.client.SendMessage(ctx, jid, waMsg); err != nil {
		w.errorCount.Add(1)
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// RenameGroup changes the subject of a group chat.
func (w *WhatsApp) RenameGroup(ctx context.Context, chatID, name string) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	jid, err := ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", chatID, err)
	}
	if jid.Server != types.GroupServer {
		return channels.ErrNotAGroup
	}

	if err := w.client.SetGroupName(ctx, jid, name); err != nil {
		w.errorCount.Add(1)
		return fmt.Errorf("renaming group: %w", err)
	}
	return nil
}

// SendAudio uploads and sends a local audio file as a playable message.
func (w *WhatsApp) SendAudio(ctx context.Context, to string, audio *channels.AudioMessage) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	jid, err := ParseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}

	data, err := os.ReadFile(audio.Path)
	if err != nil {
		return fmt.Errorf("reading audio file: %w", err)
	}

	up, err := w.client.Upload(ctx, data, whatsmeow.MediaAudio)
	if err != nil {
		w.errorCount.Add(1)
		return fmt.Errorf("uploading audio: %w", err)
	}

	mime := audio.MimeType
	if mime == "" {
		mime = "audio/mpeg"
	}

	waMsg := &waE2E.Message{
		AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mime),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(data))),
			ContextInfo:   quoteContext(to, audio.ReplyTo, audio.ReplyToSender),
		},
	}

	if _, err := w.client.SendMessage(ctx, jid, waMsg); err != nil {
		w.errorCount.Add(1)
		return fmt.Errorf("sending audio: %w", err)
	}
	return nil
}

// Receive returns the incoming messages channel.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// IsConnected returns true if WhatsApp is connected.
func (w *WhatsApp) IsConnected() bool {
	return w.connected.Load()
}

// NeedsQR returns true if the session is not linked yet.
func (w *WhatsApp) NeedsQR() bool {
	return w.client != nil && w.client.Store.ID == nil && !w.connected.Load()
}

// QRImagePath returns the effective path of the pairing QR PNG, applying
// the {SessionDir}/qr.png default. The file only exists while a pairing is
// pending; callers serving it should treat a missing file as "no QR".
func (w *WhatsApp) QRImagePath() string {
	return w.qrImagePath()
}

// Health returns the channel health status.
func (w *WhatsApp) Health() channels.HealthStatus {
	h := channels.HealthStatus{
		Connected:  w.connected.Load(),
		ErrorCount: int(w.errorCount.Load()),
		Details:    make(map[string]any),
	}
	if t, ok := w.lastMsg.Load().(time.Time); ok {
		h.LastMessageAt = t
	}
	h.Details["state"] = string(w.getState())
	if w.client != nil && w.client.Store.ID != nil {
		h.Details["jid"] = w.client.Store.ID.String()
		h.Details["platform"] = w.client.Store.Platform
	}
	h.Details["reconnect_attempts"] = w.reconnectAttempts.Load()
	return h
}

// ---------- Internal ----------

// getDevice retrieves an existing device or creates a new one.
func (w *WhatsApp) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

func (w *WhatsApp) qrImagePath() string {
	if w.cfg.QRImagePath != "" {
		return w.cfg.QRImagePath
	}
	return w.cfg.SessionDir + "/qr.png"
}

// writeQRImage renders the pairing code as a PNG for headless scanning.
func (w *WhatsApp) writeQRImage(code string) {
	path := w.qrImagePath()
	if err := qrcode.WriteFile(code, qrcode.Medium, 256, path); err != nil {
		w.logger.Warn("whatsapp: failed to write QR image",
			"path", path, "error", err)
		return
	}
	w.logger.Info("whatsapp: QR code written, scan with your phone",
		"path", path)
}

func (w *WhatsApp) removeQRImage() {
	_ = os.Remove(w.qrImagePath())
}

// loginWithQR handles the QR code login flow. Each fresh code is rendered to
// the QR image path; the file is removed once pairing succeeds or expires.
func (w *WhatsApp) loginWithQR(ctx context.Context) error {
	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	w.setState(StateWaitingQR)

	for {
		select {
		case <-ctx.Done():
			w.setState(StateDisconnected)
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed unexpectedly")
			}

			switch evt.Event {
			case "code":
				w.setState(StateWaitingQR)
				w.writeQRImage(evt.Code)

			case "success":
				w.connected.Store(true)
				w.reconnectAttempts.Store(0)
				w.setState(StateConnected)
				w.removeQRImage()
				w.logger.Info("whatsapp: login successful")
				w.StartHealthMonitor(w.ctx, w.cfg.HealthMonitor)
				return nil

			case "timeout":
				w.setState(StateDisconnected)
				w.removeQRImage()
				w.logger.Warn("whatsapp: QR code expired, restart to retry")
				return fmt.Errorf("QR code timeout")

			default:
				if evt.Error != nil {
					w.setState(StateDisconnected)
					w.removeQRImage()
					w.logger.Error("whatsapp: QR login error", "error", evt.Error)
					return fmt.Errorf("QR login error: %v", evt.Error)
				}
			}
		}
	}
}

// attemptReconnect tries to reconnect with exponential backoff.
// A guard flag prevents multiple concurrent reconnection attempts.
func (w *WhatsApp) attemptReconnect() {
	if !w.reconnectGuard.CompareAndSwap(false, true) {
		w.logger.Debug("whatsapp: reconnect already in progress, skipping")
		return
	}
	defer w.reconnectGuard.Store(false)

	w.setState(StateReconnecting)

	for {
		if w.ctx.Err() != nil {
			w.logger.Debug("whatsapp: reconnect cancelled, context done")
			return
		}

		attempts := w.reconnectAttempts.Add(1)
		if w.cfg.MaxReconnectAttempts > 0 && attempts > int32(w.cfg.MaxReconnectAttempts) {
			w.logger.Error("whatsapp: max reconnect attempts reached",
				"attempts", attempts)
			w.setState(StateDisconnected)
			return
		}

		backoff := min(w.cfg.ReconnectBackoff*time.Duration(attempts), 5*time.Minute)

		w.logger.Info("whatsapp: attempting reconnect",
			"attempt", attempts,
			"backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-w.ctx.Done():
			w.logger.Debug("whatsapp: reconnect cancelled during backoff")
			return
		}

		if w.client == nil {
			w.logger.Warn("whatsapp: client is nil, cannot reconnect")
			return
		}

		// Disconnect first to clear any stale websocket state.
		if w.client.IsConnected() {
			w.client.Disconnect()
			time.Sleep(100 * time.Millisecond)
		}

		if err := w.client.Connect(); err != nil {
			w.logger.Warn("whatsapp: reconnect attempt failed, will retry",
				"attempt", attempts,
				"error", err)
			continue
		}

		// The Connected event will update state.
		w.logger.Info("whatsapp: reconnect initiated, waiting for confirmation")
		return
	}
}

// emitMessage sends a message to the incoming messages channel.
func (w *WhatsApp) emitMessage(msg *channels.IncomingMessage) {
	if w.messagesClosed.Load() {
		return
	}

	select {
	case w.messages <- msg:
		w.lastMsg.Store(time.Now())
	case <-w.ctx.Done():
	default:
		w.logger.Warn("whatsapp: message channel full, dropping message",
			"from", msg.From)
	}
}

// buildTextMessage assembles the wire message for a text send. Plain sends
// use a bare Conversation; quoting or mentioning requires ExtendedText.
func buildTextMessage(chatID string, msg *channels.OutgoingMessage) *waE2E.Message {
	if msg.ReplyTo == "" && len(msg.Mentions) == 0 {
		return &waE2E.Message{Conversation: proto.String(msg.Content)}
	}

	ext := &waE2E.ExtendedTextMessage{
		Text:        proto.String(msg.Content),
		ContextInfo: quoteContext(chatID, msg.ReplyTo, msg.ReplyToSender),
	}
	if len(msg.Mentions) > 0 {
		if ext.ContextInfo == nil {
			ext.ContextInfo = &waE2E.ContextInfo{}
		}
		ext.ContextInfo.MentionedJID = msg.Mentions
	}
	return &waE2E.Message{ExtendedTextMessage: ext}
}

// quoteContext builds the reply context for quoting a message, or nil when
// there is nothing to quote.
func quoteContext(chatID, replyTo, replySender string) *waE2E.ContextInfo {
	if replyTo == "" {
		return nil
	}
	ci := &waE2E.ContextInfo{
		StanzaID:      proto.String(replyTo),
		QuotedMessage: &waE2E.Message{Conversation: proto.String("")},
	}
	if replySender != "" {
		ci.Participant = proto.String(replySender)
	} else {
		ci.Participant = proto.String(chatID)
	}
	return ci
}
