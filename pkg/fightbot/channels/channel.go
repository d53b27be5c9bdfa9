// Package channels defines the interfaces and types FightBot uses to talk to
// a messaging network. The bot core only ever sees these types; the concrete
// transport (WhatsApp via whatsmeow) lives in a subpackage.
package channels

import (
	"context"
	"fmt"
	"time"
)

// Channel defines the interface every transport must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a message to the specified chat.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// GroupChannel extends Channel with group management capabilities.
type GroupChannel interface {
	Channel

	// RenameGroup changes the subject (display name) of a group chat.
	RenameGroup(ctx context.Context, chatID, name string) error
}

// MediaChannel extends Channel with audio delivery.
type MediaChannel interface {
	Channel

	// SendAudio sends an audio file as a playable attachment.
	SendAudio(ctx context.Context, to string, audio *AudioMessage) error
}

// IncomingMessage represents a message received from the network.
// Optional fields (ReplyTo, Mentions) are explicitly zero when absent;
// handlers must check presence instead of assuming them.
type IncomingMessage struct {
	// ID is the unique message identifier, used for quoting.
	ID string

	// Channel identifies the source transport (e.g. "whatsapp").
	Channel string

	// From is the sender identity on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// ChatID is the conversation (group or DM) identifier.
	ChatID string

	// IsGroup indicates whether the conversation is a group chat.
	IsGroup bool

	// FromMe is true for messages sent by the bot's own account.
	FromMe bool

	// Content is the text body of the message.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// ReplyTo contains the ID of the message being replied to, if any.
	ReplyTo string

	// Mentions lists the identities tagged in the message, if any.
	Mentions []string

	// Metadata contains additional channel-specific data.
	Metadata map[string]any
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text body.
	Content string

	// ReplyTo is the ID of the message to quote, empty for a plain send.
	ReplyTo string

	// ReplyToSender is the original sender of the quoted message
	// (required by some transports when quoting in groups).
	ReplyToSender string

	// Mentions lists identities to tag in the message.
	Mentions []string
}

// AudioMessage is an audio file to deliver as a playable attachment.
type AudioMessage struct {
	// Path is the local file path of the audio.
	Path string

	// MimeType is the audio MIME type (e.g. "audio/mpeg").
	MimeType string

	// ReplyTo quotes the originating message, if set.
	ReplyTo string

	// ReplyToSender is the sender of the quoted message.
	ReplyToSender string
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
	Details       map[string]any
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrNotAGroup           = fmt.Errorf("chat is not a group")
	ErrSendFailed          = fmt.Errorf("failed to send message")
)
