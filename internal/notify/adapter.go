// Package notify alerts hotel staff on a chat platform (Slack, Discord) when
// a guest writes in.
package notify

import "context"

// Adapter is the interface that platform-specific implementations must satisfy.
type Adapter interface {
	// Connect authenticates with the chat platform. Calling it again after a
	// successful connect is a no-op.
	Connect(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close shuts down the adapter connection.
	Close() error
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string           // target channel (empty for the adapter default)
	Text      string           // fallback text (platform-native formatting)
	Events    []FormattedEvent // structured attachments
}

// FormattedEvent is a guest event formatted for display in chat.
type FormattedEvent struct {
	Title    string
	Body     string
	Severity string // "info", "warning"
	Color    string // sidebar color hint, e.g. "#2196f3"
	Fields   []Field
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}
