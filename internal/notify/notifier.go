package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/zulandar/concierge/internal/logger"
	"github.com/zulandar/concierge/internal/messaging"
)

// Notifier posts guest message alerts through an Adapter. It implements
// messaging.StaffNotifier.
type Notifier struct {
	adapter   Adapter
	channelID string
	log       *logger.Logger

	mu        sync.Mutex
	connected bool
}

var _ messaging.StaffNotifier = (*Notifier)(nil)

// NewNotifier wraps adapter. channelID may be empty to use the adapter's
// default channel.
func NewNotifier(adapter Adapter, channelID string, log *logger.Logger) (*Notifier, error) {
	if adapter == nil {
		return nil, fmt.Errorf("notify: adapter is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{adapter: adapter, channelID: channelID, log: log}, nil
}

// NotifyInbound connects on first use and posts the alert.
func (n *Notifier) NotifyInbound(ctx context.Context, alert messaging.InboundAlert) error {
	if err := n.ensureConnected(ctx); err != nil {
		return err
	}
	msg := OutboundMessage{
		ChannelID: n.channelID,
		Text:      FormatInboundText(alert),
		Events:    []FormattedEvent{FormatInbound(alert)},
	}
	if err := n.adapter.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: conversation %d: %w", alert.ConversationID, err)
	}
	n.log.Debug("staff notified", "conversation_id", alert.ConversationID, "unread", alert.UnreadCount)
	return nil
}

func (n *Notifier) ensureConnected(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.connected {
		return nil
	}
	if err := n.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("notify: connect: %w", err)
	}
	n.connected = true
	return nil
}

// Close closes the underlying adapter.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = false
	return n.adapter.Close()
}
