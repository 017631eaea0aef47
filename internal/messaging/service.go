// Package messaging implements guest conversations: find-or-create, message
// append, status updates, reads, listing, and retention.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/concierge/internal/config"
	"github.com/zulandar/concierge/internal/logger"
	"gorm.io/gorm"
)

// notifyTimeout bounds a single staff alert or event publish.
const notifyTimeout = 5 * time.Second

// EventPublisher fans out mutation events to realtime subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

// StaffNotifier alerts hotel staff about inbound guest messages.
type StaffNotifier interface {
	NotifyInbound(ctx context.Context, alert InboundAlert) error
}

// Service owns all reads and writes of conversations and their messages.
type Service struct {
	db          *gorm.DB
	log         *logger.Logger
	normalizer  *Normalizer
	maxRetained int
	events      EventPublisher
	notifier    StaffNotifier
	now         func() time.Time
}

// Options holds parameters for creating a Service.
type Options struct {
	DB          *gorm.DB
	Logger      *logger.Logger // defaults to a no-op logger
	Normalizer  *Normalizer    // defaults to local time, "15:04:05"
	MaxRetained int            // defaults to config.DefaultMaxRetained
	Events      EventPublisher // optional
	Notifier    StaffNotifier  // optional
	Now         func() time.Time
}

// NewService creates a Service.
func NewService(opts Options) (*Service, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("messaging: db is required")
	}
	s := &Service{
		db:          opts.DB,
		log:         opts.Logger,
		normalizer:  opts.Normalizer,
		maxRetained: opts.MaxRetained,
		events:      opts.Events,
		notifier:    opts.Notifier,
		now:         opts.Now,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.With("service", "messaging")
	if s.now == nil {
		s.now = time.Now
	}
	if s.normalizer == nil {
		s.normalizer = NewNormalizer(time.Local, "")
		s.normalizer.Now = s.now
	}
	if s.maxRetained <= 0 {
		s.maxRetained = config.DefaultMaxRetained
	}
	return s, nil
}

// MaxRetained returns the per-conversation message cap.
func (s *Service) MaxRetained() int { return s.maxRetained }

// normalizeLegacy runs the normalizer and logs anything it discarded.
func (s *Service) normalizeLegacy(conversationID uint, raw []byte) []Message {
	msgs, report := s.normalizer.Normalize(raw)
	if report.Lossy() {
		s.log.Warn("legacy messages discarded",
			"conversation_id", conversationID,
			"elements", report.Elements,
			"dropped", report.Dropped,
			"unreadable", report.Unreadable,
		)
	}
	return msgs
}

func (s *Service) publish(ctx context.Context, evt Event) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Error("publish event", "type", evt.Type, "conversation_id", evt.ConversationID, "error", err)
	}
}

func (s *Service) notifyInbound(ctx context.Context, alert InboundAlert) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyInbound(ctx, alert); err != nil {
		s.log.Error("notify staff", "conversation_id", alert.ConversationID, "error", err)
	}
}
