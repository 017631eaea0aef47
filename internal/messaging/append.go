package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/concierge/internal/models"
	"gorm.io/gorm"
)

// AppendInput holds the fields of a new message.
type AppendInput struct {
	ConversationID uint
	Message        string
	Sender         string
	Direction      string // defaults from Sender
	Status         string // defaults to "sent"
}

// Append stores a new message and refreshes the conversation summary in one
// transaction. Guest messages bump the unread count; staff replies reset it.
// The conversation is then pruned to the retention cap. Reset and prune
// failures are logged, not returned: the message is already stored.
func (s *Service) Append(ctx context.Context, in AppendInput) (*Message, error) {
	text := strings.TrimSpace(in.Message)
	sender := strings.TrimSpace(in.Sender)
	if in.ConversationID == 0 {
		return nil, invalid("conversationId is required")
	}
	if text == "" {
		return nil, invalid("message is required")
	}
	if sender == "" {
		return nil, invalid("sender is required")
	}

	direction := strings.TrimSpace(in.Direction)
	if direction == "" {
		direction = models.DirectionFor(sender)
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = models.StatusSent
	}
	for _, f := range []struct{ name, value string }{
		{"sender", sender}, {"direction", direction}, {"status", status},
	} {
		if utf8.RuneCountInString(f.value) > models.MaxLabelLength {
			return nil, invalid("%s must be at most %d characters", f.name, models.MaxLabelLength)
		}
	}

	now := s.now().UTC()
	row := models.ConversationMessage{
		ConversationID: in.ConversationID,
		Body:           text,
		Sender:         sender,
		Direction:      direction,
		Status:         status,
		CreatedAt:      now,
	}

	var conv models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", in.ConversationID).Take(&conv).Error; err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{
			"last_message":      text,
			"last_message_time": now,
			"updated_at":        now,
		}
		if sender == models.SenderCustomer {
			updates["unread_count"] = gorm.Expr("unread_count + ?", 1)
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", in.ConversationID).Updates(updates).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, conversationNotFound(in.ConversationID)
		}
		return nil, fmt.Errorf("messaging: append to conversation %d: %w", in.ConversationID, err)
	}

	if models.IsStaff(sender) {
		if err := s.resetUnread(s.db.WithContext(ctx), in.ConversationID); err != nil {
			s.log.Error("reset unread after staff reply", "conversation_id", in.ConversationID, "error", err)
		}
	}
	if pruned, err := s.Prune(ctx, in.ConversationID); err != nil {
		s.log.Error("prune conversation", "conversation_id", in.ConversationID, "error", err)
	} else if pruned > 0 {
		s.log.Debug("pruned conversation", "conversation_id", in.ConversationID, "deleted", pruned)
	}

	msg := s.toMessage(row)
	s.publish(ctx, Event{Type: EventMessageCreated, ConversationID: in.ConversationID, Message: &msg, At: now})
	if sender == models.SenderCustomer {
		s.notifyInbound(ctx, InboundAlert{
			ConversationID: conv.ID,
			CustomerName:   conv.CustomerName,
			CustomerPhone:  conv.CustomerPhone,
			UnreadCount:    conv.UnreadCount + 1,
			Message:        msg,
		})
	}
	return &msg, nil
}

func (s *Service) resetUnread(db *gorm.DB, id uint) error {
	return db.Model(&models.Conversation{}).Where("id = ?", id).Update("unread_count", 0).Error
}

// Prune deletes all but the newest MaxRetained messages of a conversation
// and returns how many rows were removed.
func (s *Service) Prune(ctx context.Context, id uint) (int64, error) {
	db := s.db.WithContext(ctx)

	var cutoff models.ConversationMessage
	err := db.Where("conversation_id = ?", id).
		Order("created_at DESC").Order("id DESC").
		Offset(s.maxRetained - 1).
		Take(&cutoff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("messaging: prune %d: %w", id, err)
	}

	result := db.Where("conversation_id = ? AND (created_at < ? OR (created_at = ? AND id < ?))",
		id, cutoff.CreatedAt, cutoff.CreatedAt, cutoff.ID).
		Delete(&models.ConversationMessage{})
	if result.Error != nil {
		return 0, fmt.Errorf("messaging: prune %d: %w", id, result.Error)
	}
	return result.RowsAffected, nil
}
