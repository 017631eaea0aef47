package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/concierge/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxLegacyAttempts bounds compare-and-swap retries on the legacy column.
const maxLegacyAttempts = 3

// UpdateStatus sets the status of one message. Stored rows are updated in
// place; messages still in the legacy column are rewritten under the
// conversation's version token. An id carrying the "legacy:" tag that
// Messages puts on colliding legacy ids only matches the legacy column. A
// "read" status also clears the unread count.
func (s *Service) UpdateStatus(ctx context.Context, conversationID uint, messageID, status string) error {
	messageID = strings.TrimSpace(messageID)
	status = strings.TrimSpace(status)
	legacyOnly := strings.HasPrefix(messageID, legacyIDPrefix)
	lookupID := canonicalID(strings.TrimPrefix(messageID, legacyIDPrefix))
	if conversationID == 0 {
		return invalid("conversationId is required")
	}
	if lookupID == "" {
		return invalid("messageId is required")
	}
	if status == "" {
		return invalid("status is required")
	}
	if utf8.RuneCountInString(status) > models.MaxLabelLength {
		return invalid("status must be at most %d characters", models.MaxLabelLength)
	}

	db := s.db.WithContext(ctx)
	if _, err := s.loadConversation(db, conversationID); err != nil {
		return err
	}

	updated := false
	if !legacyOnly {
		var err error
		if updated, err = s.updateRowStatus(db, conversationID, lookupID, status); err != nil {
			return err
		}
	}
	if !updated {
		if err := s.updateLegacyStatus(db, conversationID, lookupID, status); err != nil {
			return err
		}
	}

	if status == models.StatusRead {
		if err := s.resetUnread(db, conversationID); err != nil {
			return fmt.Errorf("messaging: reset unread for %d: %w", conversationID, err)
		}
	}
	s.publish(ctx, Event{
		Type:           EventMessageStatus,
		ConversationID: conversationID,
		MessageID:      messageID,
		Status:         status,
		At:             s.now().UTC(),
	})
	return nil
}

func (s *Service) updateRowStatus(db *gorm.DB, conversationID uint, messageID, status string) (bool, error) {
	rowID, err := strconv.ParseUint(messageID, 10, 64)
	if err != nil {
		return false, nil
	}
	var row models.ConversationMessage
	err = db.Where("id = ? AND conversation_id = ?", rowID, conversationID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("messaging: find message %s: %w", messageID, err)
	}
	if err := db.Model(&row).Update("status", status).Error; err != nil {
		return false, fmt.Errorf("messaging: update message %s: %w", messageID, err)
	}
	return true, nil
}

func (s *Service) updateLegacyStatus(db *gorm.DB, conversationID uint, messageID, status string) error {
	for attempt := 0; attempt < maxLegacyAttempts; attempt++ {
		conv, err := s.loadConversation(db, conversationID)
		if err != nil {
			return err
		}
		rewritten, found, err := setLegacyStatus(conv.Messages, messageID, status)
		if err != nil {
			return fmt.Errorf("messaging: rewrite legacy messages for %d: %w", conversationID, err)
		}
		if !found {
			return notFound("message %s not found in conversation %d", messageID, conversationID)
		}

		result := db.Model(&models.Conversation{}).
			Where("id = ? AND version = ?", conversationID, conv.Version).
			Updates(map[string]interface{}{
				"messages":   datatypes.JSON(rewritten),
				"version":    conv.Version + 1,
				"updated_at": s.now().UTC(),
			})
		if result.Error != nil {
			return fmt.Errorf("messaging: update legacy message %s: %w", messageID, result.Error)
		}
		if result.RowsAffected == 1 {
			return nil
		}
		s.log.Debug("legacy status update lost race", "conversation_id", conversationID, "attempt", attempt+1)
	}
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf("conversation %d changed during update, retry", conversationID)}
}

// setLegacyStatus rewrites the status of the entry whose id matches
// messageID, compared both as stored and as a string. Other entries are kept
// verbatim, malformed ones included.
func setLegacyStatus(raw []byte, messageID, status string) ([]byte, bool, error) {
	elems, reason := decodeLegacy(raw)
	if reason != "" || len(elems) == 0 {
		return nil, false, nil
	}
	found := false
	for _, el := range elems {
		obj, ok := el.(map[string]interface{})
		if !ok {
			continue
		}
		if idString(obj["id"]) == messageID {
			obj["status"] = status
			found = true
			break
		}
	}
	if !found {
		return nil, false, nil
	}
	out, err := json.Marshal(elems)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// MarkRead clears the unread count of a conversation.
func (s *Service) MarkRead(ctx context.Context, id uint) error {
	if id == 0 {
		return invalid("conversation id is required")
	}
	db := s.db.WithContext(ctx)
	if _, err := s.loadConversation(db, id); err != nil {
		return err
	}
	if err := s.resetUnread(db, id); err != nil {
		return fmt.Errorf("messaging: mark read %d: %w", id, err)
	}
	s.publish(ctx, Event{Type: EventConversationRead, ConversationID: id, At: s.now().UTC()})
	return nil
}
