package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/zulandar/concierge/internal/models"
	"gorm.io/gorm"
)

func (s *Service) loadConversation(db *gorm.DB, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := db.Where("id = ?", id).Take(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, conversationNotFound(id)
		}
		return nil, fmt.Errorf("messaging: load conversation %d: %w", id, err)
	}
	return &conv, nil
}

func (s *Service) toMessage(row models.ConversationMessage) Message {
	created := row.CreatedAt.UTC()
	return Message{
		ID:        rowMessageID(row.ID),
		Message:   row.Body,
		Sender:    row.Sender,
		Direction: row.Direction,
		Status:    row.Status,
		Timestamp: s.normalizer.Render(created),
		CreatedAt: &created,
	}
}

// Get returns one conversation summary.
func (s *Service) Get(ctx context.Context, id uint) (*Summary, error) {
	if id == 0 {
		return nil, invalid("conversation id is required")
	}
	db := s.db.WithContext(ctx)
	conv, err := s.loadConversation(db, id)
	if err != nil {
		return nil, err
	}
	return s.summaryOf(db, conv)
}

// Messages returns the conversation's messages ascending by createdAt:
// normalized legacy entries merged with stored rows.
func (s *Service) Messages(ctx context.Context, id uint) ([]Message, error) {
	if id == 0 {
		return nil, invalid("conversation id is required")
	}
	db := s.db.WithContext(ctx)
	conv, err := s.loadConversation(db, id)
	if err != nil {
		return nil, err
	}

	msgs := s.normalizeLegacy(conv.ID, conv.Messages)

	var rows []models.ConversationMessage
	if err := db.Where("conversation_id = ?", id).
		Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("messaging: messages for %d: %w", id, err)
	}
	if len(rows) > 0 && len(msgs) > 0 {
		tagLegacyCollisions(msgs, rows)
	}
	for _, r := range rows {
		msgs = append(msgs, s.toMessage(r))
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].sortKey().Before(msgs[j].sortKey())
	})
	return msgs, nil
}

// tagLegacyCollisions prefixes legacy ids that equal a stored row's id, so a
// status update addressed to either one reaches the right message.
func tagLegacyCollisions(legacy []Message, rows []models.ConversationMessage) {
	taken := make(map[MessageID]bool, len(rows))
	for _, r := range rows {
		taken[rowMessageID(r.ID)] = true
	}
	for i := range legacy {
		if taken[legacy[i].ID] {
			legacy[i].ID = legacyIDPrefix + legacy[i].ID
		}
	}
}
