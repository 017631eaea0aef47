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

// ImportLegacy moves a conversation's legacy JSON messages into stored rows
// and clears the legacy column. Entries the normalizer discards are logged
// and not imported. It returns the number of rows created.
func (s *Service) ImportLegacy(ctx context.Context, id uint) (int, error) {
	imported := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := s.loadConversation(tx, id)
		if err != nil {
			return err
		}
		if conv.Messages == nil {
			return nil
		}

		msgs := s.normalizeLegacy(conv.ID, conv.Messages)
		rows := make([]models.ConversationMessage, 0, len(msgs))
		for _, m := range msgs {
			created := conv.CreatedAt.UTC()
			if m.CreatedAt != nil {
				created = m.CreatedAt.UTC()
			}
			rows = append(rows, models.ConversationMessage{
				ConversationID: conv.ID,
				Body:           strings.TrimSpace(m.Message),
				Sender:         clipLabel(m.Sender),
				Direction:      clipLabel(m.Direction),
				Status:         clipLabel(m.Status),
				CreatedAt:      created,
			})
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(&rows, 200).Error; err != nil {
				return fmt.Errorf("messaging: import legacy for %d: %w", id, err)
			}
		}

		updates := map[string]interface{}{
			"messages":   gorm.Expr("NULL"),
			"version":    conv.Version + 1,
			"updated_at": s.now().UTC(),
		}
		if (conv.LastMessage == nil || strings.TrimSpace(*conv.LastMessage) == "") && len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			updates["last_message"] = strings.TrimSpace(last.Message)
			if last.CreatedAt != nil {
				updates["last_message_time"] = last.CreatedAt.UTC()
			}
		}
		result := tx.Model(&models.Conversation{}).
			Where("id = ? AND version = ?", id, conv.Version).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("messaging: clear legacy for %d: %w", id, result.Error)
		}
		if result.RowsAffected != 1 {
			return &Error{Kind: ErrConflict, Msg: fmt.Sprintf("conversation %d changed during import", id)}
		}
		imported = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if imported > 0 {
		s.log.Info("imported legacy messages", "conversation_id", id, "imported", imported)
		if _, err := s.Prune(ctx, id); err != nil {
			s.log.Error("prune after import", "conversation_id", id, "error", err)
		}
	}
	return imported, nil
}

// ImportAllLegacy imports every conversation that still has a legacy column.
// A failure on one conversation does not stop the others; all failures are
// joined into the returned error.
func (s *Service) ImportAllLegacy(ctx context.Context) (int, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("messages IS NOT NULL").
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("messaging: find legacy conversations: %w", err)
	}

	total := 0
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := s.ImportLegacy(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}

// clipLabel cuts a legacy label to the column width.
func clipLabel(s string) string {
	if utf8.RuneCountInString(s) <= models.MaxLabelLength {
		return s
	}
	return string([]rune(s)[:models.MaxLabelLength])
}
