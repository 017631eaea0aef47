package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/concierge/internal/models"
)

// PruneAll prunes every conversation holding more than MaxRetained messages.
// It returns the total number of rows deleted.
func (s *Service) PruneAll(ctx context.Context) (int64, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.ConversationMessage{}).
		Select("conversation_id").
		Group("conversation_id").
		Having("count(*) > ?", s.maxRetained).
		Pluck("conversation_id", &ids).Error; err != nil {
		return 0, fmt.Errorf("messaging: find oversized conversations: %w", err)
	}

	var total int64
	var errs []error
	for _, id := range ids {
		n, err := s.Prune(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}

// RepairSummaries refills blank last_message fields from the newest stored
// message. It returns how many conversations were repaired.
func (s *Service) RepairSummaries(ctx context.Context) (int, error) {
	db := s.db.WithContext(ctx)

	var convs []models.Conversation
	if err := db.Select("id").
		Where("last_message IS NULL OR last_message = ?", "").
		Find(&convs).Error; err != nil {
		return 0, fmt.Errorf("messaging: find stale summaries: %w", err)
	}

	repaired := 0
	for _, c := range convs {
		var row models.ConversationMessage
		result := db.Where("conversation_id = ?", c.ID).
			Order("created_at DESC").Order("id DESC").
			Limit(1).Find(&row)
		if result.Error != nil {
			return repaired, fmt.Errorf("messaging: latest message for %d: %w", c.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		if err := db.Model(&models.Conversation{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
			"last_message":      row.Body,
			"last_message_time": row.CreatedAt,
		}).Error; err != nil {
			return repaired, fmt.Errorf("messaging: repair summary for %d: %w", c.ID, err)
		}
		repaired++
	}
	return repaired, nil
}
