package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/concierge/internal/models"
	"gorm.io/gorm"
)

// likeEscaper makes a search term match literally under ESCAPE '!'.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// List returns every conversation, newest activity first, optionally filtered
// by a case-insensitive substring of the guest's name or phone.
func (s *Service) List(ctx context.Context, search string) ([]Summary, error) {
	q := s.db.WithContext(ctx).Model(&models.Conversation{})
	if term := strings.ToLower(strings.TrimSpace(search)); term != "" {
		like := "%" + likeEscaper.Replace(term) + "%"
		q = q.Where("LOWER(customer_name) LIKE ? ESCAPE '!' OR LOWER(customer_phone) LIKE ? ESCAPE '!'", like, like)
	}

	var convs []models.Conversation
	if err := q.Order("last_message_time IS NULL").
		Order("last_message_time DESC").
		Order("id DESC").
		Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("messaging: list conversations: %w", err)
	}
	return s.summarize(s.db.WithContext(ctx), convs)
}

// summarize builds summaries with message counts and, where the stored
// preview is blank, a preview derived from the newest message.
func (s *Service) summarize(db *gorm.DB, convs []models.Conversation) ([]Summary, error) {
	out := make([]Summary, 0, len(convs))
	if len(convs) == 0 {
		return out, nil
	}

	ids := make([]uint, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	counts, err := s.rowCounts(db, ids)
	if err != nil {
		return nil, err
	}

	for _, c := range convs {
		sum := newSummary(c)
		legacy := s.normalizeLegacy(c.ID, c.Messages)
		sum.MessageCount = counts[c.ID] + len(legacy)

		if c.LastMessage == nil || strings.TrimSpace(*c.LastMessage) == "" {
			latest, err := s.latestMessage(db, c.ID, legacy, counts[c.ID] > 0)
			if err != nil {
				return nil, err
			}
			if latest != nil {
				text := latest.Message
				sum.LastMessage = &text
				sum.LastMessageTime = latest.CreatedAt
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Service) rowCounts(db *gorm.DB, ids []uint) (map[uint]int, error) {
	type row struct {
		ConversationID uint
		Count          int
	}
	var rows []row
	if err := db.Model(&models.ConversationMessage{}).
		Select("conversation_id, count(*) as count").
		Where("conversation_id IN ?", ids).
		Group("conversation_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("messaging: count messages: %w", err)
	}
	counts := make(map[uint]int, len(rows))
	for _, r := range rows {
		counts[r.ConversationID] = r.Count
	}
	return counts, nil
}

// latestMessage picks the newest non-empty message across the legacy entries
// and the stored rows.
func (s *Service) latestMessage(db *gorm.DB, id uint, legacy []Message, hasRows bool) (*Message, error) {
	var best *Message
	// legacy is ascending; scan from the end for the newest entry.
	for i := len(legacy) - 1; i >= 0; i-- {
		if strings.TrimSpace(legacy[i].Message) != "" {
			m := legacy[i]
			best = &m
			break
		}
	}
	if !hasRows {
		return best, nil
	}

	var row models.ConversationMessage
	err := db.Where("conversation_id = ?", id).
		Order("created_at DESC").Order("id DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return best, nil
		}
		return nil, fmt.Errorf("messaging: latest message for %d: %w", id, err)
	}
	m := s.toMessage(row)
	if best == nil || !m.sortKey().Before(best.sortKey()) {
		best = &m
	}
	return best, nil
}
