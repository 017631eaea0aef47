package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/concierge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateInput identifies the guest a conversation belongs to.
type CreateInput struct {
	CustomerID    *uint
	CustomerName  string
	CustomerPhone string
}

// FindOrCreate returns the conversation for the guest's phone, creating it
// when none exists. The bool is true when an existing conversation was
// returned. The unique index on customer_phone settles concurrent creators:
// the loser re-reads the winner's row.
func (s *Service) FindOrCreate(ctx context.Context, in CreateInput) (*Summary, bool, error) {
	name := strings.TrimSpace(in.CustomerName)
	phone := strings.TrimSpace(in.CustomerPhone)
	if name == "" {
		return nil, false, invalid("customerName is required")
	}
	if phone == "" {
		return nil, false, invalid("customerPhone is required")
	}

	db := s.db.WithContext(ctx)
	existing, err := s.findByPhone(db, phone)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		sum, err := s.summaryOf(db, existing)
		return sum, true, err
	}

	conv := models.Conversation{
		CustomerID:    in.CustomerID,
		CustomerName:  name,
		CustomerPhone: phone,
		UnreadCount:   0,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_phone"}},
		DoNothing: true,
	}).Create(&conv)
	if result.Error != nil {
		return nil, false, fmt.Errorf("messaging: create conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		winner, err := s.findByPhone(db, phone)
		if err != nil {
			return nil, false, err
		}
		if winner == nil {
			return nil, false, fmt.Errorf("messaging: create conversation: conflict on phone but no row found")
		}
		s.log.Info("conversation created concurrently", "conversation_id", winner.ID, "customer_phone", phone)
		sum, err := s.summaryOf(db, winner)
		return sum, true, err
	}

	s.log.Info("conversation created", "conversation_id", conv.ID, "customer_phone", phone)
	sum := newSummary(conv)
	return &sum, false, nil
}

func (s *Service) findByPhone(db *gorm.DB, phone string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := db.Where("customer_phone = ?", phone).Take(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("messaging: find conversation by phone: %w", err)
	}
	return &conv, nil
}

func (s *Service) summaryOf(db *gorm.DB, conv *models.Conversation) (*Summary, error) {
	sums, err := s.summarize(db, []models.Conversation{*conv})
	if err != nil {
		return nil, err
	}
	return &sums[0], nil
}
