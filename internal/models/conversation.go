package models

import (
	"time"

	"gorm.io/datatypes"
)

// Sender values recorded on a message.
const (
	SenderCustomer = "customer"
	SenderAI       = "ai"
	SenderAdmin    = "admin"
)

// Direction values recorded on a message.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// MaxLabelLength bounds the sender, direction and status columns, in
// characters. Senders and statuses are open-ended labels.
const MaxLabelLength = 64

// Status values recorded on a message.
const (
	StatusSent = "sent"
	StatusRead = "read"
)

// Conversation is the persisted thread with one guest, keyed by phone number.
//
// Messages holds the legacy JSON-array collection written by the previous
// CRM backend. New messages go to ConversationMessage; the legacy column is
// only read through the normalizer and drained by the importer.
type Conversation struct {
	ID              uint           `gorm:"primaryKey;autoIncrement"`
	CustomerID      *uint          `gorm:"index"`
	CustomerName    string         `gorm:"size:128;not null"`
	CustomerPhone   string         `gorm:"size:32;not null;uniqueIndex"`
	LastMessage     *string        `gorm:"type:text"`
	LastMessageTime *time.Time     `gorm:"index"`
	UnreadCount     int            `gorm:"not null;default:0"`
	Messages        datatypes.JSON `gorm:"column:messages"`
	Version         int            `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Entries []ConversationMessage `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// ConversationMessage is one message in a conversation.
type ConversationMessage struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ConversationID uint      `gorm:"not null;index:idx_conversation_created,priority:1"`
	Body           string    `gorm:"type:text;not null"`
	Sender         string    `gorm:"size:64;not null"`
	Direction      string    `gorm:"size:64;not null"`
	Status         string    `gorm:"size:64;not null;default:sent"`
	CreatedAt      time.Time `gorm:"index:idx_conversation_created,priority:2"`
}

// DirectionFor derives the message direction from its sender.
func DirectionFor(sender string) string {
	if sender == SenderCustomer {
		return DirectionIncoming
	}
	return DirectionOutgoing
}

// IsStaff reports whether the sender replies on behalf of the hotel.
func IsStaff(sender string) bool {
	return sender == SenderAI || sender == SenderAdmin
}
