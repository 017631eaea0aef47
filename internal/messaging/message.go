package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/concierge/internal/models"
)

// Message is the client-facing shape of one conversation message.
type Message struct {
	ID        MessageID  `json:"id"`
	Message   string     `json:"message"`
	Sender    string     `json:"sender"`
	Direction string     `json:"direction"`
	Status    string     `json:"status"`
	Timestamp string     `json:"timestamp"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// legacyIDPrefix tags a legacy entry whose id is also the primary key of a
// stored row in the same conversation.
const legacyIDPrefix = "legacy:"

// MessageID identifies a message to clients. Integer ids encode as JSON
// numbers; anything else a legacy entry carried encodes as a JSON string.
type MessageID string

func (id MessageID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *MessageID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = MessageID(canonicalID(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("message id must be a number or string")
	}
	*id = MessageID(canonicalID(n.String()))
	return nil
}

func rowMessageID(id uint) MessageID {
	return MessageID(strconv.FormatUint(uint64(id), 10))
}

// canonicalID reduces an id to the form it is compared in: integers and
// integral floats ("1700000000000.0", "1.7e12") become plain decimal
// integers, anything else is only trimmed.
func canonicalID(raw string) string {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil &&
		!math.IsInf(f, 0) && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10)
	}
	return raw
}

// sortKey orders messages by creation time; a missing time sorts as epoch zero.
func (m Message) sortKey() time.Time {
	if m.CreatedAt == nil {
		return time.Unix(0, 0)
	}
	return *m.CreatedAt
}

// Summary is one row of the conversation list.
type Summary struct {
	ID              uint       `json:"id"`
	CustomerID      *uint      `json:"customerId"`
	CustomerName    string     `json:"customerName"`
	CustomerPhone   string     `json:"customerPhone"`
	LastMessage     *string    `json:"lastMessage"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
	UnreadCount     int        `json:"unreadCount"`
	MessageCount    int        `json:"messageCount"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func newSummary(c models.Conversation) Summary {
	return Summary{
		ID:              c.ID,
		CustomerID:      c.CustomerID,
		CustomerName:    c.CustomerName,
		CustomerPhone:   c.CustomerPhone,
		LastMessage:     c.LastMessage,
		LastMessageTime: c.LastMessageTime,
		UnreadCount:     c.UnreadCount,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// Event is published after every successful mutation.
type Event struct {
	Type           string    `json:"type"`
	ConversationID uint      `json:"conversationId"`
	Message        *Message  `json:"message,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	Status         string    `json:"status,omitempty"`
	At             time.Time `json:"at"`
}

// Event types.
const (
	EventMessageCreated   = "message.created"
	EventMessageStatus    = "message.status"
	EventConversationRead = "conversation.read"
)

// InboundAlert describes a guest message staff should see.
type InboundAlert struct {
	ConversationID uint
	CustomerName   string
	CustomerPhone  string
	UnreadCount    int
	Message        Message
}
