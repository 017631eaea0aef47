package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/concierge/internal/logger"
	"github.com/zulandar/concierge/internal/messaging"
)

// Color constants for event severity.
const (
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
)

// backlogThreshold is the unread count at which an alert is raised to warning.
const backlogThreshold = 3

// maxPreview caps the message text shown in an alert.
const maxPreview = 280

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "warning":
		return ColorWarning
	default:
		return ColorInfo
	}
}

// FormatInbound formats a guest message alert. The phone number is masked.
func FormatInbound(alert messaging.InboundAlert) FormattedEvent {
	severity := "info"
	if alert.UnreadCount >= backlogThreshold {
		severity = "warning"
	}

	name := strings.TrimSpace(alert.CustomerName)
	if name == "" {
		name = "Guest"
	}

	fields := []Field{
		{Name: "Conversation", Value: strconv.FormatUint(uint64(alert.ConversationID), 10), Short: true},
		{Name: "Unread", Value: strconv.Itoa(alert.UnreadCount), Short: true},
	}
	if alert.CustomerPhone != "" {
		fields = append(fields, Field{Name: "Phone", Value: logger.MaskPhone(alert.CustomerPhone), Short: true})
	}
	if alert.Message.Timestamp != "" {
		fields = append(fields, Field{Name: "Received", Value: alert.Message.Timestamp, Short: true})
	}

	return FormattedEvent{
		Title:    fmt.Sprintf("New message from %s", name),
		Body:     truncate(alert.Message.Message, maxPreview),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// FormatInboundText is the plain-text fallback for an alert.
func FormatInboundText(alert messaging.InboundAlert) string {
	name := strings.TrimSpace(alert.CustomerName)
	if name == "" {
		name = "Guest"
	}
	return fmt.Sprintf("%s (%d unread): %s", name, alert.UnreadCount, truncate(alert.Message.Message, maxPreview))
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
