package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", "PRODUCTION", ""} {
		log, err := New(mode)
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		if log.SugaredLogger == nil {
			t.Errorf("New(%q) returned nil sugared logger", mode)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+905551234567", "*********4567"},
		{"4567", "****"},
		{"12", "**"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MaskPhone(tt.in); got != tt.want {
			t.Errorf("MaskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogger_MasksPhoneFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("conversation created", "conversation_id", 7, "customer_phone", "+905551234567")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if got := fields["customer_phone"]; got != "*********4567" {
		t.Errorf("customer_phone = %v, want masked", got)
	}
	if got := fields["conversation_id"]; got != int64(7) {
		t.Errorf("conversation_id = %v (%T), want 7", got, got)
	}
}

func TestLogger_With(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("service", "messaging")

	log.Warn("dropped legacy entries", "dropped", 2)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].ContextMap()["service"] != "messaging" {
		t.Errorf("service field missing: %v", entries[0].ContextMap())
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("ignored", "k", "v")
	log.Sync()
}
