package main

import (
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is longer than ten", 10, "this is..."},
		{"Günaydın, oda hazır mı?", 10, "Günaydı..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		t := now.Add(-d)
		return &t
	}
	tests := []struct {
		t    *time.Time
		want string
	}{
		{nil, "-"},
		{at(10 * time.Second), "just now"},
		{at(5 * time.Minute), "5m"},
		{at(3*time.Hour + 20*time.Minute), "3h"},
		{at(50 * time.Hour), "2d"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.t, now); got != tt.want {
			t.Errorf("formatAge = %q, want %q", got, tt.want)
		}
	}
}

func TestOrDash(t *testing.T) {
	empty := ""
	text := "hello"
	if got := orDash(nil); got != "-" {
		t.Errorf("orDash(nil) = %q", got)
	}
	if got := orDash(&empty); got != "-" {
		t.Errorf("orDash(empty) = %q", got)
	}
	if got := orDash(&text); got != "hello" {
		t.Errorf("orDash(text) = %q", got)
	}
}
