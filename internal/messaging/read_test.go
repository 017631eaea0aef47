package messaging

import (
	"context"
	"errors"
	"testing"
)

func TestMessages_MergesLegacyAndRows(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createConversation(t, "Ayse Yilmaz", "+905551234567")
	env.setLegacy(t, id, `[
		{"id":11,"message":"late checkout?","sender":"customer","createdAt":"2026-10-16T21:00:00Z"},
		{"id":10,"message":"welcome","sender":"ai","createdAt":"2026-10-16T20:00:00Z"}
	]`)
	env.append(t, id, "still there?", "customer")

	msgs, err := env.svc.Messages(context.Background(), id)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	want := []string{"welcome", "late checkout?", "still there?"}
	if len(msgs) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(msgs), len(want), msgs)
	}
	for i, w := range want {
		if msgs[i].Message != w {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Message, w)
		}
	}
	if msgs[0].Direction != "outgoing" || msgs[1].Direction != "incoming" {
		t.Errorf("legacy directions not backfilled: %+v", msgs[:2])
	}
}

func TestMessages_MalformedLegacyYieldsEmpty(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createConversation(t, "Ayse", "+905551234567")
	env.setLegacy(t, id, `"definitely not an array"`)

	msgs, err := env.svc.Messages(context.Background(), id)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("msgs = %#v, want empty non-nil", msgs)
	}
}

func TestMessages_EmptyConversation(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createConversation(t, "Ayse", "+905551234567")
	msgs, err := env.svc.Messages(context.Background(), id)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("msgs = %#v, want empty non-nil", msgs)
	}
}

func TestMessages_UnknownConversation(t *testing.T) {
	env := newTestEnv(t, 0)
	_, err := env.svc.Messages(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	_, err = env.svc.Messages(context.Background(), 0)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation for zero id", err)
	}
}

func TestGet_Summary(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createConversation(t, "Ayse", "+905551234567")
	env.append(t, id, "hello", "customer")
	env.append(t, id, "hello again", "customer")

	sum, err := env.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sum.UnreadCount != 2 || sum.MessageCount != 2 {
		t.Errorf("summary = %+v, want unread 2, count 2", sum)
	}
	if sum.LastMessage == nil || *sum.LastMessage != "hello again" {
		t.Errorf("LastMessage = %v", sum.LastMessage)
	}

	if _, err := env.svc.Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown: err = %v, want ErrNotFound", err)
	}
}

func TestList_OrdersByLastActivityNullsLast(t *testing.T) {
	env := newTestEnv(t, 0)
	idle := env.createConversation(t, "Idle Guest", "+905550000001")
	early := env.createConversation(t, "Early Guest", "+905550000002")
	late := env.createConversation(t, "Late Guest", "+905550000003")

	env.append(t, early, "first", "customer")
	env.append(t, late, "second", "customer")

	list, err := env.svc.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []uint{late, early, idle}
	if len(list) != len(want) {
		t.Fatalf("len = %d, want %d", len(list), len(want))
	}
	for i, w := range want {
		if list[i].ID != w {
			t.Errorf("list[%d].ID = %d, want %d", i, list[i].ID, w)
		}
	}
}

func TestList_Search(t *testing.T) {
	env := newTestEnv(t, 0)
	ayse := env.createConversation(t, "Ayse Yilmaz", "+905551234567")
	env.createConversation(t, "Mehmet Demir", "+905559876543")

	tests := []struct {
		search string
		want   int
	}{
		{"", 2},
		{"YILMAZ", 1},
		{"  yil ", 1},
		{"1234", 1},
		{"+90555", 2},
		{"nobody", 0},
	}
	for _, tt := range tests {
		list, err := env.svc.List(context.Background(), tt.search)
		if err != nil {
			t.Fatalf("List(%q): %v", tt.search, err)
		}
		if len(list) != tt.want {
			t.Errorf("List(%q) = %d results, want %d", tt.search, len(list), tt.want)
		}
		if tt.want == 1 && list[0].ID != ayse {
			t.Errorf("List(%q) returned %d, want %d", tt.search, list[0].ID, ayse)
		}
	}
}

func TestList_SearchWildcardsMatchLiterally(t *testing.T) {
	env := newTestEnv(t, 0)
	env.createConversation(t, "Ayse Yilmaz", "+905551234567")
	env.createConversation(t, "Mehmet Demir", "+905559876543")
	env.createConversation(t, "Tour_Group 100%", "+905550001111")
	env.createConversation(t, "Wow! Travel", "+905550002222")

	tests := []struct {
		search string
		want   int
	}{
		{"_", 1},
		{"%", 1},
		{"0%", 1},
		{"r_g", 1},
		{"!", 1},
		{"!!", 0},
		{"a%z", 0},
	}
	for _, tt := range tests {
		list, err := env.svc.List(context.Background(), tt.search)
		if err != nil {
			t.Fatalf("List(%q): %v", tt.search, err)
		}
		if len(list) != tt.want {
			t.Errorf("List(%q) = %d results, want %d", tt.search, len(list), tt.want)
		}
	}
}

func TestList_EmptyIsNotNil(t *testing.T) {
	env := newTestEnv(t, 0)
	list, err := env.svc.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list == nil {
		t.Error("List returned nil, want empty slice")
	}
}

func TestList_PreviewFromLegacyWhenBlank(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createConversation(t, "Ayse", "+905551234567")
	env.setLegacy(t, id, `[
		{"message":"older","createdAt":"2026-10-16T08:00:00Z"},
		{"message":"newest legacy","createdAt":"2026-10-16T09:00:00Z"},
		{"message":"   "}
	]`)

	list, err := env.svc.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	sum := list[0]
	if sum.LastMessage == nil || *sum.LastMessage != "newest legacy" {
		t.Errorf("LastMessage = %v, want preview from newest legacy entry", sum.LastMessage)
	}
	if sum.LastMessageTime == nil || sum.LastMessageTime.Hour() != 9 {
		t.Errorf("LastMessageTime = %v", sum.LastMessageTime)
	}
	if sum.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", sum.MessageCount)
	}
}

func TestList_StoredPreviewWins(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createConversation(t, "Ayse", "+905551234567")
	env.setLegacy(t, id, `[{"message":"legacy only","createdAt":"2026-10-16T08:00:00Z"}]`)
	env.append(t, id, "from the table", "customer")

	list, err := env.svc.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := list[0].LastMessage; got == nil || *got != "from the table" {
		t.Errorf("LastMessage = %v, want stored preview", got)
	}
	if list[0].MessageCount != 2 {
		t.Errorf("MessageCount = %d, want legacy + rows = 2", list[0].MessageCount)
	}
}
