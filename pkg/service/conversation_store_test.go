package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/choraleia/coach/pkg/db"
	"github.com/choraleia/coach/pkg/event"
	"github.com/choraleia/coach/pkg/models"
)

func newTestStore(t *testing.T) (*GormStore, *event.Emitter) {
	t.Helper()
	database, err := db.Open("sqlite", filepath.Join(t.TempDir(), "coach.db"), nil)
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	if err := db.AutoMigrate(database); err != nil {
		t.Fatalf("db.AutoMigrate() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})
	emitter := event.NewEmitter()
	return NewGormStore(database, emitter), emitter
}

func TestTitleFrom(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  学吉他  ", "学吉他"},
		{"一二三四五六七八九十一二三四五六七八九十", "一二三四五六七八九十一二三四五六七八九十"},
		{"一二三四五六七八九十一二三四五六七八九十多", "一二三四五六七八九十一二三四五六七八九十..."},
	}
	for _, tt := range tests {
		if got := titleFrom(tt.in); got != tt.want {
			t.Errorf("titleFrom(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGormStore_CreateConversationTitles(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.CreateConversationRequest
		want string
	}{
		{"explicit title", models.CreateConversationRequest{Title: "吉他", InitialMessage: "忽略"}, "吉他"},
		{"from initial message", models.CreateConversationRequest{InitialMessage: "我想在一个月内学会弹奏三首完整的吉他曲子"}, "我想在一个月内学会弹奏三首完整的吉他曲子"},
		{"default", models.CreateConversationRequest{}, db.DefaultConversationTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := store.CreateConversation(ctx, "u1", &tt.req)
			if err != nil {
				t.Fatalf("CreateConversation() error = %v", err)
			}
			if conv.Title != tt.want || conv.ID == "" || conv.UserID != "u1" {
				t.Fatalf("CreateConversation() = %+v, want title %q", conv, tt.want)
			}
		})
	}
}

func TestGormStore_AppendAndHistory(t *testing.T) {
	store, emitter := newTestStore(t)
	ctx := context.Background()

	var updates []event.ConversationUpdatedEvent
	emitter.On(event.ConversationUpdated, func(ev event.Event) {
		updates = append(updates, ev.(event.ConversationUpdatedEvent))
	})

	conv, err := store.CreateConversation(ctx, "u1", &models.CreateConversationRequest{})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	long := strings.Repeat("跑", 25)
	turns := []db.Message{
		{Role: "user", Content: "第一问"},
		{Role: "assistant", Content: "第一答"},
		{Role: "user", Content: long},
		{Role: "assistant", Content: "第二答", TodoData: &db.TodoListValue{Type: models.TodoListType, Title: "t", Items: []models.TodoItem{{ID: "1", Content: "c", Priority: models.PriorityLow, EstimatedTime: 5}}}},
	}
	for i := range turns {
		count, err := store.AppendMessage(ctx, "u1", conv.ID, &turns[i])
		if err != nil {
			t.Fatalf("AppendMessage(%d) error = %v", i, err)
		}
		if count != i+1 {
			t.Fatalf("AppendMessage(%d) count = %d, want %d", i, count, i+1)
		}
	}

	history, err := store.GetHistory(ctx, "u1", conv.ID, 3)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	want := []models.HistoryMessage{
		{Role: models.RoleAssistant, Content: "第一答"},
		{Role: models.RoleUser, Content: long},
		{Role: models.RoleAssistant, Content: "第二答"},
	}
	if len(history) != len(want) {
		t.Fatalf("GetHistory() = %+v, want %+v", history, want)
	}
	for i := range want {
		if history[i] != want[i] {
			t.Fatalf("GetHistory()[%d] = %+v, want %+v", i, history[i], want[i])
		}
	}

	got, err := store.GetConversation(ctx, "u1", conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.Title != strings.Repeat("跑", 20)+"..." {
		t.Fatalf("title = %q, want retitled from the last user message", got.Title)
	}
	if len(got.Messages) != 4 || got.Messages[0].Content != "第一问" || got.Messages[3].TodoData.Data().Title != "t" {
		t.Fatalf("messages = %+v", got.Messages)
	}

	if len(updates) != 4 || updates[3].MessageCount != 4 || updates[0].Title != "第一问" || updates[1].Title != "" {
		t.Fatalf("update events = %+v", updates)
	}
}

func TestGormStore_MissingConversation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendMessage(ctx, "u1", "nope", &db.Message{Role: "user", Content: "x"}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("AppendMessage() error = %v, want ErrConversationNotFound", err)
	}
	if _, err := store.GetHistory(ctx, "u1", "nope", 6); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("GetHistory() error = %v, want ErrConversationNotFound", err)
	}
	if err := store.ArchiveConversation(ctx, "u1", "nope"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("ArchiveConversation() error = %v, want ErrConversationNotFound", err)
	}
	if err := store.DeleteConversation(ctx, "u1", "nope"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("DeleteConversation() error = %v, want ErrConversationNotFound", err)
	}
}

func TestGormStore_ScopedToUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "owner", &models.CreateConversationRequest{Title: "私有"})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if _, err := store.GetConversation(ctx, "intruder", conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("GetConversation() by other user error = %v", err)
	}
	if _, err := store.AppendMessage(ctx, "intruder", conv.ID, &db.Message{Role: "user", Content: "x"}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("AppendMessage() by other user error = %v", err)
	}
}

func TestGormStore_ArchiveListDelete(t *testing.T) {
	store, emitter := newTestStore(t)
	ctx := context.Background()

	var names []string
	emitter.OnAny(func(ev event.Event) { names = append(names, ev.EventName()) })

	a, _ := store.CreateConversation(ctx, "u1", &models.CreateConversationRequest{Title: "a"})
	b, _ := store.CreateConversation(ctx, "u1", &models.CreateConversationRequest{Title: "b"})
	if _, err := store.CreateConversation(ctx, "u2", &models.CreateConversationRequest{Title: "other"}); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	if err := store.ArchiveConversation(ctx, "u1", a.ID); err != nil {
		t.Fatalf("ArchiveConversation() error = %v", err)
	}

	active, err := store.ListConversations(ctx, "u1", false)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(active) != 1 || active[0].ID != b.ID {
		t.Fatalf("active = %+v, want only %s", active, b.ID)
	}
	archived, _ := store.ListConversations(ctx, "u1", true)
	if len(archived) != 1 || archived[0].ID != a.ID || !archived[0].IsArchived {
		t.Fatalf("archived = %+v, want only %s", archived, a.ID)
	}

	if _, err := store.AppendMessage(ctx, "u1", b.ID, &db.Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := store.DeleteConversation(ctx, "u1", b.ID); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
	if _, err := store.GetConversation(ctx, "u1", b.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("GetConversation() after delete error = %v", err)
	}

	empty, _ := store.ListConversations(ctx, "nobody", false)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("ListConversations(nobody) = %#v, want empty slice", empty)
	}

	want := []string{
		event.ConversationCreated, event.ConversationCreated, event.ConversationCreated,
		event.ConversationArchived, event.ConversationUpdated, event.ConversationDeleted,
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", names, want)
	}
}

func TestGormStore_RenameConversation(t *testing.T) {
	store, emitter := newTestStore(t)
	ctx := context.Background()

	var renamed []event.ConversationRenamedEvent
	emitter.On(event.ConversationRenamed, func(ev event.Event) {
		renamed = append(renamed, ev.(event.ConversationRenamedEvent))
	})

	conv, err := store.CreateConversation(ctx, "u1", &models.CreateConversationRequest{InitialMessage: "我想学习吉他"})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	got, err := store.RenameConversation(ctx, "u1", conv.ID, "  吉他练习  ")
	if err != nil {
		t.Fatalf("RenameConversation() error = %v", err)
	}
	if got.ID != conv.ID || got.Title != "吉他练习" {
		t.Fatalf("RenameConversation() = %+v, want title 吉他练习", got)
	}
	stored, _ := store.GetConversation(ctx, "u1", conv.ID)
	if stored.Title != "吉他练习" {
		t.Fatalf("stored title = %q", stored.Title)
	}
	if len(renamed) != 1 || renamed[0].Title != "吉他练习" || renamed[0].UserID != "u1" {
		t.Fatalf("renamed events = %+v", renamed)
	}

	tests := []struct {
		name    string
		userID  string
		id      string
		title   string
		wantErr error
	}{
		{name: "blank title", userID: "u1", id: conv.ID, title: "   ", wantErr: ErrEmptyTitle},
		{name: "other user", userID: "u2", id: conv.ID, title: "x", wantErr: ErrConversationNotFound},
		{name: "missing", userID: "u1", id: "nope", title: "x", wantErr: ErrConversationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.RenameConversation(ctx, tt.userID, tt.id, tt.title); !errors.Is(err, tt.wantErr) {
				t.Fatalf("RenameConversation() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(renamed) != 1 {
		t.Fatalf("failed renames emitted events: %+v", renamed)
	}
}
