package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/choraleia/coach/pkg/db"
	"github.com/choraleia/coach/pkg/event"
	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const titleRunes = 20

// GormStore keeps conversations and their messages in a gorm database.
// Every query is scoped to the owning user.
type GormStore struct {
	db     *gorm.DB
	events *event.Emitter
	logger *slog.Logger
}

// NewGormStore creates a store. events may be nil.
func NewGormStore(gdb *gorm.DB, events *event.Emitter) *GormStore {
	return &GormStore{db: gdb, events: events, logger: utils.GetLogger()}
}

// titleFrom shortens s to its first 20 runes, marking the cut with "...".
func titleFrom(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= titleRunes {
		return s
	}
	return string([]rune(s)[:titleRunes]) + "..."
}

// ========== Conversation Management ==========

// CreateConversation creates a conversation for userID. The title falls back
// to the initial message and then to the default title.
func (s *GormStore) CreateConversation(ctx context.Context, userID string, req *models.CreateConversationRequest) (*db.Conversation, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = titleFrom(req.InitialMessage)
	}
	if title == "" {
		title = db.DefaultConversationTitle
	}

	conv := &db.Conversation{
		ID:     uuid.New().String(),
		UserID: userID,
		Title:  title,
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	s.logger.Info("Conversation created", "conversationID", conv.ID, "userID", userID)
	s.events.Emit(event.ConversationCreatedEvent{ConversationID: conv.ID, UserID: userID})
	return conv, nil
}

func (s *GormStore) findConversation(tx *gorm.DB, userID, id string) (*db.Conversation, error) {
	var conv db.Conversation
	if err := tx.First(&conv, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation returns the conversation with its messages in order.
func (s *GormStore) GetConversation(ctx context.Context, userID, id string) (*db.Conversation, error) {
	tx := s.db.WithContext(ctx)
	conv, err := s.findConversation(tx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Where("conversation_id = ?", id).Order("seq ASC").Find(&conv.Messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return conv, nil
}

// ListConversations lists the user's active or archived conversations,
// most recently updated first.
func (s *GormStore) ListConversations(ctx context.Context, userID string, archived bool) ([]db.Conversation, error) {
	conversations := []db.Conversation{}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_archived = ?", userID, archived).
		Order("updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// RenameConversation sets an explicit title and returns the updated
// conversation. Later user messages still retitle it.
func (s *GormStore) RenameConversation(ctx context.Context, userID, id, title string) (*db.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	var conv *db.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.findConversation(tx, userID, id); err != nil {
			return err
		}
		if err := tx.Model(&db.Conversation{}).Where("id = ?", id).
			Updates(map[string]interface{}{"title": title, "updated_at": time.Now()}).Error; err != nil {
			return err
		}
		var err error
		conv, err = s.findConversation(tx, userID, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to rename conversation: %w", err)
	}

	s.logger.Info("Conversation renamed", "conversationID", id, "title", title)
	s.events.Emit(event.ConversationRenamedEvent{ConversationID: id, UserID: userID, Title: title})
	return conv, nil
}

func (s *GormStore) ArchiveConversation(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Model(&db.Conversation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"is_archived": true, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to archive conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	s.events.Emit(event.ConversationArchivedEvent{ConversationID: id, UserID: userID})
	return nil
}

// DeleteConversation deletes a conversation and its messages
func (s *GormStore) DeleteConversation(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.findConversation(tx, userID, id); err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&db.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&db.Conversation{}, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	s.events.Emit(event.ConversationDeletedEvent{ConversationID: id, UserID: userID})
	return nil
}

// ========== Message Management ==========

// GetHistory returns the most recent limit messages as history, oldest
// first. A non-positive limit returns everything.
func (s *GormStore) GetHistory(ctx context.Context, userID, convID string, limit int) ([]models.HistoryMessage, error) {
	tx := s.db.WithContext(ctx)
	if _, err := s.findConversation(tx, userID, convID); err != nil {
		return nil, err
	}

	var messages []db.Message
	q := tx.Where("conversation_id = ?", convID).Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return db.ToHistory(messages), nil
}

// AppendMessage inserts msg at the end of the conversation and touches the
// conversation. A user message with content also retitles it. It returns the
// new message count.
func (s *GormStore) AppendMessage(ctx context.Context, userID, convID string, msg *db.Message) (int, error) {
	var (
		count int64
		title string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.findConversation(tx, userID, convID); err != nil {
			return err
		}

		var maxSeq int64
		if err := tx.Model(&db.Message{}).
			Where("conversation_id = ?", convID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}

		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		msg.ConversationID = convID
		msg.Seq = maxSeq + 1
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"updated_at": time.Now()}
		if msg.Role == string(models.RoleUser) && strings.TrimSpace(msg.Content) != "" {
			title = titleFrom(msg.Content)
			updates["title"] = title
		}
		if err := tx.Model(&db.Conversation{}).Where("id = ?", convID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Model(&db.Message{}).Where("conversation_id = ?", convID).Count(&count).Error
	})
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to append message: %w", err)
	}

	s.logger.Debug("Message appended", "conversationID", convID, "role", msg.Role, "count", count)
	s.events.Emit(event.ConversationUpdatedEvent{
		ConversationID: convID,
		UserID:         userID,
		MessageCount:   int(count),
		Title:          title,
	})
	return int(count), nil
}
