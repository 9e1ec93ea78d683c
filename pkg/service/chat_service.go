// Chat Service - runs coach turns and persists them around the stream
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/choraleia/coach/pkg/coach"
	"github.com/choraleia/coach/pkg/db"
	"github.com/choraleia/coach/pkg/metrics"
	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/utils"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrModelNotConfigured   = errors.New("model not configured")
	ErrEmptyTitle           = errors.New("title is empty")
)

const (
	localConversationPrefix = "local-"

	userSavedMessage      = "用户消息已保存"
	turnSavedMessage      = "对话已保存"
	localUpdatedMessage   = "本地对话已更新"
	saveFailedMessage     = "保存对话时遇到问题，但回复已生成"
	todoPlaceholder       = "已生成TODO列表"
	turnFailedMessageFmt  = "服务调用失败: %v"
	defaultHistoryRecords = 6
)

// ConversationStore is the persistence collaborator of a turn.
type ConversationStore interface {
	GetHistory(ctx context.Context, userID, convID string, limit int) ([]models.HistoryMessage, error)
	// AppendMessage returns the message count after the append, or
	// ErrConversationNotFound.
	AppendMessage(ctx context.Context, userID, convID string, msg *db.Message) (int, error)
}

// TurnRunner produces the events of one turn.
type TurnRunner interface {
	Stream(ctx context.Context, req coach.Request) <-chan models.StreamEvent
	Invoke(ctx context.Context, req coach.Request) (*models.InvokeResult, error)
}

// ChatService handles chat turns
type ChatService struct {
	runner       TurnRunner
	store        ConversationStore
	historyLimit int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewChatService creates a chat service. store may be nil, in which case
// nothing is persisted.
func NewChatService(runner TurnRunner, store ConversationStore, historyLimit int, m *metrics.Metrics) *ChatService {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryRecords
	}
	return &ChatService{
		runner:       runner,
		store:        store,
		historyLimit: historyLimit,
		metrics:      m,
		logger:       utils.GetLogger(),
	}
}

func (s *ChatService) persisted(convID string) bool {
	return s.store != nil && convID != "" && !strings.HasPrefix(convID, localConversationPrefix)
}

// buildRequest resolves the history of the turn. Request history wins over
// stored history.
func (s *ChatService) buildRequest(ctx context.Context, userID string, req *models.ChatRequest) coach.Request {
	history := req.History
	if len(history) == 0 && s.persisted(req.ConversationID) {
		stored, err := s.store.GetHistory(ctx, userID, req.ConversationID, s.historyLimit)
		if err != nil {
			s.logger.Warn("Failed to load history", "conversationID", req.ConversationID, "error", err)
		}
		history = stored
	}
	if len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}
	return coach.Request{
		UserID:          userID,
		Input:           req.Message,
		UseWebSearch:    req.UseWebSearch,
		UseDeepThinking: req.UseDeepThinking,
		History:         history,
	}
}

// ChatStream runs a streaming turn. The returned channel is always closed.
func (s *ChatService) ChatStream(ctx context.Context, userID string, req *models.ChatRequest) (<-chan models.StreamEvent, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	s.metrics.TurnStarted("stream")

	out := make(chan models.StreamEvent)
	emit := func(ev models.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Turn panicked", "conversationID", req.ConversationID, "panic", r, "stack", string(debug.Stack()))
				emit(models.ErrorEvent(fmt.Sprintf(turnFailedMessageFmt, r)))
			}
		}()
		s.runStream(ctx, userID, req, emit)
	}()
	return out, nil
}

// turnAnswer folds the events of a turn into the assistant message.
type turnAnswer struct {
	content       strings.Builder
	thinking      strings.Builder
	thinkingStart time.Time
	thinkingTime  time.Duration
	searchInfo    string
	searchResults []models.SearchResultItem
	searchTime    int64
	todo          *models.TodoListData
}

func (a *turnAnswer) fold(ev models.StreamEvent) {
	switch ev.Type {
	case models.EventContent:
		a.content.WriteString(ev.Content)
	case models.EventThinking:
		if a.thinkingStart.IsZero() {
			a.thinkingStart = time.Now()
		}
		a.thinking.WriteString(ev.Content)
		a.thinkingTime = time.Since(a.thinkingStart)
	case models.EventSearch:
		a.searchInfo = ev.Content
		a.searchResults = ev.SearchResults
		a.searchTime = ev.SearchTime
	case models.EventTodoData:
		a.todo = ev.TodoData
	case models.EventMetadata, models.EventError:
	}
}

func (a *turnAnswer) empty() bool {
	return a.content.Len() == 0 && a.todo == nil
}

func (a *turnAnswer) message() *db.Message {
	content := a.content.String()
	if content == "" {
		content = todoPlaceholder
	}
	msg := &db.Message{
		Role:          string(models.RoleAssistant),
		Content:       content,
		Thinking:      a.thinking.String(),
		ThinkingTime:  a.thinkingTime.Milliseconds(),
		SearchInfo:    a.searchInfo,
		SearchTime:    a.searchTime,
		SearchResults: db.SearchResults(a.searchResults),
	}
	if a.todo != nil {
		msg.TodoData = (*db.TodoListValue)(a.todo)
	}
	return msg
}

func (s *ChatService) runStream(ctx context.Context, userID string, req *models.ChatRequest, emit func(models.StreamEvent) bool) {
	convID := req.ConversationID
	persisted := s.persisted(convID)
	turn := s.buildRequest(ctx, userID, req)

	if persisted {
		count, err := s.store.AppendMessage(ctx, userID, convID, &db.Message{
			Role:    string(models.RoleUser),
			Content: req.Message,
		})
		switch {
		case err == nil:
			if !emit(models.MetadataEvent(userSavedMessage, convID, &count, nil)) {
				return
			}
		case errors.Is(err, ErrConversationNotFound):
			s.logger.Warn("Conversation not found, user message not saved", "conversationID", convID)
		default:
			s.metrics.PersistFailed(string(models.RoleUser))
			s.logger.Error("Failed to save user message", "conversationID", convID, "error", err)
		}
	}

	var answer turnAnswer
	for ev := range s.runner.Stream(ctx, turn) {
		answer.fold(ev)
		if !emit(ev) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	switch {
	case persisted && !answer.empty():
		count, err := s.store.AppendMessage(ctx, userID, convID, answer.message())
		switch {
		case err == nil:
			isLocal := false
			emit(models.MetadataEvent(turnSavedMessage, convID, &count, &isLocal))
		case errors.Is(err, ErrConversationNotFound):
			s.logger.Warn("Conversation not found, reply not saved", "conversationID", convID)
		default:
			s.metrics.PersistFailed(string(models.RoleAssistant))
			s.logger.Error("Failed to save assistant message", "conversationID", convID, "error", err)
			emit(models.ThinkingEvent(saveFailedMessage))
		}
	case strings.HasPrefix(convID, localConversationPrefix):
		isLocal := true
		emit(models.MetadataEvent(localUpdatedMessage, convID, nil, &isLocal))
	case answer.empty():
		s.logger.Warn("Reply and TODO data both empty, nothing saved", "conversationID", convID)
	}
}

// Invoke runs a turn without streaming. Only configuration faults are
// returned as errors.
func (s *ChatService) Invoke(ctx context.Context, userID string, req *models.ChatRequest) (*models.InvokeResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	s.metrics.TurnStarted("invoke")

	result, err := s.runner.Invoke(ctx, s.buildRequest(ctx, userID, req))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelNotConfigured, err)
	}
	return result, nil
}
