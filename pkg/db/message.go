// Database models for chat messages
package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/choraleia/coach/pkg/models"
)

// Message represents one persisted turn half. Assistant messages optionally
// carry the reasoning transcript, the search digest with its results, and a
// generated TODO list.
type Message struct {
	ID             string `json:"id" gorm:"primaryKey;size:36"`
	ConversationID string `json:"conversationId" gorm:"index:idx_messages_conversation_seq,priority:1;size:36;not null"`

	// Seq orders messages inside a conversation; assigned on append.
	Seq int64 `json:"-" gorm:"index:idx_messages_conversation_seq,priority:2;not null"`

	Role    string `json:"role" gorm:"size:20;not null"` // user, assistant
	Content string `json:"content" gorm:"type:text;not null"`

	Thinking      string         `json:"thinking,omitempty" gorm:"type:text"`
	ThinkingTime  int64          `json:"thinkingTime,omitempty"`
	SearchInfo    string         `json:"searchInfo,omitempty" gorm:"type:text"`
	SearchTime    int64          `json:"searchTime,omitempty"`
	SearchResults SearchResults  `json:"searchResults,omitempty" gorm:"type:text"`
	TodoData      *TodoListValue `json:"todoData,omitempty" gorm:"type:text"`

	Timestamp time.Time `json:"timestamp" gorm:"autoCreateTime"`
}

func (*Message) TableName() string {
	return "messages"
}

// ========== JSON columns ==========

// SearchResults is stored as a JSON array in a text column
type SearchResults []models.SearchResultItem

// Value implements driver.Valuer for database storage
func (r SearchResults) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]models.SearchResultItem(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval
func (r *SearchResults) Scan(value interface{}) error {
	b, err := scanBytes(value)
	if err != nil || b == nil {
		return err
	}
	return json.Unmarshal(b, r)
}

// TodoListValue wraps the TODO payload for storage in a text column
type TodoListValue models.TodoListData

// Value implements driver.Valuer for database storage
func (t *TodoListValue) Value() (driver.Value, error) {
	if t == nil || len(t.Items) == 0 {
		return nil, nil
	}
	b, err := json.Marshal((*models.TodoListData)(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval
func (t *TodoListValue) Scan(value interface{}) error {
	b, err := scanBytes(value)
	if err != nil || b == nil {
		return err
	}
	return json.Unmarshal(b, (*models.TodoListData)(t))
}

// Data returns the payload as the shared model type.
func (t *TodoListValue) Data() *models.TodoListData {
	if t == nil {
		return nil
	}
	return (*models.TodoListData)(t)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}

// ToHistory projects stored messages onto the read-only history shape.
// Messages with an unknown role are skipped.
func ToHistory(messages []Message) []models.HistoryMessage {
	history := make([]models.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		role, err := models.ParseRole(m.Role)
		if err != nil {
			continue
		}
		switch role {
		case models.RoleUser, models.RoleAssistant:
			history = append(history, models.HistoryMessage{Role: role, Content: m.Content})
		case models.RoleSystem:
			// System prompts are rebuilt per turn and never replayed as history.
		}
	}
	return history
}
