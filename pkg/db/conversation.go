// Database models for coach conversations
package db

import "time"

// DefaultConversationTitle is used when a conversation is created without a title or first message.
const DefaultConversationTitle = "新对话"

// Conversation represents a chat conversation owned by a (pseudo) user
type Conversation struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	UserID     string    `json:"userId" gorm:"index:idx_conversations_user_archived_updated,priority:1;size:64;not null"`
	Title      string    `json:"title" gorm:"size:200;default:'新对话'"`
	IsArchived bool      `json:"isArchived" gorm:"index:idx_conversations_user_archived_updated,priority:2;default:false"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" gorm:"index:idx_conversations_user_archived_updated,priority:3"`

	// Messages are loaded explicitly; never written through the association.
	Messages []Message `json:"messages,omitempty" gorm:"-"`
}

func (Conversation) TableName() string {
	return "conversations"
}
