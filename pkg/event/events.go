package event

const (
	ConversationCreated  = "conversation.created"
	ConversationUpdated  = "conversation.updated"
	ConversationRenamed  = "conversation.renamed"
	ConversationArchived = "conversation.archived"
	ConversationDeleted  = "conversation.deleted"
)

// ConversationCreatedEvent is emitted when a conversation is created.
type ConversationCreatedEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (e ConversationCreatedEvent) EventName() string { return ConversationCreated }
func (e ConversationCreatedEvent) Owner() string { return e.UserID }

// ConversationUpdatedEvent is emitted when a message is appended. Title is
// set when the append retitled the conversation.
type ConversationUpdatedEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	MessageCount   int    `json:"messageCount"`
	Title          string `json:"title,omitempty"`
}

func (e ConversationUpdatedEvent) EventName() string { return ConversationUpdated }
func (e ConversationUpdatedEvent) Owner() string { return e.UserID }

// ConversationRenamedEvent is emitted on an explicit rename.
type ConversationRenamedEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Title          string `json:"title"`
}

func (e ConversationRenamedEvent) EventName() string { return ConversationRenamed }
func (e ConversationRenamedEvent) Owner() string { return e.UserID }

type ConversationArchivedEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (e ConversationArchivedEvent) EventName() string { return ConversationArchived }
func (e ConversationArchivedEvent) Owner() string { return e.UserID }

type ConversationDeletedEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (e ConversationDeletedEvent) EventName() string { return ConversationDeleted }
func (e ConversationDeletedEvent) Owner() string { return e.UserID }
