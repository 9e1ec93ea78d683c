// Chat models shared by the coach pipeline, the chat service and the HTTP layer
package models

import (
	"encoding/json"
	"fmt"
)

// ========== Roles ==========

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole maps a stored role string to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// DisplayName is the label used when history is recapped inside a prompt.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "用户"
	case RoleAssistant:
		return "助理"
	case RoleSystem:
		return "系统"
	default:
		return string(r)
	}
}

// HistoryMessage is a read-only projection of a prior message.
type HistoryMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ========== Tool selection ==========

// ToolType is the response strategy chosen for a turn.
type ToolType string

const (
	ToolTodo   ToolType = "todo"
	ToolGoal   ToolType = "goal"
	ToolSearch ToolType = "search"
	ToolNone   ToolType = "none"
)

// ========== Search ==========

// SearchResultItem is one ranked web search hit.
type SearchResultItem struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Content string   `json:"content"`
	Score   *float64 `json:"score,omitempty"`
}

// ========== TODO lists ==========

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the three known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

const TodoListType = "todo_list"

// TodoItem is a single generated task. EstimatedTime is in minutes.
type TodoItem struct {
	ID            string   `json:"id"`
	Content       string   `json:"content"`
	Priority      Priority `json:"priority"`
	EstimatedTime int      `json:"estimated_time"`
	Category      string   `json:"category"`
	Completed     bool     `json:"completed"`
}

// TodoListData is the structured payload of a TODO turn.
type TodoListData struct {
	Type  string     `json:"type"`
	Title string     `json:"title"`
	Items []TodoItem `json:"items"`
}

// ========== Stream events ==========

// EventType tags a StreamEvent.
type EventType string

const (
	EventThinking EventType = "thinking"
	EventContent  EventType = "content"
	EventSearch   EventType = "search"
	EventTodoData EventType = "tododata"
	EventMetadata EventType = "metadata"
	EventError    EventType = "error"
)

// StreamEvent is the unit relayed to the client, one JSON object per SSE frame.
// Optional keys are only serialized for the event types that carry them.
type StreamEvent struct {
	Type           EventType          `json:"type"`
	Content        string             `json:"content"`
	SearchResults  []SearchResultItem `json:"searchResults,omitempty"`
	SearchTime     int64              `json:"searchTime,omitempty"`
	TodoData       *TodoListData      `json:"todoData,omitempty"`
	ConversationID string             `json:"conversationId,omitempty"`
	MessageCount   *int               `json:"messageCount,omitempty"`
	IsLocal        *bool              `json:"isLocal,omitempty"`
}

func ThinkingEvent(text string) StreamEvent {
	return StreamEvent{Type: EventThinking, Content: text}
}

func ContentEvent(text string) StreamEvent {
	return StreamEvent{Type: EventContent, Content: text}
}

func ErrorEvent(text string) StreamEvent {
	return StreamEvent{Type: EventError, Content: text}
}

// SearchEvent reports search progress; results and elapsed milliseconds are optional.
func SearchEvent(text string, results []SearchResultItem, elapsedMs int64) StreamEvent {
	return StreamEvent{Type: EventSearch, Content: text, SearchResults: results, SearchTime: elapsedMs}
}

func TodoDataEvent(data *TodoListData) StreamEvent {
	return StreamEvent{Type: EventTodoData, Content: "", TodoData: data}
}

// MetadataEvent reports persistence state for the turn.
func MetadataEvent(text, conversationID string, messageCount *int, isLocal *bool) StreamEvent {
	return StreamEvent{
		Type:           EventMetadata,
		Content:        text,
		ConversationID: conversationID,
		MessageCount:   messageCount,
		IsLocal:        isLocal,
	}
}

// MarshalJSON keeps the search results array present (possibly empty) on
// search completion frames, which the UI relies on.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	type alias StreamEvent
	if e.Type == EventSearch && e.SearchResults != nil {
		return json.Marshal(struct {
			alias
			SearchResults []SearchResultItem `json:"searchResults"`
		}{alias: alias(e), SearchResults: e.SearchResults})
	}
	return json.Marshal(alias(e))
}

// ========== API request / response ==========

// ChatRequest is the body of the streaming and non-streaming chat endpoints.
type ChatRequest struct {
	Message         string           `json:"message" binding:"required"`
	ConversationID  string           `json:"conversationId,omitempty"`
	UseDeepThinking bool             `json:"useDeepThinking"`
	UseWebSearch    bool             `json:"useWebSearch"`
	History         []HistoryMessage `json:"history,omitempty"`
}

// InvokeResult is the non-streaming reply.
type InvokeResult struct {
	Content         string        `json:"content"`
	ToolType        ToolType      `json:"toolType"`
	TodoData        *TodoListData `json:"todoData,omitempty"`
	SearchContent   string        `json:"searchContent,omitempty"`
	ThinkingContent string        `json:"thinkingContent,omitempty"`
}

// CreateConversationRequest creates a conversation. Title is derived from
// InitialMessage when empty.
type CreateConversationRequest struct {
	Title          string `json:"title,omitempty"`
	InitialMessage string `json:"initialMessage,omitempty"`
}

// RenameConversationRequest sets an explicit conversation title.
type RenameConversationRequest struct {
	Title string `json:"title"`
}
