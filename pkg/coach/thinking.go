package coach

import (
	"context"
	"log/slog"
	"strings"

	"github.com/choraleia/coach/pkg/llm"
	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/utils"
)

const thinkingErrorMessage = "深度思考过程出现错误。"

// emitFunc forwards one event. It returns false once the turn is cancelled.
type emitFunc func(models.StreamEvent) bool

// ThinkingStage runs the optional reasoning pre-pass.
type ThinkingStage struct {
	client llm.Client
	logger *slog.Logger
}

func NewThinkingStage(client llm.Client) *ThinkingStage {
	return &ThinkingStage{client: client, logger: utils.GetLogger()}
}

func (t *ThinkingStage) messages(userInput, searchDigest string, history []models.HistoryMessage, replay bool) []llm.Message {
	msgs := []llm.Message{llm.SystemMessage(thinkingSystemPrompt)}
	if replay {
		for _, h := range history {
			switch h.Role {
			case models.RoleUser:
				msgs = append(msgs, llm.UserMessage(h.Content))
			case models.RoleAssistant:
				msgs = append(msgs, llm.Message{Role: models.RoleAssistant, Content: h.Content})
			case models.RoleSystem:
			}
		}
	}
	return append(msgs, llm.UserMessage(thinkingPrompt(userInput, searchDigest, history)))
}

// Stream emits the reasoning as thinking events and returns the full
// transcript. Providers without a separate reasoning channel have their
// answer text relayed as a single thinking event instead. When disabled it
// emits nothing and makes no upstream call.
func (t *ThinkingStage) Stream(ctx context.Context, in Input, enabled bool, emit emitFunc) string {
	if !enabled {
		return ""
	}

	s, err := t.client.Stream(ctx, t.messages(in.UserInput, in.SearchDigest, in.History, true), llm.Options{UseDeepThinking: true})
	if err != nil {
		t.logger.Warn("Thinking stage failed", "error", err)
		emit(models.ThinkingEvent(thinkingErrorMessage))
		return ""
	}

	var thinking, content strings.Builder
	for chunk := range s.C {
		switch chunk.Kind {
		case llm.ChunkThinking:
			thinking.WriteString(chunk.Text)
			if !emit(models.ThinkingEvent(chunk.Text)) {
				return ""
			}
		case llm.ChunkContent:
			content.WriteString(chunk.Text)
		}
	}
	if err := s.Err(); err != nil {
		t.logger.Warn("Thinking stream ended with error", "error", err)
		emit(models.ThinkingEvent(thinkingErrorMessage))
		return ""
	}

	if thinking.Len() == 0 && content.Len() > 0 {
		emit(models.ThinkingEvent(content.String()))
		return content.String()
	}
	return thinking.String()
}

// Invoke returns the reasoning transcript, or the answer text when the
// provider exposes no reasoning channel. Failures yield "".
func (t *ThinkingStage) Invoke(ctx context.Context, in Input) (string, error) {
	s, err := t.client.Stream(ctx, t.messages(in.UserInput, in.SearchDigest, in.History, false), llm.Options{UseDeepThinking: true})
	if err != nil {
		return "", err
	}
	content, thinking, err := llm.Collect(ctx, s)
	if err != nil {
		return "", err
	}
	if thinking != "" {
		return thinking, nil
	}
	return content, nil
}
