package coach

import (
	"context"
	"log/slog"

	"github.com/choraleia/coach/pkg/llm"
	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/utils"
)

const goalErrorMessage = "制定学习目标时出现错误。"

// GoalExecutor writes a one-month SMART learning goal in Markdown.
type GoalExecutor struct {
	client llm.Client
	logger *slog.Logger
}

func NewGoalExecutor(client llm.Client) *GoalExecutor {
	return &GoalExecutor{client: client, logger: utils.GetLogger()}
}

func (e *GoalExecutor) messages(in Input) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(goalSystemPrompt),
		llm.UserMessage(goalPrompt(in)),
	}
}

func (e *GoalExecutor) Stream(ctx context.Context, in Input, emit emitFunc) error {
	return streamContent(ctx, e.client, e.messages(in), llm.Options{}, false, emit, goalErrorMessage, e.logger)
}

// Invoke returns the goal text. On failure it returns the error message
// text along with the error.
func (e *GoalExecutor) Invoke(ctx context.Context, in Input) (string, error) {
	text, err := e.client.Invoke(ctx, e.messages(in), llm.Options{})
	if err != nil {
		e.logger.Warn("Goal generation failed", "error", err)
		return goalErrorMessage, err
	}
	return text, nil
}

// streamContent relays content chunks, and thinking chunks when
// relayThinking is set. A failure before any output emits errorText.
func streamContent(ctx context.Context, client llm.Client, msgs []llm.Message, opts llm.Options, relayThinking bool, emit emitFunc, errorText string, logger *slog.Logger) error {
	s, err := client.Stream(ctx, msgs, opts)
	if err != nil {
		logger.Warn("Executor stream failed", "error", err)
		emit(models.ContentEvent(errorText))
		return nil
	}

	wrote := false
	for chunk := range s.C {
		var ev models.StreamEvent
		switch chunk.Kind {
		case llm.ChunkContent:
			ev = models.ContentEvent(chunk.Text)
			wrote = true
		case llm.ChunkThinking:
			if !relayThinking {
				continue
			}
			ev = models.ThinkingEvent(chunk.Text)
		default:
			continue
		}
		if !emit(ev) {
			return ctx.Err()
		}
	}
	if err := s.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Executor stream ended with error", "error", err, "partial", wrote)
		if !wrote {
			emit(models.ContentEvent(errorText))
		}
	}
	return nil
}
