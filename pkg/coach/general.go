package coach

import (
	"context"
	"log/slog"

	"github.com/choraleia/coach/pkg/llm"
	"github.com/choraleia/coach/pkg/utils"
)

const generalErrorMessage = "生成回答时出现错误。"

// GeneralExecutor answers directly as the coach.
type GeneralExecutor struct {
	client llm.Client
	logger *slog.Logger
}

func NewGeneralExecutor(client llm.Client) *GeneralExecutor {
	return &GeneralExecutor{client: client, logger: utils.GetLogger()}
}

func (e *GeneralExecutor) messages(in Input) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(generalSystemPrompt),
		llm.UserMessage(generalPrompt(in)),
	}
}

// Stream relays content only. Reasoning for the turn comes from the
// thinking stage and reaches the prompt as in.ThinkingDigest.
func (e *GeneralExecutor) Stream(ctx context.Context, in Input, emit emitFunc) error {
	return streamContent(ctx, e.client, e.messages(in), llm.Options{}, false, emit, generalErrorMessage, e.logger)
}

func (e *GeneralExecutor) Invoke(ctx context.Context, in Input) (string, error) {
	text, err := e.client.Invoke(ctx, e.messages(in), llm.Options{})
	if err != nil {
		e.logger.Warn("Answer generation failed", "error", err)
		return generalErrorMessage, err
	}
	return text, nil
}
