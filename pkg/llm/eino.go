package llm

import (
	"context"
	"io"
	"log/slog"

	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/utils"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoClient adapts an eino chat model to Client. ReasoningContent is
// surfaced as thinking chunks and Content as content chunks.
type EinoClient struct {
	provider string
	model    einoModel.BaseChatModel
	// thinkingModel serves deep-thinking requests when the provider needs
	// reasoning switched on at construction time. Nil means model.
	thinkingModel einoModel.BaseChatModel
	defaults      Options
	logger        *slog.Logger
}

func NewEinoClient(provider string, model einoModel.BaseChatModel, defaults Options) *EinoClient {
	return &EinoClient{
		provider: provider,
		model:    model,
		defaults: defaults,
		logger:   utils.GetLogger(),
	}
}

// WithThinkingModel sets the model used when UseDeepThinking is requested.
func (c *EinoClient) WithThinkingModel(m einoModel.BaseChatModel) *EinoClient {
	c.thinkingModel = m
	return c
}

func toSchemaMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		var role schema.RoleType
		switch m.Role {
		case models.RoleSystem:
			role = schema.System
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleUser:
			role = schema.User
		default:
			role = schema.User
		}
		out = append(out, &schema.Message{Role: role, Content: m.Content})
	}
	return out
}

func (c *EinoClient) Stream(ctx context.Context, messages []Message, opts Options) (*Stream, error) {
	opts = opts.withDefaults(c.defaults.Temperature, c.defaults.MaxTokens)

	m := c.model
	if opts.UseDeepThinking && c.thinkingModel != nil {
		m = c.thinkingModel
	}

	ctx, cancel := context.WithCancel(ctx)
	sr, err := m.Stream(ctx, toSchemaMessages(messages),
		einoModel.WithTemperature(float32(opts.Temperature)),
		einoModel.WithMaxTokens(opts.MaxTokens),
	)
	if err != nil {
		cancel()
		return nil, &UpstreamError{Provider: c.provider, Err: err}
	}

	ch := make(chan Chunk)
	s := &Stream{C: ch}
	go func() {
		defer close(ch)
		defer cancel()
		defer sr.Close()
		for {
			msg, err := sr.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					s.err = ctx.Err()
				} else {
					s.err = &UpstreamError{Provider: c.provider, Err: err}
				}
				return
			}
			if msg == nil {
				continue
			}
			if msg.ReasoningContent != "" {
				if !send(ctx, ch, Chunk{Kind: ChunkThinking, Text: msg.ReasoningContent}) {
					s.err = ctx.Err()
					return
				}
			}
			if msg.Content != "" {
				if !send(ctx, ch, Chunk{Kind: ChunkContent, Text: msg.Content}) {
					s.err = ctx.Err()
					return
				}
			}
		}
	}()
	return s, nil
}

func (c *EinoClient) Invoke(ctx context.Context, messages []Message, opts Options) (string, error) {
	return invoke(ctx, c, messages, opts)
}
