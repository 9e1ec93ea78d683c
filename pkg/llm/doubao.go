package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/utils"
	"github.com/pkg/errors"
)

const (
	DefaultDoubaoEndpoint = "https://ark.cn-beijing.volces.com/api/v3/chat/completions"
	DefaultDoubaoModel    = "doubao-seed-1-6-251015"

	doubaoProvider = "豆包"
	readChunkSize  = 4096
)

// DoubaoConfig configures the raw HTTP client for Volcengine Ark.
type DoubaoConfig struct {
	Endpoint       string
	APIKey         string
	Model          string
	Temperature    float64
	MaxTokens      int
	ThinkingBudget int
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// DoubaoClient streams chat completions from the Ark OpenAI-style endpoint.
type DoubaoClient struct {
	cfg        DoubaoConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDoubaoClient(cfg DoubaoConfig) *DoubaoClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultDoubaoEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultDoubaoModel
	}
	if cfg.ThinkingBudget <= 0 {
		cfg.ThinkingBudget = DefaultThinkingBudget
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &DoubaoClient{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     utils.GetLogger(),
	}
}

type doubaoThinking struct {
	Type         string `json:"type"`
	Emit         bool   `json:"emit,omitempty"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type doubaoMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type doubaoRequest struct {
	Model       string          `json:"model"`
	Messages    []doubaoMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Thinking    doubaoThinking  `json:"thinking"`
}

type doubaoChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *DoubaoClient) buildRequest(messages []Message, opts Options) doubaoRequest {
	opts = opts.withDefaults(c.cfg.Temperature, c.cfg.MaxTokens)
	req := doubaoRequest{
		Model:       c.cfg.Model,
		Messages:    make([]doubaoMessage, 0, len(messages)),
		Stream:      true,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Thinking:    doubaoThinking{Type: "disabled"},
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, doubaoMessage{Role: roleName(m.Role), Content: m.Content})
	}
	if opts.UseDeepThinking {
		req.Thinking = doubaoThinking{Type: "enabled", Emit: true, BudgetTokens: c.cfg.ThinkingBudget}
	}
	return req
}

func roleName(r models.Role) string {
	switch r {
	case models.RoleSystem:
		return "system"
	case models.RoleAssistant:
		return "assistant"
	case models.RoleUser:
		return "user"
	}
	return "user"
}

// Stream posts the request and returns once the response headers arrive.
// A non-2xx status is reported here; body failures end up in Stream.Err.
func (c *DoubaoClient) Stream(ctx context.Context, messages []Message, opts Options) (*Stream, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(c.buildRequest(messages, opts))
	if err != nil {
		return nil, errors.Wrap(err, "marshal doubao request")
	}

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "build doubao request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("Calling doubao", "endpoint", c.cfg.Endpoint, "model", c.cfg.Model,
		"apiKey", utils.MaskSensitiveString(c.cfg.APIKey), "deepThinking", opts.UseDeepThinking)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &UpstreamError{Provider: doubaoProvider, Err: errors.Wrap(err, "request failed")}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, &UpstreamError{Provider: doubaoProvider, StatusCode: resp.StatusCode, Body: string(b)}
	}

	ch := make(chan Chunk)
	s := &Stream{C: ch}
	go func() {
		defer close(ch)
		defer cancel()
		defer resp.Body.Close()
		s.err = c.pump(ctx, resp.Body, ch)
	}()
	return s, nil
}

func (c *DoubaoClient) pump(ctx context.Context, body io.Reader, ch chan<- Chunk) error {
	var dec frameDecoder
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, frame := range dec.feed(buf[:n]) {
				if !c.emitFrame(ctx, frame, ch) {
					return ctx.Err()
				}
			}
		}
		if readErr == io.EOF {
			if frame, ok := dec.flush(); ok && !c.emitFrame(ctx, frame, ch) {
				return ctx.Err()
			}
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &UpstreamError{Provider: doubaoProvider, Err: errors.Wrap(readErr, "read stream")}
		}
	}
}

// emitFrame decodes one data payload and forwards its deltas. It returns
// false only when ctx is cancelled.
func (c *DoubaoClient) emitFrame(ctx context.Context, frame string, ch chan<- Chunk) bool {
	if frame == doneFrame {
		return true
	}
	var chunk doubaoChunk
	if err := json.Unmarshal([]byte(frame), &chunk); err != nil {
		c.logger.Warn("Skipping malformed stream frame", "error", err, "frame", frame)
		return true
	}
	if len(chunk.Choices) == 0 {
		return true
	}
	delta := chunk.Choices[0].Delta
	if delta.ReasoningContent != "" {
		if !send(ctx, ch, Chunk{Kind: ChunkThinking, Text: delta.ReasoningContent}) {
			return false
		}
	}
	if delta.Content != "" {
		if !send(ctx, ch, Chunk{Kind: ChunkContent, Text: delta.Content}) {
			return false
		}
	}
	return true
}

// Invoke drains the stream and returns only the content text.
func (c *DoubaoClient) Invoke(ctx context.Context, messages []Message, opts Options) (string, error) {
	return invoke(ctx, c, messages, opts)
}
