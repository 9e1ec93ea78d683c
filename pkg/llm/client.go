// Package llm talks to remote chat-completion models. Every implementation
// turns a provider stream into an ordered channel of thinking and content
// chunks.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/choraleia/coach/pkg/models"
	"github.com/pkg/errors"
)

const (
	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 2000
	DefaultThinkingBudget = 2000
)

// ErrNotConfigured is returned when a client has no credentials.
var ErrNotConfigured = errors.New("model api key not configured")

// Message is one chat-completion input message.
type Message struct {
	Role    models.Role
	Content string
}

func SystemMessage(content string) Message { return Message{Role: models.RoleSystem, Content: content} }
func UserMessage(content string) Message   { return Message{Role: models.RoleUser, Content: content} }

// Options tunes one request. Zero values fall back to the client defaults.
type Options struct {
	Temperature     float64
	MaxTokens       int
	UseDeepThinking bool
}

// ChunkKind tells reasoning output apart from answer text.
type ChunkKind string

const (
	ChunkThinking ChunkKind = "thinking"
	ChunkContent  ChunkKind = "content"
)

// Chunk is one incremental piece of model output.
type Chunk struct {
	Kind ChunkKind
	Text string
}

// Stream is a lazily produced sequence of chunks. C is closed when the
// upstream finishes; Err reports the terminal error after that.
type Stream struct {
	C   <-chan Chunk
	err error
}

// Err returns the terminal error. It is only meaningful after C is closed.
func (s *Stream) Err() error {
	return s.err
}

// StreamFromChunks returns an already finished stream that yields chunks
// and then reports err.
func StreamFromChunks(chunks []Chunk, err error) *Stream {
	ch := make(chan Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return &Stream{C: ch, err: err}
}

// Client is the contract shared by the raw HTTP client and the eino adapter.
type Client interface {
	Stream(ctx context.Context, messages []Message, opts Options) (*Stream, error)
	Invoke(ctx context.Context, messages []Message, opts Options) (string, error)
}

// UpstreamError describes a failed call to a model provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API 错误: %d - %s", e.Provider, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s API 错误: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s API 错误", e.Provider)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err came from a model provider.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// Collect drains s and returns the concatenated content and thinking text.
func Collect(ctx context.Context, s *Stream) (content, thinking string, err error) {
	var cb, tb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return cb.String(), tb.String(), ctx.Err()
		case chunk, ok := <-s.C:
			if !ok {
				return cb.String(), tb.String(), s.Err()
			}
			switch chunk.Kind {
			case ChunkContent:
				cb.WriteString(chunk.Text)
			case ChunkThinking:
				tb.WriteString(chunk.Text)
			}
		}
	}
}

func invoke(ctx context.Context, c Client, messages []Message, opts Options) (string, error) {
	s, err := c.Stream(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	content, _, err := Collect(ctx, s)
	return content, err
}

// send delivers chunk unless ctx is done first.
func send(ctx context.Context, ch chan<- Chunk, chunk Chunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o Options) withDefaults(temperature float64, maxTokens int) Options {
	if o.Temperature <= 0 {
		o.Temperature = temperature
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = maxTokens
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}
