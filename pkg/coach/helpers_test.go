package coach

import (
	"context"
	"sync"

	"github.com/choraleia/coach/pkg/llm"
	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/search"
)

type recordedRequest struct {
	messages []llm.Message
	opts     llm.Options
}

func (r recordedRequest) system() string {
	if len(r.messages) > 0 && r.messages[0].Role == models.RoleSystem {
		return r.messages[0].Content
	}
	return ""
}

func (r recordedRequest) last() string {
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1].Content
}

// scriptedClient answers every request through reply and records it.
type scriptedClient struct {
	mu       sync.Mutex
	requests []recordedRequest
	reply    func(req recordedRequest) ([]llm.Chunk, error)
}

func (c *scriptedClient) Stream(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Stream, error) {
	req := recordedRequest{messages: messages, opts: opts}
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	chunks, err := c.reply(req)
	if err != nil {
		return nil, err
	}
	return llm.StreamFromChunks(chunks, nil), nil
}

func (c *scriptedClient) Invoke(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	s, err := c.Stream(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	content, _, err := llm.Collect(ctx, s)
	return content, err
}

func (c *scriptedClient) recorded() []recordedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedRequest(nil), c.requests...)
}

func content(texts ...string) []llm.Chunk {
	chunks := make([]llm.Chunk, 0, len(texts))
	for _, t := range texts {
		chunks = append(chunks, llm.Chunk{Kind: llm.ChunkContent, Text: t})
	}
	return chunks
}

func thinking(texts ...string) []llm.Chunk {
	chunks := make([]llm.Chunk, 0, len(texts))
	for _, t := range texts {
		chunks = append(chunks, llm.Chunk{Kind: llm.ChunkThinking, Text: t})
	}
	return chunks
}

type fakeSearchProvider struct {
	mu      sync.Mutex
	queries []string
	result  search.Result
}

func (p *fakeSearchProvider) Search(ctx context.Context, query string, maxResults int) search.Result {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.mu.Unlock()
	r := p.result
	r.Query = query
	return r
}

func (p *fakeSearchProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

// collectEvents gathers emitted events from a stage helper.
type eventSink struct {
	events []models.StreamEvent
}

func (s *eventSink) emit(ev models.StreamEvent) bool {
	s.events = append(s.events, ev)
	return true
}

func (s *eventSink) ofType(t models.EventType) []models.StreamEvent {
	var out []models.StreamEvent
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func drain(ch <-chan models.StreamEvent) []models.StreamEvent {
	var events []models.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}
