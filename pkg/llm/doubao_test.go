package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newDoubaoTestServer(t *testing.T, check func(t *testing.T, body map[string]any), frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", got)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		if check != nil {
			check(t, body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			io.WriteString(w, f)
			flusher.Flush()
		}
	}))
}

func TestDoubaoClient_Stream(t *testing.T) {
	frames := []string{
		"data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"想\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"你",
		"好\"}}]}\n\ndata: not-json\n\n",
		"data: {\"choices\":[]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"世界\"}}]}\n\n",
		"data: [DONE]\n\n",
	}
	srv := newDoubaoTestServer(t, func(t *testing.T, body map[string]any) {
		if body["stream"] != true {
			t.Errorf("stream = %v, want true", body["stream"])
		}
		if body["model"] != DefaultDoubaoModel {
			t.Errorf("model = %v, want %s", body["model"], DefaultDoubaoModel)
		}
		if body["max_tokens"] != float64(DefaultMaxTokens) {
			t.Errorf("max_tokens = %v, want %d", body["max_tokens"], DefaultMaxTokens)
		}
		thinking, _ := body["thinking"].(map[string]any)
		if thinking["type"] != "enabled" || thinking["emit"] != true || thinking["budget_tokens"] != float64(DefaultThinkingBudget) {
			t.Errorf("thinking = %v", thinking)
		}
	}, frames)
	defer srv.Close()

	c := NewDoubaoClient(DoubaoConfig{Endpoint: srv.URL, APIKey: "test-key"})
	s, err := c.Stream(context.Background(), []Message{UserMessage("hi")}, Options{UseDeepThinking: true})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var kinds []ChunkKind
	var text strings.Builder
	for chunk := range s.C {
		kinds = append(kinds, chunk.Kind)
		text.WriteString(chunk.Text)
	}
	if s.Err() != nil {
		t.Fatalf("Stream.Err() = %v", s.Err())
	}
	if text.String() != "想你好世界" {
		t.Fatalf("stream text = %q, want 想你好世界", text.String())
	}
	if kinds[0] != ChunkThinking || kinds[len(kinds)-1] != ChunkContent {
		t.Fatalf("chunk kinds = %v", kinds)
	}
}

func TestDoubaoClient_InvokeKeepsOnlyContent(t *testing.T) {
	frames := []string{
		"data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"r\",\"content\":\"a\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}",
	}
	srv := newDoubaoTestServer(t, func(t *testing.T, body map[string]any) {
		thinking, _ := body["thinking"].(map[string]any)
		if thinking["type"] != "disabled" {
			t.Errorf("thinking = %v, want disabled", thinking)
		}
		if _, ok := thinking["budget_tokens"]; ok {
			t.Errorf("disabled thinking should not carry a budget")
		}
	}, frames)
	defer srv.Close()

	c := NewDoubaoClient(DoubaoConfig{Endpoint: srv.URL, APIKey: "test-key"})
	got, err := c.Invoke(context.Background(), []Message{UserMessage("hi")}, Options{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "ab" {
		t.Fatalf("Invoke() = %q, want ab", got)
	}
}

func TestDoubaoClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, "rate limited")
	}))
	defer srv.Close()

	c := NewDoubaoClient(DoubaoConfig{Endpoint: srv.URL, APIKey: "test-key"})
	_, err := c.Stream(context.Background(), []Message{UserMessage("hi")}, Options{})

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("Stream() error = %v, want *UpstreamError", err)
	}
	if ue.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("StatusCode = %d, want 429", ue.StatusCode)
	}
	if ue.Error() != "豆包 API 错误: 429 - rate limited" {
		t.Fatalf("Error() = %q", ue.Error())
	}
	if !IsUpstream(err) {
		t.Fatalf("IsUpstream() = false")
	}
}

func TestDoubaoClient_MissingKey(t *testing.T) {
	c := NewDoubaoClient(DoubaoConfig{})
	if _, err := c.Stream(context.Background(), nil, Options{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Stream() error = %v, want ErrNotConfigured", err)
	}
}

func TestDoubaoClient_CancelStopsStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewDoubaoClient(DoubaoConfig{Endpoint: srv.URL, APIKey: "test-key"})
	s, err := c.Stream(ctx, []Message{UserMessage("hi")}, Options{})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	<-s.C
	cancel()
	for range s.C {
	}
	if s.Err() == nil {
		t.Fatalf("Stream.Err() = nil after cancel")
	}
}
