package coach

import (
	"context"
	"strings"
	"testing"

	"github.com/choraleia/coach/pkg/llm"
	"github.com/choraleia/coach/pkg/models"
)

func TestThinkingStage_Disabled(t *testing.T) {
	client := &scriptedClient{reply: func(recordedRequest) ([]llm.Chunk, error) {
		t.Fatalf("upstream called while disabled")
		return nil, nil
	}}
	sink := &eventSink{}
	if got := NewThinkingStage(client).Stream(context.Background(), Input{UserInput: "x"}, false, sink.emit); got != "" {
		t.Fatalf("Stream() = %q, want empty", got)
	}
	if len(sink.events) != 0 {
		t.Fatalf("events = %d, want 0", len(sink.events))
	}
}

func TestThinkingStage_EmitsOnlyThinking(t *testing.T) {
	client := &scriptedClient{reply: func(recordedRequest) ([]llm.Chunk, error) {
		chunks := thinking("先分析", "再规划")
		return append(chunks, content("这是回答")...), nil
	}}
	sink := &eventSink{}
	history := []models.HistoryMessage{
		{Role: models.RoleUser, Content: "h1"},
		{Role: models.RoleAssistant, Content: "h2"},
	}

	got := NewThinkingStage(client).Stream(context.Background(), Input{UserInput: "学吉他", SearchDigest: "资料", History: history}, true, sink.emit)

	if got != "先分析再规划" {
		t.Fatalf("transcript = %q", got)
	}
	if len(sink.ofType(models.EventThinking)) != 2 || len(sink.events) != 2 {
		t.Fatalf("events = %+v, want two thinking events", sink.events)
	}

	req := client.recorded()[0]
	if !req.opts.UseDeepThinking {
		t.Fatalf("reasoning mode not requested")
	}
	if req.system() != thinkingSystemPrompt {
		t.Fatalf("system prompt = %q", req.system())
	}
	if len(req.messages) != 4 {
		t.Fatalf("messages = %d, want system + 2 history + prompt", len(req.messages))
	}
	prompt := req.last()
	for _, want := range []string{"用户当前需求：学吉他", "1. 用户: h1", "相关搜索信息：\n资料", "5. 最佳实践和建议是什么？", "请详细分析："} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestThinkingStage_ContentOnlyProvider(t *testing.T) {
	client := &scriptedClient{reply: func(recordedRequest) ([]llm.Chunk, error) { return content("分析", "结果"), nil }}
	sink := &eventSink{}
	got := NewThinkingStage(client).Stream(context.Background(), Input{UserInput: "x"}, true, sink.emit)
	if got != "分析结果" || len(sink.events) != 1 || sink.events[0].Type != models.EventThinking {
		t.Fatalf("Stream() = %q, events %+v", got, sink.events)
	}
}

func TestThinkingStage_Error(t *testing.T) {
	client := &scriptedClient{reply: func(recordedRequest) ([]llm.Chunk, error) {
		return nil, &llm.UpstreamError{Provider: "豆包", StatusCode: 500, Body: "x"}
	}}
	sink := &eventSink{}
	got := NewThinkingStage(client).Stream(context.Background(), Input{UserInput: "x"}, true, sink.emit)
	if got != "" {
		t.Fatalf("Stream() = %q, want empty digest", got)
	}
	if len(sink.events) != 1 || sink.events[0].Type != models.EventThinking || sink.events[0].Content != thinkingErrorMessage {
		t.Fatalf("events = %+v", sink.events)
	}

	if _, err := NewThinkingStage(client).Invoke(context.Background(), Input{UserInput: "x"}); err == nil {
		t.Fatalf("Invoke() expected error")
	}
}

func TestThinkingStage_InvokePrefersReasoning(t *testing.T) {
	client := &scriptedClient{reply: func(recordedRequest) ([]llm.Chunk, error) {
		return append(thinking("推理"), content("答案")...), nil
	}}
	got, err := NewThinkingStage(client).Invoke(context.Background(), Input{UserInput: "x"})
	if err != nil || got != "推理" {
		t.Fatalf("Invoke() = %q, %v; want 推理", got, err)
	}
}
