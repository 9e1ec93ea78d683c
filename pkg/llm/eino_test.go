package llm

import (
	"context"
	"errors"
	"testing"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type fakeChatModel struct {
	chunks    []*schema.Message
	streamErr error
	gotOpts   *einoModel.Options
	gotInput  []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	return schema.AssistantMessage("", nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	f.gotInput = input
	f.gotOpts = einoModel.GetCommonOptions(&einoModel.Options{}, opts...)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return schema.StreamReaderFromArray(f.chunks), nil
}

func TestEinoClient_MapsReasoningAndContent(t *testing.T) {
	fake := &fakeChatModel{chunks: []*schema.Message{
		{Role: schema.Assistant, ReasoningContent: "思考"},
		{Role: schema.Assistant, Content: "回答"},
		{Role: schema.Assistant, Content: "完毕"},
	}}
	c := NewEinoClient("openai", fake, Options{})

	s, err := c.Stream(context.Background(), []Message{SystemMessage("sys"), UserMessage("hi")}, Options{})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	content, thinking, err := Collect(context.Background(), s)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if content != "回答完毕" || thinking != "思考" {
		t.Fatalf("Collect() = %q, %q", content, thinking)
	}

	if len(fake.gotInput) != 2 || fake.gotInput[0].Role != schema.System || fake.gotInput[1].Role != schema.User {
		t.Fatalf("input messages = %+v", fake.gotInput)
	}
	if fake.gotOpts.Temperature == nil || *fake.gotOpts.Temperature != float32(DefaultTemperature) {
		t.Fatalf("temperature option = %v", fake.gotOpts.Temperature)
	}
	if fake.gotOpts.MaxTokens == nil || *fake.gotOpts.MaxTokens != DefaultMaxTokens {
		t.Fatalf("max tokens option = %v", fake.gotOpts.MaxTokens)
	}
}

func TestEinoClient_ThinkingModelSelection(t *testing.T) {
	plain := &fakeChatModel{chunks: []*schema.Message{{Content: "plain"}}}
	reasoning := &fakeChatModel{chunks: []*schema.Message{{Content: "deep"}}}
	c := NewEinoClient("ark", plain, Options{}).WithThinkingModel(reasoning)

	got, err := c.Invoke(context.Background(), []Message{UserMessage("q")}, Options{UseDeepThinking: true})
	if err != nil || got != "deep" {
		t.Fatalf("Invoke(deep) = %q, %v; want deep", got, err)
	}
	got, err = c.Invoke(context.Background(), []Message{UserMessage("q")}, Options{})
	if err != nil || got != "plain" {
		t.Fatalf("Invoke() = %q, %v; want plain", got, err)
	}
}

func TestEinoClient_StreamErrorIsUpstream(t *testing.T) {
	c := NewEinoClient("qwen", &fakeChatModel{streamErr: errors.New("boom")}, Options{})
	_, err := c.Stream(context.Background(), []Message{UserMessage("q")}, Options{})
	if !IsUpstream(err) {
		t.Fatalf("Stream() error = %v, want upstream error", err)
	}
	if err.Error() != "qwen API 错误: boom" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
