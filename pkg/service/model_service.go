package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/choraleia/coach/pkg/config"
	"github.com/choraleia/coach/pkg/llm"
	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/utils"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qianfan"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	arkModel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"google.golang.org/genai"
)

type ModelService struct {
	logger *slog.Logger
}

func NewModelService() *ModelService {
	return &ModelService{
		logger: utils.GetLogger(),
	}
}

// ModelConfigFromApp maps the model section of the app config onto the
// provider-neutral ModelConfig used by the factory.
func ModelConfigFromApp(cfg *config.AppConfig) *models.ModelConfig {
	mc := &models.ModelConfig{
		Provider: cfg.ModelProvider(),
		Model:    cfg.Model.Model,
		BaseUrl:  cfg.Model.Endpoint,
		ApiKey:   cfg.Model.APIKey,
		Extra:    map[string]interface{}{},
	}
	if cfg.Model.Region != "" {
		mc.Extra["region"] = cfg.Model.Region
	}
	mc.Normalize()
	switch mc.Provider {
	case models.ProviderDoubao:
		mc.BaseUrl = cfg.ModelEndpoint()
		mc.Model = cfg.ModelName()
	case models.ProviderArk:
		if mc.Model == "" {
			mc.Model = config.DefaultModelName
		}
	}
	return mc
}

// NewClient builds the llm.Client for the configured provider. Doubao uses
// the built-in streaming HTTP client; every other provider is wrapped
// through eino.
func (m *ModelService) NewClient(ctx context.Context, cfg *config.AppConfig) (llm.Client, error) {
	mc := ModelConfigFromApp(cfg)
	if !models.IsSupportedProvider(mc.Provider) {
		return nil, fmt.Errorf("%w: unsupported model provider %s", ErrModelNotConfigured, mc.Provider)
	}

	defaults := llm.Options{Temperature: cfg.Temperature(), MaxTokens: cfg.MaxTokens()}
	timeout := time.Duration(cfg.ModelTimeoutSeconds()) * time.Second

	if mc.Provider == models.ProviderDoubao {
		if mc.ApiKey == "" {
			m.logger.Warn("Model API key is not set; chat requests will fail until ARK_API_KEY is configured")
		}
		return llm.NewDoubaoClient(llm.DoubaoConfig{
			Endpoint:       mc.BaseUrl,
			APIKey:         mc.ApiKey,
			Model:          mc.Model,
			Temperature:    defaults.Temperature,
			MaxTokens:      defaults.MaxTokens,
			ThinkingBudget: cfg.ThinkingBudgetTokens(),
			Timeout:        timeout,
		}), nil
	}

	if mc.Model == "" {
		return nil, fmt.Errorf("%w: model name required for provider %s", ErrModelNotConfigured, mc.Provider)
	}

	chatModel, err := m.CreateChatModel(ctx, mc, false)
	if err != nil {
		return nil, err
	}
	client := llm.NewEinoClient(mc.Provider, chatModel, defaults)

	// Ark decides on reasoning per model instance, so deep-thinking
	// requests get their own instance.
	if mc.Provider == models.ProviderArk {
		thinkingModel, err := m.CreateChatModel(ctx, mc, true)
		if err != nil {
			return nil, err
		}
		client.WithThinkingModel(thinkingModel)
	}

	m.logger.Info("Model client ready", "provider", mc.Provider, "model", mc.Model,
		"apiKey", utils.MaskSensitiveString(mc.ApiKey))
	return client, nil
}

// CreateChatModel creates an eino chat model from config
func (m *ModelService) CreateChatModel(ctx context.Context, config *models.ModelConfig, deepThinking bool) (einoModel.ToolCallingChatModel, error) {
	if config == nil {
		return nil, fmt.Errorf("model config is nil")
	}

	switch config.Provider {
	case models.ProviderOpenAI, models.ProviderCustom:
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		return chatModel, nil

	case models.ProviderArk:
		timeout := time.Second * 600
		retries := 3
		thinking := &arkModel.Thinking{Type: arkModel.ThinkingTypeDisabled}
		if deepThinking {
			thinking.Type = arkModel.ThinkingTypeEnabled
		}
		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:    config.BaseUrl,
			Region:     config.ExtraString("region"),
			Timeout:    &timeout,
			RetryTimes: &retries,
			APIKey:     config.ApiKey,
			Model:      config.Model,
			Thinking:   thinking,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ark model: %w", err)
		}
		return chatModel, nil

	case models.ProviderDeepSeek:
		chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create DeepSeek model: %w", err)
		}
		return chatModel, nil

	case models.ProviderAnthropic:
		var baseURL *string
		if config.BaseUrl != "" {
			baseURL = &config.BaseUrl
		}
		chatModel, err := claude.NewChatModel(ctx, &claude.Config{
			BaseURL:   baseURL,
			APIKey:    config.ApiKey,
			Model:     config.Model,
			MaxTokens: 8192,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude model: %w", err)
		}
		return chatModel, nil

	case models.ProviderOllama:
		chatModel, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: config.BaseUrl,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama model: %w", err)
		}
		return chatModel, nil

	case models.ProviderGoogle:
		genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  config.ApiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: genaiClient,
			Model:  config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini model: %w", err)
		}
		return chatModel, nil

	case models.ProviderQianfan:
		qianfanConfig := qianfan.GetQianfanSingletonConfig()
		qianfanConfig.BaseURL = config.BaseUrl
		qianfanConfig.BearerToken = config.ApiKey
		chatModel, err := qianfan.NewChatModel(ctx, &qianfan.ChatModelConfig{
			Model: config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qianfan model: %w", err)
		}
		return chatModel, nil

	case models.ProviderQwen:
		chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qwen model: %w", err)
		}
		return chatModel, nil

	default:
		return nil, fmt.Errorf("unsupported model provider: %s", config.Provider)
	}
}

// SupportedProviders lists the providers the factory can build, sorted.
func SupportedProviders() []string {
	providers := make([]string, 0, len(models.SupportedModelProviders))
	for p := range models.SupportedModelProviders {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}
