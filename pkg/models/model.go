package models

import "strings"

// Provider names accepted by the model factory.
const (
	ProviderDoubao    = "doubao" // built-in streaming HTTP client for Volcengine Ark
	ProviderArk       = "ark"
	ProviderOpenAI    = "openai"
	ProviderCustom    = "custom" // any OpenAI-compatible endpoint
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
	ProviderQianfan   = "qianfan"
	ProviderQwen      = "qwen"
)

// SupportedModelProviders supported model providers
var SupportedModelProviders = map[string]struct{}{
	ProviderDoubao:    {},
	ProviderArk:       {},
	ProviderOpenAI:    {},
	ProviderCustom:    {},
	ProviderDeepSeek:  {},
	ProviderAnthropic: {},
	ProviderOllama:    {},
	ProviderGoogle:    {},
	ProviderQianfan:   {},
	ProviderQwen:      {},
}

// ModelConfig unified struct containing common fields and vendor extension fields.
// Extra stores vendor specific additional parameters (for example "region" for ark).
type ModelConfig struct {
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`    // Model identifier
	BaseUrl  string                 `json:"base_url"` // API endpoint
	ApiKey   string                 `json:"api_key"`  // API key
	Extra    map[string]interface{} `json:"extra"`    // Vendor-specific fields
}

func (m *ModelConfig) Normalize() {
	m.Provider = strings.ToLower(strings.TrimSpace(m.Provider))
	if m.Extra == nil {
		m.Extra = map[string]interface{}{}
	}
}

// ExtraString returns a string vendor field or "".
func (m *ModelConfig) ExtraString(key string) string {
	if m.Extra == nil {
		return ""
	}
	v, _ := m.Extra[key].(string)
	return v
}

// IsSupportedProvider reports whether the factory can build provider.
func IsSupportedProvider(provider string) bool {
	_, ok := SupportedModelProviders[strings.ToLower(strings.TrimSpace(provider))]
	return ok
}
