package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.coach/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8088
// model:
//   provider: doubao
//   model: doubao-seed-1-6-251015
// search:
//   max_results: 5
// storage:
//   driver: sqlite
//   dsn: /home/me/.coach/coach.db
// chat:
//   classifier: model
//   max_history_length: 6
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Environment variables override secrets and addresses after the file is read.

type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Search  SearchConfig  `yaml:"search"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Chat    ChatConfig    `yaml:"chat"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

// ModelConfig selects the chat-completion backend. Provider "doubao" uses the
// built-in HTTP streaming client; every other provider goes through eino.
type ModelConfig struct {
	Provider             string   `yaml:"provider"`
	Endpoint             string   `yaml:"endpoint"`
	APIKey               string   `yaml:"api_key"`
	Model                string   `yaml:"model"`
	Region               string   `yaml:"region"`
	Temperature          *float64 `yaml:"temperature"`
	MaxTokens            *int     `yaml:"max_tokens"`
	ThinkingBudgetTokens *int     `yaml:"thinking_budget_tokens"`
	TimeoutSeconds       *int     `yaml:"timeout_seconds"`
}

type SearchConfig struct {
	Provider        string `yaml:"provider"`
	Endpoint        string `yaml:"endpoint"`
	APIKey          string `yaml:"api_key"`
	MaxResults      *int   `yaml:"max_results"`
	CacheTTLSeconds *int   `yaml:"cache_ttl_seconds"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres, mysql
	DSN    string `yaml:"dsn"`
}

// RedisConfig is optional; an empty Addr disables the search cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ChatConfig struct {
	Classifier       string `yaml:"classifier"` // model, keyword
	MaxHistoryLength *int   `yaml:"max_history_length"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DefaultHost                 = "127.0.0.1"
	DefaultPort                 = 8088
	DefaultModelProvider        = "doubao"
	DefaultModelEndpoint        = "https://ark.cn-beijing.volces.com/api/v3/chat/completions"
	DefaultModelName            = "doubao-seed-1-6-251015"
	DefaultTemperature          = 0.7
	DefaultMaxTokens            = 2000
	DefaultThinkingBudgetTokens = 2000
	DefaultModelTimeoutSeconds  = 600
	DefaultSearchProvider       = "tavily"
	DefaultSearchEndpoint       = "https://api.tavily.com/search"
	DefaultSearchMaxResults     = 5
	DefaultSearchCacheTTL       = 600
	DefaultStorageDriver        = "sqlite"
	DefaultClassifier           = "model"
	DefaultMaxHistoryLength     = 6
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".coach")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.coach/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}
	return LoadFile(configFile)
}

// LoadFile reads the config at path, applies environment overrides and validates.
func LoadFile(configFile string) (*AppConfig, string, error) {
	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w in %s", err, configFile)
	}

	return cfg, configFile, nil
}

// Validate checks value ranges that accessors cannot default away.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Host()) == "" {
		return fmt.Errorf("invalid server.host (empty)")
	}
	if port := c.Port(); port < 1 || port > 65535 {
		return fmt.Errorf("invalid server.port %d", port)
	}
	switch c.StorageDriver() {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("invalid storage.driver %q", c.Storage.Driver)
	}
	switch c.Classifier() {
	case "model", "keyword":
	default:
		return fmt.Errorf("invalid chat.classifier %q", c.Chat.Classifier)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	if v := firstEnv("ARK_API_KEY", "DOUBAO_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv("COACH_DATABASE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("COACH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = ptr(p)
		}
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		Model: ModelConfig{
			Provider: DefaultModelProvider,
			Endpoint: DefaultModelEndpoint,
			Model:    DefaultModelName,
		},
		Search: SearchConfig{
			Provider:   DefaultSearchProvider,
			MaxResults: ptr(DefaultSearchMaxResults),
		},
		Storage: StorageConfig{Driver: DefaultStorageDriver},
		Chat: ChatConfig{
			Classifier:       DefaultClassifier,
			MaxHistoryLength: ptr(DefaultMaxHistoryLength),
		},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

func (c *AppConfig) ModelProvider() string {
	return orDefault(c.Model.Provider, DefaultModelProvider)
}

func (c *AppConfig) ModelEndpoint() string {
	return orDefault(c.Model.Endpoint, DefaultModelEndpoint)
}

func (c *AppConfig) ModelName() string {
	return orDefault(c.Model.Model, DefaultModelName)
}

func (c *AppConfig) Temperature() float64 {
	if c.Model.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Model.Temperature
}

func (c *AppConfig) MaxTokens() int {
	return positiveOr(c.Model.MaxTokens, DefaultMaxTokens)
}

func (c *AppConfig) ThinkingBudgetTokens() int {
	return positiveOr(c.Model.ThinkingBudgetTokens, DefaultThinkingBudgetTokens)
}

func (c *AppConfig) ModelTimeoutSeconds() int {
	return positiveOr(c.Model.TimeoutSeconds, DefaultModelTimeoutSeconds)
}

func (c *AppConfig) SearchProvider() string {
	return orDefault(c.Search.Provider, DefaultSearchProvider)
}

func (c *AppConfig) SearchEndpoint() string {
	return orDefault(c.Search.Endpoint, DefaultSearchEndpoint)
}

// SearchMaxResults is clamped to the provider's accepted range 1..10.
func (c *AppConfig) SearchMaxResults() int {
	n := positiveOr(c.Search.MaxResults, DefaultSearchMaxResults)
	if n > 10 {
		n = 10
	}
	return n
}

func (c *AppConfig) SearchCacheTTLSeconds() int {
	return positiveOr(c.Search.CacheTTLSeconds, DefaultSearchCacheTTL)
}

func (c *AppConfig) StorageDriver() string {
	return strings.ToLower(orDefault(c.Storage.Driver, DefaultStorageDriver))
}

// StorageDSN falls back to a sqlite file next to the config file.
func (c *AppConfig) StorageDSN() string {
	if v := strings.TrimSpace(c.Storage.DSN); v != "" {
		return v
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "coach.db"
	}
	return filepath.Join(configDir, "coach.db")
}

func (c *AppConfig) Classifier() string {
	return strings.ToLower(orDefault(c.Chat.Classifier, DefaultClassifier))
}

func (c *AppConfig) MaxHistoryLength() int {
	return positiveOr(c.Chat.MaxHistoryLength, DefaultMaxHistoryLength)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func positiveOr(v *int, def int) int {
	if v == nil || *v <= 0 {
		return def
	}
	return *v
}

func ptr[T any](v T) *T { return &v }
