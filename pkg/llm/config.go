package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Provider identifies one of the OpenAI-compatible chat-completions backends
// an agent can be pointed at.
type Provider string

const (
	ProviderGroq     Provider = "groq"
	ProviderQwen     Provider = "qwen"
	ProviderDeepSeek Provider = "deepseek"
	ProviderCustom   Provider = "custom"
)

// defaultBaseURLs holds the well-known OpenAI-compatible endpoint for each
// built-in provider. ProviderCustom requires BaseURL to be set explicitly.
var defaultBaseURLs = map[Provider]string{
	ProviderGroq:     "https://api.groq.com/openai/v1",
	ProviderQwen:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	ProviderDeepSeek: "https://api.deepseek.com/v1",
}

// Config holds the settings needed to reach one AI provider via the shared
// OpenAI-compatible transport.
type Config struct {
	Provider Provider
	BaseURL  string
	APIKey   string
	Model    string
}

// Validate ensures the config is usable to construct a Client.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("llm config: config is nil")
	}
	if strings.TrimSpace(string(c.Provider)) == "" {
		return errors.New("llm config: provider is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("llm config: api_key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("llm config: model is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" && c.Provider == ProviderCustom {
		return errors.New("llm config: base_url is required for custom provider")
	}
	return nil
}

// resolvedBaseURL returns BaseURL, falling back to the provider's well-known
// endpoint when unset.
func (c *Config) resolvedBaseURL() (string, error) {
	if strings.TrimSpace(c.BaseURL) != "" {
		return c.BaseURL, nil
	}
	if url, ok := defaultBaseURLs[c.Provider]; ok {
		return url, nil
	}
	return "", fmt.Errorf("llm config: no default base_url for provider %q", c.Provider)
}

// Clone returns a shallow copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
