package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid groq", Config{Provider: ProviderGroq, APIKey: "k", Model: "llama-3.3-70b-versatile"}, false},
		{"missing provider", Config{APIKey: "k", Model: "m"}, true},
		{"missing api key", Config{Provider: ProviderGroq, Model: "m"}, true},
		{"missing model", Config{Provider: ProviderGroq, APIKey: "k"}, true},
		{"custom without base url", Config{Provider: ProviderCustom, APIKey: "k", Model: "m"}, true},
		{"custom with base url", Config{Provider: ProviderCustom, APIKey: "k", Model: "m", BaseURL: "https://example.com/v1"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigResolvedBaseURLDefaultsPerProvider(t *testing.T) {
	cfg := Config{Provider: ProviderDeepSeek, APIKey: "k", Model: "deepseek-chat"}
	url, err := cfg.resolvedBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "https://api.deepseek.com/v1", url)
}

func TestConfigResolvedBaseURLExplicitOverride(t *testing.T) {
	cfg := Config{Provider: ProviderGroq, APIKey: "k", Model: "m", BaseURL: "https://proxy.internal/v1"}
	url, err := cfg.resolvedBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.internal/v1", url)
}

func TestTimeoutForLargeModel(t *testing.T) {
	assert.Equal(t, largeModelTimeout, timeoutFor("llama-3.3-70b-versatile"))
	assert.Equal(t, defaultCallTimeout, timeoutFor("llama-3.1-8b-instant"))
}
