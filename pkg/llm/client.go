package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zeromicro/go-zero/core/logx"
)

// defaultCallTimeout bounds a single completion call. It is extended for
// models identified as 70-billion-parameter class, which reliably run
// slower on shared inference capacity.
const (
	defaultCallTimeout = 120 * time.Second
	largeModelTimeout  = 180 * time.Second
	largeModelMarker   = "70b"

	// completionTemperature and completionMaxTokens are the fixed sampling
	// parameters every decision cycle's completion request uses.
	completionTemperature = 0.5
	completionMaxTokens   = 4000
)

// CompletionClient is the contract the Decision Assembler and Multi-Agent
// Engine depend on. Its concrete transport (HTTP, SSE framing, provider wire
// format) is deliberately not part of the contract: any implementation that
// turns a system/user prompt pair into raw assistant text satisfies it.
type CompletionClient interface {
	// Complete sends one non-streaming chat-completion request and returns
	// the raw assistant text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// sharedTransport is reused across every Client instance so idle-connection
// pooling is effective across all configured providers/agents.
var (
	sharedTransportOnce sync.Once
	sharedTransport     *http.Transport
)

func getSharedTransport() *http.Transport {
	sharedTransportOnce.Do(func() {
		sharedTransport = &http.Transport{
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		}
	})
	return sharedTransport
}

// Client implements CompletionClient against one OpenAI-compatible provider.
type Client struct {
	cfg          *Config
	openaiClient openai.Client
	retry        *RetryHandler
	httpClient   *http.Client
}

// NewClient constructs a Client for the given provider configuration.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("llm: config is required")
	}
	clientCfg := cfg.Clone()
	if err := clientCfg.Validate(); err != nil {
		return nil, err
	}
	baseURL, err := clientCfg.resolvedBaseURL()
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Transport: getSharedTransport()}
	oa := openai.NewClient(
		option.WithAPIKey(clientCfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &Client{
		cfg:          clientCfg,
		openaiClient: oa,
		retry:        NewRetryHandler(),
		httpClient:   httpClient,
	}, nil
}

// Complete implements CompletionClient.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c == nil {
		return "", errors.New("llm: client not initialised")
	}

	callCtx, cancel := context.WithTimeout(ctx, timeoutFor(c.cfg.Model))
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature:         openai.Float(completionTemperature),
		MaxCompletionTokens: openai.Int(completionMaxTokens),
	}

	start := time.Now()
	var completion *openai.ChatCompletion
	err := c.retry.Do(callCtx, func() error {
		resp, callErr := c.openaiClient.Chat.Completions.New(callCtx, params)
		if callErr != nil {
			return callErr
		}
		completion = resp
		return nil
	})
	if err != nil {
		logx.WithContext(callCtx).Errorf("llm: completion failed provider=%s model=%s duration=%s err=%v",
			c.cfg.Provider, c.cfg.Model, time.Since(start), err)
		return "", err
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	logx.WithContext(callCtx).Infof("llm: completion ok provider=%s model=%s duration=%s prompt_tokens=%d completion_tokens=%d",
		c.cfg.Provider, c.cfg.Model, time.Since(start), completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	return text, nil
}

// Close releases idle connections held by the client's transport.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

func timeoutFor(model string) time.Duration {
	if strings.Contains(strings.ToLower(model), largeModelMarker) {
		return largeModelTimeout
	}
	return defaultCallTimeout
}
