// Package llm adapts OpenAI-compatible chat completion endpoints (Groq by
// default) to eino's chat model interface so they can sit in a compose chain.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultBaseURL    = "https://api.groq.com/openai/v1"
	DefaultModel      = "llama-3.1-8b-instant"
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 2
)

// 供应商错误的粗分类，调用方据此给出用户可读的提示。
var (
	ErrUnauthorized  = errors.New("llm: unauthorized")
	ErrRateLimited   = errors.New("llm: rate limited")
	ErrContextLength = errors.New("llm: context length exceeded")
	ErrUnavailable   = errors.New("llm: provider unavailable")
	ErrEmptyResponse = errors.New("llm: empty response")
)

// OpenAIConfig configures an OpenAI-compatible chat model.
type OpenAIConfig struct {
	BaseURL          string
	APIKey           string
	Model            string
	Temperature      *float32
	TopP             *float32
	MaxTokens        *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Timeout          time.Duration
	MaxRetries       int
	HTTPClient       *http.Client
}

// OpenAIChatModel implements model.ChatModel on top of openai-go.
type OpenAIChatModel struct {
	client openaigo.Client
	cfg    OpenAIConfig
}

var _ model.ChatModel = (*OpenAIChatModel)(nil)

// NewOpenAIChatModel validates cfg and builds the client.
func NewOpenAIChatModel(_ context.Context, cfg OpenAIConfig) (*OpenAIChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai-compatible model config incomplete: api key is required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client := openaigo.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.Timeout),
	)
	return &OpenAIChatModel{client: client, cfg: cfg}, nil
}

// ModelName returns the configured model identifier.
func (m *OpenAIChatModel) ModelName() string {
	return m.cfg.Model
}

// Generate runs a single chat completion.
func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	params, err := m.buildParams(input, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	return &schema.Message{
		Role:    schema.Assistant,
		Content: choice.Message.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: string(choice.FinishReason),
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.Usage.PromptTokens),
				CompletionTokens: int(resp.Usage.CompletionTokens),
				TotalTokens:      int(resp.Usage.TotalTokens),
			},
		},
	}, nil
}

// Stream 以单块流的形式返回完整回复，满足链路的流式调用。
func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools is unsupported; the chat backend never issues tool calls.
func (m *OpenAIChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) == 0 {
		return nil
	}
	return fmt.Errorf("openai-compatible model: tool calling is not supported")
}

func (m *OpenAIChatModel) buildParams(input []*schema.Message, opts ...model.Option) (openaigo.ChatCompletionNewParams, error) {
	options := model.GetCommonOptions(&model.Options{
		Temperature: m.cfg.Temperature,
		TopP:        m.cfg.TopP,
		MaxTokens:   m.cfg.MaxTokens,
		Model:       &m.cfg.Model,
	}, opts...)

	messages, err := convertMessages(input)
	if err != nil {
		return openaigo.ChatCompletionNewParams{}, err
	}

	params := openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(*options.Model),
		Messages: messages,
	}
	if options.Temperature != nil {
		params.Temperature = openaigo.Float(float64(*options.Temperature))
	}
	if options.TopP != nil {
		params.TopP = openaigo.Float(float64(*options.TopP))
	}
	if options.MaxTokens != nil {
		params.MaxTokens = openaigo.Int(int64(*options.MaxTokens))
	}
	if m.cfg.FrequencyPenalty != nil {
		params.FrequencyPenalty = openaigo.Float(*m.cfg.FrequencyPenalty)
	}
	if m.cfg.PresencePenalty != nil {
		params.PresencePenalty = openaigo.Float(*m.cfg.PresencePenalty)
	}
	return params, nil
}

func convertMessages(input []*schema.Message) ([]openaigo.ChatCompletionMessageParamUnion, error) {
	out := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			out = append(out, openaigo.SystemMessage(msg.Content))
		case schema.User:
			out = append(out, openaigo.UserMessage(msg.Content))
		case schema.Assistant:
			out = append(out, openaigo.AssistantMessage(msg.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	return out, nil
}

// classifyError attaches one of the package sentinels while keeping the provider error in the chain.
func classifyError(err error) error {
	var apiErr *openaigo.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case apiErr.StatusCode == http.StatusRequestEntityTooLarge ||
			(apiErr.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(err.Error()), "context")):
			return fmt.Errorf("%w: %w", ErrContextLength, err)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("chat completion failed: %w", err)
}
