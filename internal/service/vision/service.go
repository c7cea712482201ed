// Package vision answers questions about user-supplied images through an
// OpenAI-compatible multimodal model.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/zhouzirui/moodchat/backend/internal/config"
	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
)

// ReplyPrefix marks replies produced from an image.
const ReplyPrefix = "📸 Image Analysis:\n\n"

const (
	maxImageBytes   = 20 << 20
	historyContext  = 4
	visionMaxTokens = 400
)

// FallbackReply is returned when the image could not be analyzed.
const FallbackReply = "I couldn't analyze that image right now. Could you describe what it shows so I can help?"

var (
	ErrInvalidImage  = errors.New("vision: invalid image data")
	ErrImageTooLarge = errors.New("vision: image too large")
	ErrDisabled      = errors.New("vision: service disabled")
)

// Kind 表示根据用户问题推断的图片类别。
type Kind string

const (
	KindCode      Kind = "code"
	KindDiagram   Kind = "diagram"
	KindMath      Kind = "math"
	KindTechnical Kind = "technical"
	KindDocument  Kind = "document"
	KindGeneral   Kind = "general"
)

var kindKeywords = []struct {
	kind     Kind
	keywords []string
}{
	{KindCode, []string{"code", "program", "script", "function", "syntax", "debug"}},
	{KindDiagram, []string{"diagram", "flowchart", "chart", "graph", "flow", "architecture"}},
	{KindMath, []string{"math", "equation", "formula", "calculate", "solve"}},
	{KindTechnical, []string{"technical", "system", "network", "infrastructure", "design"}},
	{KindDocument, []string{"document", "text", "read", "extract", "transcribe"}},
}

var analysisPrompts = map[Kind]string{
	KindCode:      "The image contains source code. Identify the language, explain what the code does and point out any bugs or improvements.",
	KindDiagram:   "The image is a diagram. Describe its components and how they connect, then summarize the flow it represents.",
	KindMath:      "The image contains math. Transcribe the expressions and work through the solution step by step.",
	KindTechnical: "The image shows a technical system. Explain the main parts and how they interact.",
	KindDocument:  "The image contains a document. Extract the important text and summarize it.",
	KindGeneral:   "Describe what is in the image and anything notable about it.",
}

// Service 调用多模态模型分析图片。
type Service struct {
	client  openaigo.Client
	model   string
	enabled bool
}

// NewService builds a vision client from cfg. A disabled config yields a
// service whose Enabled method reports false.
func NewService(cfg config.VisionConfig) *Service {
	svc := &Service{model: cfg.Model, enabled: cfg.Enabled}
	if !cfg.Enabled {
		return svc
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	svc.client = openaigo.NewClient(
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(1),
		option.WithRequestTimeout(timeout),
	)
	return svc
}

// Enabled reports whether images can be analyzed.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// DetectKind picks the analysis focus from the user's question.
func DetectKind(userMessage string) Kind {
	lower := strings.ToLower(userMessage)
	for _, entry := range kindKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				return entry.kind
			}
		}
	}
	return KindGeneral
}

// AnalyzeWithContext answers userMessage about imageData. On failure the
// returned text is FallbackReply and err explains why.
func (s *Service) AnalyzeWithContext(ctx context.Context, imageData, userMessage string, history []chat.Message) (string, error) {
	if !s.Enabled() {
		return FallbackReply, ErrDisabled
	}

	dataURL, err := NormalizeImage(imageData)
	if err != nil {
		return FallbackReply, err
	}

	kind := DetectKind(userMessage)
	resp, err := s.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(s.model),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.UserMessage([]openaigo.ChatCompletionContentPartUnionParam{
				openaigo.TextContentPart(buildPrompt(kind, userMessage, history)),
				openaigo.ImageContentPart(openaigo.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		MaxTokens:   openaigo.Int(visionMaxTokens),
		Temperature: openaigo.Float(0.5),
	})
	if err != nil {
		log.Printf("[vision] analyze failed kind=%s: %v", kind, err)
		return FallbackReply, fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return FallbackReply, fmt.Errorf("vision completion: empty response")
	}

	log.Printf("[vision] analyzed image kind=%s tokens=%d", kind, resp.Usage.TotalTokens)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(kind Kind, userMessage string, history []chat.Message) string {
	var b strings.Builder
	b.WriteString(analysisPrompts[kind])

	if start := len(history) - historyContext; len(history) > 0 {
		if start < 0 {
			start = 0
		}
		b.WriteString("\n\nRecent conversation:")
		for _, msg := range history[start:] {
			speaker := "Assistant"
			if msg.FromUser() {
				speaker = "User"
			}
			fmt.Fprintf(&b, "\n%s: %s", speaker, msg.Text)
		}
	}

	if strings.TrimSpace(userMessage) != "" {
		b.WriteString("\n\nUser question: ")
		b.WriteString(userMessage)
	}
	b.WriteString("\n\nAnswer in at most five sentences.")
	return b.String()
}

// NormalizeImage accepts a data URL or raw base64 and returns a data URL.
func NormalizeImage(imageData string) (string, error) {
	data := strings.TrimSpace(imageData)
	if data == "" {
		return "", ErrInvalidImage
	}

	payload := data
	mime := ""
	if strings.HasPrefix(data, "data:") {
		header, body, ok := strings.Cut(data, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return "", ErrInvalidImage
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		payload = body
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(raw) > maxImageBytes {
		return "", ErrImageTooLarge
	}

	if mime == "" {
		mime = http.DetectContentType(raw)
	}
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, mime)
	}
	return "data:" + mime + ";base64," + payload, nil
}
