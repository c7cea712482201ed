package ai

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
	"github.com/zhouzirui/moodchat/backend/internal/service/memory"
)

// Features 控制生成流程中可关闭的环节。
type Features struct {
	Cache         bool
	TaskDetection bool
	Sentiment     bool
	Memory        bool
}

// AllFeatures enables every stage of the pipeline.
func AllFeatures() Features {
	return Features{Cache: true, TaskDetection: true, Sentiment: true, Memory: true}
}

// Request is one generation call.
type Request struct {
	Message   string
	History   []chat.Message
	Sentiment chat.Sentiment
	Style     string
	UserID    string
}

// Reply is the post-processed model output.
type Reply struct {
	Text       string   `json:"text"`
	TaskType   TaskType `json:"task_type"`
	Stage      Stage    `json:"stage"`
	Cached     bool     `json:"cached"`
	TokensUsed int      `json:"tokens_used"`
}

// Metrics 汇总服务运行期间的调用统计。
type Metrics struct {
	TotalRequests       int       `json:"total_requests"`
	TotalTokensUsed     int       `json:"total_tokens_used"`
	AvgTokensPerRequest float64   `json:"avg_tokens_per_request"`
	CacheHitRate        float64   `json:"cache_hit_rate"`
	CacheHits           int       `json:"cache_hits"`
	CacheMisses         int       `json:"cache_misses"`
	CacheEntries        int       `json:"cache_entries"`
	Timestamp           time.Time `json:"timestamp"`
}

type counters struct {
	mu       sync.Mutex
	requests int
	tokens   int
	hits     int
	misses   int
}

// Service encapsulates sentiment-aware reply generation.
type Service struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	cache    *memory.ResponseCache
	memory   *memory.Manager
	prompts  *PromptBuilder
	features Features
	stats    counters
}

// NewService compiles the prompt chain around chatModel. cache and manager
// are owned by the caller so they can be shared or replaced in tests.
func NewService(ctx context.Context, chatModel model.ChatModel, cache *memory.ResponseCache, manager *memory.Manager, features Features) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if cache == nil {
		cache = memory.NewResponseCache(memory.DefaultCacheTTL)
	}
	if manager == nil {
		manager = memory.NewManager(memory.DefaultShortTermWindow)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	log.Printf("[ai] service initialized (cache=%v ttl=%s task_detection=%v sentiment=%v memory=%v window=%d)",
		features.Cache, cache.TTL(), features.TaskDetection, features.Sentiment, features.Memory, manager.ShortTermWindow())

	return &Service{
		chain:    runnable,
		cache:    cache,
		memory:   manager,
		prompts:  NewPromptBuilder(),
		features: features,
	}, nil
}

// GenerateResponse produces a reply for req.Message. Cached replies are served
// for every task except emotional support. Provider failures come back as
// *GenerationError and never touch the cache.
func (s *Service) GenerateResponse(ctx context.Context, req Request) (Reply, error) {
	requestNo := s.countRequest()
	started := time.Now()

	task := TaskCasualChat
	if s.features.TaskDetection {
		task = DetectTaskType(req.Message, req.History)
	}
	stage := DetectStage(req.History, req.Message)

	log.Printf("[ai] request #%d task=%s stage=%s sentiment=%s", requestNo, task, stage, req.Sentiment)

	useCache := s.features.Cache && task != TaskEmotionalSupport
	var cacheKey string
	if useCache {
		cacheKey = memory.CacheKey(req.Message, string(req.Sentiment), string(task))
		if cached, ok := s.cache.Get(cacheKey); ok {
			s.countCache(true)
			return Reply{Text: cached, TaskType: task, Stage: stage, Cached: true}, nil
		}
		s.countCache(false)
	}

	formatted, summary := s.memory.PrepareContext(req.History, req.Message)

	system := s.prompts.Build(PromptInput{
		Style:         req.Style,
		Sentiment:     req.Sentiment,
		Task:          task,
		Stage:         stage,
		History:       formatted,
		Summary:       summary,
		EnableMemory:  s.features.Memory,
		SentimentTone: s.features.Sentiment,
	})

	response, err := s.chain.Invoke(ctx, s.buildChainInput(system, formatted, req),
		compose.WithChatModelOption(
			model.WithTemperature(Temperature(task)),
			model.WithMaxTokens(MaxTokens(task)),
		),
	)
	if err != nil {
		genErr := newGenerationError(err)
		log.Printf("[ai] request #%d failed: %v", requestNo, genErr)
		return Reply{TaskType: task, Stage: stage}, genErr
	}

	tokens := tokenUsage(response)
	s.countTokens(tokens)

	text := PostProcess(response.Content, req.Sentiment)
	if useCache && text != "" {
		s.cache.Put(cacheKey, text)
	}

	log.Printf("[ai] request #%d done in %s, length=%d tokens=%d", requestNo, time.Since(started).Round(time.Millisecond), len(text), tokens)
	return Reply{Text: text, TaskType: task, Stage: stage, TokensUsed: tokens}, nil
}

// Metrics returns a snapshot of the request and cache counters.
func (s *Service) Metrics() Metrics {
	s.stats.mu.Lock()
	m := Metrics{
		TotalRequests:   s.stats.requests,
		TotalTokensUsed: s.stats.tokens,
		CacheHits:       s.stats.hits,
		CacheMisses:     s.stats.misses,
	}
	s.stats.mu.Unlock()

	if m.TotalRequests > 0 {
		m.AvgTokensPerRequest = float64(m.TotalTokensUsed) / float64(m.TotalRequests)
	}
	if lookups := m.CacheHits + m.CacheMisses; lookups > 0 {
		m.CacheHitRate = float64(m.CacheHits) / float64(lookups)
	}
	m.CacheEntries = s.cache.Stats().Entries
	m.Timestamp = time.Now()
	return m
}

// ResetMetrics zeroes the counters; cached entries are kept.
func (s *Service) ResetMetrics() {
	s.stats.mu.Lock()
	s.stats.requests, s.stats.tokens, s.stats.hits, s.stats.misses = 0, 0, 0, 0
	s.stats.mu.Unlock()
	log.Println("[ai] metrics reset")
}

// ClearCache drops every cached reply.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// buildChainInput 的用户消息带上情感表情，与历史消息格式保持一致。
func (s *Service) buildChainInput(system string, formatted []memory.FormattedMessage, req Request) map[string]any {
	query := req.Message
	if req.Sentiment != "" {
		query = query + " " + memory.SentimentGlyph(req.Sentiment)
	}
	return map[string]any{
		"system":  system,
		"history": historyMessages(formatted),
		"query":   query,
	}
}

func historyMessages(formatted []memory.FormattedMessage) []*schema.Message {
	history := make([]*schema.Message, 0, len(formatted))
	for _, msg := range formatted {
		switch msg.Role {
		case "user":
			history = append(history, schema.UserMessage(msg.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

func tokenUsage(msg *schema.Message) int {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return 0
	}
	return msg.ResponseMeta.Usage.TotalTokens
}

func (s *Service) countRequest() int {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	s.stats.requests++
	return s.stats.requests
}

func (s *Service) countCache(hit bool) {
	s.stats.mu.Lock()
	if hit {
		s.stats.hits++
	} else {
		s.stats.misses++
	}
	s.stats.mu.Unlock()
}

func (s *Service) countTokens(n int) {
	s.stats.mu.Lock()
	s.stats.tokens += n
	s.stats.mu.Unlock()
}
