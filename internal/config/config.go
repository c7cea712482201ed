package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/moodchat/backend/internal/llm"
)

// 支持的大模型供应商。
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	AI        AIConfig
	Vision    VisionConfig
	Auth      AuthConfig
	Mail      MailConfig
	RateLimit RateLimitConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	vision, err := loadVisionConfig(ai)
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	mail, err := loadMailConfig(server.Development)
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Database:  loadDatabaseConfig(),
		AI:        ai,
		Vision:    vision,
		Auth:      auth,
		Mail:      mail,
		RateLimit: rateLimit,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	FrontendURL string
	Development bool
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	env := getEnvOrDefault("APP_ENV", os.Getenv("FLASK_ENV"))
	cfg := ServerConfig{
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		Development: strings.EqualFold(strings.TrimSpace(env), "development"),
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// DatabaseConfig 选择 PostgreSQL（DATABASE_URL）或本地 SQLite 文件。
type DatabaseConfig struct {
	URL  string
	Path string
}

// Postgres reports whether DATABASE_URL points at a PostgreSQL server.
func (c DatabaseConfig) Postgres() bool {
	return strings.HasPrefix(c.URL, "postgres://") || strings.HasPrefix(c.URL, "postgresql://")
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Path: getEnvOrDefault("DATABASE_PATH", "./chatbot.db"),
	}
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider         string
	APIKey           string
	BaseURL          string
	Model            string
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Timeout          time.Duration
	MaxRetries       int

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string

	EnableCache         bool
	EnableTaskDetection bool
	EnableSentiment     bool
	EnableMemory        bool
	CacheTTL            time.Duration
	MemoryWindow        int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	default:
		return c.APIKey != ""
	}
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("LLM credentials missing for provider %q: set GROQ_API_KEY (or LLM_API_KEY), or ARK_API_KEY + ARK_MODEL", c.Provider)
	}

	topP := float32(c.TopP)
	switch c.Provider {
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:   c.ArkBaseURL,
			Region:    c.ArkRegion,
			APIKey:    c.ArkAPIKey,
			AccessKey: c.ArkAccessKey,
			SecretKey: c.ArkSecretKey,
			Model:     c.ArkModel,
			TopP:      &topP,
		})
	default:
		frequency, presence := c.FrequencyPenalty, c.PresencePenalty
		return llm.NewOpenAIChatModel(ctx, llm.OpenAIConfig{
			BaseURL:          c.BaseURL,
			APIKey:           c.APIKey,
			Model:            c.Model,
			TopP:             &topP,
			FrequencyPenalty: &frequency,
			PresencePenalty:  &presence,
			Timeout:          c.Timeout,
			MaxRetries:       c.MaxRetries,
		})
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderOpenAI))
	if provider != ProviderOpenAI && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	topP, err := parseFloatEnv("LLM_TOP_P", 0.9)
	if err != nil {
		return AIConfig{}, err
	}
	frequency, err := parseFloatEnv("LLM_FREQUENCY_PENALTY", 0.3)
	if err != nil {
		return AIConfig{}, err
	}
	presence, err := parseFloatEnv("LLM_PRESENCE_PENALTY", 0.2)
	if err != nil {
		return AIConfig{}, err
	}

	timeout := llm.DefaultTimeout
	if seconds, err := parseOptionalIntEnv("LLM_TIMEOUT_SECONDS"); err != nil {
		return AIConfig{}, err
	} else if seconds != nil && *seconds > 0 {
		timeout = time.Duration(*seconds) * time.Second
	}

	maxRetries := llm.DefaultMaxRetries
	if retries, err := parseOptionalIntEnv("LLM_MAX_RETRIES"); err != nil {
		return AIConfig{}, err
	} else if retries != nil && *retries >= 0 {
		maxRetries = *retries
	}

	var enableCache, enableTask, enableSentiment, enableMemory bool
	for _, flag := range []struct {
		key    string
		target *bool
	}{
		{"LLM_ENABLE_CACHE", &enableCache},
		{"LLM_ENABLE_TASK_DETECTION", &enableTask},
		{"LLM_ENABLE_SENTIMENT", &enableSentiment},
		{"LLM_ENABLE_MEMORY", &enableMemory},
	} {
		val, err := parseBoolEnv(flag.key, true)
		if err != nil {
			return AIConfig{}, err
		}
		*flag.target = val
	}

	cacheTTL := time.Hour
	if seconds, err := parseOptionalIntEnv("CACHE_TTL_SECONDS"); err != nil {
		return AIConfig{}, err
	} else if seconds != nil && *seconds > 0 {
		cacheTTL = time.Duration(*seconds) * time.Second
	}

	window := 10
	if override, err := parseOptionalIntEnv("MEMORY_WINDOW"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			window = 1
		} else {
			window = *override
		}
	}

	apiKey := strings.TrimSpace(os.Getenv("GROQ_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	}

	return AIConfig{
		Provider:            provider,
		APIKey:              apiKey,
		BaseURL:             getEnvOrDefault("LLM_BASE_URL", llm.DefaultBaseURL),
		Model:               getEnvOrDefault("LLM_MODEL", llm.DefaultModel),
		TopP:                topP,
		FrequencyPenalty:    frequency,
		PresencePenalty:     presence,
		Timeout:             timeout,
		MaxRetries:          maxRetries,
		ArkAPIKey:           strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:        strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:        strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:            strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:          getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:           getEnvOrDefault("ARK_REGION", "cn-beijing"),
		EnableCache:         enableCache,
		EnableTaskDetection: enableTask,
		EnableSentiment:     enableSentiment,
		EnableMemory:        enableMemory,
		CacheTTL:            cacheTTL,
		MemoryWindow:        window,
	}, nil
}

// VisionConfig 描述图片理解模型配置，复用 OpenAI 兼容端点。
type VisionConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func loadVisionConfig(ai AIConfig) (VisionConfig, error) {
	enabled, err := parseBoolEnv("VISION_ENABLED", true)
	if err != nil {
		return VisionConfig{}, err
	}
	return VisionConfig{
		Enabled: enabled && ai.APIKey != "",
		APIKey:  ai.APIKey,
		BaseURL: ai.BaseURL,
		Model:   getEnvOrDefault("VISION_MODEL", "meta-llama/llama-4-scout-17b-16e-instruct"),
		Timeout: ai.Timeout,
	}, nil
}

// AuthConfig 描述 JWT 签发配置。
type AuthConfig struct {
	JWTSecret   string
	TokenTTL    time.Duration
	OTPLifetime time.Duration
}

func loadAuthConfig() (AuthConfig, error) {
	raw := getEnvOrDefault("JWT_EXPIRES_IN", "7d")
	ttl, err := ParseExpiry(raw)
	if err != nil {
		return AuthConfig{}, fmt.Errorf("invalid JWT_EXPIRES_IN value %q: %w", raw, err)
	}
	return AuthConfig{
		JWTSecret:   getEnvOrDefault("JWT_SECRET", "your-secret-key-change-in-production"),
		TokenTTL:    ttl,
		OTPLifetime: 10 * time.Minute,
	}, nil
}

// ParseExpiry 支持 "7d"、"24h"、"30m" 或纯秒数。
func ParseExpiry(raw string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}

	unit := time.Second
	switch value[len(value)-1] {
	case 'd':
		unit = 24 * time.Hour
		value = value[:len(value)-1]
	case 'h':
		unit = time.Hour
		value = value[:len(value)-1]
	case 'm':
		unit = time.Minute
		value = value[:len(value)-1]
	case 's':
		value = value[:len(value)-1]
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return time.Duration(n) * unit, nil
}

// MailConfig 描述 OTP 邮件的 SMTP 配置；Host 为空时只打印日志。
type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	Sender      string
	Development bool
}

// Enabled 表示是否配置了 SMTP。
func (c MailConfig) Enabled() bool {
	return c.Host != "" && c.Sender != ""
}

func loadMailConfig(development bool) (MailConfig, error) {
	port := 587
	if override, err := parseOptionalIntEnv("SMTP_PORT"); err != nil {
		return MailConfig{}, err
	} else if override != nil {
		port = *override
	}

	username := strings.TrimSpace(os.Getenv("SMTP_USER"))
	return MailConfig{
		Host:        strings.TrimSpace(os.Getenv("SMTP_HOST")),
		Port:        port,
		Username:    username,
		Password:    os.Getenv("SMTP_PASSWORD"),
		Sender:      getEnvOrDefault("EMAIL_SENDER", username),
		Development: development,
	}, nil
}

// RateLimitConfig 描述按 IP 的限流窗口。
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	requests := 60
	if override, err := parseOptionalIntEnv("RATE_LIMIT_REQUESTS"); err != nil {
		return RateLimitConfig{}, err
	} else if override != nil && *override > 0 {
		requests = *override
	}

	window := 60 * time.Second
	if seconds, err := parseOptionalIntEnv("RATE_LIMIT_WINDOW_SECONDS"); err != nil {
		return RateLimitConfig{}, err
	} else if seconds != nil && *seconds > 0 {
		window = time.Duration(*seconds) * time.Second
	}

	return RateLimitConfig{Requests: requests, Window: window}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	val, err := parseOptionalFloatEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
