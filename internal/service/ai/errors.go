package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/zhouzirui/moodchat/backend/internal/llm"
)

// ErrorKind 对生成失败进行粗分类。
type ErrorKind string

const (
	ErrorConnection    ErrorKind = "connection"
	ErrorAuth          ErrorKind = "auth"
	ErrorRateLimit     ErrorKind = "rate_limit"
	ErrorContextLength ErrorKind = "context_length"
	ErrorUnknown       ErrorKind = "unknown"
)

// ErrNotConfigured is reported when no chat model credentials were supplied.
var ErrNotConfigured = errors.New("ai: chat model not configured")

var userMessages = map[ErrorKind]string{
	ErrorConnection:    "I'm having trouble connecting right now. Could you try again in a moment?",
	ErrorAuth:          "There seems to be a configuration issue. Please contact support if this persists.",
	ErrorRateLimit:     "I'm receiving a lot of requests right now. Please wait a moment and try again.",
	ErrorContextLength: "Our conversation has gotten quite long. Would you like to start fresh?",
	ErrorUnknown:       "I encountered an unexpected issue. Could you try rephrasing your message?",
}

// GenerationError wraps a provider failure with a message safe to show the user.
type GenerationError struct {
	Kind ErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate response (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// UserMessage returns the friendly text for this failure kind.
func (e *GenerationError) UserMessage() string {
	return userMessages[e.Kind]
}

// FallbackReply 返回任意错误对应的用户可读提示。
func FallbackReply(err error) string {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.UserMessage()
	}
	return userMessages[classify(err)]
}

func newGenerationError(err error) *GenerationError {
	return &GenerationError{Kind: classify(err), Err: err}
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, llm.ErrUnauthorized), errors.Is(err, ErrNotConfigured):
		return ErrorAuth
	case errors.Is(err, llm.ErrRateLimited):
		return ErrorRateLimit
	case errors.Is(err, llm.ErrContextLength):
		return ErrorContextLength
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ErrorConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorConnection
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "timeout"), strings.Contains(text, "connection"):
		return ErrorConnection
	case strings.Contains(text, "api key"), strings.Contains(text, "unauthorized"), strings.Contains(text, "authentication"):
		return ErrorAuth
	case strings.Contains(text, "rate limit"):
		return ErrorRateLimit
	case strings.Contains(text, "context"), strings.Contains(text, "token"):
		return ErrorContextLength
	default:
		return ErrorUnknown
	}
}
