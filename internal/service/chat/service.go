package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/moodchat/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
	"github.com/zhouzirui/moodchat/backend/internal/service/ai"
	"github.com/zhouzirui/moodchat/backend/internal/service/vision"
	"github.com/zhouzirui/moodchat/backend/internal/store"
)

// DefaultImagePrompt replaces an empty message that carries an image.
const DefaultImagePrompt = "What's in this image?"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrForbidden            = errors.New("unauthorized access to conversation")
	ErrEmptyMessage         = errors.New("message cannot be empty")
)

// Repository is the persistence the service depends on.
type Repository interface {
	CreateConversation(ctx context.Context, conv *chat.Conversation) error
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	UpdateConversationTitle(ctx context.Context, id, title string) error
	SaveConversationSentiment(ctx context.Context, id string, overall chat.Sentiment, explanation string) error
	SaveMessage(ctx context.Context, msg *chat.Message) error
}

// Responder generates bot replies.
type Responder interface {
	GenerateResponse(ctx context.Context, req ai.Request) (ai.Reply, error)
}

// ImageAnalyzer answers questions about an attached image.
type ImageAnalyzer interface {
	Enabled() bool
	AnalyzeWithContext(ctx context.Context, imageData, userMessage string, history []chat.Message) (string, error)
}

// SentimentAnalyzer scores user text.
type SentimentAnalyzer interface {
	AnalyzeMessage(text string) sentiment.Result
	AnalyzeConversation(messages []chat.Message) sentiment.ConversationSummary
}

// SendInput is one inbound user turn.
type SendInput struct {
	ConversationID string
	UserID         string
	Text           string
	Image          string
	Style          string
}

// SendResult carries both persisted turns of an exchange.
type SendResult struct {
	UserMessage chat.Message     `json:"user_message"`
	BotMessage  chat.Message     `json:"bot_message"`
	Sentiment   sentiment.Result `json:"sentiment"`
	TaskType    ai.TaskType      `json:"task_type,omitempty"`
	Cached      bool             `json:"cached"`
	Title       string           `json:"title,omitempty"`
}

// SentimentReport is the aggregate view of a conversation's mood.
type SentimentReport struct {
	sentiment.ConversationSummary
	Messages []MessageSentiment `json:"message_sentiments"`
}

// MessageSentiment is the per-message slice of a SentimentReport.
type MessageSentiment struct {
	MessageID string         `json:"message_id"`
	Text      string         `json:"message_text"`
	Sentiment chat.Sentiment `json:"sentiment"`
	Score     *float64       `json:"sentiment_score"`
}

// Service encapsulates conversation state management.
type Service struct {
	repo      Repository
	responder Responder
	vision    ImageAnalyzer
	analyzer  SentimentAnalyzer
	now       func() time.Time
}

// NewService wires the conversation service. responder and imageAnalyzer may
// be nil when the corresponding provider is not configured.
func NewService(repo Repository, responder Responder, imageAnalyzer ImageAnalyzer, analyzer SentimentAnalyzer) *Service {
	return &Service{
		repo:      repo,
		responder: responder,
		vision:    imageAnalyzer,
		analyzer:  analyzer,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// CreateConversation provisions an empty conversation owned by userID.
func (s *Service) CreateConversation(ctx context.Context, userID string) (chat.Conversation, error) {
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: s.now(),
		Messages:  []chat.Message{},
	}
	if err := s.repo.CreateConversation(ctx, &conv); err != nil {
		return chat.Conversation{}, err
	}
	log.Printf("[chat] conversation %s created for user %s", conv.ID, userID)
	return conv, nil
}

// ListConversations returns the user's conversations, newest first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// GetConversation loads a conversation the user owns.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (*chat.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return conv, nil
}

// DeleteConversation removes a conversation the user owns.
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	log.Printf("[chat] conversation %s deleted", conversationID)
	return nil
}

// ConversationSentiment aggregates the user messages and stores the result.
func (s *Service) ConversationSentiment(ctx context.Context, userID, conversationID string) (SentimentReport, error) {
	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return SentimentReport{}, err
	}

	summary := s.analyzer.AnalyzeConversation(conv.Messages)
	if err := s.repo.SaveConversationSentiment(ctx, conversationID, summary.Overall, summary.Explanation); err != nil {
		return SentimentReport{}, err
	}

	report := SentimentReport{ConversationSummary: summary, Messages: []MessageSentiment{}}
	for _, msg := range conv.Messages {
		if !msg.FromUser() {
			continue
		}
		report.Messages = append(report.Messages, MessageSentiment{
			MessageID: msg.ID,
			Text:      msg.Text,
			Sentiment: msg.Sentiment,
			Score:     msg.CompoundScore,
		})
	}
	return report, nil
}

// SendMessage stores the user turn, generates a reply and stores it.
// Generation failures still produce a persisted bot turn carrying a
// user-facing fallback text; the error is logged, not returned.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (SendResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		if in.Image == "" {
			return SendResult{}, ErrEmptyMessage
		}
		text = DefaultImagePrompt
	}

	conv, err := s.GetConversation(ctx, in.UserID, in.ConversationID)
	if err != nil {
		return SendResult{}, err
	}
	history := conv.Messages

	scored := s.analyzer.AnalyzeMessage(text)
	score := scored.Score
	userMsg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Sender:         chat.SenderUser,
		Text:           text,
		Sentiment:      scored.Sentiment,
		CompoundScore:  &score,
		Timestamp:      s.now(),
	}
	if err := s.repo.SaveMessage(ctx, &userMsg); err != nil {
		return SendResult{}, err
	}

	result := SendResult{UserMessage: userMsg, Sentiment: scored}

	if len(history) == 0 {
		result.Title = chat.TitleFrom(text)
		if err := s.repo.UpdateConversationTitle(ctx, conv.ID, result.Title); err != nil {
			log.Printf("[chat] failed to set title for %s: %v", conv.ID, err)
		}
	}

	replyText := s.reply(ctx, in, text, history, scored.Sentiment, &result)

	botMsg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Sender:         chat.SenderBot,
		Text:           replyText,
		Timestamp:      s.now(),
	}
	// 同一时间戳会打乱排序，机器人消息必须晚于用户消息。
	if !botMsg.Timestamp.After(userMsg.Timestamp) {
		botMsg.Timestamp = userMsg.Timestamp.Add(time.Microsecond)
	}
	if err := s.repo.SaveMessage(ctx, &botMsg); err != nil {
		return SendResult{}, fmt.Errorf("failed to save reply: %w", err)
	}

	result.BotMessage = botMsg
	return result, nil
}

func (s *Service) reply(ctx context.Context, in SendInput, text string, history []chat.Message, mood chat.Sentiment, result *SendResult) string {
	if in.Image != "" && s.vision != nil && s.vision.Enabled() {
		analysis, err := s.vision.AnalyzeWithContext(ctx, in.Image, text, history)
		if err != nil {
			log.Printf("[chat] vision analysis failed for %s: %v", in.ConversationID, err)
		}
		return vision.ReplyPrefix + analysis
	}

	if s.responder == nil {
		return ai.FallbackReply(ai.ErrNotConfigured)
	}

	reply, err := s.responder.GenerateResponse(ctx, ai.Request{
		Message:   text,
		History:   history,
		Sentiment: mood,
		Style:     in.Style,
		UserID:    in.UserID,
	})
	result.TaskType = reply.TaskType
	if err != nil {
		log.Printf("[chat] generation failed for %s: %v", in.ConversationID, err)
		return ai.FallbackReply(err)
	}
	result.Cached = reply.Cached
	return reply.Text
}
