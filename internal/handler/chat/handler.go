package chat

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodchat/backend/internal/middleware"
	chatService "github.com/zhouzirui/moodchat/backend/internal/service/chat"
	"github.com/zhouzirui/moodchat/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关的路由，挂载在 /conversations 下，调用方负责鉴权
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleCreateConversation)
	r.Get("/", h.handleListConversations)
	r.Get("/{conversationID}", h.handleGetConversation)
	r.Delete("/{conversationID}", h.handleDeleteConversation)
	r.Post("/{conversationID}/messages", h.handleSendMessage)
	r.Get("/{conversationID}/sentiment", h.handleSentiment)
	r.Get("/{conversationID}/ws", h.handleWebSocket)
}

type sendMessageRequest struct {
	Message *string `json:"message"`
	Image   string  `json:"image"`
	Style   string  `json:"style"`
}

type sendMessageResponse struct {
	UserMessageID      string  `json:"user_message_id"`
	UserMessage        string  `json:"user_message"`
	UserSentiment      string  `json:"user_sentiment"`
	UserSentimentScore float64 `json:"user_sentiment_score"`
	BotMessageID       string  `json:"bot_message_id"`
	BotMessage         string  `json:"bot_message"`
	TaskType           string  `json:"task_type,omitempty"`
	Cached             bool    `json:"cached"`
	Title              string  `json:"title,omitempty"`
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	conv, err := h.chatSvc.CreateConversation(r.Context(), id.UserID)
	if err != nil {
		log.Printf("[chat] create conversation failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"conversation_id": conv.ID,
		"created_at":      conv.CreatedAt,
	})
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	conversations, err := h.chatSvc.ListConversations(r.Context(), id.UserID)
	if err != nil {
		log.Printf("[chat] list conversations failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to retrieve conversations")
		return
	}
	utils.RespondJSON(w, http.StatusOK, conversations)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	conv, err := h.chatSvc.GetConversation(r.Context(), id.UserID, chi.URLParam(r, "conversationID"))
	if err != nil {
		respondServiceError(w, err, "Failed to retrieve conversation")
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	if err := h.chatSvc.DeleteConversation(r.Context(), id.UserID, chi.URLParam(r, "conversationID")); err != nil {
		respondServiceError(w, err, "Failed to delete conversation")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Conversation deleted successfully",
	})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	var payload sendMessageRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Request must be JSON")
		return
	}
	if payload.Message == nil {
		utils.RespondError(w, http.StatusBadRequest, "Missing required field: message")
		return
	}

	result, err := h.chatSvc.SendMessage(r.Context(), chatService.SendInput{
		ConversationID: chi.URLParam(r, "conversationID"),
		UserID:         id.UserID,
		Text:           *payload.Message,
		Image:          payload.Image,
		Style:          payload.Style,
	})
	if err != nil {
		respondServiceError(w, err, "Failed to process message")
		return
	}

	utils.RespondJSON(w, http.StatusOK, sendMessageResponse{
		UserMessageID:      result.UserMessage.ID,
		UserMessage:        result.UserMessage.Text,
		UserSentiment:      string(result.Sentiment.Sentiment),
		UserSentimentScore: result.Sentiment.Score,
		BotMessageID:       result.BotMessage.ID,
		BotMessage:         result.BotMessage.Text,
		TaskType:           string(result.TaskType),
		Cached:             result.Cached,
		Title:              result.Title,
	})
}

func (h *Handler) handleSentiment(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	report, err := h.chatSvc.ConversationSentiment(r.Context(), id.UserID, chi.URLParam(r, "conversationID"))
	if err != nil {
		respondServiceError(w, err, "Failed to analyze conversation sentiment")
		return
	}
	utils.RespondJSON(w, http.StatusOK, report)
}

// respondServiceError maps service sentinels to status codes.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, chatService.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, chatService.ErrForbidden):
		utils.RespondError(w, http.StatusForbidden, "Unauthorized access to conversation")
	case errors.Is(err, chatService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, "Message cannot be empty")
	default:
		log.Printf("[chat] %s: %v", fallback, err)
		utils.RespondError(w, http.StatusInternalServerError, fallback)
	}
}
