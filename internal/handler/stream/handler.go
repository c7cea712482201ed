package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodchat/backend/internal/middleware"
	chatService "github.com/zhouzirui/moodchat/backend/internal/service/chat"
	"github.com/zhouzirui/moodchat/backend/pkg/utils"
)

// Handler delivers a message exchange as Server-Sent Events
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a new stream handler
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the stream endpoint under /conversations.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/{conversationID}/stream", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event          string  `json:"event"`
	ConversationID string  `json:"conversation_id,omitempty"`
	MessageID      string  `json:"message_id,omitempty"`
	Content        string  `json:"content,omitempty"`
	Sentiment      string  `json:"sentiment,omitempty"`
	Score          float64 `json:"score,omitempty"`
	TaskType       string  `json:"task_type,omitempty"`
	Finished       bool    `json:"finished,omitempty"`
	Error          string  `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	userMessage := r.URL.Query().Get("message")
	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, conversationID, userMessage); err != nil {
		log.Printf("[stream] error handling request: %v", err)
	}
}

// HandleStreamRequest processes one message and streams its lifecycle
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, conversationID, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	id, _ := middleware.IdentityFrom(ctx)
	if _, err := h.chatSvc.GetConversation(ctx, id.UserID, conversationID); err != nil {
		switch {
		case errors.Is(err, chatService.ErrConversationNotFound):
			utils.RespondError(w, http.StatusNotFound, "Conversation not found")
		case errors.Is(err, chatService.ErrForbidden):
			utils.RespondError(w, http.StatusForbidden, "Unauthorized access to conversation")
		default:
			utils.RespondError(w, http.StatusInternalServerError, "Failed to retrieve conversation")
		}
		return err
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	h.send(w, flusher, StreamResponse{Event: "start", ConversationID: conversationID})

	result, err := h.chatSvc.SendMessage(ctx, chatService.SendInput{
		ConversationID: conversationID,
		UserID:         id.UserID,
		Text:           userMessage,
	})
	if err != nil {
		h.send(w, flusher, StreamResponse{Event: "error", ConversationID: conversationID, Error: "Failed to process message"})
		return err
	}

	h.send(w, flusher, StreamResponse{
		Event:          "sentiment",
		ConversationID: conversationID,
		MessageID:      result.UserMessage.ID,
		Sentiment:      string(result.Sentiment.Sentiment),
		Score:          result.Sentiment.Score,
	})
	h.send(w, flusher, StreamResponse{
		Event:          "message",
		ConversationID: conversationID,
		MessageID:      result.BotMessage.ID,
		Content:        result.BotMessage.Text,
		TaskType:       string(result.TaskType),
	})
	h.send(w, flusher, StreamResponse{Event: "end", ConversationID: conversationID, Finished: true})
	return nil
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, resp StreamResponse) {
	if err := utils.SendSSEEvent(w, flusher, resp.Event, resp); err != nil {
		log.Printf("[stream] failed to send %s event: %v", resp.Event, err)
	}
}
