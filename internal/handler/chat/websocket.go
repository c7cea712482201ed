package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/moodchat/backend/internal/middleware"
	chatService "github.com/zhouzirui/moodchat/backend/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second

	// 每个连接最多排队的待处理消息
	inboxSize = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 文本消息，可附带图片
type TextMessage struct {
	Text  string `json:"text"`
	Image string `json:"image"`
	Style string `json:"style"`
}

type outgoingMessage struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}

// wsConn 串行化写操作，gorilla 连接不支持并发写。
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(msg outgoingMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msg.Type, err)
	}
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	if _, err := h.chatSvc.GetConversation(r.Context(), id.UserID, conversationID); err != nil {
		respondServiceError(w, err, "Failed to open conversation")
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	log.Printf("[websocket] new connection for conversation: %s", conversationID)

	ctx, cancel := context.WithCancel(r.Context())

	// 生成回复可能很慢，放到单独的 goroutine 顺序处理，读循环继续响应 pong
	inbox := make(chan TextMessage, inboxSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for text := range inbox {
			h.handleTextMessage(ctx, conn, id.UserID, conversationID, text)
		}
	}()
	defer func() {
		cancel()
		close(inbox)
		wg.Wait()
	}()

	raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go pingLoop(ctx, conn)

	conn.write(outgoingMessage{
		Type:           "connected",
		ConversationID: conversationID,
		Timestamp:      time.Now().Unix(),
	})

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		raw.SetReadDeadline(time.Now().Add(pongWait))

		handleMessage(conn, conversationID, &msg, inbox)
	}
}

func handleMessage(conn *wsConn, conversationID string, msg *inboundMessage, inbox chan<- TextMessage) {
	switch msg.Type {
	case "message":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			sendError(conn, conversationID, "invalid message payload")
			return
		}
		select {
		case inbox <- text:
		default:
			sendError(conn, conversationID, "Too many pending messages")
		}
	case "ping":
		conn.write(outgoingMessage{Type: "pong", Timestamp: time.Now().Unix()})
	default:
		sendError(conn, conversationID, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) handleTextMessage(ctx context.Context, conn *wsConn, userID, conversationID string, text TextMessage) {
	result, err := h.chatSvc.SendMessage(ctx, chatService.SendInput{
		ConversationID: conversationID,
		UserID:         userID,
		Text:           text.Text,
		Image:          text.Image,
		Style:          text.Style,
	})
	if err != nil {
		switch {
		case errors.Is(err, chatService.ErrEmptyMessage):
			sendError(conn, conversationID, "Message cannot be empty")
		case errors.Is(err, chatService.ErrConversationNotFound):
			sendError(conn, conversationID, "Conversation not found")
		default:
			log.Printf("[websocket] send message failed: %v", err)
			sendError(conn, conversationID, "Failed to process message")
		}
		return
	}

	conn.write(outgoingMessage{
		Type:           "reply",
		ConversationID: conversationID,
		Data: sendMessageResponse{
			UserMessageID:      result.UserMessage.ID,
			UserMessage:        result.UserMessage.Text,
			UserSentiment:      string(result.Sentiment.Sentiment),
			UserSentimentScore: result.Sentiment.Score,
			BotMessageID:       result.BotMessage.ID,
			BotMessage:         result.BotMessage.Text,
			TaskType:           string(result.TaskType),
			Cached:             result.Cached,
			Title:              result.Title,
		},
		Timestamp: time.Now().Unix(),
	})
}

func sendError(conn *wsConn, conversationID, message string) {
	conn.write(outgoingMessage{
		Type:           "error",
		ConversationID: conversationID,
		Data:           map[string]string{"message": message},
		Timestamp:      time.Now().Unix(),
	})
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
