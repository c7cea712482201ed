package chat

import "time"

// Conversation groups the messages of one chat thread owned by a user.
type Conversation struct {
	ID                   string    `json:"conversation_id"`
	UserID               string    `json:"user_id"`
	Title                string    `json:"title,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	OverallSentiment     Sentiment `json:"overall_sentiment,omitempty"`
	SentimentExplanation string    `json:"sentiment_explanation,omitempty"`
	MessageCount         int       `json:"message_count"`
	Messages             []Message `json:"messages,omitempty"`
}

// TitleFrom derives a conversation title from the first user message.
func TitleFrom(text string) string {
	const maxRunes = 50
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}
