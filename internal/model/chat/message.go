package chat

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Sentiment is the polarity label attached to user messages.
type Sentiment string

const (
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
	Neutral  Sentiment = "neutral"
)

// Known reports whether the label is one of the three polarity values.
func (s Sentiment) Known() bool {
	switch s {
	case Positive, Negative, Neutral:
		return true
	default:
		return false
	}
}

// Message is a single persisted conversation turn. Bot messages carry no sentiment.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"message_text"`
	Sentiment      Sentiment `json:"sentiment,omitempty"`
	CompoundScore  *float64  `json:"sentiment_score,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// FromUser reports whether the message was authored by the user.
func (m Message) FromUser() bool {
	return m.Sender == SenderUser
}

// Score returns the compound score, or 0 when the message was never scored.
func (m Message) Score() float64 {
	if m.CompoundScore == nil {
		return 0
	}
	return *m.CompoundScore
}
