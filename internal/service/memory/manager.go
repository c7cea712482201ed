// Package memory turns an unbounded conversation history into bounded prompt
// input: a verbatim short-term window, a textual summary of older turns and
// the user's emotional journey. It also hosts the response cache used around
// the generation call.
package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
)

// DefaultShortTermWindow is the number of recent messages kept verbatim.
const DefaultShortTermWindow = 10

const maxTopics = 3

// topicVocabulary is scanned in order, so extracted topics are deterministic.
var topicVocabulary = []string{
	"breakup", "relationship", "sad", "happy", "anxious",
	"work", "family", "friend", "love", "hurt", "pain",
}

var sentimentGlyphs = map[chat.Sentiment]string{
	chat.Positive: "😊",
	chat.Negative: "😞",
	chat.Neutral:  "😐",
}

// FormattedMessage is a history turn shaped for prompt construction.
type FormattedMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Sentiment chat.Sentiment `json:"sentiment,omitempty"`
}

// MemorySummary is request-scoped output of PrepareContext. The zero value
// means there was no history at all.
type MemorySummary struct {
	OlderSummary  string           `json:"older_conversation_summary,omitempty"`
	Journey       []JourneyEntry   `json:"-"`
	Emotional     EmotionalSummary `json:"emotional_journey"`
	TotalMessages int              `json:"total_messages"`
}

// HasOlderSummary reports whether turns beyond the short-term window were summarized.
func (s MemorySummary) HasOlderSummary() bool {
	return s.OlderSummary != ""
}

// Manager prepares conversation context. It holds configuration only, so a
// single instance can serve concurrent requests for different conversations.
type Manager struct {
	shortTermWindow int
}

// NewManager returns a Manager keeping window recent messages verbatim.
func NewManager(window int) *Manager {
	if window <= 0 {
		window = DefaultShortTermWindow
	}
	return &Manager{shortTermWindow: window}
}

// ShortTermWindow returns the configured verbatim window size.
func (m *Manager) ShortTermWindow() int {
	return m.shortTermWindow
}

// PrepareContext splits history into a verbatim recent window and a summarized
// older part, and computes the emotional journey. The current message does
// not influence the result.
func (m *Manager) PrepareContext(history []chat.Message, _ string) ([]FormattedMessage, MemorySummary) {
	if len(history) == 0 {
		return []FormattedMessage{}, MemorySummary{}
	}

	journey := TrackJourney(history)

	split := len(history) - m.shortTermWindow
	if split < 0 {
		split = 0
	}
	older, recent := history[:split], history[split:]

	var olderSummary string
	if len(older) > 0 {
		olderSummary = summarizeOlder(older)
	}

	formatted := make([]FormattedMessage, 0, len(recent))
	for _, msg := range recent {
		formatted = append(formatted, formatMessage(msg))
	}

	return formatted, MemorySummary{
		OlderSummary:  olderSummary,
		Journey:       journey,
		Emotional:     SummarizeJourney(journey),
		TotalMessages: len(history),
	}
}

// SentimentGlyph maps a sentiment to the glyph appended to user turns; unknown labels read as neutral.
func SentimentGlyph(sentiment chat.Sentiment) string {
	if glyph, ok := sentimentGlyphs[sentiment]; ok {
		return glyph
	}
	return sentimentGlyphs[chat.Neutral]
}

func formatMessage(msg chat.Message) FormattedMessage {
	role := "assistant"
	content := msg.Text
	if msg.FromUser() {
		role = "user"
		if msg.Sentiment.Known() {
			content = content + " " + SentimentGlyph(msg.Sentiment)
		}
	}
	return FormattedMessage{
		Role:      role,
		Content:   content,
		Timestamp: msg.Timestamp,
		Sentiment: msg.Sentiment,
	}
}

func summarizeOlder(older []chat.Message) string {
	userMessages := make([]chat.Message, 0, len(older))
	var negatives, positives int
	for _, msg := range older {
		if !msg.FromUser() {
			continue
		}
		userMessages = append(userMessages, msg)
		switch msg.Sentiment {
		case chat.Negative:
			negatives++
		case chat.Positive:
			positives++
		}
	}

	topics := extractTopics(userMessages)
	mentioned := "general conversation"
	if len(topics) > 0 {
		mentioned = strings.Join(topics, ", ")
	}

	parts := []string{fmt.Sprintf("Earlier in conversation (%d messages):", len(older))}
	switch {
	case negatives > positives:
		parts = append(parts, fmt.Sprintf("User was experiencing emotional difficulty (mentioned: %s)", mentioned))
	case positives > 0:
		parts = append(parts, "User had positive interactions")
	}
	if len(topics) > 0 {
		parts = append(parts, "Key topics discussed: "+strings.Join(topics, ", "))
	}
	return strings.Join(parts, " ")
}

func extractTopics(messages []chat.Message) []string {
	var topics []string
	for _, keyword := range topicVocabulary {
		for _, msg := range messages {
			if strings.Contains(strings.ToLower(msg.Text), keyword) {
				topics = append(topics, keyword)
				break
			}
		}
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}
