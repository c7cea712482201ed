// Package sentiment scores user text with the VADER lexicon.
package sentiment

import (
	"fmt"
	"math"

	"github.com/jonreiter/govader"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
)

// 复合分数阈值，与 VADER 推荐值一致。
const (
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// Result 是单条消息的情感分析结果。
type Result struct {
	Sentiment  chat.Sentiment `json:"sentiment"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
}

// Distribution counts user messages per label.
type Distribution struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// ConversationSummary aggregates the sentiment of a conversation's user messages.
type ConversationSummary struct {
	Overall      chat.Sentiment `json:"overall_sentiment"`
	Explanation  string         `json:"explanation"`
	Distribution Distribution   `json:"sentiment_distribution"`
	AverageScore float64        `json:"average_score"`
}

// Analyzer wraps a VADER intensity analyzer.
type Analyzer struct {
	vader *govader.SentimentIntensityAnalyzer
}

// NewAnalyzer loads the VADER lexicon.
func NewAnalyzer() *Analyzer {
	return &Analyzer{vader: govader.NewSentimentIntensityAnalyzer()}
}

// Label maps a compound score to a polarity label.
func Label(compound float64) chat.Sentiment {
	switch {
	case compound >= PositiveThreshold:
		return chat.Positive
	case compound <= NegativeThreshold:
		return chat.Negative
	default:
		return chat.Neutral
	}
}

// AnalyzeMessage scores a single text. Confidence is the magnitude of the compound score.
func (a *Analyzer) AnalyzeMessage(text string) Result {
	compound := a.vader.PolarityScores(text).Compound
	return Result{
		Sentiment:  Label(compound),
		Score:      compound,
		Confidence: math.Abs(compound),
	}
}

// AnalyzeConversation rescores every user message and classifies the mean.
func (a *Analyzer) AnalyzeConversation(messages []chat.Message) ConversationSummary {
	var (
		dist  Distribution
		total float64
		count int
	)
	for _, msg := range messages {
		if !msg.FromUser() {
			continue
		}
		score := a.AnalyzeMessage(msg.Text).Score
		total += score
		count++
		switch Label(score) {
		case chat.Positive:
			dist.Positive++
		case chat.Negative:
			dist.Negative++
		default:
			dist.Neutral++
		}
	}

	if count == 0 {
		return ConversationSummary{Explanation: "No user messages to analyze"}
	}

	avg := total / float64(count)
	overall := Label(avg)
	return ConversationSummary{
		Overall:      overall,
		Explanation:  fmt.Sprintf("Overall %s sentiment across %d messages", overall, count),
		Distribution: dist,
		AverageScore: avg,
	}
}
