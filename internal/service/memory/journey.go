package memory

import (
	"time"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
)

const (
	TrendImproving       = "improving"
	TrendStableDeclining = "stable/declining"

	statusNoData = "no_data"
)

// JourneyEntry is one scored user turn in the emotional journey.
type JourneyEntry struct {
	Sentiment     chat.Sentiment `json:"sentiment"`
	CompoundScore float64        `json:"compound_score"`
	Timestamp     time.Time      `json:"timestamp"`
}

// EmotionalSummary condenses a journey. Only Status is set when there is no data.
type EmotionalSummary struct {
	Status            string         `json:"status,omitempty"`
	CurrentSentiment  chat.Sentiment `json:"current_sentiment,omitempty"`
	DominantSentiment chat.Sentiment `json:"dominant_sentiment,omitempty"`
	SentimentTrend    string         `json:"sentiment_trend,omitempty"`
	AvgScore          float64        `json:"avg_score"`
	JourneyLength     int            `json:"journey_length"`
}

// NoData reports whether the summary is the empty-journey sentinel.
func (s EmotionalSummary) NoData() bool {
	return s.Status == statusNoData
}

// TrackJourney collects every user message labelled positive, negative or
// neutral, in history order. Unknown labels are skipped.
func TrackJourney(history []chat.Message) []JourneyEntry {
	journey := make([]JourneyEntry, 0, len(history))
	for _, msg := range history {
		if !msg.FromUser() || !msg.Sentiment.Known() {
			continue
		}
		journey = append(journey, JourneyEntry{
			Sentiment:     msg.Sentiment,
			CompoundScore: msg.Score(),
			Timestamp:     msg.Timestamp,
		})
	}
	return journey
}

// SummarizeJourney derives current/dominant sentiment, trend and mean score.
// The trend is deliberately two-way: anything that is not an improvement
// from the first to the last score is reported as stable/declining.
func SummarizeJourney(journey []JourneyEntry) EmotionalSummary {
	if len(journey) == 0 {
		return EmotionalSummary{Status: statusNoData}
	}

	var total float64
	for _, entry := range journey {
		total += entry.CompoundScore
	}

	first, last := journey[0], journey[len(journey)-1]
	trend := TrendStableDeclining
	if len(journey) >= 2 && last.CompoundScore > first.CompoundScore {
		trend = TrendImproving
	}

	return EmotionalSummary{
		CurrentSentiment:  last.Sentiment,
		DominantSentiment: dominantSentiment(journey),
		SentimentTrend:    trend,
		AvgScore:          total / float64(len(journey)),
		JourneyLength:     len(journey),
	}
}

// dominantSentiment is a stable mode: on a tie the label seen first wins.
func dominantSentiment(journey []JourneyEntry) chat.Sentiment {
	counts := make(map[chat.Sentiment]int, 3)
	order := make([]chat.Sentiment, 0, 3)
	for _, entry := range journey {
		if _, seen := counts[entry.Sentiment]; !seen {
			order = append(order, entry.Sentiment)
		}
		counts[entry.Sentiment]++
	}

	best := order[0]
	for _, label := range order[1:] {
		if counts[label] > counts[best] {
			best = label
		}
	}
	return best
}
