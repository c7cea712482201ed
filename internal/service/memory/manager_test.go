package memory_test

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
	"github.com/zhouzirui/moodchat/backend/internal/service/memory"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func score(v float64) *float64 { return &v }

func userMsg(i int, text string, sentiment chat.Sentiment, compound float64) chat.Message {
	return chat.Message{
		ID:            fmt.Sprintf("m%d", i),
		Sender:        chat.SenderUser,
		Text:          text,
		Sentiment:     sentiment,
		CompoundScore: score(compound),
		Timestamp:     baseTime.Add(time.Duration(i) * time.Minute),
	}
}

func botMsg(i int, text string) chat.Message {
	return chat.Message{
		ID:        fmt.Sprintf("m%d", i),
		Sender:    chat.SenderBot,
		Text:      text,
		Timestamp: baseTime.Add(time.Duration(i) * time.Minute),
	}
}

func alternating(n int) []chat.Message {
	history := make([]chat.Message, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			history = append(history, userMsg(i, "hello there", chat.Neutral, 0))
		} else {
			history = append(history, botMsg(i, "hi"))
		}
	}
	return history
}

func TestPrepareContextEmptyHistory(t *testing.T) {
	mgr := memory.NewManager(10)
	formatted, summary := mgr.PrepareContext(nil, "hi")

	if len(formatted) != 0 {
		t.Fatalf("expected no formatted messages, got %d", len(formatted))
	}
	if !reflect.DeepEqual(summary, memory.MemorySummary{}) {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
}

func TestPrepareContextLongHistoryIsWindowed(t *testing.T) {
	mgr := memory.NewManager(10)
	history := alternating(15)

	formatted, summary := mgr.PrepareContext(history, "next")
	if len(formatted) != 10 {
		t.Fatalf("expected 10 formatted messages, got %d", len(formatted))
	}
	if !summary.HasOlderSummary() {
		t.Fatal("expected older conversation summary")
	}
	if summary.TotalMessages != 15 {
		t.Fatalf("expected total 15, got %d", summary.TotalMessages)
	}
	if formatted[0].Timestamp != history[5].Timestamp {
		t.Fatal("expected window to start at the sixth message")
	}
}

func TestPrepareContextShortHistoryHasNoSummary(t *testing.T) {
	mgr := memory.NewManager(10)
	formatted, summary := mgr.PrepareContext(alternating(5), "next")

	if len(formatted) != 5 {
		t.Fatalf("expected 5 formatted messages, got %d", len(formatted))
	}
	if summary.HasOlderSummary() {
		t.Fatalf("expected no older summary, got %q", summary.OlderSummary)
	}
}

func TestPrepareContextFormatsRolesAndGlyphs(t *testing.T) {
	mgr := memory.NewManager(10)
	history := []chat.Message{
		userMsg(0, "great day", chat.Positive, 0.6),
		botMsg(1, "glad to hear"),
		userMsg(2, "meh", chat.Neutral, 0),
		{Sender: chat.SenderUser, Text: "unscored"},
	}

	formatted, _ := mgr.PrepareContext(history, "x")
	if formatted[0].Role != "user" || formatted[0].Content != "great day 😊" {
		t.Fatalf("unexpected first message: %+v", formatted[0])
	}
	if formatted[1].Role != "assistant" || formatted[1].Content != "glad to hear" {
		t.Fatalf("unexpected bot message: %+v", formatted[1])
	}
	if formatted[2].Content != "meh 😐" {
		t.Fatalf("unexpected neutral glyph: %q", formatted[2].Content)
	}
	if formatted[3].Content != "unscored" {
		t.Fatalf("expected no glyph without sentiment, got %q", formatted[3].Content)
	}
	if history[0].Text != "great day" {
		t.Fatal("history must not be mutated")
	}
}

func TestOlderSummaryNegativeWithTopics(t *testing.T) {
	mgr := memory.NewManager(2)
	history := []chat.Message{
		userMsg(0, "my breakup at work hurts", chat.Negative, -0.7),
		botMsg(1, "sorry"),
		userMsg(2, "my family is anxious too", chat.Negative, -0.4),
		botMsg(3, "that sounds hard"),
		userMsg(4, "thanks", chat.Positive, 0.4),
		botMsg(5, "any time"),
	}

	_, summary := mgr.PrepareContext(history, "x")
	want := "Earlier in conversation (4 messages): " +
		"User was experiencing emotional difficulty (mentioned: breakup, anxious, work) " +
		"Key topics discussed: breakup, anxious, work"
	if summary.OlderSummary != want {
		t.Fatalf("unexpected summary:\n got: %s\nwant: %s", summary.OlderSummary, want)
	}
}

func TestOlderSummaryPositiveWithoutTopics(t *testing.T) {
	mgr := memory.NewManager(1)
	history := []chat.Message{
		userMsg(0, "this is great", chat.Positive, 0.6),
		botMsg(1, "yay"),
	}

	_, summary := mgr.PrepareContext(history, "x")
	want := "Earlier in conversation (1 messages): User had positive interactions"
	if summary.OlderSummary != want {
		t.Fatalf("unexpected summary: %q", summary.OlderSummary)
	}
	if strings.Contains(summary.OlderSummary, "Key topics") {
		t.Fatal("expected topic line to be omitted without keywords")
	}
}

func TestOlderSummaryIsDeterministic(t *testing.T) {
	mgr := memory.NewManager(1)
	history := []chat.Message{
		userMsg(0, "love and pain and family and friend", chat.Negative, -0.2),
		botMsg(1, "ok"),
	}

	_, first := mgr.PrepareContext(history, "x")
	for i := 0; i < 20; i++ {
		_, again := mgr.PrepareContext(history, "x")
		if again.OlderSummary != first.OlderSummary {
			t.Fatalf("summary changed between calls: %q vs %q", first.OlderSummary, again.OlderSummary)
		}
	}
}

func TestEmotionalSummaryBasics(t *testing.T) {
	mgr := memory.NewManager(10)
	history := []chat.Message{
		userMsg(0, "good", chat.Positive, 0.5),
		userMsg(1, "bad", chat.Negative, -0.5),
	}

	_, summary := mgr.PrepareContext(history, "x")
	emotional := summary.Emotional
	if emotional.JourneyLength != 2 {
		t.Fatalf("expected journey length 2, got %d", emotional.JourneyLength)
	}
	if emotional.AvgScore != 0 {
		t.Fatalf("expected avg 0, got %f", emotional.AvgScore)
	}
	if emotional.CurrentSentiment != chat.Negative {
		t.Fatalf("expected current negative, got %s", emotional.CurrentSentiment)
	}
	if emotional.SentimentTrend != memory.TrendStableDeclining {
		t.Fatalf("expected stable/declining, got %s", emotional.SentimentTrend)
	}
}

func TestEmotionalSummaryImprovingTrend(t *testing.T) {
	journey := []memory.JourneyEntry{
		{Sentiment: chat.Negative, CompoundScore: -0.6},
		{Sentiment: chat.Neutral, CompoundScore: 0},
		{Sentiment: chat.Positive, CompoundScore: 0.3},
	}
	if got := memory.SummarizeJourney(journey).SentimentTrend; got != memory.TrendImproving {
		t.Fatalf("expected improving, got %s", got)
	}

	single := memory.SummarizeJourney(journey[:1])
	if single.SentimentTrend != memory.TrendStableDeclining {
		t.Fatalf("expected single entry to be stable/declining, got %s", single.SentimentTrend)
	}
}

func TestDominantSentimentTieFavorsFirstSeen(t *testing.T) {
	forward := []memory.JourneyEntry{
		{Sentiment: chat.Positive, CompoundScore: 0.4},
		{Sentiment: chat.Negative, CompoundScore: -0.4},
		{Sentiment: chat.Positive, CompoundScore: 0.2},
		{Sentiment: chat.Negative, CompoundScore: -0.2},
	}
	reversed := []memory.JourneyEntry{forward[3], forward[2], forward[1], forward[0]}

	a := memory.SummarizeJourney(forward)
	b := memory.SummarizeJourney(reversed)
	if a.DominantSentiment != chat.Positive {
		t.Fatalf("expected positive to win the tie, got %s", a.DominantSentiment)
	}
	if b.DominantSentiment != chat.Negative {
		t.Fatalf("expected negative to win the reversed tie, got %s", b.DominantSentiment)
	}
	if a.AvgScore != b.AvgScore {
		t.Fatalf("expected order-independent mean, got %f vs %f", a.AvgScore, b.AvgScore)
	}
}

func TestEmotionalSummaryNoData(t *testing.T) {
	mgr := memory.NewManager(10)
	_, summary := mgr.PrepareContext([]chat.Message{botMsg(0, "hello")}, "x")
	if !summary.Emotional.NoData() {
		t.Fatalf("expected no_data sentinel, got %+v", summary.Emotional)
	}
	if summary.Emotional.Status != "no_data" {
		t.Fatalf("unexpected status %q", summary.Emotional.Status)
	}
}

func TestJourneyIsRecomputedPerCall(t *testing.T) {
	mgr := memory.NewManager(10)
	_, first := mgr.PrepareContext([]chat.Message{
		userMsg(0, "a", chat.Negative, -0.5),
		userMsg(1, "b", chat.Negative, -0.5),
	}, "x")
	_, second := mgr.PrepareContext([]chat.Message{
		userMsg(0, "c", chat.Positive, 0.5),
	}, "x")

	if first.Emotional.JourneyLength != 2 {
		t.Fatalf("unexpected first journey length %d", first.Emotional.JourneyLength)
	}
	if second.Emotional.JourneyLength != 1 || second.Emotional.CurrentSentiment != chat.Positive {
		t.Fatalf("journey leaked between calls: %+v", second.Emotional)
	}
	if len(second.Journey) != 1 {
		t.Fatalf("expected returned journey to have one entry, got %d", len(second.Journey))
	}
}

func TestTrackJourneySkipsUnscoredAndBotMessages(t *testing.T) {
	history := []chat.Message{
		userMsg(0, "a", chat.Positive, 0.3),
		botMsg(1, "b"),
		{Sender: chat.SenderUser, Text: "no label"},
		{Sender: chat.SenderUser, Text: "no score", Sentiment: chat.Neutral},
		{Sender: chat.SenderUser, Text: "odd label", Sentiment: chat.Sentiment("mixed")},
	}

	journey := memory.TrackJourney(history)
	if len(journey) != 2 {
		t.Fatalf("expected 2 journey entries, got %d", len(journey))
	}

	formatted, _ := memory.NewManager(10).PrepareContext(history, "x")
	if got := formatted[len(formatted)-1].Content; got != "odd label" {
		t.Fatalf("expected no glyph for unknown label, got %q", got)
	}
	if journey[1].CompoundScore != 0 {
		t.Fatalf("expected missing score to read as 0, got %f", journey[1].CompoundScore)
	}
}

func TestNewManagerDefaultsWindow(t *testing.T) {
	if got := memory.NewManager(0).ShortTermWindow(); got != memory.DefaultShortTermWindow {
		t.Fatalf("expected default window, got %d", got)
	}
}
