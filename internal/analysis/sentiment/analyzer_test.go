package sentiment

import (
	"testing"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
)

func TestAnalyzeMessagePolarity(t *testing.T) {
	analyzer := NewAnalyzer()
	cases := []struct {
		text string
		want chat.Sentiment
	}{
		{"I love this! It's amazing and wonderful!", chat.Positive},
		{"This is the best day ever! So happy!", chat.Positive},
		{"This is terrible and awful. I hate it!", chat.Negative},
		{"Worst experience ever. Very disappointed and angry.", chat.Negative},
		{"The meeting is at 3pm.", chat.Neutral},
		{"The document has been updated.", chat.Neutral},
	}

	for _, tc := range cases {
		got := analyzer.AnalyzeMessage(tc.text)
		if got.Sentiment != tc.want {
			t.Fatalf("%q: expected %s, got %s (score %f)", tc.text, tc.want, got.Sentiment, got.Score)
		}
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Fatalf("%q: confidence out of range: %f", tc.text, got.Confidence)
		}
	}
}

func TestLabelThresholds(t *testing.T) {
	if Label(0.05) != chat.Positive || Label(-0.05) != chat.Negative || Label(0.049) != chat.Neutral {
		t.Fatal("unexpected threshold mapping")
	}
}

func TestAnalyzeConversationWithoutUserMessages(t *testing.T) {
	analyzer := NewAnalyzer()
	for _, messages := range [][]chat.Message{
		nil,
		{{Sender: chat.SenderBot, Text: "Hello!"}, {Sender: chat.SenderBot, Text: "How can I help?"}},
	} {
		got := analyzer.AnalyzeConversation(messages)
		if got.Overall != "" {
			t.Fatalf("expected no overall sentiment, got %s", got.Overall)
		}
		if got.Explanation != "No user messages to analyze" {
			t.Fatalf("unexpected explanation %q", got.Explanation)
		}
	}
}

func TestAnalyzeConversationDistribution(t *testing.T) {
	analyzer := NewAnalyzer()
	messages := []chat.Message{
		{Sender: chat.SenderUser, Text: "I love this product!"},
		{Sender: chat.SenderBot, Text: "Great to hear!"},
		{Sender: chat.SenderUser, Text: "But the shipping was terrible."},
		{Sender: chat.SenderUser, Text: "Overall it was okay."},
	}

	got := analyzer.AnalyzeConversation(messages)
	if !got.Overall.Known() {
		t.Fatalf("unexpected overall %q", got.Overall)
	}
	if sum := got.Distribution.Positive + got.Distribution.Negative + got.Distribution.Neutral; sum != 3 {
		t.Fatalf("expected 3 classified messages, got %d", sum)
	}
	if got.Explanation == "" {
		t.Fatal("expected explanation")
	}
}
