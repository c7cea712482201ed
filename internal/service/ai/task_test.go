package ai

import (
	"testing"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
)

func TestDetectTaskType(t *testing.T) {
	cases := []struct {
		message string
		want    TaskType
	}{
		{"I'm going through a breakup", TaskEmotionalSupport},
		{"I feel so ALONE", TaskEmotionalSupport},
		{"please debug my program", TaskCodeHelp},
		{"calculate 2 + 2", TaskMathHelp},
		{"I love this!", TaskCasualChat},
	}
	for _, tc := range cases {
		if got := DetectTaskType(tc.message, nil); got != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.message, tc.want, got)
		}
	}
}

func TestDetectTaskTypeUsesRecentSentiment(t *testing.T) {
	history := []chat.Message{
		{Sender: chat.SenderUser, Sentiment: chat.Negative},
		{Sender: chat.SenderUser, Sentiment: chat.Negative},
		{Sender: chat.SenderBot},
		{Sender: chat.SenderUser, Sentiment: chat.Positive},
		{Sender: chat.SenderBot},
	}
	if got := DetectTaskType("ok", history); got != TaskCasualChat {
		t.Fatalf("expected older negatives to be outside the window, got %s", got)
	}

	history = append(history, chat.Message{Sender: chat.SenderUser, Sentiment: chat.Negative})
	history = append(history, chat.Message{Sender: chat.SenderUser, Sentiment: chat.Negative})
	if got := DetectTaskType("ok", history); got != TaskEmotionalSupport {
		t.Fatalf("expected emotional support, got %s", got)
	}
}

func TestDetectStage(t *testing.T) {
	history := []chat.Message{
		{Sender: chat.SenderUser, Text: "my dog is sick today"},
		{Sender: chat.SenderBot, Text: "oh no"},
	}
	cases := []struct {
		name    string
		history []chat.Message
		message string
		want    Stage
	}{
		{"first", nil, "hello", StageFirstMessage},
		{"clarify", history, "I don't understand", StageClarificationNeeded},
		{"topic change", history, "tell me about rockets", StageTopicChange},
		{"follow up", history, "my dog is still sick", StageFollowUp},
		{"single turn", history[:1], "rockets", StageFollowUp},
	}
	for _, tc := range cases {
		if got := DetectStage(tc.history, tc.message); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestSamplingTables(t *testing.T) {
	if Temperature(TaskCreativeWriting) != 0.9 || Temperature(TaskDebugging) != 0.3 || Temperature("unknown") != 0.7 {
		t.Fatal("unexpected temperature mapping")
	}
	cases := map[TaskType]int{
		TaskEmotionalSupport: 150,
		TaskCodeHelp:         180,
		TaskMathHelp:         150,
		TaskBrainstorming:    140,
		TaskCareerAdvice:     130,
		TaskCasualChat:       100,
	}
	for task, want := range cases {
		if got := MaxTokens(task); got != want {
			t.Fatalf("%s: expected %d, got %d", task, want, got)
		}
	}
}
