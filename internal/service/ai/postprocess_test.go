package ai

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/zhouzirui/moodchat/backend/internal/llm"
	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
)

func TestPostProcessCollapsesWhitespaceAndFragments(t *testing.T) {
	got := PostProcess("Hello   world.\n\n This is a test of things. Ok.", chat.Neutral)
	if got != "Hello world. This is a test of things." {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestPostProcessLimitsSentences(t *testing.T) {
	in := "First sentence here. Second sentence here. Third sentence here. Fourth sentence here. Fifth sentence here."
	got := PostProcess(in, chat.Positive)
	if strings.Contains(got, "Fifth") {
		t.Fatalf("expected fifth sentence to be dropped: %q", got)
	}
	if strings.Count(got, ".") != 4 {
		t.Fatalf("expected four sentences, got %q", got)
	}
}

func TestPostProcessKeepsTextWithoutPeriods(t *testing.T) {
	if got := PostProcess("  hi there friend  ", chat.Neutral); got != "hi there friend" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestFallbackReplyClassification(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{fmt.Errorf("wrap: %w", llm.ErrUnauthorized), ErrorAuth},
		{errors.New("dial tcp: connection refused"), ErrorConnection},
		{errors.New("invalid api key"), ErrorAuth},
		{errors.New("Rate limit reached"), ErrorRateLimit},
		{errors.New("maximum context length exceeded"), ErrorContextLength},
		{errors.New("boom"), ErrorUnknown},
	}
	for _, tc := range cases {
		if got := classify(tc.err); got != tc.want {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.want, got)
		}
		if FallbackReply(tc.err) != userMessages[tc.want] {
			t.Fatalf("%v: unexpected fallback reply", tc.err)
		}
	}
}
