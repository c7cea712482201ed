package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
	"github.com/zhouzirui/moodchat/backend/internal/service/memory"
)

// DefaultStyle is the base personality used when a request names none.
const DefaultStyle = "default"

const (
	digestWindow     = 10
	digestPreviewLen = 100
)

// StyleTemplate 定义一种基础人格的系统提示。
type StyleTemplate struct {
	SystemPrompt string
	MemoryRules  []string
	LengthRules  []string
}

// PromptBuilder 组装每次请求的系统提示词。
type PromptBuilder struct {
	styles map[string]*StyleTemplate
}

// PromptInput carries everything that shapes one system prompt.
type PromptInput struct {
	Style         string
	Sentiment     chat.Sentiment
	Task          TaskType
	Stage         Stage
	History       []memory.FormattedMessage
	Summary       memory.MemorySummary
	EnableMemory  bool
	SentimentTone bool
}

// NewPromptBuilder creates a builder with the built-in styles loaded.
func NewPromptBuilder() *PromptBuilder {
	builder := &PromptBuilder{styles: make(map[string]*StyleTemplate)}
	builder.loadDefaultStyles()
	return builder
}

// Style returns the template registered under name.
func (pb *PromptBuilder) Style(name string) (*StyleTemplate, error) {
	template, exists := pb.styles[name]
	if !exists {
		return nil, fmt.Errorf("style template not found: %s", name)
	}
	return template, nil
}

// Build layers the base style, memory rules, sentiment guidance, task and
// stage instructions, a digest of recent turns and the long-term summary.
func (pb *PromptBuilder) Build(in PromptInput) string {
	template, err := pb.Style(in.Style)
	if err != nil {
		template = pb.styles[DefaultStyle]
	}

	parts := []string{renderStyle(template)}

	if in.EnableMemory {
		parts = append(parts, memoryPrompt)
	}

	if in.SentimentTone && in.Sentiment != "" {
		parts = append(parts, continuityPrompt)
		if modifier, ok := sentimentModifiers[in.Sentiment]; ok {
			parts = append(parts, modifier)
		}
	}

	if prompt, ok := taskPrompts[in.Task]; ok {
		parts = append(parts, prompt)
	}
	if prompt, ok := stagePrompts[in.Stage]; ok {
		parts = append(parts, prompt)
	}

	if len(in.History) > 0 {
		parts = append(parts, "CONVERSATION SO FAR:\n"+ConversationDigest(in.History))
	}

	parts = append(parts, strategyPrompt)

	if in.Summary.HasOlderSummary() {
		parts = append(parts, "EARLIER CONVERSATION CONTEXT:\n"+in.Summary.OlderSummary)
	}

	if in.Task == TaskEmotionalSupport && !in.Summary.Emotional.NoData() && in.Summary.Emotional.JourneyLength > 0 {
		emotional := in.Summary.Emotional
		parts = append(parts, fmt.Sprintf(
			"EMOTIONAL JOURNEY:\n- Current sentiment: %s\n- Trend: %s\n- Average emotional score: %.2f\nAcknowledge this journey in your reply.",
			emotional.CurrentSentiment, emotional.SentimentTrend, emotional.AvgScore,
		))
	}

	return strings.Join(parts, "\n\n")
}

// ConversationDigest renders the last turns as numbered one-line previews.
func ConversationDigest(history []memory.FormattedMessage) string {
	if len(history) == 0 {
		return "No previous conversation."
	}

	start := len(history) - digestWindow
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, len(history)-start)
	for i, msg := range history[start:] {
		speaker := "You (Bot)"
		if msg.Role == "user" {
			speaker = "User"
		}
		sentiment := msg.Sentiment
		if sentiment == "" {
			sentiment = chat.Neutral
		}
		lines = append(lines, fmt.Sprintf("[Msg %d] %s (%s): %q", i+1, speaker, sentiment, preview(msg.Content)))
	}
	return strings.Join(lines, "\n")
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= digestPreviewLen {
		return content
	}
	return string(runes[:digestPreviewLen]) + "..."
}

func renderStyle(t *StyleTemplate) string {
	return fmt.Sprintf("%s\n\nMemory:\n- %s\n\nLength:\n- %s",
		t.SystemPrompt,
		strings.Join(t.MemoryRules, "\n- "),
		strings.Join(t.LengthRules, "\n- "),
	)
}

func (pb *PromptBuilder) loadDefaultStyles() {
	pb.styles[DefaultStyle] = &StyleTemplate{
		SystemPrompt: `You are an emotionally intelligent companion with a strong memory for what people tell you. Every reply should feel like it comes from someone who already knows this person.`,
		MemoryRules: []string{
			"Remember everything shared earlier in this conversation and refer back to it naturally",
			"Never greet the user as a stranger once they have told you something personal",
			"If they shared pain earlier, keep acknowledging it in later replies",
			"Use the specific details they gave you: names, places, timelines, feelings",
		},
		LengthRules: []string{
			"Painful topics such as breakups, grief or anxiety: at most 3-4 sentences, specific and caring",
			"Casual or positive chat: 2-3 sentences, warm and matching their energy",
			"Technical or factual questions: 2-3 sentences, clear without over-explaining",
		},
	}
}

const memoryPrompt = `MEMORY:
Read every earlier turn before replying. Track how the user's mood has moved, the people and places they named and the questions they asked. Connect the current message to that context instead of starting fresh.`

const continuityPrompt = `EMOTIONAL CONTINUITY:
If the user has been negative throughout, keep acknowledging the ongoing pain. If their mood improves, notice and gently name the change. If it gets worse, say so and deepen your support. Never act cheerful while they are still hurting.`

var sentimentModifiers = map[chat.Sentiment]string{
	chat.Positive: `TONE: POSITIVE
The user feels good. Be genuinely happy for them, refer to what lifted their mood and keep the momentum going.`,
	chat.Negative: `TONE: NEGATIVE
The user is hurting. In 3-4 sentences: acknowledge the specific pain, validate the feeling, show you remember the context, then offer gentle hope or a caring question.`,
	chat.Neutral: `TONE: NEUTRAL
Be friendly, helpful and present, and refer to earlier context where it fits.`,
}

var taskPrompts = map[TaskType]string{
	TaskEmotionalSupport: `MODE: EMOTIONAL SUPPORT
Be compassionate and brief. Acknowledge the pain and show memory, validate the feeling, offer comfort. A caring follow-up question is optional. Avoid platitudes, rushing to solutions and minimizing what they feel.`,
	TaskCasualChat: `MODE: CASUAL CHAT
Keep it light but genuine. Two or three sentences are usually enough; refer back to what they said before.`,
	TaskCodeHelp: `MODE: CODE HELP
Answer precisely. Name the likely cause or the concrete change, keep any snippet minimal.`,
	TaskMathHelp: `MODE: MATH HELP
Show the key step and the result plainly. Do not pad the explanation.`,
}

var stagePrompts = map[Stage]string{
	StageFirstMessage: `STAGE: FIRST MESSAGE
This is the first exchange. Be welcoming, make it safe to share and show you will remember what they say.`,
	StageFollowUp: `STAGE: FOLLOW-UP
This continues an earlier thread. Build on it and refer to specific details they already shared.`,
	StageTopicChange: `STAGE: TOPIC CHANGE
The user is moving to a new subject. Follow them smoothly and let them know the earlier topic is still open.`,
	StageClarificationNeeded: `STAGE: CLARIFICATION
The user is unsure what you meant. Restate kindly and simply, using the context you already have.`,
}

const strategyPrompt = `RESPONSE STRATEGY:
Negative mood: warm, gentle, patient. Positive mood: enthusiastic and celebratory. Neutral: helpful and conversational. Keep every reply short and specific to this person.`
