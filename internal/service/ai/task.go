package ai

import (
	"strings"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
)

// TaskType 表示识别出的对话任务类型，决定提示词与采样参数。
type TaskType string

const (
	TaskEmotionalSupport     TaskType = "emotional_support"
	TaskHealthWellness       TaskType = "health_wellness"
	TaskCasualChat           TaskType = "casual_chat"
	TaskCodeHelp             TaskType = "code_help"
	TaskMathHelp             TaskType = "math_help"
	TaskDebugging            TaskType = "debugging"
	TaskTechnicalExplanation TaskType = "technical_explanation"
	TaskProblemSolving       TaskType = "problem_solving"
	TaskDataAnalysis         TaskType = "data_analysis"
	TaskLearningTutor        TaskType = "learning_tutor"
	TaskCreativeWriting      TaskType = "creative_writing"
	TaskBrainstorming        TaskType = "brainstorming"
	TaskCareerAdvice         TaskType = "career_advice"
	TaskBusinessStrategy     TaskType = "business_strategy"
)

// Stage 表示当前消息在对话中的位置。
type Stage string

const (
	StageFirstMessage        Stage = "first_message"
	StageFollowUp            Stage = "follow_up"
	StageTopicChange         Stage = "topic_change"
	StageClarificationNeeded Stage = "clarification_needed"
)

var emotionalKeywords = []string{
	"sad", "upset", "worried", "anxious", "stressed", "depressed", "lonely",
	"scared", "afraid", "breakup", "break up", "crying", "heartbroken", "hurt",
	"pain", "miss her", "miss him", "lost", "grief", "devastated", "broken",
	"suffering", "divorce", "death", "died", "suicide", "kill myself", "hopeless",
	"worthless", "alone", "abandoned", "rejected", "betrayed", "cheated",
}

var (
	codeKeywords = []string{"code", "program", "debug", "function"}
	mathKeywords = []string{"calculate", "math", "equation"}

	clarificationPhrases = []string{
		"what do you mean", "clarify", "explain", "i dont understand",
		"i don't understand", "huh", "what", "confused",
	}
)

var temperatureByTask = map[TaskType]float32{
	TaskCreativeWriting:      0.9,
	TaskBrainstorming:        0.9,
	TaskEmotionalSupport:     0.7,
	TaskHealthWellness:       0.7,
	TaskCasualChat:           0.7,
	TaskCareerAdvice:         0.6,
	TaskBusinessStrategy:     0.6,
	TaskLearningTutor:        0.6,
	TaskCodeHelp:             0.5,
	TaskProblemSolving:       0.5,
	TaskTechnicalExplanation: 0.4,
	TaskDebugging:            0.3,
	TaskMathHelp:             0.3,
	TaskDataAnalysis:         0.3,
}

const defaultTemperature float32 = 0.7

// DetectTaskType 根据当前消息关键词与最近三条历史的情感判断任务类型。
// 最近三条中出现两条及以上负面情感时，即使当前消息没有情绪词也进入情感支持模式。
func DetectTaskType(message string, history []chat.Message) TaskType {
	lower := strings.ToLower(message)

	if containsAny(lower, emotionalKeywords) || ongoingDistress(history) {
		return TaskEmotionalSupport
	}
	if containsAny(lower, codeKeywords) {
		return TaskCodeHelp
	}
	if containsAny(lower, mathKeywords) {
		return TaskMathHelp
	}
	return TaskCasualChat
}

func ongoingDistress(history []chat.Message) bool {
	start := len(history) - 3
	if start < 0 {
		start = 0
	}
	negatives := 0
	for _, msg := range history[start:] {
		if msg.Sentiment == chat.Negative {
			negatives++
		}
	}
	return negatives >= 2
}

// DetectStage classifies the message against the conversation so far.
// Topic changes compare against the most recent user turn.
func DetectStage(history []chat.Message, message string) Stage {
	if len(history) == 0 {
		return StageFirstMessage
	}

	lower := strings.ToLower(message)
	if containsAny(lower, clarificationPhrases) {
		return StageClarificationNeeded
	}

	if len(history) >= 2 {
		previous := lastUserText(history)
		if sharedWords(strings.ToLower(previous), lower) < 2 {
			return StageTopicChange
		}
	}
	return StageFollowUp
}

func lastUserText(history []chat.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].FromUser() {
			return history[i].Text
		}
	}
	return ""
}

func sharedWords(a, b string) int {
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		seen[w] = struct{}{}
	}
	shared := make(map[string]struct{})
	for _, w := range strings.Fields(b) {
		if _, ok := seen[w]; ok {
			shared[w] = struct{}{}
		}
	}
	return len(shared)
}

// Temperature 返回任务对应的采样温度，未知任务使用 0.7。
func Temperature(task TaskType) float32 {
	if t, ok := temperatureByTask[task]; ok {
		return t
	}
	return defaultTemperature
}

// MaxTokens 返回任务对应的回复长度上限。
func MaxTokens(task TaskType) int {
	switch task {
	case TaskEmotionalSupport, TaskHealthWellness:
		return 150
	case TaskDebugging, TaskTechnicalExplanation, TaskCodeHelp:
		return 180
	case TaskMathHelp, TaskDataAnalysis, TaskLearningTutor:
		return 150
	case TaskCreativeWriting, TaskBrainstorming:
		return 140
	case TaskCareerAdvice, TaskBusinessStrategy:
		return 130
	default:
		return 100
	}
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
