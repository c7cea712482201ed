package ai

import (
	"log"
	"strings"
	"unicode/utf8"

	"github.com/zhouzirui/moodchat/backend/internal/model/chat"
)

const (
	maxSentences     = 4
	minFragmentRunes = 10
)

var empathyMarkers = []string{
	"sorry", "understand", "hear", "know", "feel", "here for you", "difficult", "hard",
}

// PostProcess 统一回复格式：压缩空白、最多保留四句，并丢弃过短的残句。
func PostProcess(reply string, sentiment chat.Sentiment) string {
	text := strings.Join(strings.Fields(reply), " ")

	sentences := strings.Split(text, ". ")
	if len(sentences) > maxSentences {
		text = strings.Join(sentences[:maxSentences], ". ")
		if !strings.HasSuffix(text, ".") {
			text += "."
		}
	}

	if strings.Contains(text, ".") {
		var complete []string
		for _, part := range strings.Split(text, ".") {
			part = strings.TrimSpace(part)
			if utf8.RuneCountInString(part) > minFragmentRunes {
				complete = append(complete, part)
			}
		}
		if len(complete) > 0 {
			text = strings.Join(complete, ". ") + "."
		}
	}

	if sentiment == chat.Negative && !containsAny(strings.ToLower(text), empathyMarkers) {
		log.Printf("[ai] warning: reply to negative message may lack empathy")
	}

	return strings.TrimSpace(text)
}
