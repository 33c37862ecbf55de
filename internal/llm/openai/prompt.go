package openai

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"skinscan-backend/internal/llm"
)

// BuildMessages creates the chat messages for one skin analysis request.
func BuildMessages(input llm.Input) []goopenai.ChatCompletionMessage {
	return []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: llm.SystemPrompt},
		{
			Role: goopenai.ChatMessageRoleUser,
			MultiContent: []goopenai.ChatMessagePart{
				{Type: goopenai.ChatMessagePartTypeText, Text: llm.SkinPrompt(input.Age, input.Context)},
				{
					Type: goopenai.ChatMessagePartTypeImageURL,
					ImageURL: &goopenai.ChatMessageImageURL{
						URL:    dataURL(input.Image, input.MimeType),
						Detail: goopenai.ImageURLDetailHigh,
					},
				},
			},
		},
	}
}

// promptHash fingerprints the text parts of messages for log correlation.
func promptHash(messages []goopenai.ChatCompletionMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		for _, part := range m.MultiContent {
			if part.Type == goopenai.ChatMessagePartTypeText {
				b.WriteString(part.Text)
			}
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
