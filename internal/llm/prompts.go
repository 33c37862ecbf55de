package llm

import (
	_ "embed"
	"strconv"
	"strings"
)

// SystemPrompt frames the primary analyzer.
const SystemPrompt = "You are an expert facial skin analysis engine. Respond with JSON only."

//go:embed prompts/skin_v1.txt
var skinPromptV1 string

// SkinPrompt renders the user prompt for age and the optional grounding brief.
func SkinPrompt(age int, brief string) string {
	section := ""
	if strings.TrimSpace(brief) != "" {
		section = "\nSignals from other AI models (use them as supporting evidence):\n" + brief + "\n"
	}
	return strings.NewReplacer(
		"{{CONTEXT}}", section,
		"{{AGE}}", strconv.Itoa(age),
	).Replace(skinPromptV1)
}
