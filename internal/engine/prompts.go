package engine

import (
	"fmt"
	"strings"
)

// Response modes. Mode selects the prompt template and scopes the semantic
// cache; it never participates in similarity matching.
const (
	ModeExplain = "explain"
	ModeQuiz    = "quiz"
	ModeHint    = "hint"
)

const explainTemplate = `You are an expert tutor. Explain the following to a student clearly and simply:

Context:
%s

Question:
%s

Explanation:
`

const quizTemplate = `Given the following material:

%s

Create a quiz with 3 multiple-choice questions, each with 4 options and the correct answer indicated.
`

const hintTemplate = `Provide a hint for the question below based on the provided context. Do not give the full answer.

Context:
%s

Question:
%s

Hint:
`

// NormalizeMode lowercases and trims a mode string, mapping empty input to
// ModeExplain. Unknown modes pass through unchanged; they still scope the
// cache, and BuildPrompt falls back to the explain template for them.
func NormalizeMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return ModeExplain
	}
	return mode
}

// BuildPrompt renders the prompt for a mode from the retrieval context and
// the student's question. Unknown modes use the explain template with the
// requested style named, so the model can still honor the caller's intent.
func BuildPrompt(mode, contextText, question string) string {
	switch mode {
	case ModeExplain:
		return fmt.Sprintf(explainTemplate, contextText, question)
	case ModeQuiz:
		return fmt.Sprintf(quizTemplate, contextText)
	case ModeHint:
		return fmt.Sprintf(hintTemplate, contextText, question)
	default:
		prompt := fmt.Sprintf(explainTemplate, contextText, question)
		return prompt + fmt.Sprintf("\nRespond in the style requested by the student: %s.\n", mode)
	}
}
