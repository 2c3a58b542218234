// Package budget provides token budget estimation for the prompt context.
// Because the engine supports multiple LLM backends with different
// tokenizers, this package uses a conservative character-based heuristic:
// 1 token ≈ 4 characters (English prose). This deliberately under-estimates
// token counts to leave headroom for model-specific overhead.
package budget

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default retrieval-context budget in
	// tokens. Conservative enough to fit within 8k-context models (Llama 3
	// 8B, GPT-3.5) while leaving room for the prompt template and output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// TrimChunks drops chunks from the end of texts until the estimated total
// fits within maxTokens. Retrieval orders chunks best-first, so the least
// relevant chunks are dropped first. At least one chunk is always kept so a
// single oversized chunk still reaches the prompt truncation downstream.
func TrimChunks(texts []string, maxTokens int) []string {
	if len(texts) == 0 || maxTokens <= 0 {
		return texts
	}

	total := 0
	for i, t := range texts {
		// Each chunk adds a small separator overhead in the joined prompt.
		total += Estimate(t) + 1
		if total > maxTokens && i > 0 {
			return texts[:i]
		}
	}
	return texts
}
