// Package reasoning implements the reasoning processor (spec.md
// §4.11): detecting and extracting a model's "thinking" region from
// its raw output text, separate from the final answer, and estimating
// how many tokens that thinking region cost.
package reasoning

import (
	"regexp"
	"strings"

	"github.com/modeldepot/depot/pkg/depot/generation"
)

// patterns are tried in order (spec.md §4.11); the first match wins
// for both the thinking and (if paired) final-answer regions.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<thinking>(.*?)</thinking>`),
	regexp.MustCompile(`(?is)<reasoning>(.*?)</reasoning>`),
	regexp.MustCompile(`(?is)<internal>(.*?)</internal>`),
	regexp.MustCompile(`(?is)<thought>(.*?)</thought>`),
	regexp.MustCompile(`(?is)\*\*Thinking:\*\*(.*?)\*\*Answer:\*\*`),
}

// thinkingPrefix is the prefix-phrase pattern: everything from the
// phrase to the end of text is treated as the thinking region (no
// closing delimiter).
var thinkingPrefix = regexp.MustCompile(`(?is)Let me think about this(.*)`)

// finalAnswerPattern additionally recognizes a "Therefore, the answer
// is ..." phrase when extracting the final answer (spec.md §4.11).
var finalAnswerPattern = regexp.MustCompile(`(?is)Therefore,\s*the answer is\s*(.*)`)

// Result is the outcome of processing one piece of raw model output.
type Result struct {
	HasReasoning    bool
	Thinking        string
	FinalAnswer     string
	ReasoningTokens int
}

// Process detects a thinking region in text (if any) per the ordered
// pattern list, splits it from the final answer, and estimates
// reasoning token cost.
func Process(text string) Result {
	thinking, rest, found := extractThinking(text)
	if !found {
		return Result{
			HasReasoning: false,
			FinalAnswer:  extractFinalAnswerFrom(text),
		}
	}
	return Result{
		HasReasoning:    true,
		Thinking:        strings.TrimSpace(thinking),
		FinalAnswer:     extractFinalAnswerFrom(rest),
		ReasoningTokens: reasoningTokens(thinking),
	}
}

// extractThinking returns the captured thinking text, the remainder of
// text with the matched region removed, and whether a pattern matched.
func extractThinking(text string) (thinking, rest string, found bool) {
	for _, p := range patterns {
		if loc := p.FindStringSubmatchIndex(text); loc != nil {
			thinking = text[loc[2]:loc[3]]
			rest = text[:loc[0]] + text[loc[1]:]
			return thinking, rest, true
		}
	}
	if loc := thinkingPrefix.FindStringSubmatchIndex(text); loc != nil {
		thinking = text[loc[2]:loc[3]]
		rest = text[:loc[0]]
		return thinking, rest, true
	}
	return "", text, false
}

// ExtractFinalAnswer strips any thinking region from text and also
// recognizes a trailing "Therefore, the answer is ..." phrase,
// returning just the answer content (spec.md §4.11).
func ExtractFinalAnswer(text string) string {
	_, rest, found := extractThinking(text)
	if found {
		text = rest
	}
	return extractFinalAnswerFrom(text)
}

// extractFinalAnswerFrom assumes any thinking region has already been
// removed from text.
func extractFinalAnswerFrom(text string) string {
	if loc := finalAnswerPattern.FindStringSubmatchIndex(text); loc != nil {
		return strings.TrimSpace(text[loc[2]:loc[3]])
	}
	return strings.TrimSpace(text)
}

// reasoningTokens implements spec.md §4.11's accounting formula:
// max(1, estimate(thinking)) + 2 for the opening/closing tags.
func reasoningTokens(thinking string) int {
	estimate := generation.EstimateTokenCount(thinking)
	if estimate < 1 {
		estimate = 1
	}
	return estimate + 2
}
