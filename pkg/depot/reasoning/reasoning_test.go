package reasoning

import "testing"

func TestProcessThinkingTagSplitsThinkingAndAnswer(t *testing.T) {
	result := Process("<thinking>step one, step two</thinking>\nThe answer is 42.")
	if !result.HasReasoning {
		t.Fatal("expected HasReasoning")
	}
	if result.Thinking != "step one, step two" {
		t.Fatalf("unexpected thinking: %q", result.Thinking)
	}
	if result.FinalAnswer != "The answer is 42." {
		t.Fatalf("unexpected final answer: %q", result.FinalAnswer)
	}
	if result.ReasoningTokens < 3 {
		t.Fatalf("expected reasoningTokens >= 3, got %d", result.ReasoningTokens)
	}
}

func TestProcessNoThinkingRegion(t *testing.T) {
	result := Process("Just a plain answer.")
	if result.HasReasoning {
		t.Fatal("expected no reasoning detected")
	}
	if result.ReasoningTokens != 0 {
		t.Fatalf("expected 0 reasoning tokens, got %d", result.ReasoningTokens)
	}
	if result.FinalAnswer != "Just a plain answer." {
		t.Fatalf("unexpected final answer: %q", result.FinalAnswer)
	}
}

func TestProcessOrderedPatternPriority(t *testing.T) {
	result := Process("<reasoning>alt form</reasoning>done.")
	if !result.HasReasoning || result.Thinking != "alt form" {
		t.Fatalf("expected reasoning tag to match, got %+v", result)
	}
}

func TestProcessMarkdownThinkingAnswerForm(t *testing.T) {
	result := Process("**Thinking:**working it out**Answer:**final text")
	if !result.HasReasoning || result.Thinking != "working it out" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.FinalAnswer != "final text" {
		t.Fatalf("unexpected final answer: %q", result.FinalAnswer)
	}
}

func TestProcessPrefixPhrase(t *testing.T) {
	result := Process("Let me think about this carefully before answering.")
	if !result.HasReasoning {
		t.Fatal("expected prefix-phrase detection")
	}
}

func TestExtractFinalAnswerRecognizesThereforePhrase(t *testing.T) {
	answer := ExtractFinalAnswer("Some reasoning text. Therefore, the answer is 7.")
	if answer != "7." {
		t.Fatalf("unexpected answer: %q", answer)
	}
}
