// Package chattemplate implements the chat template engine (spec.md
// §4.10): detecting which built-in (or model-supplied) Jinja-like
// template applies to a model, and rendering it into a single prompt
// string from a message list, optional system prompt, and model
// config.
//
// The restricted template grammar this package interprets (§4.10) has
// no analogue anywhere in the example pack — none of the retrieved
// repos embed a Jinja-subset prompt templating engine, since that
// concern belongs to an inference server, not the infra/storage/
// controller code the pack otherwise covers. engine.go is therefore a
// small hand-rolled tokenizer/interpreter rather than a wrapped
// third-party templating library: Go's text/template uses a
// different, incompatible tag syntax ({{if}}, {{range}}) that cannot
// express the spec's literal `{for ...}`/`{if ...}` token strings
// without a lossy translation layer, and no Jinja-compatible Go
// library appears anywhere in the retrieved corpus to ground an
// import of one.
package chattemplate

import (
	"fmt"
	"strings"
)

// Message is one turn of a conversation.
//
// A message can carry tool-call metadata instead of (or alongside)
// Content: ToolCall is set on an assistant message that invokes a
// function, and ToolCallID is set on a "tool" role message answering
// one. Both may leave Content empty — spec.md §9's "null content" note
// — so renderers must consult EffectiveContent rather than Content
// directly wherever a readable representation is required.
type Message struct {
	Role       string
	Content    string
	ToolCall   *ToolCall
	ToolCallID string
}

// ToolCall describes a function an assistant message requested to
// invoke: Name and Arguments as the model produced them (Arguments is
// left as whatever raw string/JSON the caller supplied, not
// re-encoded here).
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// EffectiveContent returns what a renderer should treat as m's content:
// Content itself for an ordinary message, or a readable stand-in for a
// tool-call message whose Content may be empty (spec.md §9).
func (m Message) EffectiveContent() string {
	switch {
	case m.ToolCall != nil:
		return fmt.Sprintf("Assistant calls function: %s(%s)", m.ToolCall.Name, m.ToolCall.Arguments)
	case m.ToolCallID != "":
		return fmt.Sprintf("Tool (%s): %s", m.ToolCallID, m.Content)
	default:
		return m.Content
	}
}

// Config is the subset of model configuration the engine consults for
// template detection and rendering (spec.md §4.10).
type Config struct {
	// ChatTemplate, if non-empty, takes priority over family detection.
	ChatTemplate string
	// ModelName is matched case-insensitively against family probes.
	ModelName string
	BosToken  string
	EosToken  string
}

// Family identifies a built-in template.
type Family string

const (
	FamilyLlama3     Family = "llama3"
	FamilyMistral    Family = "mistral"
	FamilyChatML     Family = "chatml"
	FamilyAlpaca     Family = "alpaca"
	FamilyCodeLlama  Family = "codellama"
	FamilyVicuna     Family = "vicuna"
)

// familyProbes are matched in order against the lowercased model name
// (spec.md §4.10 detection priority step 2).
var familyProbes = []struct {
	family Family
	subs   []string
}{
	{FamilyLlama3, []string{"llama-3", "llama3"}},
	{FamilyMistral, []string{"mistral", "mixtral"}},
	{FamilyCodeLlama, []string{"codellama", "code-llama"}},
	{FamilyAlpaca, []string{"alpaca"}},
	{FamilyVicuna, []string{"vicuna"}},
	{FamilyChatML, []string{"chatml"}},
}

// DetectFamily applies the spec's three-step priority chain and
// returns the detected Family (Render turns it into a template via
// builtinTemplate). Step 1 (explicit
// config.ChatTemplate) is handled by the caller (Render) since an
// explicit template has no Family; DetectFamily covers steps 2-3.
func DetectFamily(cfg Config) Family {
	name := strings.ToLower(cfg.ModelName)
	for _, probe := range familyProbes {
		for _, sub := range probe.subs {
			if strings.Contains(name, sub) {
				return probe.family
			}
		}
	}
	if strings.Contains(cfg.ChatTemplate, "<|im_start|>") {
		return FamilyChatML
	}
	return FamilyLlama3
}

// Render converts messages (plus an optional systemPrompt not already
// present as the first message) into a single prompt string, per
// spec.md §4.10.
func Render(messages []Message, systemPrompt string, cfg Config) string {
	if systemPrompt != "" && !(len(messages) > 0 && strings.EqualFold(messages[0].Role, "system")) {
		withSystem := make([]Message, 0, len(messages)+1)
		withSystem = append(withSystem, Message{Role: "system", Content: systemPrompt})
		withSystem = append(withSystem, messages...)
		messages = withSystem
	}

	template := cfg.ChatTemplate
	if template == "" {
		template = builtinTemplate(DetectFamily(cfg))
	}

	out, err := render(template, messages, cfg)
	if err != nil {
		return fallbackRender(messages)
	}
	return out
}

// fallbackRender implements spec.md §4.10's fallback: "{role}: {content}\n\n"
// per message, plus a trailing "assistant: ".
func fallbackRender(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.EffectiveContent())
		b.WriteString("\n\n")
	}
	b.WriteString("assistant: ")
	return b.String()
}
