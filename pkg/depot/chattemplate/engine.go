package chattemplate

import (
	"errors"
	"strings"
)

// tokenKind enumerates the lexical tokens the restricted grammar
// recognizes (spec.md §4.10): plain text, `{{ var }}` substitutions,
// and single-brace control/literal tags.
type tokenKind int

const (
	tokText tokenKind = iota
	tokVar
	tokFor
	tokEndFor
	tokIf
	tokElif
	tokEndIf
	tokBosToken
	tokEosToken
	tokSystemMessage
	tokUnsupported
)

type token struct {
	kind tokenKind
	text string // TEXT content, VAR name, or IF/ELIF condition
}

// tokenize scans tmpl into a flat token stream. It never errors: an
// unrecognized `{...}` tag becomes an UNSUPPORTED token, which the
// parser rejects so the caller falls back.
func tokenize(tmpl string) []token {
	var tokens []token
	var textBuf strings.Builder
	flushText := func() {
		if textBuf.Len() > 0 {
			tokens = append(tokens, token{kind: tokText, text: textBuf.String()})
			textBuf.Reset()
		}
	}

	i := 0
	for i < len(tmpl) {
		if strings.HasPrefix(tmpl[i:], "{{") {
			end := strings.Index(tmpl[i+2:], "}}")
			if end < 0 {
				textBuf.WriteByte(tmpl[i])
				i++
				continue
			}
			name := strings.TrimSpace(tmpl[i+2 : i+2+end])
			flushText()
			tokens = append(tokens, token{kind: tokVar, text: name})
			i = i + 2 + end + 2
			continue
		}
		if tmpl[i] == '{' {
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				textBuf.WriteByte(tmpl[i])
				i++
				continue
			}
			body := strings.TrimSpace(tmpl[i+1 : i+1+end])
			flushText()
			tokens = append(tokens, tagToken(body))
			i = i + 1 + end + 1
			continue
		}
		textBuf.WriteByte(tmpl[i])
		i++
	}
	flushText()
	return tokens
}

func tagToken(body string) token {
	switch {
	case body == "bos_token":
		return token{kind: tokBosToken}
	case body == "eos_token":
		return token{kind: tokEosToken}
	case body == "system_message":
		return token{kind: tokSystemMessage}
	case body == "endfor":
		return token{kind: tokEndFor}
	case body == "endif":
		return token{kind: tokEndIf}
	case strings.HasPrefix(body, "for "):
		return token{kind: tokFor}
	case strings.HasPrefix(body, "if "):
		return token{kind: tokIf, text: strings.TrimSpace(strings.TrimPrefix(body, "if"))}
	case strings.HasPrefix(body, "elif "):
		return token{kind: tokElif, text: strings.TrimSpace(strings.TrimPrefix(body, "elif"))}
	default:
		// Unrecognized tag: outside the supported subset, so the parser
		// rejects it and rendering falls back.
		return token{kind: tokUnsupported, text: "{" + body + "}"}
	}
}

// node is a parsed AST element.
type node struct {
	kind       tokenKind
	text       string   // TEXT content or VAR name
	forBody    []node   // ForNode body
	ifBranches []branch // IfNode branches, evaluated in order
}

type branch struct {
	role string // right-hand side of `message.role == '...'`
	body []node
}

var (
	errMismatchedTags = errors.New("chattemplate: mismatched for/if tags")
	errUnsupportedTag = errors.New("chattemplate: unsupported tag")
)

// parse builds an AST from tokens. Any structural error (unmatched
// for/if, trailing open blocks) surfaces as errMismatchedTags, and an
// unrecognized tag as errUnsupportedTag, so the caller falls back per
// spec.md §4.10.
func parse(tokens []token) ([]node, error) {
	nodes, rest, err := parseSequence(tokens)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errMismatchedTags
	}
	return nodes, nil
}

// parseSequence consumes tokens until it sees one of endfor/endif/elif
// (left unconsumed for the caller) or runs out, returning the parsed
// nodes and the unconsumed remainder.
func parseSequence(tokens []token) ([]node, []token, error) {
	var nodes []node
	for len(tokens) > 0 {
		t := tokens[0]
		switch t.kind {
		case tokEndFor, tokEndIf, tokElif:
			return nodes, tokens, nil
		case tokUnsupported:
			return nil, nil, errUnsupportedTag
		case tokText:
			nodes = append(nodes, node{kind: tokText, text: t.text})
			tokens = tokens[1:]
		case tokVar, tokBosToken, tokEosToken, tokSystemMessage:
			nodes = append(nodes, node{kind: t.kind, text: t.text})
			tokens = tokens[1:]
		case tokFor:
			body, rest, err := parseSequence(tokens[1:])
			if err != nil {
				return nil, nil, err
			}
			if len(rest) == 0 || rest[0].kind != tokEndFor {
				return nil, nil, errMismatchedTags
			}
			nodes = append(nodes, node{kind: tokFor, forBody: body})
			tokens = rest[1:]
		case tokIf:
			var branches []branch
			cond := t.text
			rest := tokens[1:]
			for {
				body, next, err := parseSequence(rest)
				if err != nil {
					return nil, nil, err
				}
				branches = append(branches, branch{role: conditionRole(cond), body: body})
				if len(next) == 0 {
					return nil, nil, errMismatchedTags
				}
				if next[0].kind == tokElif {
					cond = next[0].text
					rest = next[1:]
					continue
				}
				if next[0].kind == tokEndIf {
					rest = next[1:]
					break
				}
				return nil, nil, errMismatchedTags
			}
			nodes = append(nodes, node{kind: tokIf, ifBranches: branches})
			tokens = rest
		default:
			tokens = tokens[1:]
		}
	}
	return nodes, nil, nil
}

// conditionRole extracts role from a condition of the form
// `message.role == 'role'`. Any other shape yields an empty string,
// which never matches a real message role.
func conditionRole(cond string) string {
	const needle = "message.role"
	idx := strings.Index(cond, needle)
	if idx < 0 {
		return ""
	}
	rest := cond[idx+len(needle):]
	rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "=="))
	rest = strings.Trim(rest, "'\"")
	return rest
}

// renderCtx carries the values available while walking the AST.
type renderCtx struct {
	messages []Message
	current  Message
	cfg      Config
}

func render(tmpl string, messages []Message, cfg Config) (string, error) {
	nodes, err := parse(tokenize(tmpl))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	ctx := renderCtx{messages: messages, cfg: cfg}
	renderNodes(&b, nodes, ctx)
	return b.String(), nil
}

func renderNodes(b *strings.Builder, nodes []node, ctx renderCtx) {
	for _, n := range nodes {
		switch n.kind {
		case tokText:
			b.WriteString(n.text)
		case tokBosToken:
			b.WriteString(ctx.cfg.BosToken)
		case tokEosToken:
			b.WriteString(ctx.cfg.EosToken)
		case tokSystemMessage:
			for _, m := range ctx.messages {
				if strings.EqualFold(m.Role, "system") {
					b.WriteString(m.EffectiveContent())
					break
				}
			}
		case tokVar:
			switch n.text {
			case "message.role":
				b.WriteString(ctx.current.Role)
			case "message.content":
				b.WriteString(ctx.current.EffectiveContent())
			}
		case tokFor:
			for _, m := range ctx.messages {
				loopCtx := ctx
				loopCtx.current = m
				renderNodes(b, n.forBody, loopCtx)
			}
		case tokIf:
			for _, br := range n.ifBranches {
				if strings.EqualFold(br.role, ctx.current.Role) {
					renderNodes(b, br.body, ctx)
					break
				}
			}
		}
	}
}
