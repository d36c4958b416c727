package chunker

import (
	"regexp"
	"strings"
)

type blockKind int

const (
	blockText blockKind = iota
	blockFigure
)

type block struct {
	kind blockKind
	text string
}

var figureOpenRe = regexp.MustCompile(`(?i)<figure[^>]*>`)

// splitBlocks partitions page text into an ordered list of text blocks and
// atomic figure blocks. A dangling <figure> with no close tag is kept as
// plain text rather than swallowing the rest of the page.
func splitBlocks(text string) []block {
	var blocks []block
	rest := text
	for {
		loc := figureBlockRe.FindStringIndex(rest)
		if loc == nil {
			break
		}
		if pre := rest[:loc[0]]; strings.TrimSpace(pre) != "" {
			blocks = append(blocks, block{kind: blockText, text: pre})
		}
		blocks = append(blocks, block{kind: blockFigure, text: rest[loc[0]:loc[1]]})
		rest = rest[loc[1]:]
	}
	if strings.TrimSpace(rest) != "" {
		blocks = append(blocks, block{kind: blockText, text: rest})
	}
	return blocks
}

var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
	'‼': true, '⁇': true, '⁈': true, '⁉': true,
}

func isSentenceEnd(r rune) bool { return sentenceEnders[r] }

// splitSentences cuts text into sentence-like spans after each terminal
// punctuation rune. Spans concatenate back to the input byte-for-byte, so
// the builder can rejoin them without inventing whitespace.
func splitSentences(text string) []string {
	var spans []string
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		if !isSentenceEnd(r) {
			continue
		}
		// Keep trailing quotes/brackets and whitespace with the span.
		end := i + 1
		for end < len(runes) && (runes[end] == '"' || runes[end] == ')' || runes[end] == '”' || runes[end] == '\'' || runes[end] == ' ' || runes[end] == '\n' || runes[end] == '\t') {
			if runes[end] == '\n' {
				end++
				break
			}
			end++
		}
		if end > start {
			spans = append(spans, string(runes[start:end]))
			start = end
		}
	}
	if start < len(runes) {
		spans = append(spans, string(runes[start:]))
	}
	if len(spans) == 0 && text != "" {
		spans = []string{text}
	}
	return spans
}

// textOutsideFigures strips every figure block, leaving only the prose.
func textOutsideFigures(text string) string {
	return figureBlockRe.ReplaceAllString(text, "")
}

func containsFigure(text string) bool {
	return strings.Contains(strings.ToLower(text), "<figure")
}

func startsWithFigure(text string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimLeft(text, " \t\n")), "<figure")
}

// joinSmart concatenates two spans, inserting a single space only when both
// adjacent runes are alphanumeric and no whitespace boundary exists.
func joinSmart(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	last := []rune(a)[len([]rune(a))-1]
	first := []rune(b)[0]
	if isAlnum(last) && isAlnum(first) {
		return a + " " + b
	}
	return a + b
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
