// Package postprocess removes common LLM artifacts from model output.
//
// Clean is applied to every free-text answer (drafts, reviewer revisions,
// merged edits, term proposals). JSON pulls a single object out of a noisy
// answer before it is decoded by the structured-parse path.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean strips reasoning blocks, code fences, prompt echoes and outer quotes,
// in that order, and returns the trimmed result.
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeCodeFence(text)
	text = removeInstructionEchoes(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// JSON returns the outermost {...} object found in text, or "" when there is
// none. Reasoning blocks and code fences are removed first.
func JSON(text string) string {
	text = removeCodeFence(removeThinkingBlocks(text))
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}

// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened tag whose closing tag is missing.
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// codeFenceRe matches a whole answer wrapped in one ``` fence, with an
// optional language tag.
var codeFenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```$")

func removeCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// echoPatterns match lead-ins that models prepend even when told not to.
// Each is anchored at the start and requires a colon.
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:revised |refined |final |merged |edited |polished |translated )?(?:translation|text|version)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:revised |refined |final |merged |edited |polished )?(?:translation|translated text|version)\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:revised |refined |final |translated )?(?:translation|text|version)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// removeQuoteWrapping strips one matching pair of outer quotes:
//
//	"…"  '…'  «…»  “…”  ‘…’  „…“
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') ||
		(first == '‘' && last == '’') ||
		(first == '„' && last == '“') {
		inner := string(runes[1 : n-1])
		// "A" and "B" is two quoted spans, not one wrapped answer.
		if strings.ContainsRune(inner, first) || strings.ContainsRune(inner, last) {
			return text
		}
		return strings.TrimSpace(inner)
	}
	return text
}
