package intent

import (
	"regexp"
	"strings"
)

// EmptyPayload is substituted when a completion carries no structured data.
const EmptyPayload = "{}"

// fencedJSON matches a ```json fenced block. An unterminated fence runs to
// the end of the text, which happens when the stream is cut short.
var fencedJSON = regexp.MustCompile("(?is)```json\\s*(.*?)(?:```|$)")

// ExtractPayload isolates the structured part of a completion.
//
// A ```json fenced block is preferred; otherwise the whole text is the
// candidate. Literal "\n" escape sequences and stray fence markers are removed
// and the result trimmed. When the candidate does not start with '{' or '['
// the text is conversational: EmptyPayload is returned with structured set to
// false.
func ExtractPayload(text string) (payload string, structured bool) {
	candidate := text
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}

	candidate = strings.ReplaceAll(candidate, `\n`, "")
	candidate = strings.ReplaceAll(candidate, "```json", "")
	candidate = strings.ReplaceAll(candidate, "```JSON", "")
	candidate = strings.ReplaceAll(candidate, "```", "")
	candidate = strings.TrimSpace(candidate)

	if !strings.HasPrefix(candidate, "{") && !strings.HasPrefix(candidate, "[") {
		return EmptyPayload, false
	}
	return candidate, true
}

// Prose returns the text of a completion outside its ```json fenced block,
// trimmed. A completion that is structured as a whole has no prose.
func Prose(text string) string {
	if loc := fencedJSON.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	}
	if _, structured := ExtractPayload(text); structured {
		return ""
	}
	return strings.TrimSpace(text)
}
