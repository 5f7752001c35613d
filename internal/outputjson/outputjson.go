// Package outputjson extracts a JSON value from an LLM's free-form text
// response: a direct parse, then a fenced ```json block (preferred over a
// bare fenced block), then bracket/brace scanning as a last resort.
package outputjson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
var fencedAnyRe = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")

// Extract pulls a JSON substring out of text via three tiers: a direct
// parse of the whole trimmed string, a ```json fenced block (falling
// back to any fenced block), and finally the widest bracket-or-brace
// span in the text.
func Extract(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}

	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fencedAnyRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	if span := widestSpan(text, '{', '}'); span != "" {
		return span
	}
	if span := widestSpan(text, '[', ']'); span != "" {
		return span
	}
	return ""
}

func widestSpan(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(text, close)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}

// ExtractAndUnmarshal extracts the first JSON value from text and
// decodes it into v.
func ExtractAndUnmarshal(text string, v any) error {
	blob := Extract(text)
	if blob == "" {
		return fmt.Errorf("outputjson: no JSON found in response")
	}
	return json.Unmarshal([]byte(blob), v)
}
