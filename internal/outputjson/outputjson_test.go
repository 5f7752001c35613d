package outputjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Run("direct JSON object", func(t *testing.T) {
		assert.Equal(t, `{"key":"value"}`, Extract(`{"key":"value"}`))
	})

	t.Run("direct JSON array", func(t *testing.T) {
		assert.Equal(t, `[1,2,3]`, Extract(`[1,2,3]`))
	})

	t.Run("prefers json-tagged fence over bare fence", func(t *testing.T) {
		text := "```\n[\"wrong\"]\n```\nHere:\n```json\n[\"right\"]\n```"
		assert.Equal(t, `["right"]`, Extract(text))
	})

	t.Run("falls back to bare fence", func(t *testing.T) {
		text := "```\n{\"a\": 1}\n```"
		assert.Equal(t, `{"a": 1}`, Extract(text))
	})

	t.Run("falls back to widest brace span with surrounding prose", func(t *testing.T) {
		text := `Sure, here is the result: {"tropes": [{"id": "t1"}]} Hope that helps.`
		assert.Equal(t, `{"tropes": [{"id": "t1"}]}`, Extract(text))
	})

	t.Run("falls back to widest bracket span when no braces", func(t *testing.T) {
		text := `The candidates are: ["a", "b", "c"] in rank order.`
		assert.Equal(t, `["a", "b", "c"]`, Extract(text))
	})

	t.Run("empty input yields empty string", func(t *testing.T) {
		assert.Empty(t, Extract("   "))
	})

	t.Run("no JSON anywhere yields empty string", func(t *testing.T) {
		assert.Empty(t, Extract("no json content here at all"))
	})
}

func TestExtractAndUnmarshal(t *testing.T) {
	t.Run("decodes a fenced object", func(t *testing.T) {
		var out struct {
			Verdict string  `json:"verdict"`
			Score   float64 `json:"score"`
		}
		text := "```json\n{\"verdict\": \"accept\", \"score\": 0.91}\n```"
		require.NoError(t, ExtractAndUnmarshal(text, &out))
		assert.Equal(t, "accept", out.Verdict)
		assert.Equal(t, 0.91, out.Score)
	})

	t.Run("errors when no JSON is found", func(t *testing.T) {
		var out map[string]any
		err := ExtractAndUnmarshal("nothing to see here", &out)
		assert.Error(t, err)
	})

	t.Run("errors on malformed JSON", func(t *testing.T) {
		var out map[string]any
		err := ExtractAndUnmarshal(`{"a": }`, &out)
		assert.Error(t, err)
	})
}
