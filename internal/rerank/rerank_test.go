package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ljramones/trope-miner/internal/tropeschema"
	"github.com/ljramones/trope-miner/internal/vectorindex"
)

func TestCosine(t *testing.T) {
	t.Run("identical vectors yield 1", func(t *testing.T) {
		assert.InDelta(t, 1.0, cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	})
	t.Run("orthogonal vectors yield 0", func(t *testing.T) {
		assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	})
	t.Run("mismatched lengths yield 0", func(t *testing.T) {
		assert.Equal(t, 0.0, cosine([]float32{1, 2}, []float32{1}))
	})
	t.Run("zero vector yields 0", func(t *testing.T) {
		assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}))
	})
}

func TestSafeTrunc(t *testing.T) {
	assert.Equal(t, "hello", safeTrunc("hello", 10))
	assert.Equal(t, "hel…", safeTrunc("hello world", 4))
	assert.Equal(t, "", safeTrunc("hello", 0))
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 0.123, round3(0.12345))
	assert.Equal(t, 1.0, round3(0.9999))
}

func TestHasLexicalMention(t *testing.T) {
	t.Run("multi-word phrase substring match", func(t *testing.T) {
		assert.True(t, hasLexicalMention("the chosen one walked in", []string{"chosen one"}))
	})
	t.Run("single word boundary match", func(t *testing.T) {
		assert.True(t, hasLexicalMention("a prophecy unfolds", []string{"prophecy"}))
		assert.False(t, hasLexicalMention("prophecies abound", []string{"prophecy"}))
	})
	t.Run("no match", func(t *testing.T) {
		assert.False(t, hasLexicalMention("nothing relevant here", []string{"chosen one"}))
	})
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	switch {
	case text == "":
		return []float32{0, 0}, nil
	default:
		// Deterministic pseudo-embedding: hash-free, just derived from length parity.
		if len(text)%2 == 0 {
			return []float32{1, 0}, nil
		}
		return []float32{0, 1}, nil
	}
}

type fakeReasoner struct {
	response string
	err      error
}

func (f fakeReasoner) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	return f.response, f.err
}
func (f fakeReasoner) Model() string { return "fake-model" }

func TestChooseSupportAndSanityFallsBackToKNNOnUnparseableReasoner(t *testing.T) {
	ix, err := vectorindex.Open("", "rerank-test-chunks")
	require.NoError(t, err)
	docs := []vectorindex.Document{
		{ID: "c1", Text: "the chosen one confronted her destiny", Embedding: []float32{1, 0}, Metadata: map[string]string{"work_id": "w1"}},
		{ID: "c2", Text: "unrelated filler text about weather", Embedding: []float32{0, 1}, Metadata: map[string]string{"work_id": "w1"}},
	}
	require.NoError(t, ix.Upsert(context.Background(), docs))

	r := New(fakeEmbedder{}, fakeReasoner{response: "not valid json"}, Params{
		TopK: 2, KeepM: 1, DocCharMax: 200, DownweightNoMention: 0.55, SemSimThreshold: 0.36,
	})

	tropes := map[string]tropeschema.Trope{
		"t1": {ID: "t1", Name: "Chosen One", Summary: "destined hero", Aliases: []string{"destined one"}},
	}

	res, err := r.ChooseSupportAndSanity(context.Background(), "w1", "a scene about destiny", ix, nil, tropes, []string{"t1"})
	require.NoError(t, err)
	require.Len(t, res.ChosenChunkIDs, 1)
	assert.Equal(t, "fallback=knn", res.Notes)
	require.Len(t, res.Sanity, 1)
	assert.Equal(t, "t1", res.Sanity[0].TropeID)
}

func TestChooseSupportAndSanityUsesReasonerChoice(t *testing.T) {
	ix, err := vectorindex.Open("", "rerank-test-chunks-2")
	require.NoError(t, err)
	docs := []vectorindex.Document{
		{ID: "c1", Text: "evidence chunk one", Embedding: []float32{1, 0}, Metadata: map[string]string{"work_id": "w1"}},
		{ID: "c2", Text: "evidence chunk two", Embedding: []float32{0, 1}, Metadata: map[string]string{"work_id": "w1"}},
	}
	require.NoError(t, ix.Upsert(context.Background(), docs))

	r := New(fakeEmbedder{}, fakeReasoner{response: `{"support_ids": ["c2"], "notes": "most relevant"}`}, Params{
		TopK: 2, KeepM: 1, DocCharMax: 200, DownweightNoMention: 0.55, SemSimThreshold: 0.36,
	})

	res, err := r.ChooseSupportAndSanity(context.Background(), "w1", "scene text", ix, nil, map[string]tropeschema.Trope{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, res.ChosenChunkIDs)
	assert.Equal(t, "most relevant", res.Notes)
}
