package verifier

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 0.32, p.Threshold)
	assert.Equal(t, 0.7, p.Alpha)
	assert.Equal(t, 0.05, p.MinGain)
	assert.Equal(t, 2, p.MaxSentences)
	assert.Equal(t, 280, p.MaxChars)
	assert.Equal(t, 60, p.AntiAliasWindow)
	assert.Equal(t, 0.6, p.NegDownweight)
	assert.Equal(t, 0.75, p.MetaDownweight)
	assert.Equal(t, 0.5, p.AntiAliasDownweight)
}

func TestClassify(t *testing.T) {
	v := New(nil, DefaultParams())
	aliasPattern := regexp.MustCompile(`(?i)\bchosen one\b`)

	t.Run("below threshold is low_sim regardless of text", func(t *testing.T) {
		assert.Equal(t, FlagLowSim, v.classify("anything at all", 0.1, aliasPattern))
	})

	t.Run("negation cue", func(t *testing.T) {
		assert.Equal(t, FlagNegationCue, v.classify("he was never the chosen one", 0.5, aliasPattern))
	})

	t.Run("anti-alias cue", func(t *testing.T) {
		assert.Equal(t, FlagAntiAlias, v.classify("she was the anti-chosen one of her generation", 0.5, aliasPattern))
	})

	t.Run("meta cue", func(t *testing.T) {
		assert.Equal(t, FlagMetaCue, v.classify("this is a clear parody of the chosen one trope", 0.5, aliasPattern))
	})

	t.Run("negation and anti-alias both present", func(t *testing.T) {
		assert.Equal(t, FlagNegationAnti, v.classify("he was never the anti-chosen one", 0.5, aliasPattern))
	})

	t.Run("clean text is ok", func(t *testing.T) {
		assert.Equal(t, FlagOK, v.classify("she accepted her destiny as the chosen one", 0.5, aliasPattern))
	})

	t.Run("nil alias pattern disables anti-alias and negation-near-alias checks", func(t *testing.T) {
		assert.Equal(t, FlagOK, v.classify("a plain sentence describing the setting", 0.5, nil))
	})
}

func TestApply(t *testing.T) {
	v := New(nil, DefaultParams())

	t.Run("ok flag always passes through unchanged", func(t *testing.T) {
		conf, del := v.Apply(PolicyDelete, FlagOK, 0.8)
		assert.Equal(t, 0.8, conf)
		assert.False(t, del)
	})

	t.Run("flag-only never changes confidence", func(t *testing.T) {
		conf, del := v.Apply(PolicyFlagOnly, FlagNegationCue, 0.8)
		assert.Equal(t, 0.8, conf)
		assert.False(t, del)
	})

	t.Run("delete marks for removal regardless of confidence", func(t *testing.T) {
		conf, del := v.Apply(PolicyDelete, FlagMetaCue, 0.8)
		assert.Equal(t, 0.8, conf)
		assert.True(t, del)
	})

	t.Run("downweight applies the flag's factor", func(t *testing.T) {
		conf, del := v.Apply(PolicyDownweight, FlagNegationCue, 0.8)
		assert.InDelta(t, 0.8*0.6, conf, 1e-9)
		assert.False(t, del)
	})

	t.Run("downweight for negation_anti takes the stricter of the two factors", func(t *testing.T) {
		conf, _ := v.Apply(PolicyDownweight, FlagNegationAnti, 1.0)
		assert.InDelta(t, 0.5, conf, 1e-9) // min(NegDownweight=0.6, AntiAliasDownweight=0.5)
	})

	t.Run("downweight clamps to 1.0", func(t *testing.T) {
		conf, _ := v.Apply(PolicyDownweight, FlagLowSim, 1.5)
		assert.Equal(t, 1.0, conf)
	})
}

type keyedEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
}

// Embed returns the vector of the first key found as a substring of text
// (either direction), so tests don't depend on exact byte offsets.
func (k keyedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	for key, v := range k.vectors {
		if strings.Contains(text, key) || strings.Contains(key, text) {
			return v, nil
		}
	}
	return k.fallback, nil
}

func TestVerifySpanEmptySceneYieldsLowSim(t *testing.T) {
	v := New(keyedEmbedder{fallback: []float32{1, 0}}, DefaultParams())
	out, err := v.VerifySpan(context.Background(), Input{
		WorkText: "short", SceneStart: 10, SceneEnd: 10, EvidenceStart: 0, EvidenceEnd: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, FlagLowSim, out.Flag)
	assert.Equal(t, 0, out.EvidenceStart)
	assert.Equal(t, 5, out.EvidenceEnd)
}

func TestVerifySpanKeepsOriginalSpanWhenItScoresBest(t *testing.T) {
	work := "The chosen one walked into the hall. Nothing else happened there at all."
	emb := keyedEmbedder{
		fallback: []float32{0, 1},
		vectors: map[string][]float32{
			"Chosen One. destined hero": {1, 0},
			"chosen one walked":         {1, 0},
		},
	}
	v := New(emb, Params{Threshold: 0.1, Alpha: 1.0, MinGain: 0.05, MaxSentences: 1, MaxChars: 280, AntiAliasWindow: 60})

	out, err := v.VerifySpan(context.Background(), Input{
		WorkText: work, SceneStart: 0, SceneEnd: len(work),
		EvidenceStart: 0, EvidenceEnd: 30,
		TropeName: "Chosen One", TropeSummary: "destined hero",
	})
	require.NoError(t, err)
	assert.Equal(t, FlagOK, out.Flag)
	assert.GreaterOrEqual(t, out.Score, 0.1)
	assert.Equal(t, 0, out.EvidenceStart)
	assert.Equal(t, 30, out.EvidenceEnd)
}
