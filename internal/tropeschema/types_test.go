package tropeschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTropeQueryText(t *testing.T) {
	t.Run("uses summary when present", func(t *testing.T) {
		tr := Trope{Name: "Chosen One", Summary: "A reluctant hero is destined to save the world."}
		assert.Equal(t, "Chosen One. A reluctant hero is destined to save the world.", tr.QueryText())
	})

	t.Run("falls back to aliases when no summary", func(t *testing.T) {
		tr := Trope{Name: "Chosen One", Aliases: []string{"the prophecy", "destined hero"}}
		assert.Equal(t, "Chosen One. the prophecy; destined hero", tr.QueryText())
	})

	t.Run("caps fallback aliases at three", func(t *testing.T) {
		tr := Trope{Name: "Chosen One", Aliases: []string{"a", "b", "c", "d", "e"}}
		assert.Equal(t, "Chosen One. a; b; c", tr.QueryText())
	})

	t.Run("falls back to bare name with no summary or aliases", func(t *testing.T) {
		tr := Trope{Name: "Chosen One"}
		assert.Equal(t, "Chosen One", tr.QueryText())
	})
}

func TestCandidateSourceConstants(t *testing.T) {
	assert.Equal(t, CandidateSource("gazetteer"), SourceGazetteer)
	assert.Equal(t, CandidateSource("semantic"), SourceSemantic)
}

func TestFindingLevelConstants(t *testing.T) {
	assert.Equal(t, FindingLevel("scene"), LevelScene)
	assert.Equal(t, FindingLevel("span"), LevelSpan)
}
