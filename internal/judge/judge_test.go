package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ljramones/trope-miner/internal/rerank"
	"github.com/ljramones/trope-miner/internal/tropeschema"
	"github.com/ljramones/trope-miner/internal/vectorindex"
)

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

type scriptedReasoner struct {
	responses []string
	i         int
	model     string
}

func (s *scriptedReasoner) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	if s.i >= len(s.responses) {
		return "", nil
	}
	r := s.responses[s.i]
	s.i++
	return r, nil
}
func (s *scriptedReasoner) Model() string { return s.model }

type fakeSupportStore struct {
	sceneSupport      []tropeschema.SceneSupport
	deletedScenes     []string
	supportSelections []tropeschema.SupportSelection
	sanity            []tropeschema.TropeSanity
}

func newFakeSupportStore() *fakeSupportStore { return &fakeSupportStore{} }

func (f *fakeSupportStore) UpsertSceneSupport(ctx context.Context, ss tropeschema.SceneSupport) error {
	f.sceneSupport = append(f.sceneSupport, ss)
	return nil
}

func (f *fakeSupportStore) DeleteSupportSelections(ctx context.Context, sceneID string) error {
	f.deletedScenes = append(f.deletedScenes, sceneID)
	return nil
}

func (f *fakeSupportStore) UpsertSupportSelection(ctx context.Context, sel tropeschema.SupportSelection) error {
	f.supportSelections = append(f.supportSelections, sel)
	return nil
}

func (f *fakeSupportStore) UpsertTropeSanity(ctx context.Context, ts tropeschema.TropeSanity) error {
	f.sanity = append(f.sanity, ts)
	return nil
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams(0.3)
	assert.Equal(t, 8, p.TropeTopK)
	assert.Equal(t, 0.3, p.Threshold)
	assert.Equal(t, 4000, p.SceneMaxChars)
}

func TestJudgeSceneReturnsNilWhenNoCandidates(t *testing.T) {
	tropeIx, err := vectorindex.Open("", "judge-test-tropes-empty")
	require.NoError(t, err)

	reason := &scriptedReasoner{model: "m1"}
	rr := rerank.New(fakeEmbedder{vec: []float32{1, 0}}, reason, rerank.Params{TopK: 4, KeepM: 2, DocCharMax: 200, DownweightNoMention: 0.55, SemSimThreshold: 0.36})
	j := New(reason, fakeEmbedder{vec: []float32{1, 0}}, tropeIx, rr, nil, DefaultParams(0.25))

	scene := tropeschema.Scene{ID: "s1", CharStart: 0, CharEnd: 10}
	findings, err := j.JudgeScene(context.Background(), "w1", scene, "0123456789", nil, map[string]tropeschema.Trope{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, findings)
}

func TestJudgeSceneAppliesPriorAndThreshold(t *testing.T) {
	tropeIx, err := vectorindex.Open("", "judge-test-tropes")
	require.NoError(t, err)
	chunkIx, err := vectorindex.Open("", "judge-test-chunks")
	require.NoError(t, err)
	require.NoError(t, chunkIx.Upsert(context.Background(), []vectorindex.Document{
		{ID: "c1", Text: "the chosen one confronted her destiny", Embedding: []float32{1, 0}, Metadata: map[string]string{"work_id": "w1"}},
	}))
	globalChunkIx, err := vectorindex.Open("", "judge-test-chunks-global")
	require.NoError(t, err)

	tropes := map[string]tropeschema.Trope{
		"t1": {ID: "t1", Name: "Chosen One", Summary: "destined hero"},
		"t2": {ID: "t2", Name: "Red Herring", Summary: "a misleading clue"},
	}

	reason := &scriptedReasoner{
		model: "m1",
		responses: []string{
			`{"support_ids": ["c1"], "notes": "ok"}`,
			`[{"trope_id":"t1","confidence":0.9,"evidence_char_span":[0,10],"rationale":"clear match"},` +
				`{"trope_id":"t2","confidence":0.2,"evidence_char_span":[0,10],"rationale":"weak"}]`,
		},
	}

	emb := fakeEmbedder{vec: []float32{1, 0}}
	rr := rerank.New(emb, reason, rerank.Params{TopK: 1, KeepM: 1, DocCharMax: 200, DownweightNoMention: 0.5, SemSimThreshold: 0.9})
	st := newFakeSupportStore()
	j := New(reason, emb, tropeIx, rr, st, DefaultParams(0.25))

	scene := tropeschema.Scene{ID: "s1", CharStart: 0, CharEnd: 10}
	chunksByID := ChunkTextByID{"c1": {ID: "c1", Text: "the chosen one confronted her destiny"}}

	findings, err := j.JudgeScene(context.Background(), "w1", scene, "0123456789", []string{"t1", "t2"}, tropes, chunkIx, globalChunkIx, chunksByID)
	require.NoError(t, err)

	require.Len(t, findings, 1, "t2's raw confidence 0.2 should fall below the 0.25 threshold")
	assert.Equal(t, "t1", findings[0].TropeID)
	assert.Equal(t, tropeschema.LevelScene, findings[0].Level)
	assert.Equal(t, "w1", findings[0].WorkID)
	assert.Equal(t, "m1", findings[0].Model)
	assert.InDelta(t, 0.9, findings[0].Confidence, 1e-9)

	require.Len(t, st.sceneSupport, 1, "support choice must be persisted once per scene")
	assert.Equal(t, "s1", st.sceneSupport[0].SceneID)
	assert.Equal(t, []string{"c1"}, st.sceneSupport[0].SupportIDs)
	assert.Equal(t, []string{"s1"}, st.deletedScenes, "prior selections must be cleared before writing a fresh set")
	require.Len(t, st.supportSelections, 1)
	assert.Equal(t, 1, st.supportSelections[0].Rank, "ranks must be 1-based and contiguous")
	require.NotEmpty(t, st.sanity, "sanity priors must be persisted for every candidate trope")
}

func TestJudgeSceneSkipsUnknownTropeIDs(t *testing.T) {
	tropeIx, err := vectorindex.Open("", "judge-test-tropes-unknown")
	require.NoError(t, err)
	globalChunkIx, err := vectorindex.Open("", "judge-test-chunks-unknown")
	require.NoError(t, err)

	tropes := map[string]tropeschema.Trope{
		"t1": {ID: "t1", Name: "Chosen One"},
	}
	reason := &scriptedReasoner{
		model: "m1",
		responses: []string{
			`{"support_ids": [], "notes": "fallback=knn"}`,
			`[{"trope_id":"ghost","confidence":0.99,"evidence_char_span":[0,5],"rationale":"n/a"}]`,
		},
	}
	emb := fakeEmbedder{vec: []float32{1, 0}}
	rr := rerank.New(emb, reason, rerank.Params{TopK: 1, KeepM: 1, DocCharMax: 200, DownweightNoMention: 0.5, SemSimThreshold: 0.9})
	j := New(reason, emb, tropeIx, rr, nil, DefaultParams(0.1))

	scene := tropeschema.Scene{ID: "s1", CharStart: 0, CharEnd: 5}
	findings, err := j.JudgeScene(context.Background(), "w1", scene, "01234", []string{"t1"}, tropes, nil, globalChunkIx, nil)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
