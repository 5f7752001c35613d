// Package judge decides which tropes are present in a scene: it builds a
// candidate shortlist (gazetteer hits plus a trope-catalog vector query),
// chooses support snippets and sanity priors via internal/rerank,
// persists that choice, and prompts the reasoner for a strict-JSON
// verdict list, producing findings with the prior-adjusted confidence.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ljramones/trope-miner/internal/outputjson"
	"github.com/ljramones/trope-miner/internal/reasoner"
	"github.com/ljramones/trope-miner/internal/rerank"
	"github.com/ljramones/trope-miner/internal/tropeschema"
	"github.com/ljramones/trope-miner/internal/vectorindex"
)

const judgeSystem = "You are a precise trope-mining assistant. " +
	"Given a scene, candidate trope names, and their short definitions, " +
	"decide which tropes are PRESENT in the scene. Be conservative and evidence-based."

const judgeInstructions = "Return a JSON array. Each item: {\n" +
	"  \"trope_id\": string,                  # trope.id from catalog\n" +
	"  \"confidence\": number,                # 0..1 calibrated\n" +
	"  \"evidence_char_span\": [start,end],   # offsets into work.norm_text\n" +
	"  \"rationale\": string\n" +
	"}\n" +
	"Only include tropes that match the scene with confidence >= THRESHOLD."

// Embedder is the subset of embedclient.Embedder judging needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SupportStore is the persistence surface JudgeScene needs to make a
// scene's support selection and sanity priors durable before its findings
// are written; satisfied by *internal/store.Store.
type SupportStore interface {
	UpsertSceneSupport(ctx context.Context, ss tropeschema.SceneSupport) error
	DeleteSupportSelections(ctx context.Context, sceneID string) error
	UpsertSupportSelection(ctx context.Context, sel tropeschema.SupportSelection) error
	UpsertTropeSanity(ctx context.Context, ts tropeschema.TropeSanity) error
}

// Params controls shortlist breadth and the acceptance threshold.
type Params struct {
	TropeTopK int
	Threshold float64
	SceneMaxChars int // scene text budget embedded for the catalog query
}

func DefaultParams(threshold float64) Params {
	return Params{TropeTopK: 8, Threshold: threshold, SceneMaxChars: 4000}
}

// verdictItem is one reasoner-emitted judgment, before prior adjustment.
type verdictItem struct {
	TropeID           string    `json:"trope_id"`
	Confidence        float64   `json:"confidence"`
	EvidenceCharSpan  []int     `json:"evidence_char_span"`
	Rationale         string    `json:"rationale"`
}

// Judge wires a reasoner, an embedder, the trope-catalog vector index,
// and a reranker.
type Judge struct {
	reason   reasoner.Reasoner
	embedder Embedder
	tropeIx  *vectorindex.Index
	rerank   *rerank.Reranker
	support  SupportStore
	params   Params
}

func New(reason reasoner.Reasoner, embedder Embedder, tropeIx *vectorindex.Index, rr *rerank.Reranker, support SupportStore, params Params) *Judge {
	return &Judge{reason: reason, embedder: embedder, tropeIx: tropeIx, rerank: rr, support: support, params: params}
}

// ChunkTextByID is the subset of chunk data the judge needs to recover
// support-snippet text.
type ChunkTextByID map[string]tropeschema.Chunk

// JudgeScene produces the findings for one scene and returns them; the
// caller persists the findings, while JudgeScene itself persists the
// scene's support selection and trope sanity rows. gazetteerCandidateTropeIDs is the scene's existing
// trope_candidate shortlist (gazetteer ∪ semantic seeding); the catalog
// vector query widens it further.
func (j *Judge) JudgeScene(
	ctx context.Context,
	workID string,
	scene tropeschema.Scene,
	fullNormText string,
	gazetteerCandidateTropeIDs []string,
	allTropes map[string]tropeschema.Trope,
	perWorkChunkIndex, globalChunkIndex *vectorindex.Index,
	chunksByID ChunkTextByID,
) ([]tropeschema.TropeFinding, error) {
	sceneText := fullNormText[scene.CharStart:scene.CharEnd]

	candIDs := make(map[string]bool, len(gazetteerCandidateTropeIDs))
	for _, id := range gazetteerCandidateTropeIDs {
		candIDs[id] = true
	}

	sceneForSem := sceneText
	if len(sceneForSem) > j.params.SceneMaxChars {
		sceneForSem = sceneForSem[:j.params.SceneMaxChars]
	}
	if qEmb, err := j.embedder.Embed(ctx, sceneForSem); err == nil {
		hits, err := j.tropeIx.Query(ctx, qEmb, j.params.TropeTopK, nil)
		if err == nil {
			for _, h := range hits {
				candIDs[h.ID] = true
			}
		}
	}

	avail := make([]string, 0, len(candIDs))
	for id := range candIDs {
		if _, ok := allTropes[id]; ok {
			avail = append(avail, id)
		}
	}
	sort.Strings(avail)
	if len(avail) == 0 {
		return nil, nil
	}

	result, err := j.rerank.ChooseSupportAndSanity(ctx, workID, sceneText, perWorkChunkIndex, globalChunkIndex, allTropes, avail)
	if err != nil {
		return nil, err
	}

	if err := j.persistSupport(ctx, scene.ID, result); err != nil {
		return nil, err
	}

	var supportTexts []string
	for _, cid := range result.ChosenChunkIDs {
		if c, ok := chunksByID[cid]; ok && strings.TrimSpace(c.Text) != "" {
			supportTexts = append(supportTexts, safeTrunc(c.Text, 480))
		}
	}

	weights := make(map[string]float64, len(result.Sanity))
	for _, m := range result.Sanity {
		weights[m.TropeID] = m.Weight
	}

	prompt := j.buildPrompt(scene, sceneText, avail, allTropes, weights, supportTexts)

	raw, err := j.reason.Complete(ctx, prompt, 0.2)
	if err != nil {
		return nil, err
	}

	var items []verdictItem
	_ = outputjson.ExtractAndUnmarshal(raw, &items)

	n := len(fullNormText)
	var findings []tropeschema.TropeFinding
	for _, it := range items {
		if _, ok := allTropes[it.TropeID]; !ok {
			continue
		}
		w := weights[it.TropeID]
		if w == 0 {
			w = 1.0
		}
		adj := clamp01(it.Confidence * w)
		if adj < j.params.Threshold {
			continue
		}

		evS, evE := scene.CharStart, scene.CharEnd
		translated := false
		if len(it.EvidenceCharSpan) == 2 {
			evS, evE = it.EvidenceCharSpan[0], it.EvidenceCharSpan[1]
			// The prompt asks for offsets into work.norm_text, but a model
			// prompted with only the scene's text sometimes echoes a
			// scene-relative offset instead. A span that fits entirely
			// within the scene's length and stays well under the prompt's
			// scene-text budget is almost certainly one of those, so it is
			// translated to work-absolute before being clamped.
			sceneLen := scene.CharEnd - scene.CharStart
			if evS >= 0 && evE >= 0 && evS <= sceneLen && evE <= sceneLen && evS < 1024 && evE < 1024 {
				evS += scene.CharStart
				evE += scene.CharStart
				translated = true
			}
		}
		evS = clampInt(evS, 0, n)
		evE = clampInt(evE, 0, n)
		if evE < evS {
			evS, evE = evE, evS
		}

		rationale := strings.TrimSpace(it.Rationale)
		if w != 1.0 {
			rationale = strings.TrimSpace(fmt.Sprintf("%s [prior=%.2f, raw=%.2f, adj=%.2f]", rationale, w, it.Confidence, adj))
		}
		if translated {
			rationale = strings.TrimSpace(rationale + " [span translated to scene offset]")
		}

		findings = append(findings, tropeschema.TropeFinding{
			ID:            uuid.NewString(),
			WorkID:        workID,
			SceneID:       scene.ID,
			TropeID:       it.TropeID,
			Level:         tropeschema.LevelScene,
			Confidence:    adj,
			EvidenceStart: evS,
			EvidenceEnd:   evE,
			Rationale:     rationale,
			Model:         j.reason.Model(),
		})
	}
	return findings, nil
}

// persistSupport makes one scene's support choice and sanity priors
// durable: a scene_support summary row, one support_selection row per
// chosen chunk (rank 1..M, contiguous, prior selections cleared first so
// reruns don't leave stale ranks behind), and one trope_sanity row per
// candidate trope.
func (j *Judge) persistSupport(ctx context.Context, sceneID string, result rerank.Result) error {
	if j.support == nil {
		return nil
	}

	params := j.rerank.Params()
	if err := j.support.UpsertSceneSupport(ctx, tropeschema.SceneSupport{
		SceneID:    sceneID,
		SupportIDs: result.ChosenChunkIDs,
		Notes:      result.Notes,
		Model:      j.reason.Model(),
		K:          params.TopK,
		M:          params.KeepM,
	}); err != nil {
		return err
	}

	if err := j.support.DeleteSupportSelections(ctx, sceneID); err != nil {
		return err
	}
	for i, chunkID := range result.ChosenChunkIDs {
		if err := j.support.UpsertSupportSelection(ctx, tropeschema.SupportSelection{
			SceneID:     sceneID,
			ChunkID:     chunkID,
			Rank:        i + 1,
			Stage1Score: result.Stage1Scores[chunkID],
			Stage2Score: result.Stage2Scores[chunkID],
			Picked:      true,
		}); err != nil {
			return err
		}
	}

	for _, m := range result.Sanity {
		if err := j.support.UpsertTropeSanity(ctx, tropeschema.TropeSanity{
			SceneID: sceneID,
			TropeID: m.TropeID,
			LexOK:   m.LexOK,
			SemSim:  m.SemSim,
			Weight:  m.Weight,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (j *Judge) buildPrompt(scene tropeschema.Scene, sceneText string, avail []string, tropes map[string]tropeschema.Trope, weights map[string]float64, supportTexts []string) string {
	var defs strings.Builder
	for _, tid := range avail {
		t := tropes[tid]
		w := weights[tid]
		if w == 0 {
			w = 1.0
		}
		fmt.Fprintf(&defs, "- %s :: %s — %s  (PRIOR=%.2f)\n", tid, t.Name, t.Summary, w)
	}

	priorMap := make(map[string]float64, len(avail))
	for _, tid := range avail {
		w := weights[tid]
		if w == 0 {
			w = 1.0
		}
		priorMap[tid] = round3(w)
	}
	priorJSON, _ := json.Marshal(priorMap)
	availJSON, _ := json.Marshal(avail)

	supportBlock := "(none)"
	if len(supportTexts) > 0 {
		supportBlock = strings.Join(supportTexts, "\n---\n")
	}

	instructions := strings.ReplaceAll(judgeInstructions, "THRESHOLD", fmt.Sprintf("%v", j.params.Threshold))

	return fmt.Sprintf(
		"SYSTEM: %s\n\nSCENE [chars %d-%d] (absolute offsets into work.norm_text):\n%s\n\nSupport snippets (chosen via rerank):\n%s\n\nCANDIDATE TROPES (id :: name — summary, annotated with PRIOR):\n%sAVAILABLE_TROPE_IDS (use only these in output):\n%s\n\nPRIOR_WEIGHTS (hint; multiply your internal score by these priors):\n%s\n\n%s Also: Use only values from AVAILABLE_TROPE_IDS for 'trope_id'. Do not invent new ids or names.\n",
		judgeSystem, scene.CharStart, scene.CharEnd, safeTrunc(sceneText, 2400),
		supportBlock, defs.String(), string(availJSON), string(priorJSON), instructions,
	)
}

func clamp01(f float64) float64 {
	return float64(clampFloat(f, 0, 1))
}

func clampFloat(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func safeTrunc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	return s[:n-1] + "…"
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
