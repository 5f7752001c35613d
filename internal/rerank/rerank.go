// Package rerank picks the most useful support chunks for a scene and
// computes lexical/semantic sanity priors for its candidate tropes:
// stage-1 KNN retrieval, stage-2 LLM rerank with a KNN fallback, and
// weight computation from lexical mention plus semantic affinity.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ljramones/trope-miner/internal/outputjson"
	"github.com/ljramones/trope-miner/internal/reasoner"
	"github.com/ljramones/trope-miner/internal/tropeschema"
	"github.com/ljramones/trope-miner/internal/vectorindex"
)

// Embedder is the subset of embedclient.Embedder rerank needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Params controls retrieval breadth, rerank keep count, and the sanity
// prior's thresholds.
type Params struct {
	TopK              int
	KeepM             int
	DocCharMax        int
	DownweightNoMention float64
	SemSimThreshold   float64
}

// Hit is one stage-1 retrieval result.
type Hit struct {
	ChunkID string
	Text    string
	Sim     float64 // 1 - distance, clamped to [0,1]
}

// TropeSanityMetric is the persisted (lex_ok, sem_sim, weight) triple for
// one trope in one scene.
type TropeSanityMetric struct {
	TropeID string
	LexOK   bool
	SemSim  float64
	Weight  float64
}

// Result is everything ChooseSupportAndSanity returns; persisting it is
// left to the caller.
type Result struct {
	ChosenChunkIDs []string
	Notes          string
	Stage1Scores   map[string]float64
	Stage2Scores   map[string]float64
	Sanity         []TropeSanityMetric
}

// Reranker wires an embedder, a chunk index, and a reasoner.
type Reranker struct {
	embedder Embedder
	reason   reasoner.Reasoner
	params   Params
}

func New(embedder Embedder, reason reasoner.Reasoner, params Params) *Reranker {
	return &Reranker{embedder: embedder, reason: reason, params: params}
}

// Params reports the retrieval/rerank parameters this Reranker was built
// with, so callers persisting a Result can record the K/M it was chosen
// under.
func (r *Reranker) Params() Params { return r.params }

// ChooseSupportAndSanity retrieves top-K chunks for sceneText (preferring
// a per-work chunk index, falling back to the global one filtered by
// work_id when the per-work collection is empty), asks the reasoner to
// keep the M most useful, and scores lexical/semantic sanity priors for
// each candidate trope.
func (r *Reranker) ChooseSupportAndSanity(
	ctx context.Context,
	workID string,
	sceneText string,
	perWorkIndex, globalIndex *vectorindex.Index,
	tropes map[string]tropeschema.Trope,
	candidateTropeIDs []string,
) (Result, error) {
	hits, err := r.retrieve(ctx, workID, sceneText, perWorkIndex, globalIndex)
	if err != nil {
		return Result{}, err
	}

	stage1 := make(map[string]float64, len(hits))
	for _, h := range hits {
		stage1[h.ChunkID] = h.Sim
	}

	chosen, notes, stage2, err := r.rerankWithLLM(ctx, sceneText, hits)
	if err != nil {
		return Result{}, err
	}

	idToText := make(map[string]string, len(hits))
	for _, h := range hits {
		idToText[h.ChunkID] = h.Text
	}
	var chosenTexts []string
	for _, id := range chosen {
		chosenTexts = append(chosenTexts, idToText[id])
	}

	sanity, err := r.sanityMetrics(ctx, sceneText, chosenTexts, tropes, candidateTropeIDs)
	if err != nil {
		return Result{}, err
	}

	return Result{
		ChosenChunkIDs: chosen,
		Notes:          notes,
		Stage1Scores:   stage1,
		Stage2Scores:   stage2,
		Sanity:         sanity,
	}, nil
}

// retrieve queries perWorkIndex first (when non-nil) and falls back to
// globalIndex filtered by work_id if the per-work query returns nothing.
func (r *Reranker) retrieve(ctx context.Context, workID, sceneText string, perWorkIndex, globalIndex *vectorindex.Index) ([]Hit, error) {
	qEmb, err := r.embedder.Embed(ctx, sceneText)
	if err != nil {
		return nil, err
	}

	var docs []vectorindex.ScoredDocument
	if perWorkIndex != nil {
		docs, err = perWorkIndex.Query(ctx, qEmb, r.params.TopK, nil)
		if err != nil || len(docs) == 0 {
			docs = nil
		}
	}
	if docs == nil {
		docs, err = globalIndex.Query(ctx, qEmb, r.params.TopK, map[string]string{"work_id": workID})
		if err != nil {
			return nil, err
		}
	}

	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		sim := float64(d.Similarity)
		if sim < 0 {
			sim = 0
		}
		if sim > 1 {
			sim = 1
		}
		hits = append(hits, Hit{ChunkID: d.ID, Text: d.Text, Sim: sim})
	}
	return hits, nil
}

type rerankResponse struct {
	SupportIDs []string `json:"support_ids"`
	Notes      string   `json:"notes"`
}

// rerankWithLLM asks the reasoner to choose the KeepM most useful
// snippets, falling back to plain KNN order when the response is empty
// or unparseable.
func (r *Reranker) rerankWithLLM(ctx context.Context, sceneText string, hits []Hit) ([]string, string, map[string]float64, error) {
	keepM := r.params.KeepM
	if keepM > len(hits) {
		keepM = len(hits)
	}

	type item struct {
		ID      string `json:"id"`
		KNN     float64 `json:"knn"`
		Len     int    `json:"len"`
		Snippet string `json:"snippet"`
	}
	items := make([]item, len(hits))
	for i, h := range hits {
		items[i] = item{ID: h.ChunkID, KNN: round3(h.Sim), Len: len(h.Text), Snippet: safeTrunc(strings.TrimSpace(h.Text), r.params.DocCharMax)}
	}
	itemsJSON, _ := json.MarshalIndent(items, "", "  ")

	prompt := fmt.Sprintf(`Scene (trimmed):
"""%s"""

Candidate snippets:
Each item has: id, knn (KNN similarity from 0..1), len, snippet.
%s

Task:
- Choose the %d snippets that are MOST directly useful as evidence.
- De-prioritize generic background that doesn't bear on trope judgments, even if long.
- When ties, prefer higher 'knn'.
- Return STRICT JSON ONLY:

{
  "support_ids": ["<id1>", "<id2>", "..."],
  "notes": "one short reason describing why these were chosen"
}
`, safeTrunc(sceneText, 2500), string(itemsJSON), keepM)

	allowed := make(map[string]bool, len(hits))
	for _, h := range hits {
		allowed[h.ChunkID] = true
	}

	raw, err := r.reason.Complete(ctx, prompt, 0.2)
	var chosen []string
	notes := ""
	if err == nil {
		var resp rerankResponse
		if jerr := outputjson.ExtractAndUnmarshal(raw, &resp); jerr == nil {
			for _, id := range resp.SupportIDs {
				if allowed[id] {
					chosen = append(chosen, id)
				}
			}
			notes = strings.TrimSpace(resp.Notes)
		}
	}

	if len(chosen) == 0 {
		for i := 0; i < keepM; i++ {
			chosen = append(chosen, hits[i].ChunkID)
		}
		if notes == "" {
			notes = "fallback=knn"
		}
	}
	if len(chosen) > keepM {
		chosen = chosen[:keepM]
	}

	stage2 := make(map[string]float64, len(chosen))
	m := len(chosen)
	for i, id := range chosen {
		stage2[id] = float64(m-i) / float64(m)
	}
	return chosen, notes, stage2, nil
}

var wsRe = regexp.MustCompile(`\s+`)

func normalize(s string) string {
	return wsRe.ReplaceAllString(strings.ToLower(s), " ")
}

func hasLexicalMention(text string, phrases []string) bool {
	s := normalize(text)
	for _, p := range phrases {
		p2 := strings.TrimSpace(normalize(p))
		if p2 == "" {
			continue
		}
		if strings.Contains(p2, " ") {
			if strings.Contains(s, p2) {
				return true
			}
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(p2) + `\b`)
		if err == nil && re.MatchString(s) {
			return true
		}
	}
	return false
}

// sanityMetrics computes per-trope (lex_ok, sem_sim, weight): weight is
// 1.0 when either a lexical mention is found or semantic similarity
// clears SemSimThreshold, else DownweightNoMention.
func (r *Reranker) sanityMetrics(ctx context.Context, sceneText string, supportTexts []string, tropes map[string]tropeschema.Trope, candidateTropeIDs []string) ([]TropeSanityMetric, error) {
	supportJoined := strings.Join(supportTexts, " ")

	var wanted []string
	for _, tid := range candidateTropeIDs {
		if _, ok := tropes[tid]; ok {
			wanted = append(wanted, tid)
		}
	}

	sceneEmb, err := r.embedder.Embed(ctx, sceneText)
	if err != nil {
		return nil, err
	}
	var supportEmb []float32
	if strings.TrimSpace(supportJoined) != "" {
		supportEmb, err = r.embedder.Embed(ctx, supportJoined)
		if err != nil {
			return nil, err
		}
	}

	tropeVecs := make(map[string][]float32, len(wanted))
	for _, tid := range wanted {
		t := tropes[tid]
		vec, err := r.embedder.Embed(ctx, t.Name+". "+t.Summary)
		if err != nil {
			return nil, err
		}
		tropeVecs[tid] = vec
	}

	out := make([]TropeSanityMetric, 0, len(candidateTropeIDs))
	for _, tid := range candidateTropeIDs {
		t, ok := tropes[tid]
		if !ok {
			continue
		}
		phrases := append([]string{t.Name}, t.Aliases...)
		lex := hasLexicalMention(sceneText, phrases) || hasLexicalMention(supportJoined, phrases)

		sem := 0.0
		if vec, ok := tropeVecs[tid]; ok && len(sceneEmb) > 0 && len(supportEmb) > 0 {
			sem = math.Max(cosine(sceneEmb, vec), cosine(supportEmb, vec))
		}

		weight := r.params.DownweightNoMention
		if lex || sem >= r.params.SemSimThreshold {
			weight = 1.0
		}

		out = append(out, TropeSanityMetric{TropeID: tid, LexOK: lex, SemSim: sem, Weight: weight})
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
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
	return math.Round(f*1000) / 1000
}
