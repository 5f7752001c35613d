// Package pipeline orchestrates one work through every stage of trope
// mining: ingest (decode/normalize/segment/chunk), embed and index, seed
// candidates (gazetteer and semantic), judge scenes, and verify findings.
// It wires the embedder, reasoner, vector indexes, and store into one
// object so callers drive a work through the whole run with a handful of
// method calls.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ljramones/trope-miner/internal/embedclient"
	"github.com/ljramones/trope-miner/internal/gazetteer"
	"github.com/ljramones/trope-miner/internal/judge"
	"github.com/ljramones/trope-miner/internal/minerconfig"
	"github.com/ljramones/trope-miner/internal/reasoner"
	"github.com/ljramones/trope-miner/internal/rerank"
	"github.com/ljramones/trope-miner/internal/seeder"
	"github.com/ljramones/trope-miner/internal/store"
	"github.com/ljramones/trope-miner/internal/textstore"
	"github.com/ljramones/trope-miner/internal/tropeschema"
	"github.com/ljramones/trope-miner/internal/vectorindex"
	"github.com/ljramones/trope-miner/internal/verifier"
)

// Pipeline wires every component needed to ingest, seed, judge, and
// verify one work.
type Pipeline struct {
	cfg      *minerconfig.Config
	store    *store.Store
	embedder *embedclient.OllamaEmbedder
	reason   reasoner.Reasoner
	chunkReg *vectorindex.Registry
	tropeIx  *vectorindex.Index
	gaz      *gazetteer.Seeder
	sem      *seeder.Seeder
	rr       *rerank.Reranker
	jd       *judge.Judge
	vf       *verifier.Verifier
	log      *slog.Logger
}

// New builds a Pipeline from configuration, opening the store and vector
// indexes and constructing every downstream component.
func New(cfg *minerconfig.Config, logger *slog.Logger) (*Pipeline, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	embedder := embedclient.NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.EmbedModel, secondsToDuration(cfg.EmbedTimeoutSeconds))
	reason := reasoner.NewOllamaReasoner(cfg.OllamaBaseURL, cfg.ReasonerModel, secondsToDuration(cfg.ReasonerTimeoutSeconds))

	chunkReg, err := vectorindex.NewRegistry(cfg.ChromemPath, cfg.ChunkCollection, cfg.PerWorkCollections)
	if err != nil {
		return nil, err
	}
	tropeIx, err := vectorindex.Open(cfg.ChromemPath, cfg.TropeCollection)
	if err != nil {
		return nil, err
	}

	gaz := gazetteer.NewSeeder(cfg.GazetteerMinAliasLen, cfg.GazetteerMaxPerTrope, cfg.AntiWindow)
	sem := seeder.New(embedder, seeder.Params{Tau: cfg.SemTau, TopN: cfg.SemTopN, PerSceneCap: cfg.SemPerSceneCap})
	rr := rerank.New(embedder, reason, rerank.Params{
		TopK: cfg.RerankTopK, KeepM: cfg.RerankKeepM, DocCharMax: cfg.RerankDocCharMax,
		DownweightNoMention: cfg.DownweightNoMention, SemSimThreshold: cfg.SemSimThreshold,
	})
	jd := judge.New(reason, embedder, tropeIx, rr, st, judge.DefaultParams(cfg.Threshold))
	vf := verifier.New(embedder, verifier.Params{
		Threshold: cfg.VerifyThreshold, Alpha: cfg.VerifyAlpha, MinGain: cfg.VerifyMinGain,
		MaxSentences: cfg.VerifyMaxSentences, MaxChars: cfg.VerifyMaxChars,
		AntiAliasWindow: cfg.VerifyWindow, NegDownweight: cfg.NegDownweight,
		MetaDownweight: cfg.MetaDownweight, AntiAliasDownweight: cfg.AntiAliasDownweight,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg: cfg, store: st, embedder: embedder, reason: reason,
		chunkReg: chunkReg, tropeIx: tropeIx, gaz: gaz, sem: sem, rr: rr, jd: jd, vf: vf,
		log: logger,
	}, nil
}

func (p *Pipeline) Close() error { return p.store.Close() }

func secondsToDuration(s int) time.Duration { return time.Duration(s) * time.Second }

// IngestResult summarizes one work's ingest stage.
type IngestResult struct {
	WorkID   string
	Chapters int
	Scenes   int
	Chunks   int
}

// Ingest decodes raw bytes, normalizes, detects chapters/scenes, chunks,
// and persists everything for a new work, then indexes each chunk's
// embedding into the work's chunk collection.
func (p *Pipeline) Ingest(ctx context.Context, title, author, filename string, raw []byte) (IngestResult, error) {
	text, err := textstore.Decode(raw, filename)
	if err != nil {
		return IngestResult{}, err
	}
	norm := textstore.Normalize(text)

	workID := uuid.NewString()
	work := tropeschema.Work{ID: workID, Title: title, Author: author, RawText: text, NormText: norm, CharCount: len(norm)}
	if err := p.store.InsertWork(ctx, work); err != nil {
		return IngestResult{}, err
	}

	chapterSpans := textstore.DetectChapters(norm)
	chapters := make([]tropeschema.Chapter, len(chapterSpans))
	for i, cs := range chapterSpans {
		chapters[i] = tropeschema.Chapter{
			ID: uuid.NewString(), WorkID: workID, Idx: cs.Idx, Title: cs.Title,
			CharStart: cs.CharStart, CharEnd: cs.CharEnd,
		}
	}
	if err := p.store.InsertChapters(ctx, chapters); err != nil {
		return IngestResult{}, err
	}

	var scenes []tropeschema.Scene
	sceneIdx := 0
	for i, cs := range chapterSpans {
		chapterText := norm[cs.CharStart:cs.CharEnd]
		for _, ss := range textstore.DetectScenes(chapterText, cs.CharStart) {
			scenes = append(scenes, tropeschema.Scene{
				ID: uuid.NewString(), WorkID: workID, ChapterID: chapters[i].ID,
				Idx: sceneIdx, CharStart: ss.CharStart, CharEnd: ss.CharEnd,
			})
			sceneIdx++
		}
	}
	if err := p.store.InsertScenes(ctx, scenes); err != nil {
		return IngestResult{}, err
	}

	params := textstore.DefaultChunkParams()
	var chunks []tropeschema.Chunk
	chunkIdx := 0
	for _, sc := range scenes {
		sceneText := norm[sc.CharStart:sc.CharEnd]
		for _, cs := range textstore.ChunkScene(sceneText, sc.CharStart, params) {
			chunks = append(chunks, tropeschema.Chunk{
				ID: uuid.NewString(), WorkID: workID, SceneID: sc.ID, Idx: chunkIdx,
				CharStart: cs.CharStart, CharEnd: cs.CharEnd, TokenStart: cs.TokenStart, TokenEnd: cs.TokenEnd,
				Text: cs.Text, SHA256: textstore.SHA256Hex(cs.Text),
			})
			chunkIdx++
		}
	}
	if err := p.store.InsertChunks(ctx, chunks); err != nil {
		return IngestResult{}, err
	}

	if err := p.indexChunks(ctx, workID, chunks); err != nil {
		return IngestResult{}, err
	}

	return IngestResult{WorkID: workID, Chapters: len(chapters), Scenes: len(scenes), Chunks: len(chunks)}, nil
}

func (p *Pipeline) indexChunks(ctx context.Context, workID string, chunks []tropeschema.Chunk) error {
	ix, err := p.chunkReg.ChunkIndex(workID)
	if err != nil {
		return err
	}
	docs := make([]vectorindex.Document, 0, len(chunks))
	for _, c := range chunks {
		vec, err := p.embedder.Embed(ctx, c.Text)
		if err != nil {
			return err
		}
		if err := p.store.UpsertEmbeddingRef(ctx, tropeschema.EmbeddingRef{
			ChunkID: c.ID, Collection: ix.Name(), Model: p.embedder.Model(), Dim: len(vec), VectorID: c.ID,
		}); err != nil {
			return err
		}
		docs = append(docs, vectorindex.Document{
			ID: c.ID, Text: c.Text, Embedding: vec,
			Metadata: map[string]string{"work_id": workID, "scene_id": c.SceneID, "chunk_id": c.ID},
		})
	}
	return ix.Upsert(ctx, docs)
}

// SeedCandidates runs both gazetteer and semantic candidate seeding for
// a work, returning the counts inserted.
func (p *Pipeline) SeedCandidates(ctx context.Context, workID string) (gazetteerCount, semanticCount int, err error) {
	tropes, err := p.store.ListTropes(ctx)
	if err != nil {
		return 0, 0, err
	}
	chunks, err := p.store.GetChunksByWork(ctx, workID)
	if err != nil {
		return 0, 0, err
	}

	gazetteerCount, err = p.gaz.SeedWork(ctx, p.store, workID, tropes, chunks)
	if err != nil {
		return gazetteerCount, 0, err
	}

	ix, err := p.chunkReg.ChunkIndex(workID)
	if err != nil {
		return gazetteerCount, 0, err
	}
	semanticCount, err = p.sem.SeedWork(ctx, p.store, ix, workID, tropes, seeder.NewChunkLookup(chunks))
	return gazetteerCount, semanticCount, err
}

// JudgeWork judges every scene of a work, persisting one TropeFinding per
// accepted verdict.
func (p *Pipeline) JudgeWork(ctx context.Context, workID string) (int, error) {
	work, err := p.store.GetWork(ctx, workID)
	if err != nil {
		return 0, err
	}
	scenes, err := p.store.GetScenesByWork(ctx, workID)
	if err != nil {
		return 0, err
	}
	tropes, err := p.store.ListTropes(ctx)
	if err != nil {
		return 0, err
	}
	tropeByID := make(map[string]tropeschema.Trope, len(tropes))
	for _, t := range tropes {
		tropeByID[t.ID] = t
	}
	chunks, err := p.store.GetChunksByWork(ctx, workID)
	if err != nil {
		return 0, err
	}
	chunksByID := make(judge.ChunkTextByID, len(chunks))
	for _, c := range chunks {
		chunksByID[c.ID] = c
	}

	perWorkIx, err := p.chunkReg.ChunkIndex(workID)
	if err != nil {
		return 0, err
	}
	globalIx := p.chunkReg.GlobalChunkIndex()

	total := 0
	for _, scene := range scenes {
		cands, err := p.store.GetCandidatesByScene(ctx, scene.ID)
		if err != nil {
			return total, err
		}
		seen := make(map[string]bool)
		var candIDs []string
		for _, c := range cands {
			if !seen[c.TropeID] {
				seen[c.TropeID] = true
				candIDs = append(candIDs, c.TropeID)
			}
		}

		findings, err := p.jd.JudgeScene(ctx, workID, scene, work.NormText, candIDs, tropeByID, perWorkIx, globalIx, chunksByID)
		if err != nil {
			p.log.Warn("judge scene failed", "scene_id", scene.ID, "err", err)
			continue
		}
		for _, f := range findings {
			if err := p.store.UpsertFinding(ctx, f); err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}

// VerifyPolicyMode selects how verified findings are handled.
type VerifyPolicyMode = verifier.Policy

// VerifyWork re-scores and flags every finding of a work, applying policy
// to decide whether a flagged finding's confidence is downweighted or the
// finding is deleted.
func (p *Pipeline) VerifyWork(ctx context.Context, workID string, policy VerifyPolicyMode) (int, error) {
	work, err := p.store.GetWork(ctx, workID)
	if err != nil {
		return 0, err
	}
	scenes, err := p.store.GetScenesByWork(ctx, workID)
	if err != nil {
		return 0, err
	}
	sceneByID := make(map[string]tropeschema.Scene, len(scenes))
	for _, s := range scenes {
		sceneByID[s.ID] = s
	}
	tropes, err := p.store.ListTropes(ctx)
	if err != nil {
		return 0, err
	}
	tropeByID := make(map[string]tropeschema.Trope, len(tropes))
	for _, t := range tropes {
		tropeByID[t.ID] = t
	}

	findings, err := p.store.GetFindingsByWork(ctx, workID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, f := range findings {
		scene, ok := sceneByID[f.SceneID]
		if !ok {
			continue
		}
		trope, ok := tropeByID[f.TropeID]
		if !ok {
			continue
		}

		aliasPattern, err := gazetteer.BuildPattern(trope.Name)
		if err != nil {
			aliasPattern = nil
		}

		outcome, err := p.vf.VerifySpan(ctx, verifier.Input{
			WorkText: work.NormText, SceneStart: scene.CharStart, SceneEnd: scene.CharEnd,
			EvidenceStart: f.EvidenceStart, EvidenceEnd: f.EvidenceEnd,
			TropeName: trope.Name, TropeSummary: trope.Summary,
			AliasPattern: aliasPattern,
		})
		if err != nil {
			p.log.Warn("verify finding failed", "finding_id", f.ID, "err", err)
			continue
		}

		if err := p.store.UpdateFindingSpanAndVerifier(ctx, f.ID, outcome.EvidenceStart, outcome.EvidenceEnd, outcome.Score, string(outcome.Flag)); err != nil {
			return updated, err
		}

		newConf, del := p.vf.Apply(policy, outcome.Flag, f.Confidence)
		switch {
		case del:
			if err := p.store.DeleteFinding(ctx, f.ID); err != nil {
				return updated, err
			}
		case newConf != f.Confidence:
			if err := p.store.UpdateFindingConfidenceAndFlag(ctx, f.ID, newConf, string(outcome.Flag)); err != nil {
				return updated, err
			}
		}
		updated++
	}
	return updated, nil
}

// Run executes the full per-work pipeline: ingest, seed, judge, verify.
func (p *Pipeline) Run(ctx context.Context, title, author, filename string, raw []byte, verifyPolicy VerifyPolicyMode) (IngestResult, error) {
	ingestRes, err := p.Ingest(ctx, title, author, filename, raw)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest: %w", err)
	}
	if _, _, err := p.SeedCandidates(ctx, ingestRes.WorkID); err != nil {
		return ingestRes, fmt.Errorf("seed: %w", err)
	}
	if _, err := p.JudgeWork(ctx, ingestRes.WorkID); err != nil {
		return ingestRes, fmt.Errorf("judge: %w", err)
	}
	if _, err := p.VerifyWork(ctx, ingestRes.WorkID, verifyPolicy); err != nil {
		return ingestRes, fmt.Errorf("verify: %w", err)
	}
	return ingestRes, nil
}
