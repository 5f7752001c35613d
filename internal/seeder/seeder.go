// Package seeder adds semantic trope_candidate rows by embedding each
// trope's query text and nearest-neighbor searching a work's chunk
// vectors: a similarity gate (tau), a per-trope top-N cap from the vector
// query itself, and a per-(trope,scene) cap applied while inserting.
package seeder

import (
	"context"

	"github.com/google/uuid"

	"github.com/ljramones/trope-miner/internal/embedclient"
	"github.com/ljramones/trope-miner/internal/tropeschema"
	"github.com/ljramones/trope-miner/internal/vectorindex"
)

// CandidateStore is the persistence surface the seeder needs.
type CandidateStore interface {
	InsertCandidate(ctx context.Context, c tropeschema.TropeCandidate) (bool, error)
	CandidateCountByTropeAndScene(ctx context.Context, sceneID, tropeID string) (int, error)
}

// Params controls the similarity gate, result breadth, and per-scene cap.
type Params struct {
	Tau         float64
	TopN        int
	PerSceneCap int
}

// Seeder finds trope candidates via nearest-neighbor search over a chunk
// vector index.
type Seeder struct {
	embedder Embedder
	params   Params
}

// Embedder is the subset of embedclient.Embedder the seeder needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

func New(embedder Embedder, params Params) *Seeder {
	return &Seeder{embedder: embedder, params: params}
}

// ChunkLookup maps a chunk ID to its full record, needed to recover
// scene_id for the per-scene cap and char offsets for the candidate span.
type ChunkLookup map[string]tropeschema.Chunk

func NewChunkLookup(chunks []tropeschema.Chunk) ChunkLookup {
	m := make(ChunkLookup, len(chunks))
	for _, c := range chunks {
		m[c.ID] = c
	}
	return m
}

// SeedWork embeds each trope's query text, queries the work's chunk
// index restricted to work_id, and inserts one semantic candidate per
// kept hit (similarity >= tau, respecting the per-(trope,scene) cap).
func (s *Seeder) SeedWork(ctx context.Context, st CandidateStore, ix *vectorindex.Index, workID string, tropes []tropeschema.Trope, chunks ChunkLookup) (int, error) {
	total := 0
	for _, t := range tropes {
		queryText := t.QueryText()
		vec, err := s.embedder.Embed(ctx, queryText)
		if err != nil {
			return total, err
		}

		hits, err := ix.Query(ctx, vec, s.params.TopN, map[string]string{"work_id": workID})
		if err != nil {
			return total, err
		}

		for _, hit := range hits {
			sim := float64(hit.Similarity)
			if sim < s.params.Tau {
				continue
			}
			chunk, ok := chunks[hit.ID]
			if !ok {
				continue
			}

			cap, err := st.CandidateCountByTropeAndScene(ctx, chunk.SceneID, t.ID)
			if err != nil {
				return total, err
			}
			if cap >= s.params.PerSceneCap {
				continue
			}

			cand := tropeschema.TropeCandidate{
				ID:      uuid.NewString(),
				WorkID:  workID,
				SceneID: chunk.SceneID,
				ChunkID: chunk.ID,
				TropeID: t.ID,
				Surface: "",
				Alias:   "",
				Start:   chunk.CharStart,
				End:     chunk.CharEnd,
				Source:  tropeschema.SourceSemantic,
				Score:   sim,
			}
			inserted, err := st.InsertCandidate(ctx, cand)
			if err != nil {
				return total, err
			}
			if inserted {
				total++
			}
		}
	}
	return total, nil
}

var _ Embedder = (*embedclient.OllamaEmbedder)(nil)
