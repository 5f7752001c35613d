// Package vectorindex wraps philippgille/chromem-go for two kinds of
// collections: a chunk collection used for candidate seeding and support
// retrieval, and a trope-definition collection used for query-text
// lookups. Collections support exact-match metadata filters and an
// optional per-work layout alongside the shared global collection.
package vectorindex

import (
	"context"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ljramones/trope-miner/internal/minererrors"
)

// Document is one vector-indexed item: a chunk or a trope definition.
type Document struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Embedding []float32
}

// ScoredDocument is a query result.
type ScoredDocument struct {
	Document
	Similarity float32
}

// Index wraps a single chromem collection.
type Index struct {
	db         *chromem.DB
	name       string
	collection *chromem.Collection
}

// Open opens (or creates) a persistent chromem database at dbPath and
// gets-or-creates the named collection. An empty dbPath yields an
// in-memory index, useful for tests.
func Open(dbPath, collectionName string) (*Index, error) {
	var db *chromem.DB
	var err error
	if dbPath != "" {
		db, err = chromem.NewPersistentDB(dbPath, false)
	} else {
		db = chromem.NewDB()
	}
	if err != nil {
		return nil, minererrors.NewVectorIndexError(minererrors.VectorUpsertFail, collectionName, err)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, minererrors.NewVectorIndexError(minererrors.VectorUpsertFail, collectionName, err)
	}

	return &Index{db: db, name: collectionName, collection: collection}, nil
}

func (ix *Index) Name() string { return ix.name }

// Upsert adds or replaces documents. chromem-go's AddDocuments already
// overwrites by ID, so this behaves as an upsert.
func (ix *Index) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	chromeDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		if len(d.Embedding) == 0 {
			return minererrors.NewVectorIndexError(minererrors.VectorDimMismatch, ix.name,
				fmt.Errorf("document %s has no embedding", d.ID))
		}
		chromeDocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Text,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
		}
	}
	if err := ix.collection.AddDocuments(ctx, chromeDocs, runtime.NumCPU()); err != nil {
		return minererrors.NewVectorIndexError(minererrors.VectorUpsertFail, ix.name, err)
	}
	return nil
}

// Query returns the topK nearest documents to queryEmbedding, optionally
// restricted by an exact-match metadata filter (e.g. {"work_id": id}).
// topK is capped at the collection size; an empty collection yields no
// results.
func (ix *Index) Query(ctx context.Context, queryEmbedding []float32, topK int, where map[string]string) ([]ScoredDocument, error) {
	if n := ix.collection.Count(); topK > n {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}
	res, err := ix.collection.QueryEmbedding(ctx, queryEmbedding, topK, where, nil)
	if err != nil {
		return nil, minererrors.NewVectorIndexError(minererrors.VectorNotFound, ix.name, err)
	}
	out := make([]ScoredDocument, len(res))
	for i, r := range res {
		out[i] = ScoredDocument{
			Document: Document{
				ID:       r.ID,
				Text:     r.Content,
				Metadata: r.Metadata,
			},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

// Count reports the number of documents currently indexed.
func (ix *Index) Count() int { return ix.collection.Count() }

// Registry resolves the chunk collection to use for a given work: a
// dedicated per-work collection when enabled, otherwise the shared global
// collection. ChunkIndex itself never falls back to the global
// collection; GlobalChunkIndex exposes it to callers that do.
type Registry struct {
	dbPath      string
	perWork     bool
	globalName  string
	globalIndex *Index
	perWorkIdx  map[string]*Index
}

func NewRegistry(dbPath, globalCollection string, perWork bool) (*Registry, error) {
	global, err := Open(dbPath, globalCollection)
	if err != nil {
		return nil, err
	}
	return &Registry{
		dbPath:      dbPath,
		perWork:     perWork,
		globalName:  globalCollection,
		globalIndex: global,
		perWorkIdx:  make(map[string]*Index),
	}, nil
}

// ChunkIndex returns the chunk collection for workID: a dedicated
// collection when per-work layout is enabled, otherwise the shared global
// collection filtered by work_id metadata at query time.
func (r *Registry) ChunkIndex(workID string) (*Index, error) {
	if !r.perWork {
		return r.globalIndex, nil
	}
	if ix, ok := r.perWorkIdx[workID]; ok {
		return ix, nil
	}
	name := fmt.Sprintf("trope-miner-work-%s", workID)
	ix, err := Open(r.dbPath, name)
	if err != nil {
		return nil, err
	}
	r.perWorkIdx[workID] = ix
	return ix, nil
}

// GlobalChunkIndex is the shared fallback collection, queried when a
// per-work collection is empty (a work ingested before per-work layout
// was enabled).
func (r *Registry) GlobalChunkIndex() *Index { return r.globalIndex }
