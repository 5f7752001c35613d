package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemory(t *testing.T) {
	ix, err := Open("", "trope-defs-v1-cos")
	require.NoError(t, err)
	assert.Equal(t, "trope-defs-v1-cos", ix.Name())
	assert.Equal(t, 0, ix.Count())
}

func TestUpsertAndQuery(t *testing.T) {
	ix, err := Open("", "chunks-test")
	require.NoError(t, err)

	docs := []Document{
		{ID: "c1", Text: "the chosen one stood alone", Embedding: []float32{1, 0, 0}, Metadata: map[string]string{"work_id": "w1"}},
		{ID: "c2", Text: "a reluctant hero turns away", Embedding: []float32{0, 1, 0}, Metadata: map[string]string{"work_id": "w1"}},
		{ID: "c3", Text: "unrelated content in a different work", Embedding: []float32{0, 0, 1}, Metadata: map[string]string{"work_id": "w2"}},
	}
	require.NoError(t, ix.Upsert(context.Background(), docs))
	assert.Equal(t, 3, ix.Count())

	t.Run("returns the nearest document first", func(t *testing.T) {
		hits, err := ix.Query(context.Background(), []float32{1, 0, 0}, 2, nil)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "c1", hits[0].ID)
	})

	t.Run("filters by metadata", func(t *testing.T) {
		hits, err := ix.Query(context.Background(), []float32{0, 0, 1}, 5, map[string]string{"work_id": "w1"})
		require.NoError(t, err)
		for _, h := range hits {
			assert.Equal(t, "w1", h.Metadata["work_id"])
		}
	})
}

func TestUpsertRejectsMissingEmbedding(t *testing.T) {
	ix, err := Open("", "chunks-test-2")
	require.NoError(t, err)

	err = ix.Upsert(context.Background(), []Document{{ID: "c1", Text: "no vector here"}})
	assert.Error(t, err)
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	ix, err := Open("", "chunks-test-3")
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(context.Background(), nil))
	assert.Equal(t, 0, ix.Count())
}

func TestRegistryGlobalLayout(t *testing.T) {
	reg, err := NewRegistry("", "global-chunks", false)
	require.NoError(t, err)

	ix1, err := reg.ChunkIndex("work-a")
	require.NoError(t, err)
	ix2, err := reg.ChunkIndex("work-b")
	require.NoError(t, err)

	assert.Same(t, ix1, ix2, "global layout should return the same index for every work")
	assert.Same(t, reg.GlobalChunkIndex(), ix1)
}

func TestRegistryPerWorkLayout(t *testing.T) {
	reg, err := NewRegistry("", "global-chunks", true)
	require.NoError(t, err)

	ix1, err := reg.ChunkIndex("work-a")
	require.NoError(t, err)
	ix2, err := reg.ChunkIndex("work-b")
	require.NoError(t, err)

	assert.NotSame(t, ix1, ix2, "per-work layout should give each work its own collection")

	again, err := reg.ChunkIndex("work-a")
	require.NoError(t, err)
	assert.Same(t, ix1, again, "repeated calls for the same work should reuse the index")
}
