package textstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePlainText(t *testing.T) {
	t.Run("accepts valid UTF-8", func(t *testing.T) {
		text, err := Decode([]byte("Hello, world."), "manuscript.txt")
		require.NoError(t, err)
		assert.Equal(t, "Hello, world.", text)
	})

	t.Run("rejects invalid UTF-8", func(t *testing.T) {
		_, err := Decode([]byte{0xff, 0xfe, 0xfd}, "manuscript.txt")
		assert.Error(t, err)
	})
}

func TestNormalize(t *testing.T) {
	t.Run("unifies CRLF line endings", func(t *testing.T) {
		assert.Equal(t, "line one\nline two", Normalize("line one\r\nline two"))
	})

	t.Run("collapses runs of blank lines", func(t *testing.T) {
		got := Normalize("para one\n\n\n\n\npara two")
		assert.Equal(t, "para one\n\npara two", got)
	})

	t.Run("strips trailing whitespace per line", func(t *testing.T) {
		got := Normalize("line one   \nline two\t\n")
		assert.False(t, strings.Contains(got, "one   \n"))
	})
}

func TestDetectChapters(t *testing.T) {
	t.Run("no headings yields single chapter", func(t *testing.T) {
		chapters := DetectChapters("Just some prose with no structure at all.")
		require.Len(t, chapters, 1)
		assert.Equal(t, 0, chapters[0].CharStart)
	})

	t.Run("splits on chapter headings", func(t *testing.T) {
		text := "Chapter 1\nFirst chapter body.\nChapter 2\nSecond chapter body."
		chapters := DetectChapters(text)
		require.Len(t, chapters, 2)
		assert.Equal(t, 0, chapters[0].Idx)
		assert.Equal(t, 1, chapters[1].Idx)
		assert.True(t, chapters[1].CharStart > chapters[0].CharStart)
	})
}

func TestDetectScenes(t *testing.T) {
	t.Run("no markers yields single scene", func(t *testing.T) {
		scenes := DetectScenes("One continuous scene with no break markers.", 0)
		require.Len(t, scenes, 1)
	})

	t.Run("splits on asterism marker", func(t *testing.T) {
		text := "First scene text.\n***\nSecond scene text."
		scenes := DetectScenes(text, 100)
		require.Len(t, scenes, 2)
		assert.Equal(t, 100, scenes[0].CharStart)
		assert.True(t, scenes[1].CharStart > scenes[0].CharEnd)
	})
}

func TestTokenize(t *testing.T) {
	toks := Tokenize("Hello, world!")
	require.Len(t, toks, 4) // Hello , world ! split into word/punct tokens
	assert.Equal(t, "Hello", toks[0].Text)
	assert.Equal(t, 0, toks[0].Start)
	assert.Equal(t, 5, toks[0].End)
}

func TestSentenceEnds(t *testing.T) {
	ends := SentenceEnds("First sentence. Second sentence.")
	require.Len(t, ends, 2)
	assert.True(t, ends[0] < ends[1])
}

func TestSHA256Hex(t *testing.T) {
	h1 := SHA256Hex("the quick brown fox")
	h2 := SHA256Hex("the quick brown fox")
	h3 := SHA256Hex("a different sentence")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestDefaultChunkParams(t *testing.T) {
	p := DefaultChunkParams()
	assert.Equal(t, 450, p.TargetTokens)
	assert.Equal(t, 300, p.MinTokens)
	assert.Equal(t, 600, p.MaxTokens)
	assert.Equal(t, 80, p.OverlapTokens)
	assert.Equal(t, 30, p.MaxExtendTokens)
}

func TestChunkScene(t *testing.T) {
	t.Run("short scene yields a single chunk", func(t *testing.T) {
		text := "A short scene that does not need to be split at all."
		chunks := ChunkScene(text, 0, DefaultChunkParams())
		require.Len(t, chunks, 1)
		assert.Equal(t, text, chunks[0].Text)
		assert.Equal(t, 0, chunks[0].CharStart)
	})

	t.Run("empty scene yields no chunks", func(t *testing.T) {
		chunks := ChunkScene("", 0, DefaultChunkParams())
		assert.Nil(t, chunks)
	})

	t.Run("long scene is split into overlapping windows", func(t *testing.T) {
		sentence := "The council debated long into the night about the fate of the realm. "
		text := strings.Repeat(sentence, 120)
		chunks := ChunkScene(text, 0, DefaultChunkParams())
		require.True(t, len(chunks) > 1)

		for i := 1; i < len(chunks); i++ {
			assert.True(t, chunks[i].TokenStart < chunks[i-1].TokenEnd, "chunk %d should overlap with chunk %d", i, i-1)
			assert.True(t, chunks[i].CharStart >= chunks[i-1].CharStart)
		}
	})

	t.Run("offsets respect sceneCharStart", func(t *testing.T) {
		text := "A short scene offset into a larger work."
		chunks := ChunkScene(text, 500, DefaultChunkParams())
		require.Len(t, chunks, 1)
		assert.Equal(t, 500, chunks[0].CharStart)
		assert.Equal(t, 500+len(text), chunks[0].CharEnd)
	})
}
