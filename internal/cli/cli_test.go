package cli

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ljramones/trope-miner/internal/verifier"
)

func TestIsIngestible(t *testing.T) {
	assert.True(t, isIngestible("novel.txt"))
	assert.True(t, isIngestible("NOVEL.TXT"))
	assert.True(t, isIngestible("scan.pdf"))
	assert.False(t, isIngestible("notes.md"))
	assert.False(t, isIngestible("novel"))
}

func TestExpandInputsResolvesFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("skip"), 0o644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.pdf"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "readme"), []byte("skip"), 0o644))

	files, err := expandInputs([]string{dir})
	require.NoError(t, err)

	sort.Strings(files)
	want := []string{filepath.Join(dir, "a.txt"), filepath.Join(sub, "b.pdf")}
	sort.Strings(want)
	assert.Equal(t, want, files)
}

func TestExpandInputsResolvesGlobPattern(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.txt"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.txt"), []byte("2"), 0o644))

	files, err := expandInputs([]string{filepath.Join(dir, "*.txt")})
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestExpandInputsRejectsInvalidGlob(t *testing.T) {
	_, err := expandInputs([]string{"["})
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	t.Run("accepts known policies", func(t *testing.T) {
		p, err := parsePolicy("flag-only")
		require.NoError(t, err)
		assert.Equal(t, verifier.PolicyFlagOnly, p)

		p, err = parsePolicy("downweight")
		require.NoError(t, err)
		assert.Equal(t, verifier.PolicyDownweight, p)

		p, err = parsePolicy("delete")
		require.NoError(t, err)
		assert.Equal(t, verifier.PolicyDelete, p)
	})

	t.Run("rejects unknown policy", func(t *testing.T) {
		_, err := parsePolicy("bogus")
		assert.Error(t, err)
	})
}
