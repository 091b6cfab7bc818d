package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
)

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	t.Run("dispatches by extension", func(t *testing.T) {
		e, err := r.ForPath("/drop/notes.md")
		require.NoError(t, err)
		assert.IsType(t, PlainText{}, e)

		e, err = r.ForPath("/drop/Report.PDF")
		require.NoError(t, err)
		assert.IsType(t, PDF{}, e)

		e, err = r.ForPath("/drop/letter.docx")
		require.NoError(t, err)
		assert.IsType(t, Docx{}, e)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := r.ForPath("/drop/image.xcf")
		assert.ErrorIs(t, err, domain.ErrUnsupportedType)
		assert.False(t, r.Supported("/drop/image.xcf"))
		assert.True(t, r.Supported("/drop/notes.txt"))
	})
}

func TestPlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nBody text."), 0o644))

	t.Run("extract text", func(t *testing.T) {
		text, err := PlainText{}.ExtractText(path)
		require.NoError(t, err)
		assert.Equal(t, "# Title\n\nBody text.", text)
	})

	t.Run("extract structured", func(t *testing.T) {
		doc, err := PlainText{}.Extract(path)
		require.NoError(t, err)
		require.True(t, doc.HasEmbeddable())
		require.Len(t, doc.TextBlocks, 1)
		assert.Nil(t, doc.TextBlocks[0].Page)
	})

	t.Run("empty file has nothing embeddable", func(t *testing.T) {
		empty := filepath.Join(dir, "empty.txt")
		require.NoError(t, os.WriteFile(empty, nil, 0o644))

		doc, err := PlainText{}.Extract(empty)
		require.NoError(t, err)
		assert.False(t, doc.HasEmbeddable())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := PlainText{}.ExtractText(filepath.Join(dir, "missing.txt"))
		assert.Error(t, err)
	})
}
