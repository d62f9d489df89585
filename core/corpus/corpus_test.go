package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorpus_Basics(t *testing.T) {
	c := FromStrings(map[string][]string{
		"fr": {"le renard", "rapide"},
		"en": {"the quick fox"},
		"de": nil,
	})

	assert.Equal(t, []string{"de", "en", "fr"}, c.Languages())
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 15, c.Size("fr"))
	assert.Equal(t, 0, c.Size("de"))
	assert.Empty(t, c.Texts("de"))
	assert.Equal(t, [][]byte{[]byte("le renard"), []byte("rapide")}, c.Texts("fr"))
}

func TestCorpus_TextsReturnsCopy(t *testing.T) {
	c := New()
	c.Add("en", []byte("a"))
	texts := c.Texts("en")
	texts[0] = []byte("b")
	assert.Equal(t, "a", string(c.Texts("en")[0]))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "en", "b.txt"), "second")
	writeFile(t, filepath.Join(root, "en", "a.txt"), "first")
	writeFile(t, filepath.Join(root, "en", ".hidden"), "skipped")
	writeFile(t, filepath.Join(root, "fr.txt"), "le renard")
	writeFile(t, filepath.Join(root, "README"), "not a language")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "de"), 0755))

	c, err := LoadDir(context.Background(), root, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"de", "en", "fr"}, c.Languages())
	assert.Equal(t, [][]byte{[]byte("first"), []byte("second")}, c.Texts("en"))
	assert.Equal(t, [][]byte{[]byte("le renard")}, c.Texts("fr"))
	assert.Empty(t, c.Texts("de"))
}

func TestLoadDir_Patterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "en", "news.txt"), "news")
	writeFile(t, filepath.Join(root, "en", "wiki.txt"), "wiki")
	writeFile(t, filepath.Join(root, "en", "notes.md"), "notes")

	c, err := LoadDir(context.Background(), root, LoadOptions{
		Include: []string{"*.txt"},
		Exclude: []string{"wiki*"},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("news")}, c.Texts("en"))
}

func TestLoadDir_InvalidPattern(t *testing.T) {
	_, err := LoadDir(context.Background(), t.TempDir(), LoadOptions{Include: []string{"[a-"}})
	require.Error(t, err)
	assert.True(t, sberrors.IsConfig(err))
}

func TestLoadDir_MissingRoot(t *testing.T) {
	_, err := LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"), LoadOptions{})
	require.Error(t, err)
	assert.True(t, sberrors.IsInput(err))
}

func TestLoadDir_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "en.txt"), "text")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadDir(ctx, root, LoadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
