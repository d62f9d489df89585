package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
)

func TestTrainCmd_Definition(t *testing.T) {
	assert.Equal(t, "train", trainCmd.Use)
	assert.Equal(t, "Build a model from a labeled corpus", trainCmd.Short)

	flags := trainCmd.Flags()
	for _, name := range []string{"corpus", "out", "ngram", "table-size", "workers", "store", "include", "exclude", "json"} {
		assert.NotNil(t, flags.Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "c", flags.Lookup("corpus").Shorthand)
	assert.Equal(t, "o", flags.Lookup("out").Shorthand)
}

func TestTrainCmd_WritesModel(t *testing.T) {
	corpusDir := writeCorpus(t)
	out := filepath.Join(t.TempDir(), "langs"+model.FileExt)

	stdout, _, err := executeCommand(t, "", "train", "--corpus", corpusDir, "--out", out, "--table-size", "4096")
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote "+out)
	assert.Contains(t, stdout, "table: 4096 slots")

	m, err := model.LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "fr"}, m.Languages())
	assert.Equal(t, 4096, m.TableSize())
	assert.Equal(t, 4, m.NGramSize())
}

func TestTrainCmd_JSON(t *testing.T) {
	corpusDir := writeCorpus(t)
	out := filepath.Join(t.TempDir(), "langs"+model.FileExt)

	stdout, _, err := executeCommand(t, "", "train", "--corpus", corpusDir, "--out", out,
		"--ngram", "3", "--table-size", "1024", "--json")
	require.NoError(t, err)

	var report trainOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 3, report.NGramSize)
	assert.Equal(t, 1024, report.TableSize)
	require.Len(t, report.Languages, 2)
	assert.Equal(t, "en", report.Languages[0].Label)
	assert.Positive(t, report.Languages[0].NGrams)
	assert.Positive(t, report.Populated)
	assert.Equal(t, out, report.Out)
}

func TestTrainCmd_Exclude(t *testing.T) {
	corpusDir := writeCorpus(t)
	out := filepath.Join(t.TempDir(), "langs"+model.FileExt)

	// Excluding every file leaves languages without texts.
	_, _, err := executeCommand(t, "", "train", "--corpus", corpusDir, "--out", out, "--exclude", "*.txt")
	require.Error(t, err)
	assert.True(t, sberrors.IsConfig(err))
}

func TestTrainCmd_Errors(t *testing.T) {
	corpusDir := writeCorpus(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		kind sberrors.Kind
	}{
		{"no corpus", []string{"train", "--out", filepath.Join(dir, "a.sb")}, sberrors.KindConfig},
		{"no destination", []string{"train", "--corpus", corpusDir}, sberrors.KindConfig},
		{"bad table size", []string{"train", "--corpus", corpusDir, "--out", filepath.Join(dir, "b.sb"), "--table-size", "1000"}, sberrors.KindConfig},
		{"bad ngram", []string{"train", "--corpus", corpusDir, "--out", filepath.Join(dir, "c.sb"), "--ngram", "9"}, sberrors.KindConfig},
		{"missing corpus dir", []string{"train", "--corpus", filepath.Join(dir, "absent"), "--out", filepath.Join(dir, "d.sb")}, sberrors.KindInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, "", tt.args...)
			require.Error(t, err)
			kind, ok := sberrors.KindOf(err)
			require.True(t, ok, "error %v has no kind", err)
			assert.Equal(t, tt.kind, kind)
		})
	}
}
