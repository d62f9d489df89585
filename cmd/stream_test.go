package cmd

import (
	"bufio"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/sabir/core/detector"
	"github.com/adalundhe/sabir/core/model"
)

func TestStreamCmd_Definition(t *testing.T) {
	assert.Equal(t, "stream", streamCmd.Use)
	assert.NotNil(t, streamCmd.Flags().Lookup("watch"))
	assert.Equal(t, "m", streamCmd.Flags().Lookup("model").Shorthand)
}

func TestStreamCmd_Labels(t *testing.T) {
	modelPath := trainedModel(t)
	input := "the lazy dog\nle chien paresseux\n\nthe lazy dog\n"

	stdout, _, err := executeCommand(t, input, "stream", "-m", modelPath)
	require.NoError(t, err)
	assert.Equal(t, "en\nfr\n"+model.Undetermined+"\nen\n", stdout)
}

func TestStreamCmd_CRLF(t *testing.T) {
	modelPath := trainedModel(t)

	stdout, _, err := executeCommand(t, "the lazy dog\r\n", "stream", "-m", modelPath)
	require.NoError(t, err)
	assert.Equal(t, "en\n", stdout)
}

func TestStreamCmd_JSON(t *testing.T) {
	modelPath := trainedModel(t)

	stdout, _, err := executeCommand(t, "the lazy dog\nle chien paresseux\n", "stream", "-m", modelPath, "--json")
	require.NoError(t, err)

	var labels []string
	sc := bufio.NewScanner(strings.NewReader(stdout))
	for i := 1; sc.Scan(); i++ {
		var out detectOutput
		require.NoError(t, json.Unmarshal(sc.Bytes(), &out))
		assert.Equal(t, strconv.Itoa(i), out.Path)
		assert.Len(t, out.Scores, 2)
		labels = append(labels, out.Language)
	}
	assert.Equal(t, []string{"en", "fr"}, labels)
}

func TestStreamCmd_Stats(t *testing.T) {
	modelPath := trainedModel(t)

	_, stderr, err := executeCommand(t, "the lazy dog\nthe lazy dog\n", "stream", "-m", modelPath, "--stats")
	require.NoError(t, err)

	var stats detector.Stats
	require.NoError(t, json.Unmarshal([]byte(stderr), &stats))
	assert.Equal(t, int64(2), stats.Detections)
	assert.Equal(t, uint64(1), stats.Generation)
}

func TestStreamCmd_WatchRequiresFile(t *testing.T) {
	_, _, err := executeCommand(t, "", "stream", "--store", "news", "--watch")
	require.Error(t, err)
}
