package classify

import (
	"bytes"
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/adalundhe/sabir/core/corpus"
	"github.com/adalundhe/sabir/core/model"
	"github.com/adalundhe/sabir/core/ngram"
	"github.com/adalundhe/sabir/core/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildModel(t *testing.T, texts map[string][]string, opts ...train.Option) *model.Model {
	t.Helper()
	b, err := train.NewBuilder(opts...)
	require.NoError(t, err)
	m, _, err := b.Build(context.Background(), corpus.FromStrings(texts))
	require.NoError(t, err)
	return m
}

func foxModel(t *testing.T, opts ...train.Option) *model.Model {
	return buildModel(t, map[string][]string{
		"en": {"the quick fox"},
		"fr": {"le renard rapide"},
	}, opts...)
}

func TestNew_Panics(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}

func TestClassify_TheFox(t *testing.T) {
	c := New(foxModel(t))

	r := c.Classify([]byte("the fox"))
	assert.Equal(t, "en", r.Language)
	assert.Equal(t, "en", c.Detect([]byte("the fox")))

	require.Len(t, r.Trace, 4)
	want := []TraceEntry{
		{NGram: []byte("the "), Language: "en", Hash: 1082440788},
		{NGram: []byte("he f"), Language: "en", Hash: 1086037276},
		{NGram: []byte("e fo"), Language: "en", Hash: 1083030531},
		{NGram: []byte(" fox"), Language: "en", Hash: 1131647400},
	}
	// "the " and " fox" occur once in en's ten n-grams and never in fr:
	// p = (1/10 + 1/23) / (1/10 + 2/23) = 33/43. The others are unseen slots.
	probs := []float64{33.0 / 43.0, 0.5, 0.5, 33.0 / 43.0}
	for i, e := range r.Trace {
		assert.Equal(t, want[i].NGram, e.NGram)
		assert.Equal(t, want[i].Language, e.Language)
		assert.Equal(t, want[i].Hash, e.Hash)
		assert.InDelta(t, probs[i], e.Probability, 1e-15)
	}

	require.Len(t, r.Scores, 2)
	assert.Equal(t, "en", r.Scores[0].Language)
	assert.InDelta(t, 2*math.Log(33.0/43.0)+2*math.Log(0.5), r.Scores[0].Score, 1e-12)
	assert.Equal(t, "fr", r.Scores[1].Language)
	assert.InDelta(t, 2*math.Log(10.0/43.0)+2*math.Log(0.5), r.Scores[1].Score, 1e-12)
}

func TestClassify_FrenchText(t *testing.T) {
	c := New(foxModel(t))
	assert.Equal(t, "fr", c.Detect([]byte("le renard")))
}

func TestClassify_Undetermined(t *testing.T) {
	c := New(buildModel(t, map[string][]string{"en": {"abc"}}))

	for _, doc := range []string{"", "a", "abc"} {
		r := c.Classify([]byte(doc))
		assert.Equal(t, model.Undetermined, r.Language, "doc %q", doc)
		assert.Empty(t, r.Trace)
		assert.NotNil(t, r.Trace)
		assert.Nil(t, r.Scores)
		assert.Equal(t, model.Undetermined, c.Detect([]byte(doc)))
	}
}

func TestClassify_SingleLanguage(t *testing.T) {
	c := New(buildModel(t, map[string][]string{"en": {"abcd"}}))
	assert.Equal(t, []string{"en"}, c.Languages())
	assert.Equal(t, "en", c.Detect([]byte("zzzz")))
}

func TestClassify_TraceCopiesNGrams(t *testing.T) {
	c := New(foxModel(t))
	doc := []byte("the fox")
	r := c.Classify(doc)
	doc[0] = 'X'
	assert.Equal(t, "the ", string(r.Trace[0].NGram))
}

func TestClassify_Totality(t *testing.T) {
	m := foxModel(t, train.WithTableSize(16))
	c := New(m)
	rng := rand.New(rand.NewPCG(7, 7))

	known := map[string]bool{model.Undetermined: true, "en": true, "fr": true}
	for i := 0; i < 200; i++ {
		doc := make([]byte, rng.IntN(64))
		for j := range doc {
			doc[j] = byte(rng.UintN(256))
		}

		r := c.Classify(doc)
		assert.True(t, known[r.Language], "unexpected label %q", r.Language)
		assert.Len(t, r.Trace, max(0, len(doc)-3))
		assert.Equal(t, r.Language, c.Detect(doc))
		for _, e := range r.Trace {
			assert.Positive(t, e.Probability)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	doc := []byte("the quick brown fox jumps over le renard rapide")
	c1 := New(foxModel(t))
	c2 := New(foxModel(t))
	assert.Equal(t, c1.Classify(doc), c2.Classify(doc))
	assert.Equal(t, c1.Classify(doc), c1.Classify(doc))
}

func TestClassify_Collisions(t *testing.T) {
	for _, size := range []int{1, 2, 4, 8, 16} {
		m := foxModel(t, train.WithTableSize(size))
		c := New(m)

		r := c.Classify([]byte("the fox"))
		assert.Contains(t, []string{"en", "fr"}, r.Language, "table size %d", size)
		assert.Len(t, r.Trace, 4)
		assert.Equal(t, model.Undetermined, c.Detect([]byte("the")))
	}
}

func TestClassify_TableSizeOne(t *testing.T) {
	// The only slot is won by en, so every document with n-grams is en.
	c := New(foxModel(t, train.WithTableSize(1)))
	assert.Equal(t, "en", c.Detect([]byte("le renard rapide")))
}

func TestClassify_SlotOwnerWins(t *testing.T) {
	// The only n-gram of the document lands in a slot en owns, even though fr
	// saw it more often in absolute terms.
	c := New(buildModel(t, map[string][]string{
		"en": {"abcd"},
		"fr": {"abcd le renard rapide abcd saute par-dessus le chien"},
	}))

	r := c.Classify([]byte("abcd"))
	require.Len(t, r.Trace, 1)
	assert.Equal(t, "en", r.Trace[0].Language)
	assert.Equal(t, "en", r.Language)
	assert.Greater(t, r.Scores[0].Score, r.Scores[1].Score)
}

func TestClassify_SummationOrder(t *testing.T) {
	m := foxModel(t, train.WithTableSize(8))
	c := New(m)
	doc := []byte("the quick renard saute")

	// Losing terms in document order, then each language's win-minus-lose
	// terms in document order, added last.
	var base float64
	gain := make([]float64, m.NumLanguages())
	ext := ngram.MustExtractor(m.NGramSize())
	for _, gram := range ext.All(doc) {
		_, index, slot := m.Lookup(gram)
		win, lose := m.LogProbs(index)
		base += lose
		gain[slot.Lang] += win - lose
	}

	r := c.Classify(doc)
	require.Len(t, r.Scores, 2)
	for _, s := range r.Scores {
		i := slices.Index(m.Languages(), s.Language)
		assert.Equal(t, base+gain[i], s.Score, s.Language)
	}
}

func TestClassify_RoundTripModel(t *testing.T) {
	m := foxModel(t, train.WithTableSize(64))

	var buf bytes.Buffer
	require.NoError(t, model.Save(&buf, m))
	loaded, err := model.Load(&buf)
	require.NoError(t, err)

	doc := []byte("the quick renard")
	assert.Equal(t, New(m).Classify(doc), New(loaded).Classify(doc))
}

func TestClassify_TieGoesToSmallestLabel(t *testing.T) {
	// Identical corpora give identical scores.
	c := New(buildModel(t, map[string][]string{
		"xx": {"same text"},
		"aa": {"same text"},
	}))
	r := c.Classify([]byte("same text"))
	assert.Equal(t, "aa", r.Language)
	assert.Equal(t, r.Scores[0].Score, r.Scores[1].Score)
}

func TestResult_Ranked(t *testing.T) {
	r := Result{Scores: []Score{
		{Language: "de", Score: -3},
		{Language: "en", Score: -1},
		{Language: "es", Score: -3},
		{Language: "fr", Score: -2},
	}}

	assert.Equal(t, []Score{
		{Language: "en", Score: -1},
		{Language: "fr", Score: -2},
		{Language: "de", Score: -3},
		{Language: "es", Score: -3},
	}, r.Ranked())
	assert.Equal(t, "de", r.Scores[0].Language, "Ranked must not reorder the result")
}

func TestResult_Clone(t *testing.T) {
	r := New(foxModel(t)).Classify([]byte("the fox"))
	clone := r.Clone()
	clone.Trace[0].NGram[0] = 'X'
	clone.Scores[0].Score = 0
	assert.Equal(t, "the ", string(r.Trace[0].NGram))
	assert.NotZero(t, r.Scores[0].Score)
}
