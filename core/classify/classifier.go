// Package classify scores documents against a trained model.
//
// Every n-gram of a document is looked up in the model's table. The language
// that won the slot gains log(p) and each other language gains the log of its
// share of the remaining mass, log((1-p)/(K-1)). The language with the highest
// total wins, ties going to the smallest label. A document shorter than the
// model's n-gram size is model.Undetermined.
//
// Classification never fails and holds no shared mutable state, so one
// Classifier may be used from any number of goroutines.
package classify

import (
	"bytes"

	"github.com/adalundhe/sabir/core/model"
	"github.com/adalundhe/sabir/core/ngram"
)

// Classifier classifies documents with one model.
type Classifier struct {
	m   *model.Model
	ext *ngram.Extractor
}

// New returns a Classifier for m. A nil model or one without languages is a
// programming error and panics.
func New(m *model.Model) *Classifier {
	if m == nil {
		panic("classify: nil model")
	}
	if m.NumLanguages() == 0 {
		panic("classify: model has no languages")
	}
	return &Classifier{m: m, ext: ngram.MustExtractor(m.NGramSize())}
}

// Model returns the classifier's model.
func (c *Classifier) Model() *model.Model {
	return c.m
}

// Languages returns the labels the classifier can report, in sorted order.
func (c *Classifier) Languages() []string {
	return c.m.Languages()
}

// Classify scores doc and returns the result with a full trace.
func (c *Classifier) Classify(doc []byte) Result {
	s := c.newScorer(true)
	for _, gram := range c.ext.All(doc) {
		s.add(gram)
	}
	return s.result()
}

// Detect returns only the label Classify would report.
func (c *Classifier) Detect(doc []byte) string {
	s := c.newScorer(false)
	for _, gram := range c.ext.All(doc) {
		s.add(gram)
	}
	return s.decide()
}

// scorer accumulates the scores of one document. Each language's score is
// base plus its own gain, where base sums the losing term of every n-gram and
// gain sums win minus lose over the n-grams the language won.
type scorer struct {
	m         *model.Model
	gain      []float64
	base      float64
	grams     int
	withTrace bool
	trace     Trace
}

func (c *Classifier) newScorer(withTrace bool) *scorer {
	return &scorer{
		m:         c.m,
		gain:      make([]float64, c.m.NumLanguages()),
		withTrace: withTrace,
	}
}

func (s *scorer) add(gram []byte) {
	hash, index, slot := s.m.Lookup(gram)
	win, lose := s.m.LogProbs(index)

	s.base += lose
	s.gain[slot.Lang] += win - lose
	s.grams++

	if s.withTrace {
		s.trace = append(s.trace, TraceEntry{
			NGram:       bytes.Clone(gram),
			Language:    s.m.Language(slot.Lang),
			Hash:        hash,
			Probability: slot.Prob,
		})
	}
}

func (s *scorer) reset() {
	clear(s.gain)
	s.base = 0
	s.grams = 0
	s.trace = nil
}

// best returns the index of the highest score. Labels are sorted, so keeping
// the first maximum breaks ties toward the smallest label.
func (s *scorer) best() int {
	best := 0
	for i := 1; i < len(s.gain); i++ {
		if s.base+s.gain[i] > s.base+s.gain[best] {
			best = i
		}
	}
	return best
}

func (s *scorer) decide() string {
	if s.grams == 0 {
		return model.Undetermined
	}
	return s.m.Language(s.best())
}

func (s *scorer) result() Result {
	r := Result{Language: s.decide(), Trace: s.trace}
	if r.Trace == nil {
		r.Trace = Trace{}
	}
	if s.grams == 0 {
		return r
	}

	r.Scores = make([]Score, len(s.gain))
	for i, g := range s.gain {
		r.Scores[i] = Score{Language: s.m.Language(i), Score: s.base + g}
	}
	return r
}
