package classify

import (
	"bytes"
	"slices"
	"strings"
)

// TraceEntry records how one n-gram of the document was scored.
type TraceEntry struct {
	// NGram is a copy of the document bytes.
	NGram []byte

	// Language is the label that won the n-gram's slot during training.
	Language string

	// Hash is the full 32-bit hash of NGram, before reduction to a slot.
	Hash uint32

	// Probability is the slot's smoothed probability for Language.
	Probability float64
}

// Trace lists one entry per n-gram in document order.
type Trace []TraceEntry

// Score is the accumulated log score of one language.
type Score struct {
	Language string
	Score    float64
}

// Result is the outcome of classifying one document.
type Result struct {
	// Language is the best-scoring label, or model.Undetermined when the
	// document yields no n-grams.
	Language string

	// Trace is empty unless it was requested.
	Trace Trace

	// Scores holds every language's score in label order. It is nil for
	// undetermined documents.
	Scores []Score
}

// Ranked returns the scores ordered best first, ties by label.
func (r Result) Ranked() []Score {
	ranked := slices.Clone(r.Scores)
	slices.SortStableFunc(ranked, func(a, b Score) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.Language, b.Language)
		}
	})
	return ranked
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	out := Result{Language: r.Language, Scores: slices.Clone(r.Scores)}
	if r.Trace != nil {
		out.Trace = make(Trace, len(r.Trace))
		for i, e := range r.Trace {
			e.NGram = bytes.Clone(e.NGram)
			out.Trace[i] = e
		}
	}
	return out
}
