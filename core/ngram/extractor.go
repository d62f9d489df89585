// Package ngram extracts fixed-length byte n-grams from documents and hashes them
// into model table slots.
//
// N-grams are taken over raw bytes. No character decoding happens, so a multi-byte
// UTF-8 sequence is split across n-grams exactly as its bytes fall.
package ngram

import (
	"iter"

	sberrors "github.com/adalundhe/sabir/core/errors"
)

const (
	// DefaultSize is the n-gram length used when none is configured.
	DefaultSize = 4

	// MaxSize bounds the n-gram length a model may be built with.
	MaxSize = 8
)

// Extractor produces the sliding window of n-grams of a document.
// An Extractor holds no per-document state and is safe for concurrent use.
type Extractor struct {
	n int
}

// NewExtractor returns an Extractor for n-grams of length n.
func NewExtractor(n int) (*Extractor, error) {
	if n < 1 || n > MaxSize {
		return nil, sberrors.Configf("ngram", "n-gram size %d out of range [1, %d]", n, MaxSize)
	}
	return &Extractor{n: n}, nil
}

// MustExtractor is NewExtractor for sizes known to be valid.
func MustExtractor(n int) *Extractor {
	e, err := NewExtractor(n)
	if err != nil {
		panic(err)
	}
	return e
}

// Size returns the n-gram length.
func (e *Extractor) Size() int {
	return e.n
}

// Count returns how many n-grams doc yields.
func (e *Extractor) Count(doc []byte) int {
	if len(doc) < e.n {
		return 0
	}
	return len(doc) - e.n + 1
}

// All yields every n-gram of doc left to right with its byte offset.
// The yielded slices alias doc; callers that keep a gram must copy it.
// Ranging over the sequence again restarts it from the first n-gram.
func (e *Extractor) All(doc []byte) iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		for i := 0; i+e.n <= len(doc); i++ {
			if !yield(i, doc[i:i+e.n:i+e.n]) {
				return
			}
		}
	}
}
