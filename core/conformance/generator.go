package conformance

import (
	"math/rand/v2"
	"unicode/utf8"
)

// Alphabet is the character set of generated documents. It mixes ASCII,
// whitespace and control characters with two- and three-byte UTF-8 sequences.
const Alphabet = "abcde\nfgh ijklmn\topqrst uvwxy\rzàâéèê îûô,?!“”‘’ "

// Generator produces reproducible pseudo-random documents.
type Generator struct {
	rng    *rand.Rand
	runes  []rune
	maxLen int
	buf    []byte
}

// NewGenerator returns a generator of documents holding up to maxLen
// characters drawn uniformly from Alphabet. The same seed always yields the
// same documents.
func NewGenerator(seed uint64, maxLen int) *Generator {
	return &Generator{
		rng:    rand.New(rand.NewPCG(seed, seed)),
		runes:  []rune(Alphabet),
		maxLen: max(maxLen, 0),
	}
}

// Next returns the next document. The slice is owned by the caller.
func (g *Generator) Next() []byte {
	n := g.rng.IntN(g.maxLen + 1)
	g.buf = g.buf[:0]
	for range n {
		g.buf = utf8.AppendRune(g.buf, g.runes[g.rng.IntN(len(g.runes))])
	}
	return append([]byte(nil), g.buf...)
}
