// Package corpus holds labeled training text and loads it from disk.
package corpus

import (
	"slices"
	"sort"
)

// Corpus maps language labels to raw training texts.
// A Corpus is built once and then handed to the trainer; it is not safe for
// concurrent mutation.
type Corpus struct {
	texts map[string][][]byte
}

// New returns an empty corpus.
func New() *Corpus {
	return &Corpus{texts: make(map[string][][]byte)}
}

// FromStrings builds a corpus from label → texts.
func FromStrings(m map[string][]string) *Corpus {
	c := New()
	for label, texts := range m {
		c.Declare(label)
		for _, t := range texts {
			c.Add(label, []byte(t))
		}
	}
	return c
}

// Declare registers label even if no text is ever added for it, so that the
// trainer can report the empty language instead of silently skipping it.
func (c *Corpus) Declare(label string) {
	if _, ok := c.texts[label]; !ok {
		c.texts[label] = nil
	}
}

// Add appends one text to label. The corpus keeps text without copying.
func (c *Corpus) Add(label string, text []byte) {
	c.texts[label] = append(c.texts[label], text)
}

// Languages returns the labels in sorted order.
func (c *Corpus) Languages() []string {
	labels := make([]string, 0, len(c.texts))
	for l := range c.texts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Texts returns the texts of label in insertion order.
func (c *Corpus) Texts(label string) [][]byte {
	return slices.Clone(c.texts[label])
}

// Len returns the number of languages.
func (c *Corpus) Len() int {
	return len(c.texts)
}

// Size returns the total number of bytes of label's texts.
func (c *Corpus) Size(label string) int {
	n := 0
	for _, t := range c.texts[label] {
		n += len(t)
	}
	return n
}
