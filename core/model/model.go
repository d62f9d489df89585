// Package model defines the immutable hashed probability table used for language
// identification, and its persisted text form.
//
// A Model maps every slot of a power-of-two table to the language that won the
// slot during training and the smoothed probability of that language there.
// Models never change after construction. Any number of goroutines may read a
// Model concurrently without synchronization.
package model

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/ngram"
)

const (
	// MaxTableSize bounds the number of slots a model may hold.
	MaxTableSize = 1 << 24

	// DefaultTableSize is the table size used when none is configured.
	DefaultTableSize = 1 << 16

	// MaxLanguages bounds the number of languages a model may hold.
	MaxLanguages = 600

	// MaxLabelLen bounds the byte length of a language label.
	MaxLabelLen = 64

	// Undetermined is the label reported for documents with no n-grams. It is
	// reserved and never names a trained language.
	Undetermined = "und"
)

// Slot is one entry of the hashed table.
type Slot struct {
	// Lang indexes the model's sorted language list.
	Lang int
	// Prob is the smoothed probability of Lang at this slot, in (0, 1].
	Prob float64
}

// Model is the immutable hashed table.
type Model struct {
	ngramSize int
	langs     []string
	slots     []Slot

	// logWin and logLose are derived from slots at construction so that every
	// reader computes identical log values.
	logWin  []float64
	logLose []float64
}

// New validates the table and returns a Model owning copies of labels and slots.
// Labels must be sorted, unique and valid per ValidateLabel.
func New(ngramSize int, labels []string, slots []Slot) (*Model, error) {
	const op = "model.New"

	if ngramSize < 1 || ngramSize > ngram.MaxSize {
		return nil, sberrors.Modelf(op, "n-gram size %d out of range [1, %d]", ngramSize, ngram.MaxSize)
	}
	if err := validateLabels(op, labels); err != nil {
		return nil, err
	}
	if !ngram.IsPowerOfTwo(len(slots)) || len(slots) > MaxTableSize {
		return nil, sberrors.Modelf(op, "table size %d is not a power of two in [1, %d]", len(slots), MaxTableSize)
	}

	k := len(labels)
	m := &Model{
		ngramSize: ngramSize,
		langs:     slices.Clone(labels),
		slots:     slices.Clone(slots),
		logWin:    make([]float64, len(slots)),
		logLose:   make([]float64, len(slots)),
	}

	for i, s := range m.slots {
		if s.Lang < 0 || s.Lang >= k {
			return nil, sberrors.Modelf(op, "slot %d: language index %d out of range", i, s.Lang)
		}
		if err := validateProb(s.Prob, k); err != nil {
			return nil, sberrors.Model(op, "slot "+strconv.Itoa(i), err)
		}
		m.logWin[i], m.logLose[i] = logProbs(s.Prob, k)
	}

	return m, nil
}

func validateLabels(op string, labels []string) error {
	if len(labels) == 0 {
		return sberrors.Model(op, "model has no languages", nil)
	}
	if len(labels) > MaxLanguages {
		return sberrors.Modelf(op, "%d languages exceeds the limit of %d", len(labels), MaxLanguages)
	}
	for i, l := range labels {
		if problem := labelProblem(l); problem != "" {
			return sberrors.Model(op, problem, nil)
		}
		if i > 0 && labels[i-1] >= l {
			return sberrors.Modelf(op, "labels not sorted and unique at %q", l)
		}
	}
	return nil
}

func validateProb(p float64, k int) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 || p > 1 {
		return fmt.Errorf("probability %v not in (0, 1]", p)
	}
	if k > 1 && p >= 1 {
		return fmt.Errorf("probability %v leaves no mass for %d other languages", p, k-1)
	}
	return nil
}

// ValidateLabel reports whether l can name a trained language. Failures are
// KindConfig errors since labels come from the training corpus.
func ValidateLabel(l string) error {
	if problem := labelProblem(l); problem != "" {
		return sberrors.Config("label", problem, nil)
	}
	return nil
}

func labelProblem(l string) string {
	if l == "" {
		return "empty language label"
	}
	if len(l) > MaxLabelLen {
		return fmt.Sprintf("label %q longer than %d bytes", l, MaxLabelLen)
	}
	if l == Undetermined {
		return fmt.Sprintf("label %q is reserved", l)
	}
	for i := 0; i < len(l); i++ {
		if c := l[i]; c <= ' ' || c == 0x7f {
			return fmt.Sprintf("label %q contains whitespace or control byte 0x%02x", l, c)
		}
	}
	return ""
}

// NGramSize returns the n-gram length the model was trained with.
func (m *Model) NGramSize() int {
	return m.ngramSize
}

// TableSize returns the number of slots.
func (m *Model) TableSize() int {
	return len(m.slots)
}

// NumLanguages returns the number of trained languages.
func (m *Model) NumLanguages() int {
	return len(m.langs)
}

// Languages returns the trained labels in sorted order.
func (m *Model) Languages() []string {
	return slices.Clone(m.langs)
}

// Language returns the label at index i of the sorted language list.
func (m *Model) Language(i int) string {
	return m.langs[i]
}

// Slot returns slot i.
func (m *Model) Slot(i int) Slot {
	return m.slots[i]
}

// Lookup hashes gram and returns its hash, the slot index and the slot.
func (m *Model) Lookup(gram []byte) (hash uint32, index int, slot Slot) {
	hash = ngram.Hash(gram)
	index = ngram.Slot(hash, len(m.slots))
	return hash, index, m.slots[index]
}

func logProbs(p float64, k int) (win, lose float64) {
	win = math.Log(p)
	if k > 1 {
		lose = math.Log((1 - p) / float64(k-1))
	}
	return win, lose
}

// HoldsSlot reports whether a slot with probability p, in a model of k
// languages, scores its own language at least as high as each of the others.
func HoldsSlot(p float64, k int) bool {
	win, lose := logProbs(p, k)
	return win >= lose
}

// WinFloor returns the smallest probability, not below 1/k, for which
// HoldsSlot is true. It is the probability of slots with no training evidence.
func WinFloor(k int) float64 {
	if k <= 1 {
		return 1
	}
	p := 1 / float64(k)
	for !HoldsSlot(p, k) {
		p = math.Nextafter(p, 1)
	}
	return p
}

// LogProbs returns log(p) for the slot's language and log((1-p)/(K-1)) for
// each of the others. The second value is zero for single-language models.
func (m *Model) LogProbs(index int) (win, lose float64) {
	return m.logWin[index], m.logLose[index]
}

// Equal reports whether two models have the same parameters, languages and
// bit-identical probabilities.
func (m *Model) Equal(other *Model) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.ngramSize != other.ngramSize || !slices.Equal(m.langs, other.langs) {
		return false
	}
	if len(m.slots) != len(other.slots) {
		return false
	}
	for i, s := range m.slots {
		o := other.slots[i]
		if s.Lang != o.Lang || math.Float64bits(s.Prob) != math.Float64bits(o.Prob) {
			return false
		}
	}
	return true
}
