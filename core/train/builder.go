// Package train builds hashed language models from a labeled corpus.
//
// Training runs in two phases. Each language is counted independently, in
// parallel: its n-grams are hashed into slots and tallied. The per-language
// tallies are then reduced once into the slot table, which is published as an
// immutable model.
package train

import (
	"context"
	"log/slog"
	"math"
	"math/bits"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adalundhe/sabir/core/corpus"
	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
	"github.com/adalundhe/sabir/core/ngram"
)

// Builder trains models with fixed parameters. A Builder may be reused and
// shared between goroutines.
type Builder struct {
	ngramSize int
	tableSize int
	workers   int
	logger    *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithNGramSize sets the n-gram length.
func WithNGramSize(n int) Option {
	return func(b *Builder) { b.ngramSize = n }
}

// WithTableSize sets the number of slots. It must be a power of two.
func WithTableSize(n int) Option {
	return func(b *Builder) { b.tableSize = n }
}

// WithWorkers bounds how many languages are counted concurrently.
func WithWorkers(n int) Option {
	return func(b *Builder) { b.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder returns a Builder, rejecting invalid parameters with a KindConfig
// error.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		ngramSize: ngram.DefaultSize,
		tableSize: model.DefaultTableSize,
		workers:   runtime.GOMAXPROCS(0),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if _, err := ngram.NewExtractor(b.ngramSize); err != nil {
		return nil, err
	}
	if !ngram.IsPowerOfTwo(b.tableSize) || b.tableSize > model.MaxTableSize {
		return nil, sberrors.Configf("train", "table size %d is not a power of two in [1, %d]", b.tableSize, model.MaxTableSize)
	}
	if b.workers < 1 {
		b.workers = 1
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

// Report summarizes a training run.
type Report struct {
	Languages []string

	// NGrams holds the number of n-grams counted per language, in Languages order.
	NGrams []uint64

	// Populated is the number of slots that received evidence.
	Populated int

	// Collided is the number of slots where more than one language had evidence.
	Collided int

	Duration time.Duration
}

// Build trains a model from c. Corpus problems are KindConfig errors. ctx is
// checked before each language is counted.
func (b *Builder) Build(ctx context.Context, c *corpus.Corpus) (*model.Model, *Report, error) {
	start := time.Now()

	labels, err := validateCorpus(c)
	if err != nil {
		return nil, nil, err
	}

	counts, err := b.countAll(ctx, c, labels)
	if err != nil {
		return nil, nil, err
	}

	slots, populated, collided := b.reduce(counts, len(labels))

	m, err := model.New(b.ngramSize, labels, slots)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{
		Languages: labels,
		NGrams:    make([]uint64, len(labels)),
		Populated: populated,
		Collided:  collided,
		Duration:  time.Since(start),
	}
	for i, lc := range counts {
		report.NGrams[i] = lc.total
	}

	b.logger.Info("model built",
		slog.Int("languages", len(labels)),
		slog.Int("ngram_size", b.ngramSize),
		slog.Int("table_size", b.tableSize),
		slog.Int("populated_slots", populated),
		slog.Int("collided_slots", collided),
		slog.Duration("duration", report.Duration))

	return m, report, nil
}

func validateCorpus(c *corpus.Corpus) ([]string, error) {
	const op = "train.Build"

	if c == nil || c.Len() == 0 {
		return nil, sberrors.Config(op, "corpus has no languages", nil)
	}

	labels := c.Languages()
	if len(labels) > model.MaxLanguages {
		return nil, sberrors.Configf(op, "%d languages exceeds the limit of %d", len(labels), model.MaxLanguages)
	}
	for _, l := range labels {
		if err := model.ValidateLabel(l); err != nil {
			return nil, sberrors.Wrap(sberrors.KindConfig, op, "invalid language label", err)
		}
		if len(c.Texts(l)) == 0 {
			return nil, sberrors.Config(op, "language has no texts", nil).WithContext("lang", l)
		}
		if c.Size(l) == 0 {
			return nil, sberrors.Config(op, "language has only empty texts", nil).WithContext("lang", l)
		}
	}
	return labels, nil
}

// langCounts is the tally of one language: slot → occurrences, plus the total.
type langCounts struct {
	slots map[int]uint64
	total uint64
}

func (b *Builder) countAll(ctx context.Context, c *corpus.Corpus, labels []string) ([]langCounts, error) {
	ext := ngram.MustExtractor(b.ngramSize)
	counts := make([]langCounts, len(labels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, label := range labels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			counts[i] = b.countLanguage(ext, c.Texts(label))
			b.logger.Debug("language counted",
				slog.String("lang", label),
				slog.Uint64("ngrams", counts[i].total),
				slog.Int("slots", len(counts[i].slots)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (b *Builder) countLanguage(ext *ngram.Extractor, texts [][]byte) langCounts {
	lc := langCounts{slots: make(map[int]uint64)}
	for _, text := range texts {
		for _, gram := range ext.All(text) {
			lc.slots[ngram.Slot(ngram.Hash(gram), b.tableSize)]++
			lc.total++
		}
	}
	return lc
}

// slotTally accumulates, for one slot, the evidence of every language.
type slotTally struct {
	freqSum  float64
	langs    int
	winner   int
	winCount uint64
	winTotal uint64
}

// reduce merges per-language counts into the slot table. Languages are visited
// in sorted order and a later language replaces the winner only with a strictly
// higher relative frequency, so ties go to the smallest label.
//
// The stored probability is the winner's smoothed share of the relative
// frequencies at the slot, (r_w + a) / (sum(r) + k*a) with a = 1/sum(T). The
// winner has the largest share, so its own n-grams never favor another
// language.
func (b *Builder) reduce(counts []langCounts, k int) (slots []model.Slot, populated, collided int) {
	tallies := make(map[int]*slotTally)

	var grams uint64
	for li, lc := range counts {
		grams += lc.total
		for slot, n := range lc.slots {
			t, ok := tallies[slot]
			if !ok {
				t = &slotTally{winner: li, winCount: n, winTotal: lc.total}
				tallies[slot] = t
			} else if higherFrequency(n, lc.total, t.winCount, t.winTotal) {
				t.winner, t.winCount, t.winTotal = li, n, lc.total
			}
			t.freqSum += float64(n) / float64(lc.total)
			t.langs++
		}
	}

	floor := model.WinFloor(k)
	slots = make([]model.Slot, b.tableSize)
	for i := range slots {
		slots[i] = model.Slot{Lang: 0, Prob: floor}
	}
	if len(tallies) == 0 {
		return slots, 0, 0
	}

	alpha := 1 / float64(grams)
	for slot, t := range tallies {
		slots[slot] = model.Slot{Lang: t.winner, Prob: smooth(t, k, alpha, floor)}
		if t.langs > 1 {
			collided++
		}
	}

	return slots, len(tallies), collided
}

func smooth(t *slotTally, k int, alpha, floor float64) float64 {
	if k == 1 {
		return 1
	}
	r := float64(t.winCount) / float64(t.winTotal)
	p := max((r+alpha)/(t.freqSum+float64(k)*alpha), floor)
	for !model.HoldsSlot(p, k) {
		p = math.Nextafter(p, 1)
	}
	return min(p, math.Nextafter(1, 0))
}

// higherFrequency reports whether a/at > b/bt, compared exactly with 128-bit
// products.
func higherFrequency(a, at, b, bt uint64) bool {
	hiL, loL := bits.Mul64(a, bt)
	hiR, loR := bits.Mul64(b, at)
	if hiL != hiR {
		return hiL > hiR
	}
	return loL > loR
}
