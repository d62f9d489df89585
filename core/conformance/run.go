package conformance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adalundhe/sabir/core/classify"
	"github.com/adalundhe/sabir/core/corpus"
	sberrors "github.com/adalundhe/sabir/core/errors"
)

const (
	DefaultDocs   = 100
	DefaultMaxLen = 600
	DefaultSeed   = 1
)

// Mismatch describes the first disagreement between two results.
type Mismatch struct {
	// Line is the 1-based trace line that differs. The final label line is
	// len(trace)+1.
	Line int

	// Want and Got are the differing lines, empty when one side has no such line.
	Want string
	Got  string

	// Doc is the index of the document within a run and Document its bytes.
	// Both are zero for Compare.
	Doc      int
	Document []byte
}

func (m *Mismatch) String() string {
	return fmt.Sprintf("document %d line %d: want %q, got %q", m.Doc, m.Line, m.Want, m.Got)
}

// Compare reports the first line where the trace encodings of want and got
// differ, or nil if they agree. Scores are not part of the trace and are
// ignored.
func Compare(want, got classify.Result) *Mismatch {
	wl, gl := Lines(want), Lines(got)
	for i := range min(len(wl), len(gl)) {
		if wl[i] != gl[i] {
			return &Mismatch{Line: i + 1, Want: wl[i], Got: gl[i]}
		}
	}
	switch {
	case len(wl) > len(gl):
		return &Mismatch{Line: len(gl) + 1, Want: wl[len(gl)]}
	case len(gl) > len(wl):
		return &Mismatch{Line: len(wl) + 1, Got: gl[len(wl)]}
	}
	return nil
}

// Config parameterizes a differential run.
type Config struct {
	Corpus *corpus.Corpus
	Docs   int
	MaxLen int
	Seed   uint64
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Docs <= 0 {
		c.Docs = DefaultDocs
	}
	if c.MaxLen <= 0 {
		c.MaxLen = DefaultMaxLen
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// RunReport is the outcome of Run.
type RunReport struct {
	Reference string
	Candidate string

	// Docs is the number of documents compared, including a mismatching one.
	Docs int

	// Mismatch is nil when every document agreed.
	Mismatch *Mismatch

	// Want and Got are the two results of the mismatching document.
	Want classify.Result
	Got  classify.Result

	Duration time.Duration
}

// Passed reports whether the implementations agreed on every document.
func (r *RunReport) Passed() bool { return r.Mismatch == nil }

// Run trains ref and cand on the same corpus and classifies generated
// documents with both, stopping at the first mismatch.
func Run(ctx context.Context, cfg Config, ref, cand Implementation) (*RunReport, error) {
	cfg = cfg.withDefaults()
	if cfg.Corpus == nil {
		return nil, sberrors.Config("conformance.Run", "no corpus", nil)
	}
	start := time.Now()

	refModel, err := ref.Train(ctx, cfg.Corpus)
	if err != nil {
		return nil, fmt.Errorf("%s: train: %w", ref.Name(), err)
	}
	candModel, err := cand.Train(ctx, cfg.Corpus)
	if err != nil {
		return nil, fmt.Errorf("%s: train: %w", cand.Name(), err)
	}

	report := &RunReport{Reference: ref.Name(), Candidate: cand.Name()}
	gen := NewGenerator(cfg.Seed, cfg.MaxLen)

	for i := 0; i < cfg.Docs; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc := gen.Next()

		want, err := ref.Classify(ctx, refModel, doc)
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", ref.Name(), i, err)
		}
		got, err := cand.Classify(ctx, candModel, doc)
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", cand.Name(), i, err)
		}

		report.Docs++
		if m := Compare(want, got); m != nil {
			m.Doc, m.Document = i, doc
			report.Mismatch, report.Want, report.Got = m, want, got
			break
		}
	}

	report.Duration = time.Since(start)
	cfg.Logger.Info("conformance run finished",
		slog.String("reference", report.Reference),
		slog.String("candidate", report.Candidate),
		slog.Int("docs", report.Docs),
		slog.Bool("passed", report.Passed()),
		slog.Duration("duration", report.Duration))

	return report, nil
}
