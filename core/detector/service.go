// Package detector serves language detection over a shared model.
//
// A Service classifies any number of documents concurrently against one
// immutable model, remembers recent results, and can replace its model
// atomically, either on request or when the model file changes on disk.
package detector

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adalundhe/sabir/core/classify"
	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
)

// Config configures a Service.
type Config struct {
	Cache CacheConfig

	// DisableCache classifies every document afresh.
	DisableCache bool

	// Workers bounds DetectBatch concurrency. Zero means GOMAXPROCS.
	Workers int

	// Debounce is how long Watch waits after the last file event before
	// reloading. Zero means DefaultDebounce.
	Debounce time.Duration

	// Reload governs retries of a failed reload. Nil means
	// sberrors.ReloadPolicy().
	Reload *sberrors.RetryPolicy
}

// state pairs a classifier with the generation its cache keys carry. It is
// replaced as a whole, so a reader never mixes a model with another model's
// cached results.
type state struct {
	c   *classify.Classifier
	gen uint64
}

// Service is safe for concurrent use.
type Service struct {
	state    atomic.Pointer[state]
	cache    *ResultCache
	keys     *KeyGenerator
	stats    *counters
	workers  int
	debounce time.Duration
	reload   *sberrors.RetryPolicy
	logger   *slog.Logger
}

// NewService returns a Service for m. A nil or empty model is a KindModel
// error.
func NewService(m *model.Model, cfg Config, logger *slog.Logger) (*Service, error) {
	if err := checkModel(m); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		keys:     NewKeyGenerator(""),
		stats:    newCounters(),
		workers:  cfg.Workers,
		debounce: cfg.Debounce,
		reload:   cfg.Reload,
		logger:   logger,
	}
	if s.workers <= 0 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	if s.reload == nil {
		s.reload = sberrors.ReloadPolicy()
	}
	if !cfg.DisableCache {
		cache, err := NewResultCache(&cfg.Cache)
		if err != nil {
			return nil, sberrors.Config("detector", "cannot create result cache", err)
		}
		s.cache = cache
	}

	s.state.Store(&state{c: classify.New(m), gen: 1})
	return s, nil
}

func checkModel(m *model.Model) error {
	if m == nil {
		return sberrors.Model("detector", "nil model", nil)
	}
	if m.NumLanguages() == 0 {
		return sberrors.Model("detector", "model has no languages", nil)
	}
	return nil
}

// Model returns the current model.
func (s *Service) Model() *model.Model {
	return s.state.Load().c.Model()
}

// Languages returns the labels of the current model.
func (s *Service) Languages() []string {
	return s.state.Load().c.Languages()
}

// Detect returns the language of doc.
func (s *Service) Detect(doc []byte) string {
	return s.classify(doc, false).Language
}

// Classify returns the full result for doc, trace included.
func (s *Service) Classify(doc []byte) classify.Result {
	return s.classify(doc, true)
}

func (s *Service) classify(doc []byte, traced bool) classify.Result {
	st := s.state.Load()
	s.stats.detections.Add(1)

	if s.cache == nil {
		return s.run(st.c, doc, traced)
	}

	key := s.keys.Generate(st.gen, traced, doc)
	if r, ok := s.cache.Get(key); ok {
		s.stats.hits.Add(1)
		return r
	}
	s.stats.misses.Add(1)

	r := s.run(st.c, doc, traced)
	if s.cache.Set(key, r) {
		s.stats.sets.Add(1)
	}
	return r
}

func (s *Service) run(c *classify.Classifier, doc []byte, traced bool) classify.Result {
	if traced {
		return c.Classify(doc)
	}
	sess := c.NewSession(false)
	_, _ = sess.Write(doc)
	return sess.Finish()
}

// DetectBatch detects every document concurrently and returns the labels in
// input order. It stops early only if ctx is done.
func (s *Service) DetectBatch(ctx context.Context, docs [][]byte) ([]string, error) {
	out := make([]string, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = s.Detect(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Swap replaces the model. Classifications already running finish with the
// model they started with.
func (s *Service) Swap(m *model.Model) error {
	if err := checkModel(m); err != nil {
		return err
	}

	for {
		old := s.state.Load()
		next := &state{c: classify.New(m), gen: old.gen + 1}
		if s.state.CompareAndSwap(old, next) {
			break
		}
	}
	if s.cache != nil {
		s.cache.Clear()
	}
	s.stats.swaps.Add(1)

	s.logger.Info("model swapped",
		slog.Int("languages", m.NumLanguages()),
		slog.Int("table_size", m.TableSize()))
	return nil
}

// Stats returns a snapshot of service activity.
func (s *Service) Stats() Stats {
	return s.stats.snapshot(s.state.Load().gen)
}

// Close releases the cache. The service keeps classifying without it.
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}
