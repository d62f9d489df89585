package corpus

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	sberrors "github.com/adalundhe/sabir/core/errors"
)

// FlatExt is the extension of single-file languages at the corpus root.
const FlatExt = ".txt"

// LoadOptions filters which files of a corpus directory are read.
type LoadOptions struct {
	// Include lists glob patterns matched against file base names. Empty means
	// every file.
	Include []string
	// Exclude lists glob patterns matched against file base names.
	Exclude []string
	// Logger receives per-language progress. Nil uses slog.Default().
	Logger *slog.Logger
}

type filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, sberrors.Config("corpus", "invalid pattern "+p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func newFilter(opts LoadOptions) (*filter, error) {
	inc, err := compilePatterns(opts.Include)
	if err != nil {
		return nil, err
	}
	exc, err := compilePatterns(opts.Exclude)
	if err != nil {
		return nil, err
	}
	return &filter{include: inc, exclude: exc}, nil
}

func (f *filter) match(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	for _, g := range f.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// LoadDir reads a corpus laid out as one sub-directory per language, each file
// inside being one text. A regular file "<label>.txt" directly under root is a
// single-text language. Files are read in name order.
//
// Cancellation is checked between languages.
func LoadDir(ctx context.Context, root string, opts LoadOptions) (*Corpus, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f, err := newFilter(opts)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, sberrors.Input("corpus.LoadDir", "cannot read corpus directory", err).WithContext("path", root)
	}

	c := New()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}

		path := filepath.Join(root, e.Name())
		switch {
		case e.IsDir():
			if err := loadLanguageDir(c, e.Name(), path, f); err != nil {
				return nil, err
			}
		case e.Type().IsRegular() && strings.HasSuffix(e.Name(), FlatExt):
			label := strings.TrimSuffix(e.Name(), FlatExt)
			if err := loadFile(c, label, path); err != nil {
				return nil, err
			}
		default:
			continue
		}

		logger.Debug("corpus language loaded",
			slog.String("path", path),
			slog.Int("bytes", c.Size(labelOf(e))))
	}

	return c, nil
}

func labelOf(e os.DirEntry) string {
	if e.IsDir() {
		return e.Name()
	}
	return strings.TrimSuffix(e.Name(), FlatExt)
}

func loadLanguageDir(c *Corpus, label, dir string, f *filter) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return sberrors.Input("corpus.LoadDir", "cannot read language directory", err).WithContext("path", dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && f.match(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	c.Declare(label)
	for _, name := range names {
		if err := loadFile(c, label, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func loadFile(c *Corpus, label, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sberrors.Input("corpus.LoadDir", "cannot read corpus file", err).WithContext("path", path)
	}
	c.Add(label, data)
	return nil
}
