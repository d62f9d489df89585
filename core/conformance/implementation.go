package conformance

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/adalundhe/sabir/core/classify"
	"github.com/adalundhe/sabir/core/corpus"
	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
	"github.com/adalundhe/sabir/core/storage"
	"github.com/adalundhe/sabir/core/train"
)

// Implementation is one conforming classifier under comparison.
type Implementation interface {
	Name() string

	// Train builds a model from c.
	Train(ctx context.Context, c *corpus.Corpus) (*model.Model, error)

	// Classify classifies doc with m and reports the full trace. Errors are
	// transport failures; classification itself never fails.
	Classify(ctx context.Context, m *model.Model, doc []byte) (classify.Result, error)
}

// Native is the in-process implementation.
type Native struct {
	// Options are passed to train.NewBuilder.
	Options []train.Option
}

// Name implements Implementation.
func (Native) Name() string { return "native" }

// Train implements Implementation.
func (n Native) Train(ctx context.Context, c *corpus.Corpus) (*model.Model, error) {
	b, err := train.NewBuilder(n.Options...)
	if err != nil {
		return nil, err
	}
	m, _, err := b.Build(ctx, c)
	return m, err
}

// Classify implements Implementation.
func (Native) Classify(_ context.Context, m *model.Model, doc []byte) (classify.Result, error) {
	return classify.New(m).Classify(doc), nil
}

// WireFormat passes another implementation's model through the persisted
// format and its results through the trace format, so that a comparison
// against the unwrapped implementation checks both codecs.
type WireFormat struct {
	Inner Implementation
}

// Name implements Implementation.
func (w WireFormat) Name() string { return w.Inner.Name() + "+wire" }

// Train implements Implementation.
func (w WireFormat) Train(ctx context.Context, c *corpus.Corpus) (*model.Model, error) {
	m, err := w.Inner.Train(ctx, c)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := model.Save(&buf, m); err != nil {
		return nil, err
	}
	return model.Load(&buf)
}

// Classify implements Implementation.
func (w WireFormat) Classify(ctx context.Context, m *model.Model, doc []byte) (classify.Result, error) {
	r, err := w.Inner.Classify(ctx, m, doc)
	if err != nil {
		return classify.Result{}, err
	}
	var buf bytes.Buffer
	if err := EncodeTrace(&buf, r); err != nil {
		return classify.Result{}, err
	}
	return DecodeTrace(&buf)
}

// TraceCommand runs an external classifier binary once per document as
//
//	<Path> <Args...> -v -m <model file> <document file>
//
// and decodes its standard output as a trace. Training is native; the binary
// only has to read the persisted model. Close removes the temporary files.
type TraceCommand struct {
	Path string
	Args []string
	// Env is appended to the current environment.
	Env []string
	// Options are passed to train.NewBuilder.
	Options []train.Option

	mu     sync.Mutex
	dir    string
	models map[*model.Model]string
}

// Name implements Implementation.
func (t *TraceCommand) Name() string { return filepath.Base(t.Path) }

// Train implements Implementation.
func (t *TraceCommand) Train(ctx context.Context, c *corpus.Corpus) (*model.Model, error) {
	return Native{Options: t.Options}.Train(ctx, c)
}

// Classify implements Implementation.
func (t *TraceCommand) Classify(ctx context.Context, m *model.Model, doc []byte) (classify.Result, error) {
	const op = "conformance.TraceCommand"

	modelPath, err := t.modelFile(m)
	if err != nil {
		return classify.Result{}, err
	}

	docFile, err := os.CreateTemp(t.dir, "doc-*.tmp")
	if err != nil {
		return classify.Result{}, sberrors.Input(op, "cannot create document file", err)
	}
	defer os.Remove(docFile.Name())
	if _, err := docFile.Write(doc); err != nil {
		docFile.Close()
		return classify.Result{}, sberrors.Input(op, "cannot write document file", err)
	}
	if err := docFile.Close(); err != nil {
		return classify.Result{}, sberrors.Input(op, "cannot write document file", err)
	}

	args := append(append([]string(nil), t.Args...), "-v", "-m", modelPath, docFile.Name())
	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Env = append(os.Environ(), t.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return classify.Result{}, sberrors.Input(op, "classifier command failed", err).
			WithContext("path", t.Path).
			WithContext("stderr", string(bytes.TrimSpace(stderr.Bytes())))
	}
	r, err := DecodeTrace(&stdout)
	if err != nil {
		return classify.Result{}, fmt.Errorf("%s: %w", t.Path, err)
	}
	return r, nil
}

func (t *TraceCommand) modelFile(m *model.Model) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if path, ok := t.models[m]; ok {
		return path, nil
	}
	if t.dir == "" {
		dir, err := storage.TempDir("conformance")
		if err != nil {
			return "", sberrors.Input("conformance.TraceCommand", "cannot create work directory", err)
		}
		t.dir = dir
		t.models = make(map[*model.Model]string)
	}

	path := filepath.Join(t.dir, fmt.Sprintf("model-%d%s", len(t.models), model.FileExt))
	if err := model.SaveFile(path, m); err != nil {
		return "", err
	}
	t.models[m] = path
	return path, nil
}

// Close removes the files written for the command.
func (t *TraceCommand) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dir == "" {
		return nil
	}
	err := os.RemoveAll(t.dir)
	t.dir = ""
	t.models = nil
	return err
}
