package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sabir/core/classify"
	"github.com/adalundhe/sabir/core/conformance"
	"github.com/adalundhe/sabir/core/detector"
	sberrors "github.com/adalundhe/sabir/core/errors"
)

// =============================================================================
// Detect Command Flags
// =============================================================================

var (
	detectModel     string
	detectStore     string
	detectVerbose   bool
	detectLanguages bool
	detectJSON      bool
)

// stdinName labels the standard input in multi-document output.
const stdinName = "-"

// detectCmd classifies documents.
var detectCmd = &cobra.Command{
	Use:   "detect [FILE...]",
	Short: "Identify the language of documents",
	Long: `Identify the language of each FILE, or of standard input when no FILE is given.

With one document the label is printed alone. With several, each line is
path:label. Documents too short to yield an n-gram are labeled und.

-v prints the classification trace instead: one line per n-gram with its hex
bytes, winning language, hash and probability, followed by the label.

Examples:
  sabir detect -m langs.sb doc.txt
  sabir detect --store news a.txt b.txt
  echo "the quick fox" | sabir detect -v
  sabir detect -l`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVarP(&detectModel, "model", "m", "", "Model file (default from config)")
	detectCmd.Flags().StringVar(&detectStore, "store", "", "Use the named model from the store")
	detectCmd.Flags().BoolVarP(&detectVerbose, "verbose", "v", false, "Print the classification trace")
	detectCmd.Flags().BoolVarP(&detectLanguages, "languages", "l", false, "List the model's languages and exit")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Output one JSON object per document")
	detectCmd.MarkFlagsMutuallyExclusive("model", "store")
}

// detectOutput is the JSON output for one document.
type detectOutput struct {
	Path     string        `json:"path"`
	Language string        `json:"language"`
	Scores   []scoreOutput `json:"scores,omitempty"`
	Trace    []traceOutput `json:"trace,omitempty"`
}

type scoreOutput struct {
	Language string  `json:"language"`
	Score    float64 `json:"score"`
}

type traceOutput struct {
	NGram       string  `json:"ngram"`
	Language    string  `json:"language"`
	Hash        uint32  `json:"hash"`
	Probability float64 `json:"probability"`
}

type document struct {
	path string
	body []byte
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := loadModel(ctx, detectModel, detectStore)
	if err != nil {
		return err
	}

	if detectLanguages {
		for _, label := range m.Languages() {
			fmt.Fprintln(cmd.OutOrStdout(), label)
		}
		return nil
	}

	docs, err := readDocuments(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	svc, err := detector.NewService(m, detector.Config{
		DisableCache: true,
		Workers:      app.config.Get().Detector.Workers,
	}, app.logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	w := cmd.OutOrStdout()
	switch {
	case detectJSON:
		enc := json.NewEncoder(w)
		for _, d := range docs {
			if err := enc.Encode(toDetectOutput(d.path, svc.Classify(d.body), detectVerbose)); err != nil {
				return err
			}
		}
		return nil

	case detectVerbose:
		for _, d := range docs {
			if len(docs) > 1 {
				fmt.Fprintf(w, "==> %s <==\n", d.path)
			}
			if err := conformance.EncodeTrace(w, svc.Classify(d.body)); err != nil {
				return err
			}
		}
		return nil

	case len(docs) == 1:
		_, err := fmt.Fprintln(w, svc.Detect(docs[0].body))
		return err

	default:
		bodies := make([][]byte, len(docs))
		for i, d := range docs {
			bodies[i] = d.body
		}
		labels, err := svc.DetectBatch(ctx, bodies)
		if err != nil {
			return err
		}
		for i, d := range docs {
			fmt.Fprintf(w, "%s:%s\n", d.path, labels[i])
		}
		return nil
	}
}

// readDocuments reads every named file, or stdin when there are none.
func readDocuments(stdin io.Reader, paths []string) ([]document, error) {
	const op = "detect"

	if len(paths) == 0 {
		if isTerminal(stdin) {
			return nil, sberrors.Config(op, "no input: pass FILE or pipe a document", nil)
		}
		body, err := io.ReadAll(stdin)
		if err != nil {
			return nil, sberrors.Input(op, "cannot read standard input", err)
		}
		return []document{{path: stdinName, body: body}}, nil
	}

	docs := make([]document, 0, len(paths))
	for _, p := range paths {
		var (
			body []byte
			err  error
		)
		if p == stdinName {
			body, err = io.ReadAll(stdin)
		} else {
			body, err = os.ReadFile(p)
		}
		if err != nil {
			return nil, sberrors.Input(op, "cannot read document", err).WithContext("path", p)
		}
		docs = append(docs, document{path: p, body: body})
	}
	return docs, nil
}

func toDetectOutput(path string, r classify.Result, withTrace bool) detectOutput {
	out := detectOutput{Path: path, Language: r.Language}
	for _, s := range r.Ranked() {
		out.Scores = append(out.Scores, scoreOutput{Language: s.Language, Score: s.Score})
	}
	if withTrace {
		for _, e := range r.Trace {
			out.Trace = append(out.Trace, traceOutput{
				NGram:       hex.EncodeToString(e.NGram),
				Language:    e.Language,
				Hash:        e.Hash,
				Probability: e.Probability,
			})
		}
	}
	return out
}
