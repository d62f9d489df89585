package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sabir/core/corpus"
	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
	"github.com/adalundhe/sabir/core/train"
)

// =============================================================================
// Train Command Flags
// =============================================================================

var (
	trainCorpus    string
	trainOut       string
	trainNGram     int
	trainTableSize int
	trainWorkers   int
	trainStore     string
	trainInclude   []string
	trainExclude   []string
	trainJSON      bool
)

// trainCmd builds a model from a corpus directory.
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Build a model from a labeled corpus",
	Long: `Build a model from a corpus directory.

Each sub-directory of the corpus is a language label and each file in it is
one text. A file <label>.txt at the top level also contributes a text.

Examples:
  sabir train --corpus ./corpus --out langs.sb
  sabir train --corpus ./corpus --store news --table-size 262144
  sabir train --corpus ./corpus --out langs.sb --include '*.txt'`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVarP(&trainCorpus, "corpus", "c", "", "Corpus directory")
	trainCmd.Flags().StringVarP(&trainOut, "out", "o", "", "Write the model to this file")
	trainCmd.Flags().IntVarP(&trainNGram, "ngram", "n", 0, "N-gram length in bytes (default from config)")
	trainCmd.Flags().IntVar(&trainTableSize, "table-size", 0, "Hash table size, a power of two (default from config)")
	trainCmd.Flags().IntVarP(&trainWorkers, "workers", "w", 0, "Languages counted concurrently")
	trainCmd.Flags().StringVar(&trainStore, "store", "", "Save the model in the store under this name")
	trainCmd.Flags().StringSliceVarP(&trainInclude, "include", "I", nil, "Include patterns (e.g., '*.txt')")
	trainCmd.Flags().StringSliceVarP(&trainExclude, "exclude", "E", nil, "Exclude patterns (e.g., '*.md')")
	trainCmd.Flags().BoolVar(&trainJSON, "json", false, "Output the training report as JSON")
}

// trainOutput is the JSON output for train.
type trainOutput struct {
	Languages  []trainLanguage `json:"languages"`
	NGramSize  int             `json:"ngram_size"`
	TableSize  int             `json:"table_size"`
	Populated  int             `json:"populated_slots"`
	Collided   int             `json:"collided_slots"`
	DurationMS int64           `json:"duration_ms"`
	Out        string          `json:"out,omitempty"`
	StoreName  string          `json:"store_name,omitempty"`
	StoreID    string          `json:"store_id,omitempty"`
}

type trainLanguage struct {
	Label  string `json:"label"`
	NGrams uint64 `json:"ngrams"`
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := app.config.Get()

	if trainCorpus == "" {
		return sberrors.Config("train", "--corpus is required", nil)
	}
	if trainOut == "" && trainStore == "" {
		return sberrors.Config("train", "one of --out or --store is required", nil)
	}

	ngramSize := cfg.Model.NGramSize
	if cmd.Flags().Changed("ngram") {
		ngramSize = trainNGram
	}
	tableSize := cfg.Model.TableSize
	if cmd.Flags().Changed("table-size") {
		tableSize = trainTableSize
	}
	workers := cfg.Train.Workers
	if cmd.Flags().Changed("workers") {
		workers = trainWorkers
	}
	include := cfg.Train.Include
	if len(trainInclude) > 0 {
		include = trainInclude
	}
	exclude := cfg.Train.Exclude
	if len(trainExclude) > 0 {
		exclude = trainExclude
	}

	c, err := corpus.LoadDir(ctx, trainCorpus, corpus.LoadOptions{
		Include: include,
		Exclude: exclude,
		Logger:  app.logger,
	})
	if err != nil {
		return err
	}

	b, err := train.NewBuilder(
		train.WithNGramSize(ngramSize),
		train.WithTableSize(tableSize),
		train.WithWorkers(workers),
		train.WithLogger(app.logger),
	)
	if err != nil {
		return err
	}
	m, report, err := b.Build(ctx, c)
	if err != nil {
		return err
	}

	out := trainOutput{
		NGramSize:  m.NGramSize(),
		TableSize:  m.TableSize(),
		Populated:  report.Populated,
		Collided:   report.Collided,
		DurationMS: report.Duration.Milliseconds(),
	}
	for i, label := range report.Languages {
		out.Languages = append(out.Languages, trainLanguage{Label: label, NGrams: report.NGrams[i]})
	}

	if trainOut != "" {
		if err := model.SaveFile(trainOut, m); err != nil {
			return err
		}
		out.Out = trainOut
		app.logger.Info("model written", slog.String("path", trainOut))
	}
	if trainStore != "" {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		info, err := s.Put(ctx, trainStore, m)
		if err != nil {
			return err
		}
		out.StoreName = info.Name
		out.StoreID = info.ID
	}

	if trainJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return outputTrainReport(cmd.OutOrStdout(), out)
}

func outputTrainReport(w io.Writer, out trainOutput) error {
	for _, l := range out.Languages {
		if _, err := fmt.Fprintf(w, "%-12s %d n-grams\n", l.Label, l.NGrams); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "table: %d slots, %d populated, %d collided (n=%d)\n",
		out.TableSize, out.Populated, out.Collided, out.NGramSize)
	if out.Out != "" {
		fmt.Fprintf(w, "wrote %s\n", out.Out)
	}
	if out.StoreName != "" {
		fmt.Fprintf(w, "stored %s (%s)\n", out.StoreName, out.StoreID)
	}
	return nil
}
