package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sabir/core/conformance"
	"github.com/adalundhe/sabir/core/corpus"
	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/train"
)

// =============================================================================
// Conformance Command Flags
// =============================================================================

var (
	confCorpus      string
	confDocs        int
	confMaxLen      int
	confSeed        uint64
	confAgainst     string
	confAgainstArgs []string
	confNGram       int
	confTableSize   int
	confJSON        bool
)

// conformanceCmd compares two classifier implementations.
var conformanceCmd = &cobra.Command{
	Use:   "conformance",
	Short: "Compare classification traces of two implementations",
	Long: `Train on a corpus, classify generated documents with two implementations and
compare their traces line by line.

Without --against the in-process classifier is compared with itself through
the model file and trace codecs. With --against BIN every document is also
classified by running BIN [ARGS...] -v -m MODEL DOC, and its standard output
must match the in-process trace exactly.

Examples:
  sabir conformance --corpus ./corpus
  sabir conformance --corpus ./corpus --against ./other-impl --docs 1000
  sabir conformance --corpus ./corpus --against sabir --against-args detect`,
	Args: cobra.NoArgs,
	RunE: runConformance,
}

func init() {
	rootCmd.AddCommand(conformanceCmd)

	conformanceCmd.Flags().StringVarP(&confCorpus, "corpus", "c", "", "Corpus directory")
	conformanceCmd.Flags().IntVar(&confDocs, "docs", conformance.DefaultDocs, "Number of generated documents")
	conformanceCmd.Flags().IntVar(&confMaxLen, "max-len", conformance.DefaultMaxLen, "Maximum document length in characters")
	conformanceCmd.Flags().Uint64Var(&confSeed, "seed", conformance.DefaultSeed, "Document generator seed")
	conformanceCmd.Flags().StringVar(&confAgainst, "against", "", "External classifier binary")
	conformanceCmd.Flags().StringSliceVar(&confAgainstArgs, "against-args", nil, "Arguments placed before -v -m MODEL DOC")
	conformanceCmd.Flags().IntVarP(&confNGram, "ngram", "n", 0, "N-gram length in bytes (default from config)")
	conformanceCmd.Flags().IntVar(&confTableSize, "table-size", 0, "Hash table size (default from config)")
	conformanceCmd.Flags().BoolVar(&confJSON, "json", false, "Output the report as JSON")
}

// conformanceOutput is the JSON output for conformance.
type conformanceOutput struct {
	Reference  string `json:"reference"`
	Candidate  string `json:"candidate"`
	Docs       int    `json:"docs"`
	Passed     bool   `json:"passed"`
	Line       int    `json:"line,omitempty"`
	Doc        int    `json:"doc"`
	Want       string `json:"want,omitempty"`
	Got        string `json:"got,omitempty"`
	Document   string `json:"document,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func runConformance(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := app.config.Get()

	if confCorpus == "" {
		return sberrors.Config("conformance", "--corpus is required", nil)
	}

	ngramSize := cfg.Model.NGramSize
	if cmd.Flags().Changed("ngram") {
		ngramSize = confNGram
	}
	tableSize := cfg.Model.TableSize
	if cmd.Flags().Changed("table-size") {
		tableSize = confTableSize
	}
	opts := []train.Option{
		train.WithNGramSize(ngramSize),
		train.WithTableSize(tableSize),
		train.WithWorkers(cfg.Train.Workers),
		train.WithLogger(app.logger),
	}

	c, err := corpus.LoadDir(ctx, confCorpus, corpus.LoadOptions{
		Include: cfg.Train.Include,
		Exclude: cfg.Train.Exclude,
		Logger:  app.logger,
	})
	if err != nil {
		return err
	}

	ref := conformance.Native{Options: opts}
	var cand conformance.Implementation = conformance.WireFormat{Inner: ref}
	if confAgainst != "" {
		tc := &conformance.TraceCommand{Path: confAgainst, Args: confAgainstArgs, Options: opts}
		defer tc.Close()
		cand = tc
	}

	report, err := conformance.Run(ctx, conformance.Config{
		Corpus: c,
		Docs:   confDocs,
		MaxLen: confMaxLen,
		Seed:   confSeed,
		Logger: app.logger,
	}, ref, cand)
	if err != nil {
		return err
	}

	out := conformanceOutput{
		Reference:  report.Reference,
		Candidate:  report.Candidate,
		Docs:       report.Docs,
		Passed:     report.Passed(),
		DurationMS: report.Duration.Milliseconds(),
	}
	if mm := report.Mismatch; mm != nil {
		out.Line = mm.Line
		out.Doc = mm.Doc
		out.Want = mm.Want
		out.Got = mm.Got
		out.Document = string(mm.Document)
	}

	if confJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		outputConformance(cmd.OutOrStdout(), report)
	}

	if !report.Passed() {
		return sberrors.Input("conformance", "implementations disagree", nil).
			WithContext("doc", fmt.Sprintf("%d", report.Mismatch.Doc))
	}
	return nil
}

func outputConformance(w io.Writer, report *conformance.RunReport) {
	if report.Passed() {
		fmt.Fprintf(w, "%s and %s agree on %d documents (%s)\n",
			report.Reference, report.Candidate, report.Docs, report.Duration)
		return
	}
	fmt.Fprintf(w, "%s and %s disagree after %d documents\n",
		report.Reference, report.Candidate, report.Docs)
	fmt.Fprintln(w, report.Mismatch.String())
}
