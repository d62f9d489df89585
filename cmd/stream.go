package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sabir/core/detector"
	sberrors "github.com/adalundhe/sabir/core/errors"
)

// StreamMaxLine is the longest input line stream accepts.
const StreamMaxLine = 1 << 20

// =============================================================================
// Stream Command Flags
// =============================================================================

var (
	streamModel string
	streamStore string
	streamWatch bool
	streamJSON  bool
	streamStats bool
)

// streamCmd labels standard input line by line.
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Identify the language of each input line",
	Long: `Read documents from standard input, one per line, and print one label per line.

Repeated lines are answered from a result cache. With --watch the model file
is reloaded whenever it changes; lines read after a reload use the new model.
SIGHUP reloads the configuration, which changes the log level in place.

Examples:
  tail -f messages.log | sabir stream -m langs.sb --watch
  sabir stream --store news --json < lines.txt`,
	Args: cobra.NoArgs,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().StringVarP(&streamModel, "model", "m", "", "Model file (default from config)")
	streamCmd.Flags().StringVar(&streamStore, "store", "", "Use the named model from the store")
	streamCmd.Flags().BoolVar(&streamWatch, "watch", false, "Reload the model file when it changes")
	streamCmd.Flags().BoolVar(&streamJSON, "json", false, "Output one JSON object per line")
	streamCmd.Flags().BoolVar(&streamStats, "stats", false, "Print detector statistics to stderr at the end")
	streamCmd.MarkFlagsMutuallyExclusive("model", "store")
	streamCmd.MarkFlagsMutuallyExclusive("watch", "store")
}

func runStream(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg := app.config.Get()

	modelPath := streamModel
	if modelPath == "" && streamStore == "" {
		p, err := app.config.ModelPath()
		if err != nil {
			return err
		}
		modelPath = p
	}
	m, err := loadModel(ctx, modelPath, streamStore)
	if err != nil {
		return err
	}

	svc, err := detector.NewService(m, detector.Config{
		Cache: detector.CacheConfig{
			NumCounters: cfg.Detector.CacheCounters,
			MaxCost:     cfg.Detector.CacheMaxCost,
			TTL:         cfg.Detector.CacheTTL,
		},
		Workers: cfg.Detector.Workers,
	}, app.logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go reloadOnSignal(ctx, hup)

	watchErr := make(chan error, 1)
	if streamWatch {
		go func() { watchErr <- svc.Watch(ctx, modelPath) }()
	} else {
		watchErr <- nil
	}

	if err := streamLines(ctx, cmd, svc); err != nil {
		return err
	}

	cancel()
	if err := <-watchErr; err != nil {
		return err
	}

	if streamStats {
		enc := json.NewEncoder(cmd.ErrOrStderr())
		enc.SetIndent("", "  ")
		return enc.Encode(svc.Stats())
	}
	stats := svc.Stats()
	app.logger.Debug("stream finished",
		slog.Int64("detections", stats.Detections),
		slog.Float64("hit_rate", stats.HitRate),
		slog.Int64("swaps", stats.Swaps))
	return nil
}

func streamLines(ctx context.Context, cmd *cobra.Command, svc *detector.Service) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), StreamMaxLine)

	w := bufio.NewWriter(cmd.OutOrStdout())
	defer w.Flush()
	enc := json.NewEncoder(w)

	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := scanner.Bytes()

		if streamJSON {
			out := toDetectOutput(fmt.Sprintf("%d", line), svc.Classify(doc), false)
			if err := enc.Encode(out); err != nil {
				return err
			}
		} else if _, err := fmt.Fprintln(w, svc.Detect(doc)); err != nil {
			return err
		}

		// Flush per line so a pipe consumer sees labels as they are produced.
		if err := w.Flush(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return sberrors.Input("stream", "cannot read standard input", err)
	}
	return nil
}
