// Package cmd provides the sabir command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/adalundhe/sabir/core/config"
	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
	"github.com/adalundhe/sabir/core/storage"
	"github.com/adalundhe/sabir/core/store"
)

// =============================================================================
// Root Command Flags
// =============================================================================

var (
	rootConfigFile  string
	rootLogLevel    string
	rootProjectRoot string
)

// app holds what PersistentPreRunE sets up for every command.
var app struct {
	config *config.Manager
	logger *slog.Logger
}

var rootCmd = &cobra.Command{
	Use:   "sabir",
	Short: "Sabir - hashed n-gram language identification",
	Long: `Sabir identifies the language of a document by looking up its byte n-grams
in a hashed frequency table trained from a labeled corpus.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupApp,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigFile, "config", "", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&rootProjectRoot, "project", ".", "Directory searched for .sabir/config.yaml")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return sberrors.Config("cmd", "invalid flags", err)
	})
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "sabir: %v\n", err)
		return sberrors.ExitCode(err)
	}
	return 0
}

// =============================================================================
// Setup
// =============================================================================

func setupApp(cmd *cobra.Command, _ []string) error {
	dirs, err := storage.ResolveDirs()
	if err != nil {
		// Without a home directory only explicit paths work.
		dirs = nil
	}

	manager := config.NewManager(dirs)
	manager.SetProjectRoot(rootProjectRoot)
	if rootConfigFile != "" {
		manager.SetFile(rootConfigFile)
	}
	if rootLogLevel != "" {
		manager.SetOverrides(&config.Config{Log: config.LogConfig{Level: rootLogLevel}})
	}
	if err := manager.Load(); err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), manager)
	slog.SetDefault(logger)

	app.config = manager
	app.logger = logger
	return nil
}

// newLogger returns a text logger on w whose level follows every load of the
// manager's configuration.
func newLogger(w io.Writer, manager *config.Manager) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(manager.Get().Log.SlogLevel())
	manager.OnChange(func(cfg *config.Config) {
		level.Set(cfg.Log.SlogLevel())
	})
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// reloadOnSignal reloads the configuration each time sig fires until ctx is
// done. A failed reload keeps the previous configuration.
func reloadOnSignal(ctx context.Context, sig <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			if err := app.config.Reload(); err != nil {
				app.logger.Warn("config reload failed", slog.Any("error", err))
				continue
			}
			app.logger.Info("config reloaded", slog.String("log_level", app.config.Get().Log.Level))
		}
	}
}

// =============================================================================
// Shared Helpers
// =============================================================================

// loadModel reads the model named by a store entry or a file path, falling
// back to the configured model file.
func loadModel(ctx context.Context, path, storeName string) (*model.Model, error) {
	if storeName != "" {
		s, err := openStore()
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return s.Get(ctx, storeName)
	}

	if path == "" {
		p, err := app.config.ModelPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	app.logger.Debug("loading model", slog.String("path", path))
	return model.LoadFile(path)
}

func openStore() (*store.Store, error) {
	path, err := app.config.StorePath()
	if err != nil {
		return nil, err
	}
	return store.Open(path, store.Options{
		CacheSize: app.config.Get().Store.CacheSize,
		Logger:    app.logger,
	})
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
