package detector

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
)

// DefaultDebounce is the default delay between the last change to a watched
// model file and its reload.
const DefaultDebounce = 100 * time.Millisecond

// Watch reloads the model from path whenever the file is written or replaced,
// until ctx is done. A failed reload is retried per Config.Reload; if it still
// fails it is logged and counted, and the current model stays in service.
//
// The parent directory is watched rather than the file so that atomic
// replacement by rename is seen.
func (s *Service) Watch(ctx context.Context, path string) error {
	const op = "detector.Watch"

	abs, err := filepath.Abs(path)
	if err != nil {
		return sberrors.Input(op, "cannot resolve model path", err).WithContext("path", path)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return sberrors.Input(op, "cannot create watcher", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return sberrors.Input(op, "cannot watch model directory", err).WithContext("path", abs)
	}
	s.logger.Info("watching model", slog.String("path", abs))

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !isModelChange(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("model watcher error", slog.String("error", err.Error()))

		case <-fire:
			fire = nil
			s.reloadModel(ctx, abs)
		}
	}
}

func isModelChange(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

func (s *Service) reloadModel(ctx context.Context, path string) {
	attempts := 0
	err := sberrors.Retry(ctx, s.reload, func() error {
		attempts++
		m, err := model.LoadFile(path)
		if err != nil {
			return err
		}
		return s.Swap(m)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.stats.reloadFailures.Add(1)
		s.logger.Error("model reload failed, keeping current model",
			slog.String("path", path),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Info("model reloaded", slog.String("path", path))
}
