// Package persona supplies the system persona text prepended to every
// conversation sent to the model. The persona comes from inline
// configuration, a file watched for changes at runtime, or a built-in
// default.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/densefog/parley/internal/metrics"
)

// DefaultText is used when no persona is configured.
const DefaultText = "You are a friendly, helpful assistant. Keep replies short, warm, and conversational."

// Provider yields the current persona text.
type Provider interface {
	Text() string
}

// Static is a fixed persona.
type Static string

// Text implements Provider.
func (s Static) Text() string { return string(s) }

// New builds a Provider from configuration. Inline text wins, then a
// watched file, then the default. A file-backed persona starts watching
// immediately; ctx cancellation stops the watch.
func New(ctx context.Context, text, file string, logger *slog.Logger) (Provider, error) {
	if text != "" {
		return Static(text), nil
	}
	if file != "" {
		w, err := NewWatcher(file, logger)
		if err != nil {
			return nil, err
		}
		if err := w.Watch(ctx); err != nil {
			w.Close()
			return nil, err
		}
		return w, nil
	}
	return Static(DefaultText), nil
}

// Watcher is a file-backed persona that reloads on change.
// It uses atomic pointer swaps so readers never block.
type Watcher struct {
	text    atomic.Pointer[string]
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher loads the persona file and returns a watcher for it.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	text, err := readPersonaFile(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:   path,
		logger: logger,
	}
	w.text.Store(&text)

	return w, nil
}

// Text returns the current persona text.
// This is safe to call concurrently from multiple goroutines.
func (w *Watcher) Text() string {
	return *w.text.Load()
}

// Watch starts watching the persona file for changes.
// It debounces rapid changes and swaps the text atomically.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return err
	}

	go w.watchLoop(ctx)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	// Debounce timer to avoid rapid reloads
	const debounceDelay = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Reset debounce timer
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					w.reload()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("persona watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	text, err := readPersonaFile(w.path)
	if err != nil {
		w.logger.Error("failed to reload persona, keeping current",
			"error", err,
		)
		return
	}

	// Atomic swap
	w.text.Store(&text)
	metrics.PersonaReloads.Inc()
	w.logger.Info("persona reloaded", "path", w.path)
}

// Close stops the persona watcher.
func (w *Watcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func readPersonaFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read persona file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("persona file %s is empty", path)
	}
	return text, nil
}
