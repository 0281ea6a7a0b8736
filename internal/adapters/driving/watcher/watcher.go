// Package watcher ingests files dropped into a directory as upload documents.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/logger"
)

// DefaultDebounce is how long a file must stay quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// Ingester is the slice of the ingestion service the watcher drives.
type Ingester interface {
	IngestFile(ctx context.Context, tripID, callerID, path string) (*domain.Document, error)
}

// Config configures a Watcher.
type Config struct {
	// Dir is the directory to watch. Subdirectories are not followed.
	Dir string

	TripID   string
	CallerID string

	// Debounce collapses bursts of writes to one ingest per file.
	Debounce time.Duration

	// ScanExisting ingests files already present when Run starts.
	ScanExisting bool

	// OnIngested, when set, is called after every ingest attempt.
	OnIngested func(path string, doc *domain.Document, err error)
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// Watcher monitors one directory and ingests new or changed files.
type Watcher struct {
	fsw      *fsnotify.Watcher
	ingester Ingester
	cfg      Config

	mu      sync.Mutex
	pending map[string]*time.Timer
	seen    map[string]fileStamp
	stopped bool
	wg      sync.WaitGroup
}

// New creates a watcher. It validates the directory but does not start watching.
func New(ingester Ingester, cfg Config) (*Watcher, error) {
	if cfg.TripID == "" || cfg.CallerID == "" {
		return nil, fmt.Errorf("%w: watcher needs a trip and a caller", domain.ErrInvalidInput)
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: watch directory: %w", domain.ErrInvalidInput, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, cfg.Dir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsw:      fsw,
		ingester: ingester,
		cfg:      cfg,
		pending:  make(map[string]*time.Timer),
		seen:     make(map[string]fileStamp),
	}, nil
}

// Run watches until ctx is cancelled, then waits for in-flight ingests.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.cfg.Dir, err)
	}
	logger.Info("Watching %s for trip %s", w.cfg.Dir, w.cfg.TripID)

	if w.cfg.ScanExisting {
		if err := w.scan(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				w.stop()
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.stop()
				return nil
			}
			logger.Error("watcher error: %v", err)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", w.cfg.Dir, err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			w.schedule(ctx, filepath.Join(w.cfg.Dir, e.Name()))
		}
	}
	return nil
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if ignored(event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		logger.Debug("%s: %s", event.Op, event.Name)
		w.schedule(ctx, event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// Ingested documents outlive their files; deletion is explicit.
		w.mu.Lock()
		if t, ok := w.pending[event.Name]; ok {
			t.Stop()
			delete(w.pending, event.Name)
		}
		w.mu.Unlock()
	}
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		if w.stopped {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}

	w.mu.Lock()
	prev, ok := w.seen[path]
	w.mu.Unlock()
	if ok && prev == stamp {
		return
	}

	doc, err := w.ingester.IngestFile(ctx, w.cfg.TripID, w.cfg.CallerID, path)
	switch {
	case err == nil:
		logger.Info("Ingested %s as %s", filepath.Base(path), doc.ID)
	case errors.Is(err, domain.ErrUnsupportedType):
		logger.Debug("skipping %s: %v", path, err)
	default:
		logger.Error("failed to ingest %s: %v", path, err)
	}

	if err == nil || errors.Is(err, domain.ErrUnsupportedType) {
		w.mu.Lock()
		w.seen[path] = stamp
		w.mu.Unlock()
	}
	if w.cfg.OnIngested != nil {
		w.cfg.OnIngested(path, doc, err)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// ignored filters editor swap files and hidden files.
func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".tmp")
}
