package gallery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/snapseek/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches gallery roots and calls onPhoto once a new or rewritten photo
// has been quiet for the debounce interval. Removals are ignored; indexed
// photos are never deleted.
type Watcher struct {
	roots     []string
	patterns  []string
	recursive bool
	onPhoto   func(path string)
	debounce  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for watch events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before onPhoto is called.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots. Empty patterns means DefaultPatterns.
func NewWatcher(roots, patterns []string, recursive bool, onPhoto func(path string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		patterns:  patterns,
		recursive: recursive,
		onPhoto:   onPhoto,
		debounce:  defaultDebounce,
		pending:   make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			w.roots = append(w.roots, filepath.Clean(abs))
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start begins watching. Missing roots are created. It returns once the roots
// are registered; events are handled until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := ValidatePatterns(w.patterns); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := os.MkdirAll(root, 0755); err != nil {
			_ = fsw.Close()
			return err
		}
		if err := w.addTree(fsw, root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.started = true
	w.logger.Debug("Watcher started", zap.Strings("roots", w.roots), zap.Bool("recursive", w.recursive))
	go w.run(ctx, fsw)
	return nil
}

// Wait blocks until the watcher stops.
func (w *Watcher) Wait() {
	<-w.done
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	if !w.recursive {
		return fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	root, rel, ok := w.relToRoot(ev.Name)
	if !ok {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if w.recursive {
			w.handleNewDirectory(fsw, root, ev.Name)
		}
		return
	}
	if Match(w.patterns, rel) {
		w.schedule(ev.Name)
	}
}

// handleNewDirectory watches a directory that appeared (for example a copied
// album) and schedules the photos already inside it.
func (w *Watcher) handleNewDirectory(fsw *fsnotify.Watcher, root, dir string) {
	if err := w.addTree(fsw, dir); err != nil {
		w.logger.Debug("Watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(root, path); err == nil && Match(w.patterns, rel) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) relToRoot(path string) (string, string, bool) {
	clean := filepath.Clean(path)
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, clean)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return root, rel, true
	}
	return "", "", false
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		active := w.started
		w.mu.Unlock()
		if !active {
			return
		}
		w.logger.Debug("Photo ready", zap.String("path", path))
		if w.onPhoto != nil {
			w.onPhoto(path)
		}
	})
}

// Stop stops watching and cancels pending callbacks.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.started {
		for path, t := range w.pending {
			t.Stop()
			delete(w.pending, path)
		}
		_ = w.fsw.Close()
		w.started = false
	}
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
