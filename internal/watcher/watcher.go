package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/gitignore"
)

// gitignorePollInterval is how often the watcher recomputes the
// combined ignore hash to detect ignore-file edits.
const gitignorePollInterval = 5 * time.Second

// Status is a snapshot of the watcher's state.
type Status struct {
	Running        bool    `json:"running"`
	Scanning       bool    `json:"scanning"`
	PendingChanges int     `json:"pending_changes"`
	ScanProgress   float64 `json:"scan_progress,omitempty"`
}

// Handler receives watcher outputs.
type Handler struct {
	// OnChanges receives each debounced change batch.
	OnChanges func(ctx context.Context, changes []Change)

	// OnGitignoreChange fires when the combined ignore hash changes;
	// the project is flagged for rescan.
	OnGitignoreChange func(ctx context.Context)

	// OnConfigChange fires when the project config file changes.
	OnConfigChange func(ctx context.Context)
}

// Watcher owns the fsnotify instance and debouncer for one project.
type Watcher struct {
	root    string
	window  time.Duration
	lock    *Lock
	handler Handler

	mu            sync.Mutex
	running       bool
	scanning      bool
	scanProgress  float64
	cancel        context.CancelFunc
	done          chan struct{}
	gitignoreHash string
}

// New creates a watcher for a project root.
func New(root string, debounce time.Duration, lock *Lock, handler Handler) *Watcher {
	return &Watcher{
		root:    root,
		window:  debounce,
		lock:    lock,
		handler: handler,
	}
}

// Start acquires the coordinator lock and begins watching. Returns
// false without error when another process already watches this
// project; the caller stays read-only.
func (w *Watcher) Start(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return true, nil
	}

	acquired, err := w.lock.TryAcquire()
	if err != nil {
		return false, err
	}
	if !acquired {
		slog.Info("watcher lock held by another process, staying read-only", "root", w.root)
		return false, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		_ = w.lock.Release()
		return false, err
	}

	if err := addRecursive(fsw, w.root, w.root); err != nil {
		_ = fsw.Close()
		_ = w.lock.Release()
		return false, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	w.gitignoreHash = gitignore.HashForProject(w.root)

	go w.run(runCtx, fsw)
	return true, nil
}

// Stop cancels the event loop and releases the lock.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("watcher did not stop cleanly", "root", w.root)
	}
	_ = w.lock.Release()
}

// Status reports the watcher state.
func (w *Watcher) Status(debouncer *Debouncer) Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{
		Running:      w.running,
		Scanning:     w.scanning,
		ScanProgress: w.scanProgress,
	}
	if debouncer != nil {
		s.PendingChanges = debouncer.PendingCount()
	}
	return s
}

// SetScanning marks startup-scan progress for status reporting.
func (w *Watcher) SetScanning(scanning bool, progress float64) {
	w.mu.Lock()
	w.scanning = scanning
	w.scanProgress = progress
	w.mu.Unlock()
}

// run is the event loop: translate, filter, debounce, flush.
func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	defer func() { _ = fsw.Close() }()

	debouncer := NewDebouncer(w.window)
	flush := time.NewTicker(w.window / 2)
	defer flush.Stop()
	gitignorePoll := time.NewTicker(gitignorePollInterval)
	defer gitignorePoll.Stop()

	configPath := config.ConfigPath(w.root)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, fsw, debouncer, event, configPath)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			// Watcher errors are logged; the watcher keeps running.
			slog.Warn("watch error", "root", w.root, "error", err)

		case <-flush.C:
			if ready := debouncer.CollectReady(); len(ready) > 0 && w.handler.OnChanges != nil {
				w.handler.OnChanges(ctx, ready)
			}

		case <-gitignorePoll.C:
			w.pollGitignore(ctx)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, debouncer *Debouncer, event fsnotify.Event, configPath string) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// Config file edits reload configuration in place.
	if event.Name == configPath && event.Op.Has(fsnotify.Write) {
		if w.handler.OnConfigChange != nil {
			w.handler.OnConfigChange(ctx)
		}
		return
	}

	matcher := gitignore.ForProject(w.root)
	isDir := false
	if event.Op.Has(fsnotify.Create) {
		if fi, statErr := os.Stat(event.Name); statErr == nil && fi.IsDir() {
			isDir = true
			if !matcher.Match(rel, true) {
				_ = addRecursive(fsw, w.root, event.Name)
			}
		}
	}

	if matcher.Match(rel, isDir) || isDir {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		debouncer.Add(Change{Path: rel, Kind: KindCreated})
	case event.Op.Has(fsnotify.Write):
		debouncer.Add(Change{Path: rel, Kind: KindModified})
	case event.Op.Has(fsnotify.Remove):
		debouncer.Add(Change{Path: rel, Kind: KindDeleted})
	case event.Op.Has(fsnotify.Rename):
		// Platforms reporting rename as a bare Rename on the old path:
		// the indexer pairs it with the matching Create by content hash.
		debouncer.Add(Change{Path: rel, Kind: KindDeleted})
	}
}

// pollGitignore detects ignore-file edits and flags a rescan.
func (w *Watcher) pollGitignore(ctx context.Context) {
	gitignore.Invalidate(w.root)
	newHash := gitignore.HashForProject(w.root)

	w.mu.Lock()
	changed := newHash != w.gitignoreHash
	w.gitignoreHash = newHash
	w.mu.Unlock()

	if changed {
		slog.Info("gitignore changed, flagging project for rescan", "root", w.root)
		if w.handler.OnGitignoreChange != nil {
			w.handler.OnGitignoreChange(ctx)
		}
	}
}

// addRecursive registers the directory tree at dir with fsnotify,
// skipping directories ignored relative to the project root.
func addRecursive(fsw *fsnotify.Watcher, projectRoot, dir string) error {
	matcher := gitignore.ForProject(projectRoot)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(projectRoot, path)
		if relErr == nil && rel != "." && matcher.Match(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
