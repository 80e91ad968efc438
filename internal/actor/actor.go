// Package actor hosts one task per project that owns the project's
// store handle and watcher. Requests route by project id; a bounded
// mailbox serializes writes while the store itself permits concurrent
// reads.
package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/embed"
	engramerrors "github.com/ccengram/ccengram/internal/errors"
	"github.com/ccengram/ccengram/internal/index"
	"github.com/ccengram/ccengram/internal/memory"
	"github.com/ccengram/ccengram/internal/retrieval"
	"github.com/ccengram/ccengram/internal/store"
	"github.com/ccengram/ccengram/internal/watcher"
)

// mailboxSize bounds the per-actor request queue; senders block when
// the actor falls behind (backpressure).
const mailboxSize = 64

// envelope is one queued request.
type envelope struct {
	ctx    context.Context
	method string
	params json.RawMessage
	reply  chan outcome
}

type outcome struct {
	result any
	err    error
}

// Actor owns one project's resources and processes requests serially.
type Actor struct {
	ProjectID uuid.UUID
	Root      string

	cfg      *config.Config
	store    *store.Store
	embedder embed.Embedder
	memories *memory.Service
	engine   *retrieval.Engine
	indexer  *index.Indexer
	scanner  *index.StartupScanner
	watch    *watcher.Watcher

	mailbox chan envelope
	cancel  context.CancelFunc
	done    chan struct{}

	startedAt time.Time
}

// Spawn opens the project's store and starts the actor loop.
func Spawn(parent context.Context, root string) (*Actor, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, engramerrors.Wrap(engramerrors.ErrCodeConfigInvalid, err)
	}

	projectID := config.ProjectID(root)

	st, err := store.Open(config.ProjectStoreDir(projectID), cfg.Embedding.Dimensions)
	if err != nil {
		return nil, engramerrors.StoreError("failed to open project store", err)
	}

	embedder, err := embed.NewFromConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &Actor{
		ProjectID: projectID,
		Root:      root,
		cfg:       cfg,
		store:     st,
		embedder:  embedder,
		memories:  memory.NewService(st, embedder, cfg, projectID),
		engine:    retrieval.NewEngine(st, embedder),
		mailbox:   make(chan envelope, mailboxSize),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	a.indexer = index.New(st, embedder, cfg, projectID, root)
	a.scanner = index.NewStartupScanner(a.indexer)

	lock, err := watcher.NewLock(config.WatcherLockPath(projectID))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	a.watch = watcher.New(root, time.Duration(cfg.Index.WatcherDebounceMs)*time.Millisecond, lock, watcher.Handler{
		OnChanges: func(ctx context.Context, changes []watcher.Change) {
			a.indexer.ApplyChanges(ctx, changes)
		},
		OnGitignoreChange: func(ctx context.Context) {
			a.rescan(ctx)
		},
		OnConfigChange: func(ctx context.Context) {
			a.reloadConfig()
		},
	})

	if err := a.persistProjectMeta(); err != nil {
		slog.Warn("failed to persist project metadata", "error", err)
	}

	runCtx, cancel := context.WithCancel(parent)
	a.cancel = cancel
	go a.run(runCtx)

	return a, nil
}

// Dispatch queues a request and waits for its outcome.
func (a *Actor) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	env := envelope{ctx: ctx, method: method, params: params, reply: make(chan outcome, 1)}

	select {
	case a.mailbox <- env:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-env.reply:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run is the actor loop: requests process one at a time, giving
// read-your-writes within the actor.
func (a *Actor) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return
		case env := <-a.mailbox:
			result, err := a.handle(env.ctx, env.method, env.params)
			env.reply <- outcome{result: result, err: err}
		}
	}
}

// drain fails queued requests during shutdown.
func (a *Actor) drain() {
	for {
		select {
		case env := <-a.mailbox:
			env.reply <- outcome{err: engramerrors.Cancelled("request")}
		default:
			return
		}
	}
}

// Close stops the watcher and actor and releases resources.
func (a *Actor) Close() {
	a.watch.Stop()
	a.scanner.Cancel()
	a.cancel()
	select {
	case <-a.done:
	case <-time.After(3 * time.Second):
		slog.Warn("actor did not stop cleanly", "project", a.ProjectID)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("store close failed", "project", a.ProjectID, "error", err)
	}
}

// rescan runs a full startup-style reconciliation, used after
// gitignore changes.
func (a *Actor) rescan(ctx context.Context) {
	result, err := a.scanner.Scan(ctx, index.ScanOptions{Mode: config.ScanModeFull})
	if err != nil {
		slog.Warn("rescan failed", "project", a.ProjectID, "error", err)
		return
	}
	a.scanner.Apply(ctx, result)
}

// reloadConfig reloads project configuration in place. Settings that
// affect the embedding model or dimensions require a restart; hot
// swapping models while vectors exist would corrupt the index.
func (a *Actor) reloadConfig() {
	fresh, err := config.Load(a.Root)
	if err != nil {
		slog.Warn("config reload failed", "project", a.ProjectID, "error", err)
		return
	}

	if fresh.Embedding.Model != a.cfg.Embedding.Model ||
		fresh.Embedding.Dimensions != a.cfg.Embedding.Dimensions {
		slog.Warn("embedding model or dimensions changed; restart required to apply",
			"project", a.ProjectID)
		return
	}

	a.cfg.Index = fresh.Index
	a.cfg.Docs = fresh.Docs
	a.cfg.Memory = fresh.Memory
	slog.Info("config reloaded", "project", a.ProjectID)
}

// persistProjectMeta writes projects/<id>/project.json.
func (a *Actor) persistProjectMeta() error {
	meta := struct {
		ID   string `json:"id"`
		Path string `json:"path"`
		Name string `json:"name"`
	}{
		ID:   a.ProjectID.String(),
		Path: a.Root,
		Name: projectName(a.Root),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(config.ProjectMetaPath(a.ProjectID), data)
}

func projectName(root string) string {
	for i := len(root) - 1; i >= 0; i-- {
		if root[i] == '/' || root[i] == '\\' {
			return root[i+1:]
		}
	}
	return root
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp", path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
