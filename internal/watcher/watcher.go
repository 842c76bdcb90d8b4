// Package watcher ingests item files dropped into watched directories.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

const (
	defaultDebounce = 400 * time.Millisecond
	queueSize       = 64
)

// Ingester consumes an item file. It returns a nil result when the file was skipped.
type Ingester interface {
	IngestFile(ctx context.Context, path string, allowedExts []string) (*models.UpsertResult, error)
}

// Watcher hands item files created or rewritten under its roots to an Ingester once they
// have been quiet for the debounce period. One worker ingests files in arrival order.
// Deleting a file leaves its items in the index.
type Watcher struct {
	extensions []string
	recursive  bool
	ingester   Ingester
	debounce   time.Duration
	logger     *zap.Logger

	mu    sync.Mutex
	roots []string            // in the order they were added
	dirs  map[string][]string // root -> directories registered with fsnotify
	fsw   *fsnotify.Watcher
	queue *fileQueue
	wg    sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = utils.OrNop(l) }
}

// WithDebounce sets how long a file must stay quiet before it is ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots. Only files whose extension is in extensions
// are ingested; an empty list admits every file.
func NewWatcher(roots []string, extensions []string, recursive bool, ingester Ingester, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		extensions: indexer.NormalizeExtensions(extensions),
		recursive:  recursive,
		ingester:   ingester,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		dirs:       make(map[string][]string),
	}
	for _, r := range roots {
		if r = cleanRoot(r); r != "" && !slices.Contains(w.roots, r) {
			w.roots = append(w.roots, r)
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func cleanRoot(root string) string {
	if strings.TrimSpace(root) == "" {
		return ""
	}
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}

// Start registers the roots, creating any that are missing, and begins watching until
// ctx is cancelled or Stop is called. Calling Start on a running watcher does nothing.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	for _, root := range w.roots {
		if err := w.registerLocked(root); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			clear(w.dirs)
			return err
		}
	}
	q := newFileQueue(w.debounce, queueSize)
	w.queue = q

	w.logger.Info("watching drop directories",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	w.wg.Add(1)
	go w.consume(ctx, q)
	go w.watch(ctx, fsw, q)
	return nil
}

// watch translates fsnotify events into queue updates.
func (w *Watcher) watch(ctx context.Context, fsw *fsnotify.Watcher, q *fileQueue) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-q.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.onEvent(ev, q)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) onEvent(ev fsnotify.Event, q *fileQueue) {
	path := filepath.Clean(ev.Name)
	if w.rootOf(path) == "" {
		return
	}
	w.logger.Debug("watcher event", zap.Stringer("op", ev.Op), zap.String("path", path))

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		q.forget(path)
		if indexer.MatchExtension(path, w.extensions) {
			w.logger.Info("item file removed; its items stay indexed", zap.String("path", path))
		}
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		w.onNewDirectory(path, q)
		return
	}
	if indexer.MatchExtension(path, w.extensions) {
		q.touch(path)
	}
}

// onNewDirectory watches a directory created or moved under a root and queues the
// item files already inside it.
func (w *Watcher) onNewDirectory(dir string, q *fileQueue) {
	w.mu.Lock()
	root := w.rootOfLocked(dir)
	if w.fsw != nil && root != "" {
		for _, d := range w.subdirs(dir) {
			if err := w.fsw.Add(d); err != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", d), zap.Error(err))
				continue
			}
			w.dirs[root] = append(w.dirs[root], d)
		}
	}
	w.mu.Unlock()
	w.queueExisting(dir, q)
}

// subdirs returns dir, plus every directory below it when watching recursively.
func (w *Watcher) subdirs(dir string) []string {
	if !w.recursive {
		return []string{dir}
	}
	var out []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	return out
}

// consume ingests queued files until the queue closes.
func (w *Watcher) consume(ctx context.Context, q *fileQueue) {
	defer w.wg.Done()
	for {
		path, ok := q.next()
		if !ok || ctx.Err() != nil {
			return
		}
		w.ingest(ctx, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if w.ingester == nil {
		return
	}
	res, err := w.ingester.IngestFile(ctx, path, w.extensions)
	switch {
	case err != nil:
		w.logger.Warn("item file not ingested", zap.String("path", path), zap.Error(err))
	case res == nil:
		w.logger.Debug("item file unchanged", zap.String("path", path))
	default:
		w.logger.Info("item file ingested",
			zap.String("path", path),
			zap.Int("accepted", res.Accepted),
			zap.Int("rejected", res.Rejected))
	}
}

// registerLocked creates root if needed and adds it, and its subdirectories when
// recursive, to fsnotify.
func (w *Watcher) registerLocked(root string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	dirs := w.subdirs(root)
	for _, d := range dirs {
		if err := w.fsw.Add(d); err != nil {
			for _, added := range w.dirs[root] {
				_ = w.fsw.Remove(added)
			}
			delete(w.dirs, root)
			return err
		}
		w.dirs[root] = append(w.dirs[root], d)
	}
	return nil
}

func (w *Watcher) rootOf(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rootOfLocked(path)
}

func (w *Watcher) rootOfLocked(path string) string {
	for _, root := range w.roots {
		if inDir(root, path) {
			return root
		}
	}
	return ""
}

// inDir reports whether path is dir or lies below it.
func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// AddDirectory starts watching root. With syncExisting the item files already in it are
// queued as well. Adding a root twice, or adding before Start, does nothing.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	root = cleanRoot(root)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil || root == "" || slices.Contains(w.roots, root) {
		return nil
	}
	if err := w.registerLocked(root); err != nil {
		return err
	}
	w.roots = append(w.roots, root)
	w.logger.Info("watch directory added", zap.String("path", root), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.queueExisting(root, w.queue)
	}
	return nil
}

// RemoveDirectory stops watching root. Items already ingested stay indexed.
func (w *Watcher) RemoveDirectory(root string) error {
	root = cleanRoot(root)
	w.mu.Lock()
	defer w.mu.Unlock()
	i := slices.Index(w.roots, root)
	if w.fsw == nil || i < 0 {
		return nil
	}
	for _, d := range w.dirs[root] {
		_ = w.fsw.Remove(d)
	}
	delete(w.dirs, root)
	w.roots = slices.Delete(w.roots, i, i+1)
	w.logger.Info("watch directory removed", zap.String("path", root))
	return nil
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.roots)
}

// SyncExistingFiles queues every item file already under the roots. It does nothing
// before Start.
func (w *Watcher) SyncExistingFiles() {
	w.mu.Lock()
	q := w.queue
	roots := slices.Clone(w.roots)
	running := w.fsw != nil
	w.mu.Unlock()
	if !running {
		return
	}
	for _, root := range roots {
		w.queueExisting(root, q)
	}
}

func (w *Watcher) queueExisting(dir string, q *fileQueue) {
	w.logger.Debug("watcher syncing directory", zap.String("dir", dir))
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if indexer.MatchExtension(path, w.extensions) {
			q.push(path)
		}
		return nil
	})
}

// Stop stops watching and waits for an in-flight ingest to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw, q := w.fsw, w.queue
	w.fsw = nil
	clear(w.dirs)
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	q.close()
	_ = fsw.Close()
	w.wg.Wait()
}
