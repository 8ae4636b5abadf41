// Package watcher observes the coordinated file tree and feeds observed
// modifications into the coordination core. It owns the "best guess actor"
// heuristic; the core only decides whether the observed modifier conflicts
// with recorded ownership.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/crewdhq/crewd/internal/coord"
	"github.com/crewdhq/crewd/internal/event"
)

const (
	// DebounceInterval is the delay after an fsnotify event before the file
	// is hashed; editors often emit several events per save.
	DebounceInterval = 100 * time.Millisecond

	// maxCachedBytes caps the per-file before-content cache used for
	// diffing. Larger files still get hashes, just no diff.
	maxCachedBytes = 128 * 1024
)

// Attributor resolves the best-guess modifier for an observed change. The
// default assumes the recorded owner made the change, which raises no
// conflict; deployments with better attribution (per-agent worktrees,
// adapter reports) inject their own.
type Attributor func(path string, r *coord.Resource) string

// Watcher tails the filesystem under the configured roots.
type Watcher struct {
	coord     *coord.Coordinator
	log       *event.Log
	roots     []string
	ignore    []string
	attribute Attributor
	debounce  time.Duration

	mu       sync.Mutex
	timers   map[string]*time.Timer
	contents map[string][]byte
}

type Option func(*Watcher)

// WithAttributor replaces the default owner-assumed attribution.
func WithAttributor(a Attributor) Option {
	return func(w *Watcher) { w.attribute = a }
}

// WithDebounce overrides the debounce interval, for tests.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func New(c *coord.Coordinator, log *event.Log, roots, ignore []string, opts ...Option) *Watcher {
	w := &Watcher{
		coord:     c,
		log:       log,
		roots:     roots,
		ignore:    ignore,
		attribute: defaultAttributor,
		debounce:  DebounceInterval,
		timers:    make(map[string]*time.Timer),
		contents:  make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func defaultAttributor(_ string, r *coord.Resource) string {
	if r.Owner != "" {
		return r.Owner
	}
	return "unknown"
}

// Run blocks watching the roots until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	for _, root := range w.roots {
		if err := w.addRecursive(fw, root); err != nil {
			return err
		}
	}

	slog.Info("file watcher started", "roots", w.roots)
	for {
		select {
		case <-ctx.Done():
			slog.Info("file watcher stopped")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleFsEvent(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".tmp") {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		for _, ig := range w.ignore {
			if seg == ig {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) handleFsEvent(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fw, ev.Name); err != nil {
				slog.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
		return
	}

	// Debounce per path: editors emit bursts of events per save.
	w.mu.Lock()
	if t, ok := w.timers[ev.Name]; ok {
		t.Stop()
	}
	path := ev.Name
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.observe(ctx, path)
	})
	w.mu.Unlock()
}

// observe hashes the settled file and pushes the observation into the core.
func (w *Watcher) observe(ctx context.Context, path string) {
	content, hash, err := readAndHash(path)
	if err != nil {
		return
	}

	r, tracked := w.coord.GetResource(path)
	if !tracked {
		w.remember(path, content)
		return
	}
	if hash == r.ContentHash {
		return
	}

	actor := w.attribute(path, r)
	raised, err := w.coord.DetectConflict(ctx, path, actor)
	if err != nil {
		slog.Error("conflict detection failed", "path", path, "error", err)
		return
	}

	// Informational modification record, with a diff when the previous
	// content is small enough to have been cached. The conflict event (if
	// any) already carries the hashes.
	meta := map[string]string{}
	if diff := w.diffAgainstCache(path, content); diff != "" {
		meta["diff"] = diff
	}
	if _, err := w.log.Append(ctx, &event.Event{
		ActorID:      actor,
		Action:       event.ActionResourceModified,
		ResourcePath: path,
		BeforeHash:   r.ContentHash,
		AfterHash:    hash,
		Metadata:     meta,
	}); err != nil {
		slog.Error("failed to record modification", "path", path, "error", err)
	}
	if raised {
		slog.Warn("conflict detected", "path", path, "owner", r.Owner, "modified_by", actor)
	}
	w.remember(path, content)
}

func (w *Watcher) remember(path string, content []byte) {
	if len(content) > maxCachedBytes {
		content = nil
	}
	w.mu.Lock()
	w.contents[path] = content
	w.mu.Unlock()
}

func (w *Watcher) diffAgainstCache(path string, after []byte) string {
	w.mu.Lock()
	before, ok := w.contents[path]
	w.mu.Unlock()
	if !ok || before == nil || len(after) > maxCachedBytes {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

func readAndHash(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(content)
	return content, hex.EncodeToString(sum[:]), nil
}

// HashFile fingerprints a file's current content. The daemon injects this
// into the coordinator so claims and releases record fresh hashes.
func HashFile(path string) (string, error) {
	_, hash, err := readAndHash(path)
	return hash, err
}
