// Package watcher broadcasts ticket file changes to subscribers. It watches
// each project's main tickets directory and the tickets directory of every
// known worktree, coalesces rapid write bursts with a short debounce, and
// emits typed events. Wire delivery (SSE framing) is the consumer's job.
package watcher

import (
	"log/slog"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/oklog/ulid/v2"

	"github.com/markdown-ticket/mdt/internal/models"
)

// DebounceWindow coalesces successive writes (editor save plus metadata
// touch) into one event.
const DebounceWindow = 100 * time.Millisecond

const subscriberBuffer = 64

// Broadcaster is the process-wide change broadcaster. Its watch set is
// mutated only through its own methods; no other component registers
// watchers directly.
type Broadcaster struct {
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	dirs     map[string]string              // watched dir -> project id
	projects map[string]*projectWatches     // project id -> watch state
	subs     map[string]chan models.ChangeEvent
	pending  map[string]*time.Timer         // file path -> debounce timer
	latest   map[string]models.EventType    // file path -> last event type seen
	closed   bool

	wg sync.WaitGroup
}

type projectWatches struct {
	main      string
	worktrees map[string]bool // worktree tickets dir set
}

// New creates a broadcaster. A failure to create the underlying fsnotify
// watcher degrades silently: the broadcaster stays usable, watches become
// no-ops, and a warning is logged.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broadcaster{
		logger:   logger,
		debounce: DebounceWindow,
		dirs:     make(map[string]string),
		projects: make(map[string]*projectWatches),
		subs:     make(map[string]chan models.ChangeEvent),
		pending:  make(map[string]*time.Timer),
		latest:   make(map[string]models.EventType),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("file watching unavailable", "error", err)
		return b
	}
	b.fsw = fsw

	b.wg.Add(1)
	go b.loop()
	return b
}

// WatchProject registers a project's main tickets directory.
func (b *Broadcaster) WatchProject(projectID, ticketsDir string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pw := b.projects[projectID]
	if pw == nil {
		pw = &projectWatches{worktrees: make(map[string]bool)}
		b.projects[projectID] = pw
	}
	if pw.main == ticketsDir {
		return
	}
	if pw.main != "" {
		b.removeDirLocked(pw.main)
	}
	pw.main = ticketsDir
	b.addDirLocked(ticketsDir, projectID)
}

// UnwatchProject removes every watch belonging to a project.
func (b *Broadcaster) UnwatchProject(projectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pw := b.projects[projectID]
	if pw == nil {
		return
	}
	if pw.main != "" {
		b.removeDirLocked(pw.main)
	}
	for dir := range pw.worktrees {
		b.removeDirLocked(dir)
	}
	delete(b.projects, projectID)
}

// ReconcileWorktrees aligns a project's worktree watches with the currently
// detected set of worktree tickets directories. New directories gain a
// watcher without disturbing existing ones; directories no longer present
// lose only their own watcher.
func (b *Broadcaster) ReconcileWorktrees(projectID string, ticketsDirs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pw := b.projects[projectID]
	if pw == nil {
		pw = &projectWatches{worktrees: make(map[string]bool)}
		b.projects[projectID] = pw
	}

	want := make(map[string]bool, len(ticketsDirs))
	for _, dir := range ticketsDirs {
		want[dir] = true
		if !pw.worktrees[dir] {
			pw.worktrees[dir] = true
			b.addDirLocked(dir, projectID)
		}
	}
	for dir := range pw.worktrees {
		if !want[dir] {
			delete(pw.worktrees, dir)
			b.removeDirLocked(dir)
		}
	}
}

// Subscribe registers a listener and returns its id and event channel.
// Slow subscribers drop events rather than blocking the broadcast path.
func (b *Broadcaster) Subscribe() (string, <-chan models.ChangeEvent) {
	ch := make(chan models.ChangeEvent, subscriberBuffer)
	id := newSubscriptionID()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Close tears down all watches and subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, timer := range b.pending {
		timer.Stop()
	}
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	fsw := b.fsw
	b.fsw = nil
	b.mu.Unlock()

	if fsw != nil {
		_ = fsw.Close()
	}
	b.wg.Wait()
}

// addDirLocked starts watching a directory. Setup failure for one path is
// logged and does not prevent other paths from being watched.
func (b *Broadcaster) addDirLocked(dir, projectID string) {
	b.dirs[dir] = projectID
	if b.fsw == nil {
		return
	}
	if err := b.fsw.Add(dir); err != nil {
		b.logger.Warn("watch setup failed, continuing without it", "dir", dir, "error", err)
	}
}

func (b *Broadcaster) removeDirLocked(dir string) {
	delete(b.dirs, dir)
	if b.fsw != nil {
		_ = b.fsw.Remove(dir)
	}
}

func (b *Broadcaster) loop() {
	defer b.wg.Done()
	for {
		select {
		case ev, ok := <-b.fsw.Events:
			if !ok {
				return
			}
			b.handle(ev)
		case err, ok := <-b.fsw.Errors:
			if !ok {
				return
			}
			b.logger.Warn("watch error", "error", err)
		}
	}
}

func (b *Broadcaster) handle(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".md") {
		return
	}

	var typ models.EventType
	switch {
	case ev.Op.Has(fsnotify.Create):
		typ = models.EventAdd
	case ev.Op.Has(fsnotify.Write):
		typ = models.EventChange
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		typ = models.EventUnlink
	default:
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	projectID, ok := b.dirs[filepath.Dir(ev.Name)]
	if !ok {
		return
	}

	// Coalescing rules for one burst: unlink supersedes everything, and a
	// create followed by writes stays an add (new files arrive as
	// CREATE+WRITE pairs). Otherwise the latest type wins.
	switch prev := b.latest[ev.Name]; {
	case prev == models.EventUnlink:
	case prev == models.EventAdd && typ == models.EventChange:
	default:
		b.latest[ev.Name] = typ
	}

	path := ev.Name
	if timer, ok := b.pending[path]; ok {
		timer.Reset(b.debounce)
		return
	}
	b.pending[path] = time.AfterFunc(b.debounce, func() {
		b.emit(path, projectID)
	})
}

func (b *Broadcaster) emit(path, projectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	typ := b.latest[path]
	delete(b.pending, path)
	delete(b.latest, path)
	if b.closed || typ == "" {
		return
	}
	event := models.ChangeEvent{
		EventType: typ,
		Filename:  filepath.Base(path),
		ProjectID: projectID,
		Timestamp: time.Now(),
	}
	// Send while holding the lock: Unsubscribe closes channels under the
	// same lock, and the buffered select/default send cannot block.
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropping change event for slow subscriber",
				"file", event.Filename, "project", projectID)
		}
	}
}

func newSubscriptionID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}
