package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdown-ticket/mdt/internal/models"
)

func newTestBroadcaster(t *testing.T) *Broadcaster {
	t.Helper()
	b := New(slog.New(slog.DiscardHandler))
	require.NotNil(t, b.fsw, "fsnotify must be available in tests")
	t.Cleanup(b.Close)
	return b
}

// waitEvent receives one event or fails after a generous timeout.
func waitEvent(t *testing.T, ch <-chan models.ChangeEvent) models.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change event")
		return models.ChangeEvent{}
	}
}

func expectNoEvent(t *testing.T, ch <-chan models.ChangeEvent, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(wait):
	}
}

func TestBroadcaster_AddEvent(t *testing.T) {
	dir := t.TempDir()
	b := newTestBroadcaster(t)
	b.WatchProject("p1", dir)

	_, ch := b.Subscribe()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "MDT-001-a.md"), []byte("x"), 0o644))

	ev := waitEvent(t, ch)
	assert.Equal(t, models.EventAdd, ev.EventType)
	assert.Equal(t, "MDT-001-a.md", ev.Filename)
	assert.Equal(t, "p1", ev.ProjectID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestBroadcaster_ChangeEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "MDT-001-a.md")
	require.NoError(t, os.WriteFile(path, []byte("before"), 0o644))

	b := newTestBroadcaster(t)
	b.WatchProject("p1", dir)
	_, ch := b.Subscribe()

	require.NoError(t, os.WriteFile(path, []byte("after"), 0o644))

	ev := waitEvent(t, ch)
	assert.Equal(t, models.EventChange, ev.EventType)
}

func TestBroadcaster_UnlinkEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "MDT-001-a.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	b := newTestBroadcaster(t)
	b.WatchProject("p1", dir)
	_, ch := b.Subscribe()

	require.NoError(t, os.Remove(path))

	ev := waitEvent(t, ch)
	assert.Equal(t, models.EventUnlink, ev.EventType)
}

func TestBroadcaster_IgnoresNonMarkdown(t *testing.T) {
	dir := t.TempDir()
	b := newTestBroadcaster(t)
	b.WatchProject("p1", dir)
	_, ch := b.Subscribe()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	expectNoEvent(t, ch, 400*time.Millisecond)
}

func TestBroadcaster_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "MDT-001-a.md")
	require.NoError(t, os.WriteFile(path, []byte("v0"), 0o644))

	b := newTestBroadcaster(t)
	b.WatchProject("p1", dir)
	_, ch := b.Subscribe()

	// Rapid successive writes within the debounce window.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("burst"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	waitEvent(t, ch)
	expectNoEvent(t, ch, 400*time.Millisecond)
}

func TestBroadcaster_UnwatchProject(t *testing.T) {
	dir := t.TempDir()
	b := newTestBroadcaster(t)
	b.WatchProject("p1", dir)
	_, ch := b.Subscribe()

	b.UnwatchProject("p1")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "MDT-001-a.md"), []byte("x"), 0o644))
	expectNoEvent(t, ch, 400*time.Millisecond)
}

func TestBroadcaster_ReconcileWorktrees(t *testing.T) {
	main := t.TempDir()
	wtA := t.TempDir()
	wtB := t.TempDir()

	b := newTestBroadcaster(t)
	b.WatchProject("p1", main)
	b.ReconcileWorktrees("p1", []string{wtA})
	_, ch := b.Subscribe()

	require.NoError(t, os.WriteFile(filepath.Join(wtA, "MDT-001-a.md"), []byte("x"), 0o644))
	ev := waitEvent(t, ch)
	assert.Equal(t, "p1", ev.ProjectID)

	// Swap wtA for wtB; only wtB should emit now.
	b.ReconcileWorktrees("p1", []string{wtB})

	require.NoError(t, os.WriteFile(filepath.Join(wtA, "MDT-002-a.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(wtB, "MDT-003-b.md"), []byte("x"), 0o644))

	ev = waitEvent(t, ch)
	assert.Equal(t, "MDT-003-b.md", ev.Filename)

	// Main watch survived reconciliation.
	require.NoError(t, os.WriteFile(filepath.Join(main, "MDT-004-m.md"), []byte("x"), 0o644))
	ev = waitEvent(t, ch)
	assert.Equal(t, "MDT-004-m.md", ev.Filename)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	dir := t.TempDir()
	b := newTestBroadcaster(t)
	b.WatchProject("p1", dir)

	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open, "channel is closed on unsubscribe")
}

func TestBroadcaster_UnsubscribeDuringBroadcast(t *testing.T) {
	b := newTestBroadcaster(t)
	path := filepath.Join(t.TempDir(), "MDT-001-a.md")

	// Hammer emit from several goroutines while subscribers churn. A send
	// racing a concurrent close would panic the process.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				b.mu.Lock()
				b.latest[path] = models.EventChange
				b.mu.Unlock()
				b.emit(path, "p1")
			}
		}()
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		id, ch := b.Subscribe()
		b.Unsubscribe(id)
		for range ch {
		}
	}
	close(done)
	wg.Wait()
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := New(slog.New(slog.DiscardHandler))
	b.Close()

	_, ch := b.Subscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestNewSubscriptionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newSubscriptionID()
		assert.Len(t, id, 26, "ULID string length")
		assert.False(t, seen[id])
		seen[id] = true
	}
}
