package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventSink struct {
	mu      sync.Mutex
	batches [][]ChangeEvent
}

func (s *eventSink) handle(events []ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, events)
	return nil
}

func (s *eventSink) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var paths []string
	for _, batch := range s.batches {
		for _, event := range batch {
			paths = append(paths, event.Path)
		}
	}
	return paths
}

func newTestWatcher(t *testing.T, root string) *FileWatcher {
	t.Helper()
	fw, err := NewFileWatcher(root, 30*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fw.Stop() })
	return fw
}

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestFileWatcherDeliversFilteredChanges(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0755))

	fw := newTestWatcher(t, root)
	fw.AddFilter(SourceFilter)
	sink := &eventSink{}
	fw.AddHandler(sink.handle)
	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	entry := filepath.Join(src, "entry-server.gohtml")
	require.NoError(t, os.WriteFile(entry, []byte("<p>v1</p>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("ignored"), 0644))

	assert.Eventually(t, func() bool {
		for _, p := range sink.paths() {
			if p == entry {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotContains(t, sink.paths(), filepath.Join(src, "notes.txt"))
}

func TestFileWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()

	fw := newTestWatcher(t, root)
	fw.AddFilter(SourceFilter)
	sink := &eventSink{}
	fw.AddHandler(sink.handle)
	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	nested := filepath.Join(root, "src", "pages")
	require.NoError(t, os.MkdirAll(nested, 0755))
	// Give the watch loop a moment to register the new directories.
	time.Sleep(100 * time.Millisecond)

	page := filepath.Join(nested, "home.tmpl")
	require.NoError(t, os.WriteFile(page, []byte("home"), 0644))

	assert.Eventually(t, func() bool {
		for _, p := range sink.paths() {
			if p == page {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcherRejectsPathsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	fw := newTestWatcher(t, root)

	err := fw.AddPath("../../../etc")
	assert.Error(t, err)

	err = fw.AddRecursive(filepath.Dir(root))
	assert.Error(t, err)

	assert.Error(t, fw.AddPath(filepath.Join(root, "missing")))
}

func TestAddRecursiveSkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"src/components", "dist/server", ".git/objects", "node_modules/x"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
	}

	fw := newTestWatcher(t, root)
	require.NoError(t, fw.AddRecursive(root))

	watched := fw.watcher.WatchList()
	assert.Contains(t, watched, filepath.Join(root, "src", "components"))
	assert.NotContains(t, watched, filepath.Join(root, "dist", "server"))
	assert.NotContains(t, watched, filepath.Join(root, ".git"))
	assert.NotContains(t, watched, filepath.Join(root, "node_modules"))
}

func TestFileWatcherStopIsIdempotent(t *testing.T) {
	fw, err := NewFileWatcher(t.TempDir(), 10*time.Millisecond, nil)
	require.NoError(t, err)

	assert.NoError(t, fw.Stop())
	assert.NoError(t, fw.Stop())
}

func TestDebouncerCoalescesByPath(t *testing.T) {
	debouncer := &Debouncer{
		delay:  30 * time.Millisecond,
		events: make(chan ChangeEvent, 100),
		output: make(chan []ChangeEvent, 10),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	debouncer.events <- ChangeEvent{Path: "b.go", Type: EventTypeCreated}
	debouncer.events <- ChangeEvent{Path: "b.go", Type: EventTypeModified}
	debouncer.events <- ChangeEvent{Path: "a.gohtml", Type: EventTypeModified}

	select {
	case batch := <-debouncer.output:
		require.Len(t, batch, 2)
		assert.Equal(t, "a.gohtml", batch[0].Path)
		assert.Equal(t, "b.go", batch[1].Path)
		assert.Equal(t, EventTypeModified, batch[1].Type)
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never flushed")
	}
}

func TestFileWatcherHandlerErrorsDoNotStopDelivery(t *testing.T) {
	root := t.TempDir()
	fw := newTestWatcher(t, root)
	require.NoError(t, fw.AddRecursive(root))

	sink := &eventSink{}
	fw.AddHandler(func(events []ChangeEvent) error { return fmt.Errorf("handler failed") })
	fw.AddHandler(sink.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html></html>"), 0644))

	assert.Eventually(t, func() bool { return len(sink.paths()) > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSourceFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"src/entry-server.gohtml", true},
		{"src/page.TMPL", true},
		{"index.html", true},
		{"main.go", true},
		{"public/app.js", true},
		{"public/app.css", true},
		{"dist/manifest-server.json", true},
		{"README.md", false},
		{"Makefile", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, SourceFilter(tc.path))
		})
	}
}

func TestNoTestFilter(t *testing.T) {
	assert.True(t, NoTestFilter("src/entry.go"))
	assert.False(t, NoTestFilter("src/entry_test.go"))
	assert.True(t, NoTestFilter("src/entry-server.gohtml"))
}

func TestNoEditorTempFilter(t *testing.T) {
	assert.True(t, NoEditorTempFilter("src/entry-server.gohtml"))
	assert.False(t, NoEditorTempFilter("src/entry-server.gohtml~"))
	assert.False(t, NoEditorTempFilter("src/.entry-server.gohtml.swp"))
	assert.False(t, NoEditorTempFilter("src/.#entry-server.gohtml"))
}

func TestNoGitFilter(t *testing.T) {
	assert.True(t, NoGitFilter("src/main.go"))
	assert.False(t, NoGitFilter(".git/config"))
	assert.False(t, NoGitFilter("src/.git/HEAD"))
}
