package hub

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"lazkit/internal/logging"
)

// docDebounce is how long a document must stay quiet before it is reloaded.
const docDebounce = 100 * time.Millisecond

// docExtensions are the files a DocWatcher indexes.
var docExtensions = map[string]bool{".txt": true, ".md": true, ".html": true, ".htm": true}

// collectionName maps a document path to its collection: the base name
// without extension.
func collectionName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DocWatcher keeps local collections in sync with a directory of documents.
// Each file becomes the collection named after it.
type DocWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	target      *collections
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

func newDocWatcher(dir string, target *collections) (*DocWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DocWatcher{
		watcher:     w,
		dir:         dir,
		target:      target,
		debounceMap: make(map[string]time.Time),
		debounceDur: docDebounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start indexes the existing documents and begins watching. It does not block.
func (dw *DocWatcher) Start(ctx context.Context) error {
	dw.mu.Lock()
	running := dw.running
	dw.mu.Unlock()
	if running {
		return nil
	}

	if err := os.MkdirAll(dw.dir, 0755); err != nil {
		return err
	}
	if err := dw.watcher.Add(dw.dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(dw.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			dw.load(filepath.Join(dw.dir, e.Name()))
		}
	}
	logging.Hub("Watching %s for local documents (%d indexed)", dw.dir, len(entries))

	dw.mu.Lock()
	dw.running = true
	dw.mu.Unlock()
	go dw.run(ctx)
	return nil
}

// Stop ends the watch loop and releases the watcher.
func (dw *DocWatcher) Stop() {
	dw.mu.Lock()
	if !dw.running {
		dw.mu.Unlock()
		_ = dw.watcher.Close()
		return
	}
	dw.running = false
	dw.mu.Unlock()

	close(dw.stopCh)
	<-dw.doneCh
	if err := dw.watcher.Close(); err != nil {
		logging.HubWarn("Closing document watcher: %v", err)
	}
}

func (dw *DocWatcher) run(ctx context.Context) {
	defer close(dw.doneCh)

	ticker := time.NewTicker(docDebounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-dw.stopCh:
			return
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if !docExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			dw.mu.Lock()
			dw.debounceMap[event.Name] = time.Now()
			dw.mu.Unlock()
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			logging.HubWarn("Document watcher error: %v", err)
		case <-ticker.C:
			dw.flush()
		}
	}
}

// flush reloads documents whose last event is older than the debounce window.
func (dw *DocWatcher) flush() {
	dw.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range dw.debounceMap {
		if now.Sub(at) >= dw.debounceDur {
			settled = append(settled, path)
			delete(dw.debounceMap, path)
		}
	}
	dw.mu.Unlock()

	for _, path := range settled {
		dw.load(path)
	}
}

// load indexes path, or drops its collection when the file is gone.
func (dw *DocWatcher) load(path string) {
	if !docExtensions[strings.ToLower(filepath.Ext(path))] {
		return
	}
	name := collectionName(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			dw.target.Remove(name)
			logging.Hub("Dropped local collection %s", name)
			return
		}
		logging.HubWarn("Failed to read %s: %v", path, err)
		return
	}
	dw.target.Put(name, string(data))
	logging.Hub("Indexed %s as collection %s", filepath.Base(path), name)
}
