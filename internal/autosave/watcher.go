package autosave

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gencodedoc/internal/gcd"
)

// Observer watches a directory tree for modifications. Implementations
// must debounce bursts and must not report changes under the storage
// directory, which our own writes would otherwise feed back.
type Observer interface {
	Start(root string, onChange func()) error
	Stop() error
}

// debounceWindow limits change signals to at most one per second.
const debounceWindow = time.Second

// FsnotifyObserver implements Observer with fsnotify. Watches are added
// per directory and follow directory creation during the session.
type FsnotifyObserver struct {
	storageDir string
	logger     gcd.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewFsnotifyObserver creates an observer that suppresses events under
// storageDir.
func NewFsnotifyObserver(storageDir string, logger gcd.Logger) *FsnotifyObserver {
	return &FsnotifyObserver{storageDir: storageDir, logger: logger}
}

// Start begins watching root. onChange fires at most once per
// debounceWindow, from the observer's goroutine.
func (o *FsnotifyObserver) Start(root string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	o.watcher = watcher
	o.done = make(chan struct{})

	if err := o.addRecursive(root); err != nil {
		watcher.Close()
		return err
	}

	o.wg.Add(1)
	go o.run(onChange)
	return nil
}

// Stop shuts the observer down and waits for its goroutine to return.
func (o *FsnotifyObserver) Stop() error {
	var err error
	o.stopOnce.Do(func() {
		close(o.done)
		err = o.watcher.Close()
		o.wg.Wait()
	})
	return err
}

func (o *FsnotifyObserver) run(onChange func()) {
	defer o.wg.Done()

	var lastSignal time.Time
	for {
		select {
		case <-o.done:
			return
		case event, ok := <-o.watcher.Events:
			if !ok {
				return
			}
			if o.ignored(event.Name) {
				continue
			}

			// New directories need their own watch.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := o.addRecursive(event.Name); err != nil {
						o.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
					continue // directory events themselves do not mark dirty
				}
			}
			if isDirectory(event.Name) {
				continue
			}

			if now := time.Now(); now.Sub(lastSignal) >= debounceWindow {
				lastSignal = now
				onChange()
			}
		case err, ok := <-o.watcher.Errors:
			if !ok {
				return
			}
			o.logger.Warn("watcher error", "error", err)
		}
	}
}

// ignored filters events under the storage directory so snapshot writes
// never re-trigger the dirty flag.
func (o *FsnotifyObserver) ignored(path string) bool {
	if o.storageDir == "" {
		return false
	}
	rel, err := filepath.Rel(o.storageDir, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

func (o *FsnotifyObserver) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped
		}
		if !d.IsDir() {
			return nil
		}
		if o.ignored(p) {
			return filepath.SkipDir
		}
		if err := o.watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Compile-time check that FsnotifyObserver implements Observer.
var _ Observer = (*FsnotifyObserver)(nil)
