// Package loader resolves `use a::b::c` module paths to `.ruchy` source
// files on disk (spec.md §6 "File layout": "use math loads math.ruchy from
// the same directory; use a::b::c resolves to a/b/c.ruchy"). This is a
// host concern — the core only needs the imported items present before
// lowering begins — but it is a natural home for the teacher's fsnotify
// dependency, which no other component of this repo can exercise.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Resolve maps a qualified module path (the Path segments of an
// ast.Import/ast.UseDecl) to the `.ruchy` file it names, relative to
// baseDir (the directory of the file performing the `use`).
func Resolve(baseDir string, modulePath []string) string {
	parts := append([]string{baseDir}, modulePath...)
	return filepath.Join(parts...) + ".ruchy"
}

// Load resolves and reads a module's source text.
func Load(baseDir string, modulePath []string) (string, error) {
	path := Resolve(baseDir, modulePath)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("loader: resolving %s: %w", strings.Join(modulePath, "::"), err)
	}
	return string(data), nil
}

// Watcher watches the `.ruchy` files a host has loaded and notifies on
// change, for hosts that want hot-reload (a REPL or LSP server; spec.md
// §1 places both out of scope for the core itself, but the resolution
// layer they'd sit on belongs here).
type Watcher struct {
	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	watched  map[string]struct{}
	Changed  chan string
	Errors   chan error
}

// NewWatcher starts an fsnotify watcher with no files registered yet.
func NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("loader: starting watcher: %w", err)
	}
	w := &Watcher{
		fsw:     fsw,
		watched: make(map[string]struct{}),
		Changed: make(chan string, 16),
		Errors:  make(chan error, 16),
	}
	go w.run()
	return w, nil
}

// Watch registers path for change notifications; idempotent.
func (w *Watcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[path]; ok {
		return nil
	}
	if err := w.fsw.Add(path); err != nil {
		return fmt.Errorf("loader: watching %s: %w", path, err)
	}
	w.watched[path] = struct{}{}
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.Changed <- ev.Name
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.Errors <- err
		}
	}
}

// Close stops the underlying fsnotify watcher and the forwarding goroutine.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
