// Package watch reports debounced changes to a set of pipeline files.
package watch

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces editor save bursts into one change.
const DefaultDebounce = 300 * time.Millisecond

// Config holds watcher options.
type Config struct {
	Paths    []string
	Debounce time.Duration
	Logger   *zap.Logger
}

// Watcher watches the directories holding Paths, since editors often replace
// a file instead of writing it in place.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	files     map[string]struct{}
	debounce  time.Duration
	log       *zap.Logger
	onChange  chan []string
	done      chan struct{}
}

// New creates a watcher for cfg.Paths.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	files := make(map[string]struct{}, len(cfg.Paths))
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		files[abs] = struct{}{}
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Watcher{
		fsWatcher: fsw,
		files:     files,
		debounce:  debounce,
		log:       log,
		onChange:  make(chan []string, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. The returned channel receives the sorted set of
// files changed since the previous notification.
func (w *Watcher) Start() (<-chan []string, error) {
	dirs := map[string]struct{}{}
	for f := range w.files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.fsWatcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watching directory %s: %w", dir, err)
		}
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	pending := map[string]struct{}{}

	for {
		var fire <-chan time.Time
		if timer != nil {
			fire = timer.C
		}

		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			name, relevant := w.relevant(event)
			if !relevant {
				continue
			}
			pending[name] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-fire:
			timer = nil
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			select {
			case w.onChange <- changed:
				pending = map[string]struct{}{}
			case <-w.done:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return "", false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return "", false
	}
	_, ok := w.files[abs]
	return abs, ok
}
