// Package watch implements FileWatcher, the filesystem observer behind a
// Watch starter (spec.md §4.4): native inotify-equivalent or polling,
// chosen by WatchConfig.Poll, filtered through the nearest .gitignore, and
// emitted into a Supervisor-owned WatchEvent queue.
package watch

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/brood-run/brood/internal/config"
)

// RawEventType classifies a filesystem change, generalized from the
// teacher's watcher.EventType vocabulary.
type RawEventType string

const (
	Created  RawEventType = "created"
	Modified RawEventType = "modified"
	Deleted  RawEventType = "deleted"
	Renamed  RawEventType = "renamed"
)

// RawEvent is a single filesystem notification, before gitignore filtering
// and before it is associated with a CommandConfig.
type RawEvent struct {
	Type RawEventType
	Path string
}

// WatchEvent is what the Supervisor's file-event handler consumes: a raw
// filesystem event attributed to the CommandConfig whose Watch starter
// observed it (spec.md §4.4).
type WatchEvent struct {
	CommandConfig config.CommandConfig
	Raw           RawEvent
}

// pollInterval is how often the polling backend re-walks watched paths.
const pollInterval = 500 * time.Millisecond

// FileWatcher watches the paths named by one command's WatchConfig and
// pushes filtered WatchEvents into a shared queue.
type FileWatcher struct {
	cfg   config.CommandConfig
	queue chan<- WatchEvent
	match *gitignore.GitIgnore

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
	fsw     *fsnotify.Watcher

	// mtimes backs the polling backend: last-seen modification time per
	// regular file, used to detect create/modify/delete between walks.
	mtimes map[string]time.Time
}

// New constructs a FileWatcher for cfg, whose Starter must be a Watch
// variant (cfg.Starter.Kind == config.StarterWatch).
func New(cfg config.CommandConfig, queue chan<- WatchEvent) *FileWatcher {
	return &FileWatcher{
		cfg:    cfg,
		queue:  queue,
		match:  loadGitignore(cfg.Starter.Paths),
		stopCh: make(chan struct{}),
		mtimes: make(map[string]time.Time),
	}
}

// loadGitignore looks for a .gitignore alongside each watched path's
// nearest ancestor directory and merges their patterns. A missing
// .gitignore is not an error — nothing is filtered in that case.
func loadGitignore(paths []string) *gitignore.GitIgnore {
	var lines []string
	seen := make(map[string]bool)
	for _, p := range paths {
		dir := p
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			dir = filepath.Dir(p)
		}
		candidate := filepath.Join(dir, ".gitignore")
		if seen[candidate] {
			continue
		}
		seen[candidate] = true

		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		lines = append(lines, string(data))
	}
	if len(lines) == 0 {
		return nil
	}
	gi, err := gitignore.CompileIgnoreLines(splitAll(lines)...)
	if err != nil {
		return nil
	}
	return gi
}

func splitAll(blobs []string) []string {
	var out []string
	for _, blob := range blobs {
		start := 0
		for i := 0; i < len(blob); i++ {
			if blob[i] == '\n' {
				out = append(out, blob[start:i])
				start = i + 1
			}
		}
		if start < len(blob) {
			out = append(out, blob[start:])
		}
	}
	return out
}

func (w *FileWatcher) ignored(path string) bool {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return true
	}
	return w.match != nil && w.match.MatchesPath(path)
}

func (w *FileWatcher) emit(raw RawEvent) {
	if w.ignored(raw.Path) {
		return
	}
	select {
	case w.queue <- WatchEvent{CommandConfig: w.cfg, Raw: raw}:
	case <-w.stopCh:
	}
}

// Start begins observing. Matches WatchConfig.Poll: native fsnotify
// backend when false (the default, grounded on watcher/watcher.go), a
// ticker-driven directory walk when true — fsnotify has no native polling
// mode, so the poll path is new code sharing the same RawEvent vocabulary.
func (w *FileWatcher) Start() error {
	if w.cfg.Starter.Poll {
		go w.runPoll()
		return nil
	}
	return w.runNative()
}

func (w *FileWatcher) runNative() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, p := range w.cfg.Starter.Paths {
		if err := fsw.Add(p); err != nil {
			fsw.Close()
			return err
		}
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				var t RawEventType
				switch {
				case ev.Has(fsnotify.Write):
					t = Modified
				case ev.Has(fsnotify.Create):
					t = Created
				case ev.Has(fsnotify.Remove):
					t = Deleted
				case ev.Has(fsnotify.Rename):
					t = Renamed
				default:
					continue
				}
				w.emit(RawEvent{Type: t, Path: ev.Name})
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Printf("[watch %s] error: %v", w.cfg.Name, err)
			case <-w.stopCh:
				return
			}
		}
	}()
	return nil
}

func (w *FileWatcher) runPoll() {
	w.walk(true) // seed mtimes without emitting synthetic events

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.walk(false)
		case <-w.stopCh:
			return
		}
	}
}

func (w *FileWatcher) walk(seedOnly bool) {
	seen := make(map[string]time.Time)
	for _, root := range w.cfg.Starter.Paths {
		_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			seen[path] = info.ModTime()
			return nil
		})
	}

	if seedOnly {
		w.mtimes = seen
		return
	}

	for path, mtime := range seen {
		prev, existed := w.mtimes[path]
		switch {
		case !existed:
			w.emit(RawEvent{Type: Created, Path: path})
		case !mtime.Equal(prev):
			w.emit(RawEvent{Type: Modified, Path: path})
		}
	}
	for path := range w.mtimes {
		if _, stillThere := seen[path]; !stillThere {
			w.emit(RawEvent{Type: Deleted, Path: path})
		}
	}
	w.mtimes = seen
}

// Stop shuts the watcher down. Idempotent.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
	if w.fsw != nil {
		w.fsw.Close()
	}
}
