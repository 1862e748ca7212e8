// Package watcher keeps the registry in step with the project root: image
// changes inside a project trigger a debounced refresh of that project, new
// project directories are added and deleted ones dropped.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vismatch/formats"
	"vismatch/logging"
	"vismatch/registry"
)

// Target receives project changes
type Target interface {
	Refresh(ctx context.Context, name string) (*registry.Project, error)
	Remove(name string) bool
}

// Config tunes a ProjectWatcher; zero values take the package defaults
type Config struct {
	DebounceDuration time.Duration
	IgnorePatterns   []string
	Logger           *slog.Logger
}

// ProjectWatcher watches a project root one level deep
type ProjectWatcher struct {
	watcher   *fsnotify.Watcher
	root      string
	target    Target
	config    Config
	logger    *slog.Logger
	debouncer *Debouncer

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

// New starts watching root and every project directory under it
func New(root string, target Target, config Config) (*ProjectWatcher, error) {
	if config.DebounceDuration <= 0 {
		config.DebounceDuration = DefaultDebounceDuration
	}
	if config.IgnorePatterns == nil {
		config.IgnorePatterns = IgnoredPatterns
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	pw := &ProjectWatcher{
		watcher:   fsw,
		root:      filepath.Clean(root),
		target:    target,
		config:    config,
		logger:    logging.OrDiscard(config.Logger).With("component", "watcher"),
		debouncer: NewDebouncer(config.DebounceDuration),
		ctx:       ctx,
		cancel:    cancel,
		stopChan:  make(chan struct{}),
	}

	if err := pw.addTree(); err != nil {
		cancel()
		fsw.Close()
		return nil, err
	}

	pw.wg.Add(1)
	go pw.run()
	return pw, nil
}

func (pw *ProjectWatcher) addTree() error {
	if err := pw.watcher.Add(pw.root); err != nil {
		return fmt.Errorf("failed to watch root %s: %w", pw.root, err)
	}
	entries, err := os.ReadDir(pw.root)
	if err != nil {
		return fmt.Errorf("failed to read root %s: %w", pw.root, err)
	}
	for _, e := range entries {
		if !e.IsDir() || registry.ValidName(e.Name()) != nil {
			continue
		}
		dir := filepath.Join(pw.root, e.Name())
		if err := pw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}
	return nil
}

func (pw *ProjectWatcher) run() {
	defer pw.wg.Done()

	for {
		select {
		case <-pw.stopChan:
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			pw.handle(event)
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Error("watch error", "error", err)
		}
	}
}

func (pw *ProjectWatcher) handle(event fsnotify.Event) {
	if event.Op&WatchedEvents == 0 {
		return
	}
	for _, pattern := range pw.config.IgnorePatterns {
		if strings.Contains(event.Name, pattern) {
			return
		}
	}

	project, member, ok := pw.classify(event.Name)
	if !ok {
		return
	}

	if member == "" {
		// A project directory appeared, vanished or was renamed
		if event.Has(fsnotify.Create) {
			if err := pw.watcher.Add(event.Name); err != nil && !errors.Is(err, fsnotify.ErrClosed) {
				pw.logger.Warn("cannot watch project", "project", project, "error", err)
			}
		}
	} else if !formats.IsImageFile(member) {
		return
	}

	pw.logger.Debug("project changed", "project", project, "path", event.Name, "op", event.Op.String())
	pw.debouncer.Debounce(project, func() { pw.sync(project) })
}

// classify splits path into project and member; member is empty for the
// project directory itself
func (pw *ProjectWatcher) classify(path string) (project, member string, ok bool) {
	rel, err := filepath.Rel(pw.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	switch len(parts) {
	case 1:
		project = parts[0]
	case 2:
		project, member = parts[0], parts[1]
	default:
		return "", "", false
	}
	if registry.ValidName(project) != nil {
		return "", "", false
	}
	return project, member, true
}

func (pw *ProjectWatcher) sync(project string) {
	info, err := os.Stat(filepath.Join(pw.root, project))
	if err != nil || !info.IsDir() {
		if pw.target.Remove(project) {
			pw.logger.Info("project removed", "project", project)
		}
		return
	}

	p, err := pw.target.Refresh(pw.ctx, project)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			pw.logger.Debug("project gone before refresh finished", "project", project)
		case !errors.Is(err, context.Canceled):
			pw.logger.Error("project refresh failed", "project", project, "error", err)
		}
		return
	}
	if p != nil {
		pw.logger.Info("project refreshed", "project", project, "images", len(p.Entries))
	}
}

// Close stops watching and cancels pending refreshes
func (pw *ProjectWatcher) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.closed {
		return ErrWatcherClosed
	}
	pw.closed = true

	pw.debouncer.Stop()
	pw.cancel()
	close(pw.stopChan)
	pw.wg.Wait()

	if err := pw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}
