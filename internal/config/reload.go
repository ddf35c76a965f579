package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zhangyunhao116/cmdpolicy"
)

// ReloaderOptions configures a Reloader.
type ReloaderOptions struct {
	// Load selects the policy sources.
	Load LoadOptions

	// EngineOptions are passed to every cmdpolicy.NewEngine call.
	EngineOptions []cmdpolicy.Option

	// Logger receives reload events. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Debounce is the quiet period after the last file event before the
	// policy is reloaded. Default: 100ms.
	Debounce time.Duration

	// OnReload is called with every successfully built engine, including
	// the initial one.
	OnReload func(*cmdpolicy.Engine)
}

// Reloader holds the current engine and rebuilds it when a policy file
// changes. Readers call Engine; calls in flight keep the engine they loaded.
type Reloader struct {
	opts    ReloaderOptions
	logger  *slog.Logger
	user    []string
	project string
	sources []string // absolute, user layers first
	current atomic.Pointer[cmdpolicy.Engine]

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewReloader loads the policy and builds the initial engine. It does not
// watch anything until Start is called.
func NewReloader(opts ReloaderOptions) (*Reloader, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	user, project := layerPaths(opts.Load)
	for i, p := range user {
		user[i] = absPath(p)
	}
	project = absPath(project)
	r := &Reloader{
		opts:    opts,
		logger:  opts.Logger,
		user:    user,
		project: project,
		sources: append(slices.Clone(user), project),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Engine returns the current engine.
func (r *Reloader) Engine() *cmdpolicy.Engine {
	return r.current.Load()
}

// Reload rebuilds the engine from the policy sources. On failure the
// previous engine stays in place.
func (r *Reloader) Reload() error {
	p, err := load(r.opts.Load, r.user, r.project)
	if err != nil {
		return fmt.Errorf("reload policy: %w", err)
	}
	e, err := cmdpolicy.NewEngine(p, r.opts.EngineOptions...)
	if err != nil {
		return fmt.Errorf("reload policy: %w", err)
	}
	r.current.Store(e)
	if r.opts.OnReload != nil {
		r.opts.OnReload(e)
	}
	return nil
}

// Start watches the directories holding the policy sources and reloads on
// change until ctx is done or Close is called.
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		return errors.New("config: reloader already started")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	// Watch directories so that files created or replaced by editors are
	// noticed.
	var dirs []string
	for _, s := range r.sources {
		if d := filepath.Dir(s); !slices.Contains(dirs, d) {
			dirs = append(dirs, d)
		}
	}
	var errs []error
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			r.logger.Debug("cannot watch policy directory", "dir", d, "error", err)
			errs = append(errs, fmt.Errorf("watch %s: %w", d, err))
		}
	}
	if len(errs) == len(dirs) {
		return errors.Join(append(errs, errors.New("config: no policy directory could be watched"), w.Close())...)
	}

	r.watcher = w
	r.done = make(chan struct{})
	r.wg.Add(1)
	go r.run(ctx, w, r.done)
	return nil
}

func (r *Reloader) run(ctx context.Context, w *fsnotify.Watcher, done <-chan struct{}) {
	defer r.wg.Done()
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !slices.Contains(r.sources, absPath(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			pending = time.After(r.opts.Debounce)
		case <-pending:
			pending = nil
			if err := r.Reload(); err != nil {
				r.logger.Warn("policy reload failed, keeping previous policy", "error", err)
				continue
			}
			r.logger.Info("policy reloaded", "sources", r.sources)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.logger.Warn("policy watcher error", "error", err)
		}
	}
}

// absPath returns p as a cleaned absolute path so that it compares equal to
// the names fsnotify reports for watched directories.
func absPath(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return filepath.Clean(p)
}

// Close stops watching. It is safe to call more than once.
func (r *Reloader) Close() error {
	r.mu.Lock()
	w, done := r.watcher, r.done
	r.watcher, r.done = nil, nil
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	close(done)
	err := w.Close()
	r.wg.Wait()
	return err
}
