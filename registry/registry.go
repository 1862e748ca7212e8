// Package registry holds the hash list of every project under a root directory
// and serves it to concurrent readers.
//
// Lists are immutable once published. A refresh builds a new list without
// holding the lock and then swaps the project's pointer, so readers observe
// either the old or the new list and readers of other projects never wait on
// an index build.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"vismatch/logging"
	"vismatch/types"
)

// Builder produces the hash list of one project directory
type Builder interface {
	BuildIndex(ctx context.Context, projectPath string, t types.HashType) (types.ProjectHashList, error)
}

// Project is a published, read-only snapshot of one project
type Project struct {
	Descriptor types.ProjectDescriptor
	Path       string
	Entries    types.ProjectHashList
	IndexedAt  time.Time
}

// Name returns the project name
func (p *Project) Name() string { return p.Descriptor.Name }

// LoadReport describes a Load run
type LoadReport struct {
	Loaded   []string
	Failed   map[string]error
	Duration time.Duration
}

// Registry maps project names to their hash lists
type Registry struct {
	root        string
	hashType    types.HashType
	builder     Builder
	logger      *slog.Logger
	parallelism int

	mu       sync.RWMutex
	projects map[string]*Project
	// generations counts removals per name; a build publishes only if no
	// removal happened while it ran
	generations map[string]uint64

	refreshes singleflight.Group
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithParallelism bounds how many projects Load indexes at once
func WithParallelism(n int) Option {
	return func(r *Registry) { r.parallelism = n }
}

// New creates an empty registry for the projects under root
func New(root string, t types.HashType, builder Builder, opts ...Option) *Registry {
	r := &Registry{
		root:        root,
		hashType:    t,
		builder:     builder,
		parallelism: 4,
		projects:    make(map[string]*Project),
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	if r.parallelism <= 0 {
		r.parallelism = 1
	}
	return r
}

// EnsureRoot creates root when missing and fails when it is not a directory
func EnsureRoot(root string) error {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0755); err != nil {
			return fmt.Errorf("cannot create project root %s: %w", root, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access project root %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root %s is not a directory", root)
	}
	return nil
}

// ValidName checks that name is usable as a single directory under the root
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Root returns the project root directory
func (r *Registry) Root() string { return r.root }

// HashType returns the hash type every list is built with
func (r *Registry) HashType() types.HashType { return r.hashType }

// Load indexes every immediate subdirectory of the root. A project that fails
// to index is logged and left out; only an unreadable root is an error
func (r *Registry) Load(ctx context.Context) (LoadReport, error) {
	start := time.Now()
	report := LoadReport{Failed: make(map[string]error)}

	dirEntries, err := os.ReadDir(r.root)
	if err != nil {
		return report, fmt.Errorf("error reading root project contents %s: %w", r.root, err)
	}

	var names []string
	for _, de := range dirEntries {
		if de.IsDir() {
			names = append(names, de.Name())
		}
	}

	built := make([]*Project, len(names))
	errs := make([]error, len(names))
	gens := r.generationsOf(names)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, name := range names {
		g.Go(func() error {
			built[i], errs[i] = r.build(gctx, name)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, err
	}

	r.mu.Lock()
	for i, name := range names {
		if errs[i] != nil {
			report.Failed[name] = errs[i]
			continue
		}
		if r.generations[name] != gens[i] {
			continue
		}
		r.projects[name] = built[i]
		report.Loaded = append(report.Loaded, name)
	}
	r.mu.Unlock()

	for name, err := range report.Failed {
		r.logger.Warn("project excluded from registry", "project", name, "error", err)
	}
	report.Duration = time.Since(start)
	r.logger.Info("registry loaded",
		"root", r.root,
		"projects", len(report.Loaded),
		"failed", len(report.Failed),
		"duration", report.Duration,
	)
	return report, nil
}

func (r *Registry) build(ctx context.Context, name string) (*Project, error) {
	path := filepath.Join(r.root, name)
	start := time.Now()

	entries, err := r.builder.BuildIndex(ctx, path, r.hashType)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("project built",
		"project", name,
		"entries", len(entries),
		"duration", time.Since(start),
	)
	return &Project{
		Descriptor: types.DescriptorFor(name),
		Path:       path,
		Entries:    entries,
		IndexedAt:  time.Now(),
	}, nil
}

// Get returns the current snapshot of a project
func (r *Registry) Get(name string) (*Project, error) {
	r.mu.RLock()
	p, ok := r.projects[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &ErrProjectNotFound{Name: name}
	}
	return p, nil
}

// Refresh re-indexes one project and publishes the new list. Concurrent
// refreshes of the same project share a single build. A project without a
// directory is not found, and so is one removed while its build ran
func (r *Registry) Refresh(ctx context.Context, name string) (*Project, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}

	v, err, _ := r.refreshes.Do(name, func() (any, error) {
		gen := r.generationsOf([]string{name})[0]
		if _, err := os.Stat(filepath.Join(r.root, name)); errors.Is(err, fs.ErrNotExist) {
			return nil, &ErrProjectNotFound{Name: name}
		}
		p, err := r.build(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("refresh project %s: %w", name, err)
		}
		if !r.publish(p, gen) {
			r.logger.Info("refresh discarded, project removed", "project", name)
			return nil, &ErrProjectNotFound{Name: name}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Project), nil
}

// Put publishes entries as the list of project name, replacing any previous one
func (r *Registry) Put(name string, entries types.ProjectHashList) (*Project, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	p := &Project{
		Descriptor: types.DescriptorFor(name),
		Path:       filepath.Join(r.root, name),
		Entries:    slices.Clone(entries),
		IndexedAt:  time.Now(),
	}
	r.swap(p)
	return p, nil
}

func (r *Registry) swap(p *Project) {
	r.mu.Lock()
	r.projects[p.Name()] = p
	r.mu.Unlock()
}

// publish swaps p in unless its project was removed after gen was read
func (r *Registry) publish(p *Project, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.generations[p.Name()] != gen {
		return false
	}
	r.projects[p.Name()] = p
	return true
}

func (r *Registry) generationsOf(names []string) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uint64, len(names))
	for i, name := range names {
		out[i] = r.generations[name]
	}
	return out
}

// Remove drops a project from the registry and discards builds of it that are
// still running. Its files are left alone
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generations[name]++
	if _, ok := r.projects[name]; !ok {
		return false
	}
	delete(r.projects, name)
	return true
}

// Names returns the registered project names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.projects))
	for name := range r.projects {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Projects returns every snapshot, sorted by name
func (r *Registry) Projects() []*Project {
	r.mu.RLock()
	out := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Project) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

// Len returns the number of projects
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}
