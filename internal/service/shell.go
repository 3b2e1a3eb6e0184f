// Package service orchestrates the shell: one loader per configured remote,
// boot fan-out, on-demand loading and registry reloads.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arcfront/shellbus/config"
	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
	"github.com/arcfront/shellbus/internal/domain/model"
	"github.com/arcfront/shellbus/internal/remote"
)

var (
	ErrUnknownRemote = errors.New("service: unknown remote")
	ErrShellClosed   = errors.New("service: shell closed")
)

// [SHELL_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (HTTP/Websocket)
type Sheller interface {
	// LoadAll boots the eager remotes concurrently and announces SHELL_READY
	// once the initial round settles.
	LoadAll(ctx context.Context) error
	Load(ctx context.Context, name string) error
	Retry(ctx context.Context, name string) error
	Status() map[string]remote.Status[*model.RemoteModule]
	Describe() []model.RemoteStatus
	Reload(ctx context.Context, remotes []config.Remote) error
}

// [IMPLEMENTATION] PRIVATE STATE BEHIND THE INTERFACE
type ShellService struct {
	emitter     bus.Emitter
	log         *slog.Logger
	fetcher     *remote.Fetcher
	loaderOpts  []remote.Option
	buildLoadFn func(config.Remote) remote.LoadFunc[*model.RemoteModule]

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	readyOnce sync.Once
}

var _ Sheller = (*ShellService)(nil)

type entry struct {
	cfg    config.Remote
	loader *remote.Loader[*model.RemoteModule]
}

type Option func(*ShellService)

func WithBus(e bus.Emitter) Option {
	return func(s *ShellService) {
		s.emitter = e
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *ShellService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithFetcher replaces the default manifest fetcher.
func WithFetcher(f *remote.Fetcher) Option {
	return func(s *ShellService) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithLoaderOptions appends options applied to every loader the service
// builds, such as retry budget and timeout from configuration.
func WithLoaderOptions(opts ...remote.Option) Option {
	return func(s *ShellService) {
		s.loaderOpts = append(s.loaderOpts, opts...)
	}
}

// WithLoadFunc replaces how a remote's config maps onto its fetch function.
func WithLoadFunc(build func(config.Remote) remote.LoadFunc[*model.RemoteModule]) Option {
	return func(s *ShellService) {
		if build != nil {
			s.buildLoadFn = build
		}
	}
}

// NewShellService builds the orchestrator and registers a loader per remote.
func NewShellService(remotes []config.Remote, opts ...Option) *ShellService {
	s := &ShellService{
		log:     slog.Default(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.buildLoadFn == nil {
		if s.fetcher == nil {
			s.fetcher = remote.NewFetcher()
		}
		s.buildLoadFn = func(rc config.Remote) remote.LoadFunc[*model.RemoteModule] {
			return s.fetcher.LoadFunc(rc.URL)
		}
	}
	for _, rc := range remotes {
		s.registerLocked(rc)
	}
	return s
}

// registerLocked wires one loader. Callers hold the lock, except the
// constructor before the service escapes.
func (s *ShellService) registerLocked(rc config.Remote) {
	opts := append([]remote.Option{
		remote.WithBus(s.emitter),
		remote.WithLogger(s.log),
	}, s.loaderOpts...)
	s.entries[rc.Name] = &entry{
		cfg:    rc,
		loader: remote.NewLoader(rc.Name, s.buildLoadFn(rc), opts...),
	}
}

// LoadAll boots the shell. Each remote loads on its own goroutine; one
// failing remote never blocks or cancels its siblings, the first error
// surfaces after all of them settle.
func (s *ShellService) LoadAll(ctx context.Context) error {
	boot, err := s.bootSet()
	if err != nil {
		return err
	}

	// [CONCURRENCY_CONTROL] a plain errgroup: sibling loads are independent,
	// so no shared cancellation on first failure.
	var g errgroup.Group
	for _, en := range boot {
		en := en
		g.Go(func() error {
			return en.loader.Load(ctx)
		})
	}
	err = g.Wait()

	s.announceReady(ctx, boot)
	return err
}

// bootSet picks the remotes LoadAll drives. Eager ones only; a registry
// where nobody opted in boots everything.
func (s *ShellService) bootSet() ([]*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShellClosed
	}

	var eager, all []*entry
	for _, en := range s.entries {
		all = append(all, en)
		if en.cfg.Eager {
			eager = append(eager, en)
		}
	}
	if len(eager) > 0 {
		return eager, nil
	}
	return all, nil
}

// announceReady emits SHELL_READY exactly once, after the first boot round.
func (s *ShellService) announceReady(ctx context.Context, boot []*entry) {
	s.readyOnce.Do(func() {
		var loaded, failed []string
		for _, en := range boot {
			if en.loader.State() == model.StateLoaded {
				loaded = append(loaded, en.cfg.Name)
			} else {
				failed = append(failed, en.cfg.Name)
			}
		}
		sort.Strings(loaded)
		sort.Strings(failed)

		s.log.Info("SHELL_READY", "loaded", loaded, "failed", failed)
		if s.emitter != nil {
			s.emitter.Emit(ctx, event.TypeShellReady, event.ShellReady{
				Loaded: loaded,
				Failed: failed,
			}, bus.WithSource(event.SourceShell))
		}
	})
}

func (s *ShellService) Load(ctx context.Context, name string) error {
	en, err := s.lookup(name)
	if err != nil {
		return err
	}
	return en.loader.Load(ctx)
}

// Retry is the user-facing "try again" for a single remote.
func (s *ShellService) Retry(ctx context.Context, name string) error {
	en, err := s.lookup(name)
	if err != nil {
		return err
	}
	return en.loader.Retry(ctx)
}

func (s *ShellService) lookup(name string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShellClosed
	}
	en, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRemote, name)
	}
	return en, nil
}

// Status snapshots every loader keyed by remote name.
func (s *ShellService) Status() map[string]remote.Status[*model.RemoteModule] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]remote.Status[*model.RemoteModule], len(s.entries))
	for name, en := range s.entries {
		out[name] = en.loader.Status()
	}
	return out
}

// Describe shapes the loader states for the devtools surface, sorted by name.
func (s *ShellService) Describe() []model.RemoteStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.RemoteStatus, 0, len(s.entries))
	for name, en := range s.entries {
		st := en.loader.Status()
		rs := model.RemoteStatus{
			Name:     name,
			State:    en.loader.State().Label(),
			Attempts: st.Attempts,
		}
		if st.Error != nil {
			rs.LastError = st.Error.Error()
		}
		if st.Module != nil {
			rs.Version = st.Module.Version
			rs.Entry = st.Module.Entry
		}
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reload swaps the loader set to match the given registry and announces
// REGISTRY_UPDATED. Loaders whose config survived keep their state; a
// changed URL counts as a new remote.
func (s *ShellService) Reload(ctx context.Context, remotes []config.Remote) error {
	return s.reload(ctx, remotes, "")
}

func (s *ShellService) reload(ctx context.Context, remotes []config.Remote, path string) error {
	desired := make(map[string]config.Remote, len(remotes))
	for _, rc := range remotes {
		if rc.Name == "" || rc.URL == "" {
			return fmt.Errorf("service: reload: every remote needs name and url, got %+v", rc)
		}
		if _, dup := desired[rc.Name]; dup {
			return fmt.Errorf("service: reload: duplicate remote %q", rc.Name)
		}
		desired[rc.Name] = rc
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrShellClosed
	}
	for name, en := range s.entries {
		rc, keep := desired[name]
		if keep && rc.URL == en.cfg.URL {
			en.cfg = rc
			continue
		}
		en.loader.Close()
		delete(s.entries, name)
	}
	for name, rc := range desired {
		if _, exists := s.entries[name]; !exists {
			s.registerLocked(rc)
		}
	}
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	s.mu.Unlock()

	sort.Strings(names)
	s.log.Info("REGISTRY_RELOADED", "remotes", names, "path", path)
	if s.emitter != nil {
		s.emitter.Emit(ctx, event.TypeRegistryUpdated, event.RegistryUpdated{
			Path:    path,
			Remotes: names,
		}, bus.WithSource(event.SourceShell))
	}
	return nil
}

// Close tears down every loader. [IDEMPOTENT]
func (s *ShellService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, en := range s.entries {
		en.loader.Close()
	}
}
